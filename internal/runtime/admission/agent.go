package admission

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/plangate/plangate/internal/runtime/pipeline"
)

// Agent resolves the client identity used for rate limiting. The socket peer
// is authoritative; X-Forwarded-For is honored only when the peer belongs to
// a trusted proxy network, otherwise a spoofed header could reset another
// client's rate-limit window.
type Agent struct {
	trustedNetworks []netip.Prefix
}

func New(trusted []netip.Prefix) *Agent {
	return &Agent{trustedNetworks: trusted}
}

func (a *Agent) Name() string { return "admission" }

func (a *Agent) Execute(_ context.Context, r *http.Request, state *pipeline.State) pipeline.Result {
	state.Admission.ClientIP = remoteHost(r.RemoteAddr)
	state.Admission.ForwardedFor = strings.TrimSpace(r.Header.Get("X-Forwarded-For"))

	if state.Admission.ForwardedFor == "" {
		return a.finish(state, "direct client address used")
	}

	peer, err := parseRemoteIP(r.RemoteAddr)
	if err != nil || !a.isTrusted(peer) {
		return a.finish(state, "forwarded header ignored from untrusted peer")
	}

	chain, err := parseForwardedChain(state.Admission.ForwardedFor)
	if err != nil || len(chain) == 0 {
		return a.finish(state, "forwarded header unparseable, peer address used")
	}
	if !a.forwardedChainTrusted(chain) {
		return a.finish(state, "forwarded chain contains untrusted hops, peer address used")
	}

	state.Admission.TrustedProxy = true
	state.Admission.ClientIP = chain[0].String()
	return a.finish(state, "forwarded client address used")
}

func (a *Agent) finish(state *pipeline.State, details string) pipeline.Result {
	return pipeline.Result{
		Name:    a.Name(),
		Status:  "resolved",
		Details: details,
	}
}

func (a *Agent) isTrusted(addr netip.Addr) bool {
	for _, network := range a.trustedNetworks {
		if network.Contains(addr) {
			return true
		}
	}
	return false
}

// forwardedChainTrusted reports whether every hop after the leftmost entry
// belongs to a trusted proxy network. The leftmost entry is only the original
// client when the rest of the chain was appended by proxies we control; a
// client behind a trusted proxy can place arbitrary addresses in front of its
// own, so an untrusted intermediate hop invalidates the whole chain.
func (a *Agent) forwardedChainTrusted(chain []netip.Addr) bool {
	for _, hop := range chain[1:] {
		if !a.isTrusted(hop) {
			return false
		}
	}
	return true
}

func parseForwardedChain(header string) ([]netip.Addr, error) {
	parts := strings.Split(header, ",")
	addrs := make([]netip.Addr, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		addr, err := parseForwardedEntry(trimmed)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func parseForwardedEntry(value string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(value); err == nil {
		return addr, nil
	}
	if strings.Contains(value, ":") {
		if addrPort, err := netip.ParseAddrPort(value); err == nil {
			return addrPort.Addr(), nil
		}
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		return netip.ParseAddr(host)
	}
	return netip.Addr{}, net.InvalidAddrError("invalid forwarded entry")
}

func remoteHost(addr string) string {
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func parseRemoteIP(addr string) (netip.Addr, error) {
	host := remoteHost(addr)
	if host == "" {
		return netip.Addr{}, net.InvalidAddrError("empty remote address")
	}
	return netip.ParseAddr(host)
}

// ParseCIDRs converts configured CIDR strings into prefixes, skipping
// malformed entries.
func ParseCIDRs(cidrs []string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes
}
