package cache

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Canonicalize re-encodes a JSON document with object keys sorted so that
// semantically equal payloads produce identical byte sequences. Two quiz
// submissions that differ only in field order fingerprint to the same key.
func Canonicalize(raw json.RawMessage) ([]byte, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("cache: canonicalize: %w", err)
	}
	canonical, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache: canonicalize: %w", err)
	}
	return canonical, nil
}

// KeyMaker derives cache keys from request payloads. The epoch acts as a
// coarse invalidation lever: bumping it orphans every previously stored
// entry without touching the backend.
type KeyMaker struct {
	namespace string
	epoch     int
	salt      string
}

func NewKeyMaker(namespace string, epoch int, salt string) KeyMaker {
	if namespace == "" {
		namespace = "plangate"
	}
	return KeyMaker{namespace: namespace, epoch: epoch, salt: salt}
}

// Key fingerprints the payload under the given route segment, producing
// "<namespace>:<route>:v<epoch>:<digest>".
func (k KeyMaker) Key(route string, payload json.RawMessage) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	digest := sha256.New()
	digest.Write([]byte(k.salt))
	digest.Write(canonical)
	sum := base64.RawURLEncoding.EncodeToString(digest.Sum(nil))
	return fmt.Sprintf("%s:%s:v%d:%s", k.namespace, route, k.epoch, sum), nil
}
