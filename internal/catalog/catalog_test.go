package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuiltinCatalog(t *testing.T) {
	c := Builtin()
	careers := c.List()
	if len(careers) != 8 {
		t.Fatalf("expected 8 built-in careers, got %d", len(careers))
	}
	for i := 1; i < len(careers); i++ {
		prev, cur := careers[i-1], careers[i]
		if prev.Category > cur.Category || (prev.Category == cur.Category && prev.Name > cur.Name) {
			t.Fatalf("careers not sorted: %v before %v", prev, cur)
		}
	}
}

func TestListReturnsCopy(t *testing.T) {
	c := Builtin()
	first := c.List()
	first[0].Name = "Mutated"
	second := c.List()
	if second[0].Name == "Mutated" {
		t.Fatalf("List must not expose internal state")
	}
}

func TestLoadFileFormats(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "yaml",
			file: "careers.yaml",
			body: "careers:\n  - name: Pilot\n    category: Aviation\n    icon: \"✈️\"\n  - name: Chef\n    category: Culinary\n",
		},
		{
			name: "json",
			file: "careers.json",
			body: `{"careers":[{"name":"Pilot","category":"Aviation"},{"name":"Chef","category":"Culinary"}]}`,
		},
		{
			name: "toml",
			file: "careers.toml",
			body: "[[careers]]\nname = \"Pilot\"\ncategory = \"Aviation\"\n\n[[careers]]\nname = \"Chef\"\ncategory = \"Culinary\"\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tc.file)
			if err := os.WriteFile(path, []byte(tc.body), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			c := Builtin()
			if err := c.LoadFile(path); err != nil {
				t.Fatalf("load: %v", err)
			}
			careers := c.List()
			if len(careers) != 2 {
				t.Fatalf("expected 2 careers, got %d", len(careers))
			}
			if careers[0].Name != "Pilot" || careers[1].Name != "Chef" {
				t.Fatalf("unexpected careers: %v", careers)
			}
		})
	}
}

func TestLoadFileRejections(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("careers: []\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	nameless := filepath.Join(dir, "nameless.yaml")
	if err := os.WriteFile(nameless, []byte("careers:\n  - category: Misc\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	unsupported := filepath.Join(dir, "careers.ini")
	if err := os.WriteFile(unsupported, []byte("[careers]\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := Builtin()
	if err := c.LoadFile(empty); err == nil {
		t.Fatalf("expected error for empty catalog")
	}
	if err := c.LoadFile(nameless); err == nil {
		t.Fatalf("expected error for nameless entry")
	}
	if err := c.LoadFile(unsupported); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
	if len(c.List()) != 8 {
		t.Fatalf("failed loads must not clobber the active set")
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "careers.yaml")
	if err := os.WriteFile(path, []byte("careers:\n  - name: Pilot\n    category: Aviation\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := Builtin()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := c.Watch(ctx, path, func(err error) { t.Logf("watch error: %v", err) })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer watcher.Stop()

	if got := c.List(); len(got) != 1 || got[0].Name != "Pilot" {
		t.Fatalf("expected initial load from file, got %v", got)
	}

	if err := os.WriteFile(path, []byte("careers:\n  - name: Pilot\n    category: Aviation\n  - name: Chef\n    category: Culinary\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(c.List()) == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("catalog did not reload, still %v", c.List())
}
