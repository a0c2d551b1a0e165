package vault

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dev.env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	env := NewEnvironment()
	path := writeEnvFile(t, "API_KEY=abc123\nHOST=example.com\n")

	if err := env.LoadFile("dev", path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if env.ActiveName() != "dev" {
		t.Errorf("first loaded source should be active, got %q", env.ActiveName())
	}
	names := env.Names()
	if len(names) != 2 || names[0] != "API_KEY" || names[1] != "HOST" {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestActivate(t *testing.T) {
	env := NewEnvironment()
	env.AddSource("dev", map[string]string{"A": "1"})
	env.AddSource("prod", map[string]string{"B": "2"})

	if err := env.Activate("prod"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if env.ActiveName() != "prod" {
		t.Errorf("expected prod active, got %q", env.ActiveName())
	}
	if names := env.Names(); len(names) != 1 || names[0] != "B" {
		t.Errorf("expected prod's names, got %v", names)
	}

	if err := env.Activate("staging"); err == nil {
		t.Error("expected error activating unknown source")
	}
}

func TestLoadFile_ReplacesExistingSource(t *testing.T) {
	env := NewEnvironment()
	path := writeEnvFile(t, "A=1\n")
	if err := env.LoadFile("dev", path); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("A=1\nB=2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := env.LoadFile("dev", path); err != nil {
		t.Fatal(err)
	}

	if names := env.Names(); len(names) != 2 {
		t.Errorf("reload should replace the table, got %v", names)
	}
	if got := env.SourceNames(); len(got) != 1 {
		t.Errorf("reload must not duplicate the source, got %v", got)
	}
}
