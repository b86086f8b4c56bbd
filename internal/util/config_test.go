package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marl.toml")
	content := `
jpath = ["lib", "/abs/vendor"]
max_stack = 200
max_trace = 5

[ext]
env = "prod"

[ext_code]
replicas = "2 + 1"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewConfiguration()
	if err := c.LoadConfigFile(path); err != nil {
		t.Fatal(err)
	}

	if len(c.JPath) != 2 {
		t.Fatalf("jpath: %v", c.JPath)
	}
	// Relative entries resolve against the config file's directory.
	if c.JPath[0] != filepath.Join(dir, "lib") {
		t.Errorf("relative jpath: %s", c.JPath[0])
	}
	if c.JPath[1] != "/abs/vendor" {
		t.Errorf("absolute jpath: %s", c.JPath[1])
	}
	if c.MaxStack != 200 || c.MaxTrace != 5 {
		t.Errorf("limits: %d %d", c.MaxStack, c.MaxTrace)
	}
	if c.ExtVars["env"] != "prod" {
		t.Errorf("ext var: %v", c.ExtVars)
	}
	if c.ExtCodes["replicas"] != "2 + 1" {
		t.Errorf("ext code: %v", c.ExtCodes)
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	c := NewConfiguration()
	if err := c.LoadConfigFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadEnvPath(t *testing.T) {
	t.Setenv("MARL_PATH", "/a:/b:")
	c := NewConfiguration()
	c.LoadEnvPath()
	if len(c.JPath) != 2 || c.JPath[0] != "/a" || c.JPath[1] != "/b" {
		t.Errorf("env path: %v", c.JPath)
	}
}
