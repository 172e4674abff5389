package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/winrt-runtime/errors"
)

func TestDefaults(t *testing.T) {
	c, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Modules.Extension != ".dll" || !c.Activation.BrokerFallback || c.Log.Level != "info" {
		t.Errorf("defaults = %+v", c)
	}
	opts := c.ActivationOptions()
	if got := opts.Naming("A.B"); got != "A.B.dll" {
		t.Errorf("Naming = %q", got)
	}
}

func TestParseOverrides(t *testing.T) {
	c, err := Parse([]byte(`
[modules]
dir = "/opt/components"
extension = ".so"

[modules.overrides]
"A.B" = "Widgets.so"
"A.B.C.Gadget" = "Gadgets.so"

[activation]
broker_fallback = false

[log]
level = "debug"
development = true
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Modules.Dir != "/opt/components" || c.Activation.BrokerFallback || !c.Log.Development {
		t.Errorf("config = %+v", c)
	}
	opts := c.ActivationOptions()
	if opts.BrokerFallback || opts.Overrides["A.B"] != "Widgets.so" || opts.Naming("A") != "A.so" {
		t.Errorf("options = %+v", opts)
	}
	logger, err := c.Log.Build()
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Core().Enabled(-1) {
		t.Error("debug level not enabled")
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", "[modules"},
		{"unknown key", "[modules]\ndirectory = \"x\""},
		{"extension", "[modules]\nextension = \"dll\""},
		{"level", "[log]\nlevel = \"loud\""},
		{"empty override", "[modules.overrides]\n\"A\" = \"\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !stderrors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("Parse = %v", err)
			}
		})
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[modules]\ndir = \"lib\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvPath, "")
	c, err := Discover(nested)
	if err != nil {
		t.Fatal(err)
	}
	if c.Modules.Dir != filepath.Join(root, "lib") {
		t.Errorf("Dir = %q", c.Modules.Dir)
	}
	if c.Path != filepath.Join(root, FileName) {
		t.Errorf("Path = %q", c.Path)
	}

	other := filepath.Join(t.TempDir(), "custom.toml")
	if err := os.WriteFile(other, []byte("[log]\nlevel = \"warn\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPath, other)
	c, err = Discover(nested)
	if err != nil {
		t.Fatal(err)
	}
	if c.Log.Level != "warn" {
		t.Errorf("env config ignored: %+v", c.Log)
	}

	t.Setenv(EnvPath, filepath.Join(root, "missing.toml"))
	if _, err := Discover(nested); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing env file = %v", err)
	}
}
