package settings

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "endpoints.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadPresets(t *testing.T) {
	path := writeFile(t, `endpoints:
  - name: Primary
    url: wss://one.test/wisp/
  - url: ws://127.0.0.1:9000/
`)
	presets, err := LoadPresets(path)
	if err != nil {
		t.Fatalf("LoadPresets() error = %v", err)
	}
	if len(presets) != 2 {
		t.Fatalf("len = %d; want 2", len(presets))
	}
	if presets[0].Name != "Primary" || presets[1].Name != "ws://127.0.0.1:9000/" {
		t.Fatalf("presets = %+v", presets)
	}
}

func TestLoadPresetsErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "empty", body: "endpoints: []\n", want: "at least one endpoint"},
		{name: "bad scheme", body: "endpoints:\n  - url: https://x.test\n", want: "endpoints[0]"},
		{name: "bad yaml", body: "endpoints: [\n", want: "presets:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPresets(writeFile(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("LoadPresets() error = %v; want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadPresetsMissingFile(t *testing.T) {
	_, err := LoadPresets(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("LoadPresets() error = %v; want os.ErrNotExist", err)
	}
}
