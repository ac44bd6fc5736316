package settings

import (
	"fmt"
	"os"

	"github.com/dgnsrekt/tabtunnel/internal/types"
	"gopkg.in/yaml.v3"
)

// presetsFile is the YAML layout of the presets file.
type presetsFile struct {
	Endpoints []types.Preset `yaml:"endpoints"`
}

// DefaultPresets are offered when no presets file is configured.
func DefaultPresets() []types.Preset {
	return []types.Preset{
		{Name: "Default", URL: DefaultEndpoint},
		{Name: "Local", URL: "ws://127.0.0.1:8080/wisp/"},
	}
}

// LoadPresets reads and validates a presets YAML file. Returns an
// os.ErrNotExist-wrapped error if the file is absent (caller falls back to
// DefaultPresets in that case).
func LoadPresets(path string) ([]types.Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("presets: %w", err)
	}
	var f presetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("presets: %w", err)
	}
	if len(f.Endpoints) == 0 {
		return nil, fmt.Errorf("presets: at least one endpoint is required")
	}
	for i := range f.Endpoints {
		p := &f.Endpoints[i]
		if err := ValidateEndpoint(p.URL); err != nil {
			return nil, fmt.Errorf("presets: endpoints[%d]: %w", i, err)
		}
		if p.Name == "" {
			p.Name = p.URL
		}
	}
	return f.Endpoints, nil
}
