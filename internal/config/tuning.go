package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/marketdata"
	"github.com/aristath/lpsentinel/internal/modules/correlation"
	"github.com/aristath/lpsentinel/internal/modules/monitoring"
	"github.com/aristath/lpsentinel/internal/modules/optimization"
	"github.com/aristath/lpsentinel/internal/modules/rebalancing"
	"gopkg.in/yaml.v3"
)

// Tuning groups the engine settings that can be overridden from YAML
type Tuning struct {
	Correlation  correlation.Config       `yaml:"correlation"`
	Optimization optimization.Settings    `yaml:"optimization"`
	Monitoring   monitoring.Settings      `yaml:"monitoring"`
	History      marketdata.HistoryConfig `yaml:"history"`
	// Extra rebalancing configurations registered next to the default one
	Rebalancing []rebalancing.Config `yaml:"rebalancing_configs"`
}

// DefaultTuning returns the built-in engine settings
func DefaultTuning() Tuning {
	return Tuning{
		Correlation:  correlation.DefaultConfig(),
		Optimization: optimization.DefaultSettings(),
		Monitoring:   monitoring.DefaultSettings(),
		History:      marketdata.DefaultHistoryConfig(),
	}
}

// LoadTuning reads a YAML tuning file over the defaults.
// An empty path or a missing file yields the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, fmt.Errorf("failed to read tuning file: %w", err)
	}
	return ParseTuning(data)
}

// ParseTuning decodes YAML over the defaults and validates the result
func ParseTuning(data []byte) (Tuning, error) {
	t := DefaultTuning()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("failed to parse tuning file: %w", err)
	}
	// Each rebalancing configuration starts from the defaults too
	if len(t.Rebalancing) > 0 {
		var raw struct {
			Rebalancing []yaml.Node `yaml:"rebalancing_configs"`
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return t, fmt.Errorf("failed to parse rebalancing configs: %w", err)
		}
		configs := make([]rebalancing.Config, len(raw.Rebalancing))
		for i := range raw.Rebalancing {
			configs[i] = rebalancing.DefaultConfig()
			configs[i].ID = ""
			if err := raw.Rebalancing[i].Decode(&configs[i]); err != nil {
				return t, fmt.Errorf("failed to parse rebalancing config %d: %w", i, err)
			}
		}
		t.Rebalancing = configs
	}

	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid tuning: %w", err)
	}
	return t, nil
}

// Validate runs every section's checks
func (t Tuning) Validate() error {
	if err := domain.ValidateStruct(t.Correlation); err != nil {
		return err
	}
	if err := t.Correlation.Validate(); err != nil {
		return domain.NewValidationError("correlation", "%v", err)
	}
	if err := t.Optimization.Validate(); err != nil {
		return domain.NewValidationError("optimization", "%v", err)
	}
	if err := t.Monitoring.Validate(); err != nil {
		return err
	}
	if err := t.History.Validate(); err != nil {
		return err
	}

	seen := map[string]struct{}{rebalancing.DefaultConfigID: {}}
	for _, c := range t.Rebalancing {
		if err := c.Validate(); err != nil {
			return err
		}
		if _, dup := seen[c.ID]; dup {
			return domain.NewValidationError("rebalancing_configs", "duplicate configuration id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}
