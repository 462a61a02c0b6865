package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ScheduleEntry is one periodic job as declared in the schedule file.
//
//	entries:
//	  - name: generate-crm-report
//	    spec: "0 6 * * 1"
//	    kind: enqueue
//	    task: generate_crm_report
//	  - name: crm-heartbeat
//	    disabled: true
//
// A disabled entry only needs its name.
type ScheduleEntry struct {
	Name     string `mapstructure:"name" validate:"required"`
	Spec     string `mapstructure:"spec" validate:"required_unless=Disabled true"`
	Kind     string `mapstructure:"kind" validate:"required_unless=Disabled true,omitempty,oneof=enqueue inline"`
	Task     string `mapstructure:"task" validate:"required_unless=Disabled true"`
	Disabled bool   `mapstructure:"disabled"`
}

type scheduleFile struct {
	Entries []ScheduleEntry `mapstructure:"entries" validate:"dive"`
}

// LoadSchedule reads schedule overrides from a YAML (or any viper-supported) file.
// An empty path yields no overrides.
func LoadSchedule(path string) ([]ScheduleEntry, error) {
	if path == "" {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}

	var f scheduleFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode schedule file: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("schedule validation failed: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Entries))
	for _, e := range f.Entries {
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("schedule entry %q declared twice", e.Name)
		}
		seen[e.Name] = struct{}{}
	}

	return f.Entries, nil
}
