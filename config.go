package svcsched

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Default filesystem layout under the supervisor's working directory.
const (
	// DefaultConfigPath is where the supervisor reads its configuration
	DefaultConfigPath = "./svcm/config.json"
	// DefaultCachePath is where the calendar cache is persisted
	DefaultCachePath = "./svcm/cache.d"
	// DefaultLogDir is where day-stamped log files are written
	DefaultLogDir = "./svcm/log"
)

// HTTPConfig locates the calendar endpoint. Port 443 and the sentinel
// 65535 are rejected: TLS is out of scope for this client.
type HTTPConfig struct {
	Server string `koanf:"server" validate:"required"`
	Port   int    `koanf:"port" validate:"required,min=1,max=65534,ne=443"`
}

// UnitConfig is the per-unit schedule as declared in the config file.
type UnitConfig struct {
	Name            string   `koanf:"name" validate:"required"`
	Start           string   `koanf:"start" validate:"required"`
	End             string   `koanf:"end" validate:"required"`
	Restart         string   `koanf:"restart"`
	RequiredWorkday *bool    `koanf:"required_workday" validate:"required"`
	Dependent       []string `koanf:"dependent"`
}

// SweepConfig is one janitor entry. An empty Dir means the current
// working directory.
type SweepConfig struct {
	Dir            string   `koanf:"dir"`
	IsCache        bool     `koanf:"is_cache"`
	DeleteEmptyDir bool     `koanf:"delete_empty_dir"`
	Ext            []string `koanf:"ext"`
}

// Config is the full supervisor configuration. It is read once at
// startup; there is no dynamic reconfiguration.
type Config struct {
	HTTP   HTTPConfig             `koanf:"http" validate:"required"`
	Driver string                 `koanf:"driver" validate:"omitempty,oneof=dbus systemctl"`
	Svc    []UnitConfig           `koanf:"svc" validate:"required,min=1,dive"`
	Dust   map[string]SweepConfig `koanf:"dust"`
}

// LoadConfig reads and validates the JSON configuration at path.
// A missing required field or an invalid value is fatal; the supervisor
// refuses to run on a partial schedule.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return &cfg, nil
}

// BuildSchedules converts the declared unit configs into prepared
// schedules. Unit names and every dependent name are normalized with
// the platform unit suffix, and all window strings are parsed and
// anchored to the day of now. Duplicate names are a config error.
func BuildSchedules(cfg *Config, now time.Time) ([]*UnitSchedule, error) {
	seen := make(map[string]struct{}, len(cfg.Svc))
	units := make([]*UnitSchedule, 0, len(cfg.Svc))

	for i := range cfg.Svc {
		uc := &cfg.Svc[i]

		name := NormalizeUnitName(uc.Name)
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate unit %q in config", name)
		}
		seen[name] = struct{}{}

		tr, err := NewTimeRange(uc.Start, uc.End, uc.Restart, now)
		if err != nil {
			return nil, fmt.Errorf("unit %q: %w", name, err)
		}

		deps := make([]string, len(uc.Dependent))
		for j, d := range uc.Dependent {
			deps[j] = NormalizeUnitName(d)
		}

		units = append(units, &UnitSchedule{
			Name:            name,
			RequiredWorkday: uc.RequiredWorkday != nil && *uc.RequiredWorkday,
			Dependents:      deps,
			Range:           tr,
		})
	}

	return units, nil
}

// SweepConfigs flattens the janitor entries. Sweeps are independent,
// so map iteration order is fine.
func SweepConfigs(cfg *Config) []SweepConfig {
	out := make([]SweepConfig, 0, len(cfg.Dust))
	for _, sc := range cfg.Dust {
		out = append(out, sc)
	}
	return out
}
