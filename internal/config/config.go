package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingSettings is returned by Validate when connection settings are absent.
var ErrMissingSettings = errors.New("missing required settings")

type Odoo struct {
	URL      string `yaml:"url"`
	DB       string `yaml:"db"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type Prefixes struct {
	Category       string `yaml:"category"`
	Structure      string `yaml:"structure"`
	Rule           string `yaml:"rule"`
	Parameter      string `yaml:"parameter"`
	ParameterValue string `yaml:"parameter_value"`
	InputType      string `yaml:"input_type"`
}

type Stages struct {
	Categories      bool `yaml:"categories"`
	Structures      bool `yaml:"structures"`
	Parameters      bool `yaml:"parameters"`
	ParameterValues bool `yaml:"parameter_values"`
	InputTypes      bool `yaml:"input_types"`
}

type Config struct {
	Odoo   Odoo `yaml:"odoo"`
	Export struct {
		Output       string `yaml:"output"`
		ModulePrefix string `yaml:"module_prefix"`
		XMLIDLookup  bool   `yaml:"xmlid_lookup"`
		Report       string `yaml:"report"`
	} `yaml:"export"`
	Prefixes Prefixes `yaml:"prefixes"`
	Stages   Stages   `yaml:"stages"`
	Rules    struct {
		// Fields replaces the preferred salary rule projection.
		Fields []string `yaml:"fields"`
	} `yaml:"rules"`
}

// Defaults returns the settings used when neither the file, the environment
// nor the command line say otherwise.
func Defaults() *Config {
	cfg := &Config{
		Prefixes: Prefixes{
			Category:       "aginc_category",
			Structure:      "aginc_structure",
			Rule:           "aginc_hr_salary_rule",
			Parameter:      "aginc_rule_parameter",
			ParameterValue: "aginc_rule_parameter_value",
			InputType:      "aginc_payslip_input_type",
		},
		Stages: Stages{
			Categories:      true,
			Structures:      true,
			Parameters:      true,
			ParameterValues: true,
			InputTypes:      true,
		},
	}
	cfg.Export.ModulePrefix = "l10n_do_hr_payroll"
	cfg.Export.XMLIDLookup = true
	return cfg
}

// LoadConfig reads path over the defaults. A missing file is not an error.
// Values from the environment (and a .env file) win over the file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Defaults()

	// 2. Load YAML config
	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// 3. Override with Environment Variables if present
	overrides := []struct {
		name   string
		target *string
	}{
		{"ODOO_URL", &cfg.Odoo.URL},
		{"ODOO_DB", &cfg.Odoo.DB},
		{"ODOO_USER", &cfg.Odoo.User},
		{"ODOO_PASSWORD", &cfg.Odoo.Password},
		{"PAYROLL_MODULE_PREFIX", &cfg.Export.ModulePrefix},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.name); v != "" {
			*o.target = v
		}
	}

	return cfg, nil
}

// Validate reports every missing connection setting at once.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Odoo.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(c.Odoo.DB) == "" {
		missing = append(missing, "db")
	}
	if strings.TrimSpace(c.Odoo.User) == "" {
		missing = append(missing, "user")
	}
	if c.Odoo.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSettings, strings.Join(missing, ", "))
	}
	return nil
}
