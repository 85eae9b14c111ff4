package application

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Rules carries the compliance rule parameters. Defaults follow the
// statutory values; a YAML file referenced by EWB_RULES_CONFIG can override
// them for sandbox environments.
type Rules struct {
	// CancellationWindowHours is the window, anchored at record creation,
	// within which a bill may still be cancelled.
	CancellationWindowHours float64 `yaml:"cancellation_window_hours"`
	// ExtensionCeilingHours bounds how far past the request time a validity
	// extension may reach.
	ExtensionCeilingHours float64 `yaml:"extension_ceiling_hours"`
	// MinRemarksLength is the minimum cancellation remarks length.
	MinRemarksLength int `yaml:"min_remarks_length"`
	// MinExtensionReasonLength is the minimum extension reason length.
	MinExtensionReasonLength int `yaml:"min_extension_reason_length"`
	// MinLocationLength is the minimum current-location length on an
	// extension request.
	MinLocationLength int `yaml:"min_location_length"`
	// ExpirySweepInterval is how often persisted statuses are converged
	// with elapsed validity.
	ExpirySweepInterval time.Duration `yaml:"expiry_sweep_interval"`
}

// LoadRules loads rule parameters from env with optional YAML override.
func LoadRules() (Rules, error) {
	rules := Rules{
		CancellationWindowHours:  getenvFloatDefault("EWB_CANCEL_WINDOW_HOURS", 24),
		ExtensionCeilingHours:    getenvFloatDefault("EWB_EXTENSION_CEILING_HOURS", 72),
		MinRemarksLength:         getenvIntDefault("EWB_MIN_REMARKS_LENGTH", 10),
		MinExtensionReasonLength: getenvIntDefault("EWB_MIN_EXTENSION_REASON_LENGTH", 10),
		MinLocationLength:        getenvIntDefault("EWB_MIN_LOCATION_LENGTH", 3),
		ExpirySweepInterval:      getenvDuration("EWB_EXPIRY_SWEEP_INTERVAL", 10*time.Minute),
	}

	if path := os.Getenv("EWB_RULES_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return rules, err
		}
		if err := yaml.Unmarshal(data, &rules); err != nil {
			return rules, err
		}
	}

	if rules.CancellationWindowHours <= 0 {
		return rules, errors.New("rules: cancellation window must be positive")
	}
	if rules.ExtensionCeilingHours <= 0 {
		return rules, errors.New("rules: extension ceiling must be positive")
	}
	if rules.ExpirySweepInterval <= 0 {
		rules.ExpirySweepInterval = 10 * time.Minute
	}
	return rules, nil
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
