package predict

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the tunables of the prediction engine. A zero Granularity
// or UncertaintyGrowth takes the default; a zero Horizon means no forecast
// rows, only the observed ones.
type Config struct {
	Granularity       time.Duration `mapstructure:"granularity"`        // Estimation granularity; the base uncertainty is half of it
	UncertaintyGrowth float64       `mapstructure:"uncertainty_growth"` // Per-row widening multiplier, at least 1
	Horizon           int           `mapstructure:"horizon"`            // Maximum number of future rows
}

// DefaultConfig returns the stock engine settings:
// a one hour granularity (30 minutes either side), a 1.1 daily
// multiplier and two weeks of forecast rows.
func DefaultConfig() Config {
	return Config{
		Granularity:       time.Hour,
		UncertaintyGrowth: 1.1,
		Horizon:           14,
	}
}

// Validate reports every value the engine cannot work with. Messages are
// keyed by the mapstructure names.
func (c Config) Validate() error {
	var errs []error
	if c.Granularity <= 0 {
		errs = append(errs, fmt.Errorf("granularity must be positive, got %s", c.Granularity))
	}
	if c.UncertaintyGrowth < 1 {
		errs = append(errs, fmt.Errorf("uncertainty_growth must be at least 1, got %g", c.UncertaintyGrowth))
	}
	if c.Horizon < 0 {
		errs = append(errs, fmt.Errorf("horizon must not be negative, got %d", c.Horizon))
	}
	return errors.Join(errs...)
}

// resolve fills unset values from DefaultConfig and validates the result.
func (c Config) resolve() (Config, error) {
	def := DefaultConfig()
	if c.Granularity == 0 {
		c.Granularity = def.Granularity
	}
	if c.UncertaintyGrowth == 0 {
		c.UncertaintyGrowth = def.UncertaintyGrowth
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("predict config: %w", err)
	}
	return c, nil
}
