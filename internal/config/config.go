// Package config turns the loaded Viper tree into typed settings and
// builds the process logger.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/HerbHall/sleepcast/internal/predict"
	"github.com/HerbHall/sleepcast/internal/refresh"
	"github.com/HerbHall/sleepcast/internal/server"
)

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Settings is the full typed configuration.
type Settings struct {
	Server   server.Config  `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Predict  predict.Config `mapstructure:"predict"`
	Refresh  refresh.Config `mapstructure:"refresh"`
}

// Decode unmarshals v into Settings and validates the result. Decoding
// goes through AllSettings, so SC_* environment overrides are honoured.
func Decode(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		Server:  server.DefaultConfig(),
		Predict: predict.DefaultConfig(),
		Refresh: refresh.DefaultConfig(),
	}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate reports every invalid setting at once.
func (s *Settings) Validate() error {
	var errs []error
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", s.Server.Port))
	}
	if s.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if err := s.Predict.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("predict: %w", err))
	}
	if s.Refresh.SnapshotRetention < 0 {
		errs = append(errs, fmt.Errorf("refresh.snapshot_retention must not be negative, got %v", s.Refresh.SnapshotRetention))
	}
	return errors.Join(errs...)
}
