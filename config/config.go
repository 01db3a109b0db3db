// Package config holds the service configuration. A Config is built once at
// startup, validated, and passed by pointer to the components that need it.
package config

import (
	"errors"
	"fmt"
	"time"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvProduction  Environment = "production"
)

type Config struct {
	Environment Environment

	// ChallengeTTL is the maximum age of a challenge when it is solved.
	ChallengeTTL time.Duration

	// ShareActiveTTL is the age of a work share after which activation
	// asks the device to rotate.
	ShareActiveTTL time.Duration

	// ShareInactiveTTL is the age of a work share after which it is
	// invalidated on the next activation attempt.
	ShareInactiveTTL time.Duration

	// ShareMaxRotationIgnores is the number of activations that may ignore
	// a rotation request before the share is invalidated.
	ShareMaxRotationIgnores int

	// PreferredDeviceKeyVersion is the challenge version device keys should
	// use. Activation requests rotation for shares with older keys.
	PreferredDeviceKeyVersion string

	// AllowHashChallenges enables digest-equality challenges. Never valid
	// in production.
	AllowHashChallenges bool

	// CleanupInterval is how often the reaper runs. Zero disables it.
	CleanupInterval time.Duration

	// DeviceLocationRetention is the minimum age of an unreferenced
	// DeviceAndLocation row before the reaper deletes it.
	DeviceLocationRetention time.Duration
}

func Default() *Config {
	return &Config{
		Environment:               EnvProduction,
		ChallengeTTL:              5 * time.Minute,
		ShareActiveTTL:            7 * 24 * time.Hour,
		ShareInactiveTTL:          30 * 24 * time.Hour,
		ShareMaxRotationIgnores:   3,
		PreferredDeviceKeyVersion: "v2",
		CleanupInterval:           10 * time.Minute,
		DeviceLocationRetention:   30 * 24 * time.Hour,
	}
}

var ErrInvalidConfig = errors.New("invalid config")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return invalid("unknown environment %q", c.Environment)
	}
	if c.ChallengeTTL <= 0 {
		return invalid("challenge TTL must be positive")
	}
	if c.ShareActiveTTL <= 0 {
		return invalid("share active TTL must be positive")
	}
	if c.ShareInactiveTTL <= c.ShareActiveTTL {
		return invalid("share inactive TTL (%s) must exceed active TTL (%s)", c.ShareInactiveTTL, c.ShareActiveTTL)
	}
	if c.ShareMaxRotationIgnores < 1 {
		return invalid("share max rotation ignores must be at least 1")
	}
	switch c.PreferredDeviceKeyVersion {
	case "v1", "v2":
	default:
		return invalid("unknown preferred device key version %q", c.PreferredDeviceKeyVersion)
	}
	if c.AllowHashChallenges && c.Environment == EnvProduction {
		return invalid("hash challenges cannot be enabled in production")
	}
	if c.CleanupInterval < 0 {
		return invalid("cleanup interval cannot be negative")
	}
	if c.DeviceLocationRetention <= 0 {
		return invalid("device location retention must be positive")
	}
	return nil
}
