package protocol

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const (
	DefaultCapacity        = 64000
	DefaultRTTimeout       = 1000 // milliseconds
	DefaultMaxPayloadSize  = 1000 // bytes, leaves room for IP and TCP headers
	DefaultMaxRetxAttempts = 8
)

// ErrInvalidConfig is returned when a TCPConfig cannot build a connection.
var ErrInvalidConfig = errors.New("invalid tcp config")

// TCPConfig holds the caller-supplied construction parameters of a connection.
type TCPConfig struct {
	RecvCapacity    int     `toml:"recv_capacity"`
	SendCapacity    int     `toml:"send_capacity"`
	RTTimeout       uint64  `toml:"rt_timeout_ms"`
	MaxPayloadSize  int     `toml:"max_payload_size"`
	MaxRetxAttempts uint    `toml:"max_retx_attempts"`
	FixedISN        *uint32 `toml:"fixed_isn"` // random ISN when unset
}

// DefaultTCPConfig returns the configuration used when nothing is overridden.
func DefaultTCPConfig() TCPConfig {
	return TCPConfig{
		RecvCapacity:    DefaultCapacity,
		SendCapacity:    DefaultCapacity,
		RTTimeout:       DefaultRTTimeout,
		MaxPayloadSize:  DefaultMaxPayloadSize,
		MaxRetxAttempts: DefaultMaxRetxAttempts,
	}
}

// Validate reports configuration values the core cannot run with.
func (cfg TCPConfig) Validate() error {
	switch {
	case cfg.RecvCapacity <= 0:
		return errors.Wrapf(ErrInvalidConfig, "recv_capacity must be positive, got %d", cfg.RecvCapacity)
	case cfg.SendCapacity <= 0:
		return errors.Wrapf(ErrInvalidConfig, "send_capacity must be positive, got %d", cfg.SendCapacity)
	case cfg.RTTimeout == 0:
		return errors.Wrap(ErrInvalidConfig, "rt_timeout_ms must be positive")
	case cfg.MaxPayloadSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "max_payload_size must be positive, got %d", cfg.MaxPayloadSize)
	}
	return nil
}

// LoadConfig reads a TOML file. Keys missing from the file keep their
// DefaultTCPConfig values.
func LoadConfig(path string) (TCPConfig, error) {
	cfg := DefaultTCPConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return TCPConfig{}, errors.Wrapf(err, "parsing config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return TCPConfig{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}
