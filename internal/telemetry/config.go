package telemetry

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Protocols accepted by Config.Protocol.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool           `koanf:"enabled"`
	Endpoint       string         `koanf:"endpoint"`
	Protocol       string         `koanf:"protocol"`
	ServiceName    string         `koanf:"service_name"`
	ServiceVersion string         `koanf:"service_version"`
	Insecure       bool           `koanf:"insecure"`
	TLSSkipVerify  bool           `koanf:"tls_skip_verify"`
	Sampling       SamplingConfig `koanf:"sampling"`
	Shutdown       ShutdownConfig `koanf:"shutdown"`
}

// SamplingConfig controls trace sampling.
type SamplingConfig struct {
	Rate float64 `koanf:"rate"` // 0.0-1.0
}

// ShutdownConfig controls flushing on exit.
type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// NewDefaultConfig returns defaults with export disabled.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		Endpoint:       "localhost:4317",
		Protocol:       ProtocolGRPC,
		ServiceName:    "plains",
		ServiceVersion: "0.1.0",
		Insecure:       true,
		Sampling:       SamplingConfig{Rate: 1.0},
		Shutdown:       ShutdownConfig{Timeout: 5 * time.Second},
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	switch c.Protocol {
	case "", ProtocolGRPC, ProtocolHTTP:
	default:
		return fmt.Errorf("unsupported protocol %q (use %q or %q)", c.Protocol, ProtocolGRPC, ProtocolHTTP)
	}
	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure export to remote endpoint %s is not allowed; set insecure=false or use a local endpoint", c.Endpoint)
	}
	if c.Sampling.Rate < 0 || c.Sampling.Rate > 1 {
		return fmt.Errorf("sampling.rate must be between 0 and 1, got %f", c.Sampling.Rate)
	}
	if c.Shutdown.Timeout <= 0 {
		return fmt.Errorf("shutdown.timeout must be positive")
	}
	return nil
}

// isLocalEndpoint reports whether the endpoint host is a loopback address.
func (c *Config) isLocalEndpoint() bool {
	host := stripScheme(c.Endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
