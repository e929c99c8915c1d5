// Package config defines the CLI configuration structure.
package config

import "time"

// CLIConfig is the configuration for rmap-cli.
type CLIConfig struct {
	// Server is the store address (host:port).
	Server string `koanf:"server" yaml:"server"`

	// Password is sent with AUTH when set.
	Password string `koanf:"password" yaml:"password,omitempty"`

	// TLS enables TLS to the store.
	TLS bool `koanf:"tls" yaml:"tls"`

	// TLSCAFile adds a CA bundle to the system roots.
	TLSCAFile string `koanf:"tls_ca_file" yaml:"tls_ca_file,omitempty"`

	// TLSServerName overrides the name verified against the certificate.
	TLSServerName string `koanf:"tls_server_name" yaml:"tls_server_name,omitempty"`

	// Output is the default output format (table, json, yaml).
	Output string `koanf:"output" yaml:"output"`

	// Timeout bounds each command invocation.
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`

	// MaxAttempts caps conditional operation retries. Zero retries until the
	// timeout expires.
	MaxAttempts int `koanf:"max_attempts" yaml:"max_attempts"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:      "localhost:6379",
		Output:      "table",
		Timeout:     30 * time.Second,
		MaxAttempts: 16,
	}
}
