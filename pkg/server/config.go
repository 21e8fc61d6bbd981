package server

import "time"

// Config holds server configuration settings
type Config struct {
	Host           string        // Server host address
	Port           int           // Server port
	ReadTimeout    time.Duration // HTTP read timeout
	WriteTimeout   time.Duration // HTTP write timeout
	IdleTimeout    time.Duration // HTTP idle timeout
	MaxRequestSize int64         // Maximum request body size in bytes
	EnableCORS     bool          // Enable CORS middleware
	AllowedOrigins []string      // CORS allowed origins
	EnableLogging  bool          // Enable request logging
	LogFormat      string        // Log format (text or json)

	EnforceRules bool   // Check security rules on document operations
	RulesFile    string // Rules source loaded at startup, optional

	EnableGraphQL bool // Enable the GraphQL browse endpoint
	EnableMetrics bool // Expose Prometheus metrics on /metrics

	TxnIdleTimeout time.Duration // Transaction idle timeout
	SweepInterval  time.Duration // How often expired transactions are reaped
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024, // 10MB
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		EnableLogging:  true,
		LogFormat:      "text",
		EnforceRules:   true,
		EnableGraphQL:  false,
		EnableMetrics:  true,
		TxnIdleTimeout: 5 * time.Minute,
		SweepInterval:  time.Minute,
	}
}
