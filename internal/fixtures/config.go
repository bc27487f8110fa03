package fixtures

// Config holds configuration for the fixture server.
type Config struct {
	// Port is the port on which the plain HTTP listener serves.
	Port int

	// HTTPSPort is the port of the TLS listener; 0 disables it.
	HTTPSPort int

	// HTTPSBaseURL is where the redirect endpoint sends plain-text requests,
	// e.g. "https://localhost:8889". Derived from HTTPSPort when empty.
	HTTPSBaseURL string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:      8888,
		HTTPSPort: 8889,
	}
}
