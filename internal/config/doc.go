// Package config provides configuration management for dagent.
//
// Configuration is loaded from environment variables using the env package.
// All configuration values have sensible defaults for development use.
// Hosted API keys are read separately from PREFIX, PREFIX_1, PREFIX_2, ...
// where PREFIX defaults to ANTHROPIC_API_KEY.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
