// Package config handles loading and validating EnOcean bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Reading an optional .env file
//   - Overriding with EOBRIDGE_* environment variables
//   - Validation of required fields
//
// Command-line flags are applied by the caller after Load returns; Validate
// can be called again once they are in place.
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should come from the environment
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/eobridge.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Bridge.DataDir)
package config
