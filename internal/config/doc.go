// Package config provides configuration management for the store worker.
//
// Configuration is loaded from environment variables and validated on startup.
// All configuration options have sensible defaults for development.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg)
//
// A data source can be configured directly through SOURCE_URL and friends; the
// binary then sends it to the worker as the first config message, so a worker
// can be started without a supervisor driving the load.
package config
