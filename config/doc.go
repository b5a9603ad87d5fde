// Package config loads the wirekit engine configuration.
//
// Values come from, in increasing precedence: Default(), a YAML file found
// through the Resolver search paths, a .env file, and WIREKIT_* environment
// variables. The result is validated with struct tags before use.
//
//	cfg, err := config.Load("orders", config.WithConfigFile("./wirekit.yml"))
//	root, err := di.New(cfg)
package config
