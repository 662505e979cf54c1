// Package config loads a promptmgr.ManagerConfig from environment variables
// or a configuration file.
package config
