// Package config provides configuration loading and validation for the live
// call recorder. A YAML file is layered over Default(), then a .env file and
// LIVECALL_* environment variables are applied.
package config
