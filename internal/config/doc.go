// Package config provides the configuration for a crawl: CLI-derived options,
// their defaults and validation, and the optional YAML site file that tunes
// crawling per host.
package config
