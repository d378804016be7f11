// Package config loads, normalizes, and validates vidsub configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file and honours
// environment overrides such as VIDSUB_FFMPEG. The Config type centralizes the
// tool locations, transcription parameters and directories the CLI, watcher and
// API server need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
