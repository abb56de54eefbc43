package app

import (
	"fmt"
	"strings"
)

// Config holds everything an App needs besides its output writer.
type Config struct {
	// ConfigPath is an HCL build file. When empty, Preset is used.
	ConfigPath string
	Preset     string
	// Dir is the project root that source and build paths are relative to.
	Dir string
	// Port overrides the port of every serve task when positive.
	Port int

	LogFormat string
	LogLevel  string
	// Workers bounds concurrent tasks and, per task, concurrent files.
	// Zero uses GOMAXPROCS for files and the task count for tasks.
	Workers   int
	CacheSize int
}

// NewConfig validates cfg and returns a copy with defaults applied.
func NewConfig(cfg Config) (*Config, error) {
	var errs []string
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("log format %q is not one of text, json", cfg.LogFormat))
	}
	if _, ok := parseLevel(cfg.LogLevel); !ok {
		errs = append(errs, fmt.Sprintf("log level %q is not one of debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d out of range", cfg.Port))
	}
	if cfg.Workers < 0 {
		errs = append(errs, fmt.Sprintf("workers must not be negative, got %d", cfg.Workers))
	}
	if cfg.CacheSize < 0 {
		errs = append(errs, fmt.Sprintf("cache size must not be negative, got %d", cfg.CacheSize))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid app configuration:\n- %s", strings.Join(errs, "\n- "))
	}
	return &cfg, nil
}
