package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/danmuck/roomlink/internal/config"
)

const (
	envConfig         = "ROOMCTL_CONFIG"
	defaultConfigPath = "roomctl.toml"
)

func resolveConfigPath(flagPath string) string {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(envConfig)); p != "" {
		return p
	}
	return defaultConfigPath
}

// loadConfig falls back to defaults when the default path is absent. An explicit path must exist.
func loadConfig(path string) (config.RoomConfig, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		cfg.Token = strings.TrimSpace(os.Getenv(config.EnvToken))
		return cfg, config.Validate(cfg)
	}
	return config.RoomConfig{}, fmt.Errorf("load roomctl config: %w", err)
}
