package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Template renders Default as a config file in format ("toml" or "yaml").
func Template(format string) ([]byte, error) {
	raw := toFile(Default())
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "toml":
		return toml.Marshal(raw)
	case "yaml", "yml":
		return yaml.Marshal(raw)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// WriteTemplate writes the default config to path, picking the format from its extension.
func WriteTemplate(path string, overwrite bool) error {
	data, err := Template(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

func toFile(cfg RoomConfig) fileConfig {
	return fileConfig{
		RoomURL:          cfg.RoomURL,
		RoomName:         cfg.RoomName,
		Identity:         cfg.Identity,
		Token:            cfg.Token,
		Metadata:         cfg.Metadata,
		TLSCAFile:        cfg.TLSCAFile,
		APIToken:         cfg.APIToken,
		RetryWindow:      cfg.RetryWindow.String(),
		HandshakeTimeout: cfg.HandshakeTimeout.String(),
		PingInterval:     cfg.PingInterval.String(),
		ICEServers:       cfg.ICEServers,
		ListenAddr:       cfg.ListenAddr,
		CORSOrigins:      cfg.CORSOrigins,
		NetPollInterval:  cfg.NetPollInterval.String(),
		WatchNetwork:     cfg.WatchNetwork,
		WatchProcess:     cfg.WatchProcess,
	}
}
