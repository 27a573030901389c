package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvToken supplies the room token when the config file leaves it empty.
const EnvToken = "ROOMCTL_TOKEN"

var (
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
	ErrInvalid           = errors.New("config: invalid")
)

// RoomConfig is the resolved roomctl configuration.
type RoomConfig struct {
	RoomURL          string
	RoomName         string
	Identity         string
	Token            string
	Metadata         map[string]string
	TLSCAFile        string
	APIToken         string
	RetryWindow      time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ICEServers       []string
	ListenAddr       string
	CORSOrigins      []string
	NetPollInterval  time.Duration
	WatchNetwork     bool
	WatchProcess     bool
}

// fileConfig mirrors the on-disk keys. Durations are Go duration strings.
type fileConfig struct {
	RoomURL          string            `toml:"room_url" yaml:"room_url"`
	RoomName         string            `toml:"room_name" yaml:"room_name"`
	Identity         string            `toml:"identity" yaml:"identity"`
	Token            string            `toml:"token" yaml:"token"`
	Metadata         map[string]string `toml:"metadata" yaml:"metadata"`
	TLSCAFile        string            `toml:"tls_ca_file" yaml:"tls_ca_file"`
	APIToken         string            `toml:"api_token" yaml:"api_token"`
	RetryWindow      string            `toml:"retry_window" yaml:"retry_window"`
	HandshakeTimeout string            `toml:"handshake_timeout" yaml:"handshake_timeout"`
	PingInterval     string            `toml:"ping_interval" yaml:"ping_interval"`
	ICEServers       []string          `toml:"ice_servers" yaml:"ice_servers"`
	ListenAddr       string            `toml:"listen_addr" yaml:"listen_addr"`
	CORSOrigins      []string          `toml:"cors_origins" yaml:"cors_origins"`
	NetPollInterval  string            `toml:"net_poll_interval" yaml:"net_poll_interval"`
	WatchNetwork     bool              `toml:"watch_network" yaml:"watch_network"`
	WatchProcess     bool              `toml:"watch_process" yaml:"watch_process"`
}

func Default() RoomConfig {
	return RoomConfig{
		RoomURL:          "ws://localhost:7880/rtc",
		RoomName:         "default",
		Identity:         "roomctl",
		RetryWindow:      5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     15 * time.Second,
		ICEServers:       []string{"stun:stun.l.google.com:19302"},
		ListenAddr:       "127.0.0.1:9480",
		CORSOrigins:      []string{"http://localhost:3000"},
		NetPollInterval:  2 * time.Second,
		WatchNetwork:     true,
		WatchProcess:     true,
	}
}

// Load reads a TOML or YAML file over Default, applies EnvToken and validates.
func Load(path string) (RoomConfig, error) {
	var (
		raw     fileConfig
		defined func(key string) bool
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		raw, defined, err = decodeTOML(path)
	case ".yaml", ".yml":
		raw, defined, err = decodeYAML(path)
	default:
		return RoomConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return RoomConfig{}, err
	}

	cfg, err := apply(Default(), raw, defined)
	if err != nil {
		return RoomConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if cfg.Token == "" {
		cfg.Token = strings.TrimSpace(os.Getenv(EnvToken))
	}
	if err := Validate(cfg); err != nil {
		return RoomConfig{}, err
	}
	return cfg, nil
}

func decodeTOML(path string) (fileConfig, func(string) bool, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fileConfig{}, nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	return raw, func(key string) bool { return meta.IsDefined(key) }, nil
}

func decodeYAML(path string) (fileConfig, func(string) bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fileConfig{}, nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	var raw fileConfig
	if err := node.Decode(&raw); err != nil {
		return fileConfig{}, nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	keys := topLevelKeys(&node)
	return raw, func(key string) bool { _, ok := keys[key]; return ok }, nil
}

func topLevelKeys(doc *yaml.Node) map[string]struct{} {
	keys := make(map[string]struct{})
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return keys
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return keys
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		keys[m.Content[i].Value] = struct{}{}
	}
	return keys
}

func apply(cfg RoomConfig, raw fileConfig, defined func(string) bool) (RoomConfig, error) {
	if defined("room_url") {
		cfg.RoomURL = strings.TrimSpace(raw.RoomURL)
	}
	if defined("room_name") {
		cfg.RoomName = strings.TrimSpace(raw.RoomName)
	}
	if defined("identity") {
		cfg.Identity = strings.TrimSpace(raw.Identity)
	}
	if defined("token") {
		cfg.Token = strings.TrimSpace(raw.Token)
	}
	if defined("metadata") {
		cfg.Metadata = raw.Metadata
	}
	if defined("tls_ca_file") {
		cfg.TLSCAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if defined("api_token") {
		cfg.APIToken = strings.TrimSpace(raw.APIToken)
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"retry_window", raw.RetryWindow, &cfg.RetryWindow},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"ping_interval", raw.PingInterval, &cfg.PingInterval},
		{"net_poll_interval", raw.NetPollInterval, &cfg.NetPollInterval},
	}
	for _, d := range durations {
		if !defined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return RoomConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if defined("ice_servers") {
		cfg.ICEServers = normalizeList(raw.ICEServers)
	}
	if defined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if defined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}
	if defined("watch_network") {
		cfg.WatchNetwork = raw.WatchNetwork
	}
	if defined("watch_process") {
		cfg.WatchProcess = raw.WatchProcess
	}
	return cfg, nil
}

func Validate(cfg RoomConfig) error {
	if strings.TrimSpace(cfg.RoomURL) == "" {
		return fmt.Errorf("%w: room_url is required", ErrInvalid)
	}
	u, err := url.Parse(cfg.RoomURL)
	if err != nil {
		return fmt.Errorf("%w: room_url: %v", ErrInvalid, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: room_url scheme must be ws or wss, got %q", ErrInvalid, u.Scheme)
	}
	if strings.TrimSpace(cfg.RoomName) == "" {
		return fmt.Errorf("%w: room_name is required", ErrInvalid)
	}
	if cfg.RetryWindow <= 0 {
		return fmt.Errorf("%w: retry_window must be positive", ErrInvalid)
	}
	if cfg.HandshakeTimeout <= 0 || cfg.PingInterval <= 0 || cfg.NetPollInterval <= 0 {
		return fmt.Errorf("%w: timeouts and intervals must be positive", ErrInvalid)
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("%w: listen_addr is required", ErrInvalid)
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
