package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings of the mensajes sync client: where the
// wallet bridge, contract gateway and pinning service live, which networks
// carry a known deployment of the RegistroMensajes contract, and how the
// local HTTP surface is served.
type Config struct {
	Server struct {
		Listen                 string `yaml:"listen"`
		ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds    int    `yaml:"write_timeout_seconds"`
		ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
	} `yaml:"server"`

	Wallet struct {
		BridgeURL           string `yaml:"bridge_url"`
		TimeoutSeconds      int    `yaml:"timeout_seconds"`
		PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	} `yaml:"wallet"`

	Gateway struct {
		URL            string `yaml:"url"`
		WriteToken     string `yaml:"write_token"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"gateway"`

	// Networks maps a network id to the contract deployment address on that
	// network. A bound session on a network absent from this map has an
	// identity but no ledger handle.
	Networks map[string]string `yaml:"networks"`

	Sync struct {
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
		SettleDelayMillis   int `yaml:"settle_delay_millis"`
	} `yaml:"sync"`

	Pinning struct {
		Endpoint       string `yaml:"endpoint"`
		Token          string `yaml:"token"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"pinning"`

	Archive struct {
		PostgresDSN string `yaml:"postgres_dsn"`
		MaxConns    int32  `yaml:"max_conns"`
		MinConns    int32  `yaml:"min_conns"`
	} `yaml:"archive"`

	Security struct {
		EnforceSecureTLS *bool `yaml:"enforce_secure_transport"`
	} `yaml:"security"`

	Logging struct {
		Service string `yaml:"service"`
		Version string `yaml:"version"`
		Commit  string `yaml:"commit"`
	} `yaml:"logging"`
}

// Load reads and validates config from disk.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.expandEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8480"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 10
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 20
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 15
	}
	if c.Wallet.TimeoutSeconds <= 0 {
		c.Wallet.TimeoutSeconds = 5
	}
	if c.Wallet.PollIntervalSeconds <= 0 {
		c.Wallet.PollIntervalSeconds = 2
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		c.Gateway.TimeoutSeconds = 15
	}
	if c.Sync.PollIntervalSeconds <= 0 {
		c.Sync.PollIntervalSeconds = 4
	}
	if c.Sync.SettleDelayMillis <= 0 {
		c.Sync.SettleDelayMillis = 1000
	}
	if c.Pinning.TimeoutSeconds <= 0 {
		c.Pinning.TimeoutSeconds = 60
	}
	if c.Archive.MaxConns <= 0 {
		c.Archive.MaxConns = 4
	}
	if c.Archive.MinConns < 0 {
		c.Archive.MinConns = 0
	}
	if c.Security.EnforceSecureTLS == nil {
		c.Security.EnforceSecureTLS = boolPtr(true)
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "mensajesd"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "dev"
	}
	if c.Logging.Commit == "" {
		c.Logging.Commit = "unknown"
	}
}

func (c *Config) validate() error {
	if c.Wallet.BridgeURL == "" {
		return errors.New("wallet.bridge_url is required")
	}
	if c.Gateway.URL == "" {
		return errors.New("gateway.url is required")
	}
	if len(c.Networks) == 0 {
		return errors.New("networks map is required")
	}
	for id, addr := range c.Networks {
		if strings.TrimSpace(id) == "" {
			return errors.New("networks contains an empty network id")
		}
		if !isHexAddress(addr) {
			return fmt.Errorf("networks[%s] is not a valid contract address: %q", id, addr)
		}
	}
	if *c.Security.EnforceSecureTLS {
		if !isHTTPSURL(c.Gateway.URL) && !isLoopbackURL(c.Gateway.URL) {
			return errors.New("gateway.url must be https (or loopback) when enforce_secure_transport is enabled")
		}
		if !isHTTPSURL(c.Wallet.BridgeURL) && !isLoopbackURL(c.Wallet.BridgeURL) {
			return errors.New("wallet.bridge_url must be https (or loopback) when enforce_secure_transport is enabled")
		}
		if c.Archive.PostgresDSN != "" && dsnUsesInsecureSSL(c.Archive.PostgresDSN) && !isLoopbackHost(dsnHost(c.Archive.PostgresDSN)) {
			return errors.New("archive.postgres_dsn must use sslmode=require|verify-ca|verify-full when enforce_secure_transport is enabled")
		}
	}
	if c.Pinning.Endpoint != "" && c.Pinning.Token == "" {
		return errors.New("pinning.token is required when pinning.endpoint is set")
	}
	return nil
}

func (c *Config) expandEnv() {
	c.Wallet.BridgeURL = os.ExpandEnv(strings.TrimSpace(c.Wallet.BridgeURL))
	c.Gateway.URL = os.ExpandEnv(strings.TrimSpace(c.Gateway.URL))
	c.Gateway.WriteToken = os.ExpandEnv(strings.TrimSpace(c.Gateway.WriteToken))
	c.Pinning.Endpoint = os.ExpandEnv(strings.TrimSpace(c.Pinning.Endpoint))
	c.Pinning.Token = os.ExpandEnv(strings.TrimSpace(c.Pinning.Token))
	c.Archive.PostgresDSN = os.ExpandEnv(strings.TrimSpace(c.Archive.PostgresDSN))
	for id, addr := range c.Networks {
		c.Networks[id] = os.ExpandEnv(strings.TrimSpace(addr))
	}
}

func isHexAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return false
	}
	for _, r := range addr[2:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
