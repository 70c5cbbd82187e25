package util

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const Name = "quill"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host      string
		SshPort   int    `yaml:"sshPort"`
		HttpPort  int    `yaml:"httpPort"`
		SslDomain string `yaml:"sslDomain"`
		WithAp    bool   `yaml:"withAp"`
		Single    bool   `yaml:"single"`
		Closed    bool   `yaml:"closed"`

		DbDriver string `yaml:"dbDriver"`
		DbDsn    string `yaml:"dbDsn"`
		LogLevel string `yaml:"logLevel"`

		DeliveryWorkers       int      `yaml:"deliveryWorkers"`
		DeliveryTimeoutSec    int      `yaml:"deliveryTimeoutSec"`
		FetchTimeoutSec       int      `yaml:"fetchTimeoutSec"`
		TransportTrustedKinds []string `yaml:"transportTrustedKinds"`
		AdminKeys             []string `yaml:"adminKeys"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Infof("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := filepath.Join(configDir, ConfigFileName)
			if writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644); writeErr != nil {
				log.Warnf("Could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Infof("Created default config file at %s", userConfigPath)
			}
		}
	}

	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return c, nil
}

func (c *AppConfig) applyEnv() error {
	strs := map[string]*string{
		"QUILL_HOST":      &c.Conf.Host,
		"QUILL_SSLDOMAIN": &c.Conf.SslDomain,
		"QUILL_DB_DRIVER": &c.Conf.DbDriver,
		"QUILL_DB_DSN":    &c.Conf.DbDsn,
		"QUILL_LOG_LEVEL": &c.Conf.LogLevel,
	}
	for env, dst := range strs {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"QUILL_SSHPORT":              &c.Conf.SshPort,
		"QUILL_HTTPPORT":             &c.Conf.HttpPort,
		"QUILL_DELIVERY_WORKERS":     &c.Conf.DeliveryWorkers,
		"QUILL_DELIVERY_TIMEOUT_SEC": &c.Conf.DeliveryTimeoutSec,
		"QUILL_FETCH_TIMEOUT_SEC":    &c.Conf.FetchTimeoutSec,
	}
	for env, dst := range ints {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"QUILL_WITH_AP": &c.Conf.WithAp,
		"QUILL_SINGLE":  &c.Conf.Single,
		"QUILL_CLOSED":  &c.Conf.Closed,
	}
	for env, dst := range bools {
		if os.Getenv(env) == "true" {
			*dst = true
		}
	}

	if v := os.Getenv("QUILL_TRANSPORT_TRUSTED_KINDS"); v != "" {
		c.Conf.TransportTrustedKinds = strings.Split(v, ",")
	}
	return nil
}

func (c *AppConfig) applyDefaults() {
	if c.Conf.DbDriver == "" {
		c.Conf.DbDriver = "sqlite"
	}
	if c.Conf.DbDsn == "" && c.Conf.DbDriver == "sqlite" {
		c.Conf.DbDsn = ResolveFilePath("database.db")
	}
	if c.Conf.LogLevel == "" {
		c.Conf.LogLevel = "info"
	}
	if c.Conf.DeliveryWorkers <= 0 {
		c.Conf.DeliveryWorkers = 8
	}
	if c.Conf.DeliveryTimeoutSec <= 0 {
		c.Conf.DeliveryTimeoutSec = 10
	}
	if c.Conf.FetchTimeoutSec <= 0 {
		c.Conf.FetchTimeoutSec = 10
	}
}

// Domain is the public host name of the instance, used in every local id.
func (c *AppConfig) Domain() string {
	if c.Conf.SslDomain != "" {
		return c.Conf.SslDomain
	}
	return c.Conf.Host
}

func (c *AppConfig) DeliveryTimeout() time.Duration {
	return time.Duration(c.Conf.DeliveryTimeoutSec) * time.Second
}

func (c *AppConfig) FetchTimeout() time.Duration {
	return time.Duration(c.Conf.FetchTimeoutSec) * time.Second
}
