package util

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const Name = "aurabloom"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host           string `yaml:"host"`
		HttpPort       int    `yaml:"httpPort"`
		Domain         string `yaml:"domain"`
		Secure         bool   `yaml:"secure"`
		WithFederation bool   `yaml:"withFederation"`
		DatabasePath   string `yaml:"databasePath"`
	}
}

// BaseURL returns the server's own base URL derived from the configuration.
// Request handlers prefer the base URL derived from the incoming request and
// fall back to this one.
func (c *AppConfig) BaseURL() string {
	scheme := "http"
	if c.Conf.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Conf.Domain)
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	buf, err := os.ReadFile(ConfigFileName)
	if err != nil {
		log.Printf("Config file not found at %s, using embedded defaults", ConfigFileName)
		buf = embeddedConfig
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("AURABLOOM_HOST")
	envHttpPort := os.Getenv("AURABLOOM_HTTPPORT")
	envDomain := os.Getenv("AURABLOOM_DOMAIN")
	envSecure := os.Getenv("AURABLOOM_SECURE")
	envWithFederation := os.Getenv("AURABLOOM_WITH_FEDERATION")
	envDatabasePath := os.Getenv("AURABLOOM_DATABASE_PATH")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envDomain != "" {
		c.Conf.Domain = envDomain
	}

	if envSecure == "true" {
		c.Conf.Secure = true
	}

	if envWithFederation == "true" {
		c.Conf.WithFederation = true
	}

	if envDatabasePath != "" {
		c.Conf.DatabasePath = envDatabasePath
	}

	return c, nil
}
