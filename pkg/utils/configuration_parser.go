package utils

import (
	"os"
	"path/filepath"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"gopkg.in/yaml.v2"
)

const (
	EnvLogLevel  = "CNC_BRIDGE_LOG_LEVEL"
	EnvBusURL    = "CNC_BRIDGE_BUS_URL"
	EnvTopicRoot = "CNC_BRIDGE_TOPIC_ROOT"
)

type config interface {
	entities.BridgeConfig | entities.Credentials
}

func readTextFile(filepathName string) ([]byte, error) {
	fileContent, err := os.ReadFile(filepath.Clean(filepathName))
	return fileContent, err
}

func ConfigurationParser[T config](filepathName string, configEntity T) (T, error) {
	fileContent, err := readTextFile(filepath.Clean(filepathName))
	if err != nil {
		return configEntity, err
	}

	err = yaml.Unmarshal(fileContent, &configEntity)
	return configEntity, err
}

// LoadBridgeConfig parses the file, applies environment overrides and defaults, then validates.
func LoadBridgeConfig(filepathName string) (entities.BridgeConfig, error) {
	conf, err := ConfigurationParser(filepathName, entities.BridgeConfig{})
	if err != nil {
		return conf, err
	}
	conf.Log.Level = GetValueFromEnvironmentVariable(EnvLogLevel, conf.Log.Level)
	conf.Bus.URL = GetValueFromEnvironmentVariable(EnvBusURL, conf.Bus.URL)
	conf.TopicRoot = GetValueFromEnvironmentVariable(EnvTopicRoot, conf.TopicRoot)
	conf.ApplyDefaults()
	return conf, conf.Validate()
}

// LoadCredentials parses a credentials file.
func LoadCredentials(filepathName string) (entities.Credentials, error) {
	return ConfigurationParser(filepathName, entities.Credentials{})
}

func GetValueFromEnvironmentVariable(variableName, defaultValue string) string {
	value := os.Getenv(variableName)
	if value != "" {
		return value
	}
	return defaultValue
}
