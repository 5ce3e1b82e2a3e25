package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bridgeYAML = `
topicRoot: CNC1/
bus:
  driver: mqtt
  url: tcp://broker:1883
auth:
  requiredFields: [host, username, password, serialPort]
pipeline:
  throttleInterval: 250ms
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadBridgeConfig(t *testing.T) {
	conf, err := LoadBridgeConfig(writeConfig(t, bridgeYAML))
	require.NoError(t, err)

	assert.Equal(t, "CNC1", conf.TopicRoot)
	assert.Equal(t, "tcp://broker:1883", conf.Bus.URL)
	assert.Equal(t, 250*time.Millisecond, conf.Pipeline.ThrottleInterval)
	assert.Equal(t, 1000, conf.Pipeline.QueueCapacity)
	assert.Equal(t, "/api/signin", conf.Auth.SigninPath)

	fields, err := conf.RequiredCredentialFields()
	require.NoError(t, err)
	assert.Equal(t, []entities.CredentialField{
		entities.FieldHost, entities.FieldUsername, entities.FieldPassword, entities.FieldSerialPort,
	}, fields)
}

func TestLoadBridgeConfigWhenEnvironmentSetThenOverride(t *testing.T) {
	t.Setenv(EnvBusURL, "tcp://other:1883")
	t.Setenv(EnvLogLevel, "debug")

	conf, err := LoadBridgeConfig(writeConfig(t, bridgeYAML))
	require.NoError(t, err)
	assert.Equal(t, "tcp://other:1883", conf.Bus.URL)
	assert.Equal(t, "debug", conf.Log.Level)
}

func TestLoadBridgeConfigWhenUnknownRequiredFieldThenError(t *testing.T) {
	_, err := LoadBridgeConfig(writeConfig(t, "auth:\n  requiredFields: [host, colour]\n"))
	assert.Error(t, err)
}

func TestLoadBridgeConfigWhenUnknownDriverThenError(t *testing.T) {
	_, err := LoadBridgeConfig(writeConfig(t, "bus:\n  driver: kafka\n"))
	assert.Error(t, err)
}

func TestConfigurationParserWhenMissingFileThenError(t *testing.T) {
	_, err := ConfigurationParser(filepath.Join(t.TempDir(), "absent.yaml"), entities.Credentials{})
	assert.Error(t, err)
}

func TestGetValueFromEnvironmentVariable(t *testing.T) {
	t.Setenv("CNC_BRIDGE_TEST_VALUE", "set")
	assert.Equal(t, "set", GetValueFromEnvironmentVariable("CNC_BRIDGE_TEST_VALUE", "default"))
	assert.Equal(t, "default", GetValueFromEnvironmentVariable("CNC_BRIDGE_TEST_UNSET", "default"))
}

func TestLoadCredentials(t *testing.T) {
	path := writeConfig(t, "host: http://cnc.local:8000\nusername: admin\npassword: '{secret}'\nbaudRate: 115200\n")

	credentials, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, entities.Credentials{
		Host:     "http://cnc.local:8000",
		Username: "admin",
		Password: "{secret}",
		BaudRate: "115200",
	}, credentials)
}

func TestLoadBridgeConfigExample(t *testing.T) {
	conf, err := LoadBridgeConfig(filepath.Join("..", "..", "bridge.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, entities.BusDriverMQTT, conf.Bus.Driver)
	assert.Equal(t, 10*time.Second, conf.Bus.ConnectTimeout)
	assert.Equal(t, time.Minute, conf.Stream.MaxReconnectWait)
	assert.Equal(t, 500*time.Millisecond, conf.Pipeline.ThrottleInterval)
	assert.Equal(t, ":9102", conf.Metrics.Addr)
}
