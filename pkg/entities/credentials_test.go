package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCredentialField(t *testing.T) {
	cases := map[string]CredentialField{
		"host":           FieldHost,
		"HOST":           FieldHost,
		"serialPort":     FieldSerialPort,
		"Port":           FieldSerialPort,
		"controllertype": FieldControllerType,
		"BaudRate":       FieldBaudRate,
	}
	for name, expected := range cases {
		field, ok := ParseCredentialField(name)
		assert.True(t, ok, name)
		assert.Equal(t, expected, field, name)
	}

	_, ok := ParseCredentialField("colour")
	assert.False(t, ok)
}

func TestCredentialFieldKeys(t *testing.T) {
	assert.Equal(t, "URL", FieldHost.RecordKey())
	assert.Equal(t, "PSSWD", FieldPassword.RecordKey())
	assert.Equal(t, "Port", FieldSerialPort.TopicSuffix())
	assert.True(t, FieldBaudRate.Valid())
	assert.False(t, CredentialField("colour").Valid())
}

func TestCredentialsMissing(t *testing.T) {
	var credentials Credentials
	credentials.Set(FieldHost, "cnc.local:8000")
	credentials.Set(FieldUsername, " ")
	credentials.Set(CredentialField("colour"), "red")

	assert.Equal(t, []CredentialField{FieldUsername, FieldPassword}, credentials.Missing(DefaultRequiredFields))

	credentials.Set(FieldUsername, "admin")
	credentials.Set(FieldPassword, "secret")
	assert.Empty(t, credentials.Missing(DefaultRequiredFields))
	assert.Equal(t, []CredentialField{FieldSerialPort}, credentials.Missing([]CredentialField{FieldSerialPort}))
}

func TestCredentialsConnectionParameters(t *testing.T) {
	credentials := Credentials{
		Host:           "cnc.local:8000",
		Username:       "admin",
		Password:       "secret",
		ControllerType: "Grbl",
		BaudRate:       "115200",
		SerialPort:     "/dev/ttyUSB0",
	}

	assert.Equal(t, ConnectionParameters{
		Host:           "cnc.local:8000",
		ControllerType: "Grbl",
		BaudRate:       "115200",
		SerialPort:     "/dev/ttyUSB0",
	}, credentials.ConnectionParameters())
	assert.Equal(t, "Grbl", credentials.Get(FieldControllerType))
}
