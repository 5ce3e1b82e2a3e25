package entities

import "strings"

// CredentialField names one piece of the connection parameters delivered over the bus.
type CredentialField string

const (
	FieldHost           CredentialField = "host"
	FieldUsername       CredentialField = "username"
	FieldPassword       CredentialField = "password"
	FieldControllerType CredentialField = "controllerType"
	FieldBaudRate       CredentialField = "baudRate"
	FieldSerialPort     CredentialField = "serialPort"
)

// AllCredentialFields lists every known field in topic order.
var AllCredentialFields = []CredentialField{
	FieldHost,
	FieldUsername,
	FieldPassword,
	FieldControllerType,
	FieldBaudRate,
	FieldSerialPort,
}

// DefaultRequiredFields is the minimal set needed to sign in.
var DefaultRequiredFields = []CredentialField{FieldHost, FieldUsername, FieldPassword}

var credentialRecordKeys = map[CredentialField]string{
	FieldHost:           "URL",
	FieldUsername:       "USRNM",
	FieldPassword:       "PSSWD",
	FieldControllerType: "CNTRL",
	FieldBaudRate:       "BAUDRATE",
	FieldSerialPort:     "PORT",
}

var credentialTopicSuffixes = map[CredentialField]string{
	FieldHost:           "Host",
	FieldUsername:       "Username",
	FieldPassword:       "Password",
	FieldControllerType: "ControllerType",
	FieldBaudRate:       "BaudRate",
	FieldSerialPort:     "Port",
}

// RecordKey returns the key used when the field arrives wrapped in a JSON record.
func (f CredentialField) RecordKey() string {
	return credentialRecordKeys[f]
}

// TopicSuffix returns the last segment of the inbound topic carrying this field.
func (f CredentialField) TopicSuffix() string {
	return credentialTopicSuffixes[f]
}

// Valid reports whether f is one of the known fields.
func (f CredentialField) Valid() bool {
	_, ok := credentialRecordKeys[f]
	return ok
}

// ParseCredentialField accepts either the field name or its topic suffix, case-insensitively.
func ParseCredentialField(name string) (CredentialField, bool) {
	for _, field := range AllCredentialFields {
		if strings.EqualFold(name, string(field)) || strings.EqualFold(name, field.TopicSuffix()) {
			return field, true
		}
	}
	return "", false
}

// Credentials are the connection parameters collected piecemeal from the bus.
type Credentials struct {
	Host           string `yaml:"host"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	ControllerType string `yaml:"controllerType"`
	BaudRate       string `yaml:"baudRate"`
	SerialPort     string `yaml:"serialPort"`
}

// Get returns the value of one field.
func (c Credentials) Get(field CredentialField) string {
	switch field {
	case FieldHost:
		return c.Host
	case FieldUsername:
		return c.Username
	case FieldPassword:
		return c.Password
	case FieldControllerType:
		return c.ControllerType
	case FieldBaudRate:
		return c.BaudRate
	case FieldSerialPort:
		return c.SerialPort
	}
	return ""
}

// Set stores the value of one field. Unknown fields are ignored.
func (c *Credentials) Set(field CredentialField, value string) {
	switch field {
	case FieldHost:
		c.Host = value
	case FieldUsername:
		c.Username = value
	case FieldPassword:
		c.Password = value
	case FieldControllerType:
		c.ControllerType = value
	case FieldBaudRate:
		c.BaudRate = value
	case FieldSerialPort:
		c.SerialPort = value
	}
}

// Missing returns the required fields that are still empty.
func (c Credentials) Missing(required []CredentialField) []CredentialField {
	var missing []CredentialField
	for _, field := range required {
		if strings.TrimSpace(c.Get(field)) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// ConnectionParameters are the credential fields the stream needs besides the token.
type ConnectionParameters struct {
	Host           string
	ControllerType string
	BaudRate       string
	SerialPort     string
}

// ConnectionParameters extracts the stream-side parameters.
func (c Credentials) ConnectionParameters() ConnectionParameters {
	return ConnectionParameters{
		Host:           c.Host,
		ControllerType: c.ControllerType,
		BaudRate:       c.BaudRate,
		SerialPort:     c.SerialPort,
	}
}
