package models

import "encoding/json"

const (
	EnvelopeInfo   = "info"
	EnvelopeDanger = "danger"
)

// Envelope is the body of every API response.
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func InfoEnvelope(message string, data interface{}) Envelope {
	if data == nil {
		data = json.RawMessage(`{}`)
	}
	return Envelope{Status: EnvelopeInfo, Message: message, Data: data}
}

// DangerEnvelope carries an error message and an empty data object.
func DangerEnvelope(message string) Envelope {
	return Envelope{Status: EnvelopeDanger, Message: message, Data: struct{}{}}
}
