package api

import (
	"github.com/danielgtaylor/huma/v2"
)

// envelopeVersion is bumped whenever the envelope shape changes.
const envelopeVersion = 1

// Envelope wraps every JSON response body.
type Envelope struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// EnvelopeTransformer is a huma transformer that wraps handler output and
// errors in an Envelope.
func EnvelopeTransformer(_ huma.Context, _ string, v any) (any, error) {
	switch body := v.(type) {
	case *Envelope, Envelope:
		return v, nil
	case *APIError:
		return &Envelope{
			Version: envelopeVersion,
			Success: false,
			Error:   body.Message,
			Code:    body.Code,
			Details: body.Details,
		}, nil
	default:
		return &Envelope{Version: envelopeVersion, Success: true, Data: v}, nil
	}
}
