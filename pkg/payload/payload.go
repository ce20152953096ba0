// Package payload holds the QueryPayload record shared by the server, the CLI
// client and (through Describe) the browser front-end.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Phrase is the fixed text the server reports back on every fetch.
const Phrase = "Server data returned successfully"

// ErrMalformed is returned when a value does not satisfy the QueryPayload shape.
var ErrMalformed = errors.New("malformed query payload")

// QueryPayload is the only record exchanged between the components.
type QueryPayload struct {
	Payload string `json:"payload" validate:"required"`
}

var validate = validator.New()

// Snake lowercases phrase and joins its words with underscores.
func Snake(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), "_")
}

// New builds the value returned by the server's fetch operation.
func New() QueryPayload {
	return QueryPayload{Payload: Snake(Phrase)}
}

// Validate reports whether v is fit to be sent on the wire.
func Validate(v QueryPayload) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Decode parses data and checks it against the QueryPayload shape: a single
// JSON object whose only field is a textual "payload".
func Decode(data []byte) (QueryPayload, error) {
	var raw struct {
		Payload *string `json:"payload"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return QueryPayload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return QueryPayload{}, fmt.Errorf("%w: trailing data after object", ErrMalformed)
	}
	if raw.Payload == nil {
		return QueryPayload{}, fmt.Errorf("%w: missing field %q", ErrMalformed, "payload")
	}
	return QueryPayload{Payload: *raw.Payload}, nil
}
