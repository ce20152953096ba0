package payload_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesaa/sharedshape/pkg/payload"
)

func TestSnake(t *testing.T) {
	cases := map[string]string{
		"Server data returned successfully": "server_data_returned_successfully",
		"  Leading and   trailing  ":        "leading_and_trailing",
		"one":                               "one",
		"":                                  "",
		"Tabs\tand\nnewlines":               "tabs_and_newlines",
	}
	for in, want := range cases {
		assert.Equal(t, want, payload.Snake(in), "Snake(%q)", in)
	}
}

func TestNew(t *testing.T) {
	p := payload.New()
	assert.Equal(t, "server_data_returned_successfully", p.Payload)
	require.NoError(t, payload.Validate(p))
}

func TestValidateRejectsEmpty(t *testing.T) {
	err := payload.Validate(payload.QueryPayload{})
	assert.ErrorIs(t, err, payload.ErrMalformed)
}

func TestNewSatisfiesDecode(t *testing.T) {
	body, err := json.Marshal(payload.New())
	require.NoError(t, err)
	assert.JSONEq(t, `{"payload":"server_data_returned_successfully"}`, string(body))

	got, err := payload.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, payload.New(), got)
}

func TestDecode(t *testing.T) {
	t.Run("empty string payload is still text", func(t *testing.T) {
		got, err := payload.Decode([]byte(`{"payload":""}`))
		require.NoError(t, err)
		assert.Equal(t, "", got.Payload)
	})

	malformed := map[string]string{
		"missing field":   `{}`,
		"null field":      `{"payload":null}`,
		"number field":    `{"payload":42}`,
		"object field":    `{"payload":{"a":1}}`,
		"extra field":     `{"payload":"x","other":1}`,
		"array body":      `["payload"]`,
		"string body":     `"payload"`,
		"null body":       `null`,
		"not json":        `<html></html>`,
		"empty body":      ``,
		"trailing object": `{"payload":"x"}{"payload":"y"}`,
	}
	for name, body := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := payload.Decode([]byte(body))
			assert.ErrorIs(t, err, payload.ErrMalformed)
		})
	}
}

func TestDescribe(t *testing.T) {
	shape := payload.Describe()
	assert.Equal(t, "QueryPayload", shape.Name)
	assert.Equal(t, []payload.Field{{Name: "payload", Type: "string", Required: true}}, shape.Fields)
}
