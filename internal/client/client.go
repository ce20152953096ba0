// Package client fetches the QueryPayload from a sharedshape server and
// checks it against the shared shape before handing it back.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/vesaa/sharedshape/internal/logging"
	"github.com/vesaa/sharedshape/pkg/payload"
)

var (
	// ErrNetwork means the request never got an HTTP response.
	ErrNetwork = errors.New("network failure")
	// ErrMalformedResponse means the response does not satisfy QueryPayload.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrServer means the server answered with a non-2xx status.
	ErrServer = errors.New("server failure")
)

// StatusError carries the status and message of a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrServer) true for any StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrServer
}

// Options configures New.
type Options struct {
	BaseURL string
	// Token is sent as "Authorization: Bearer <token>" when set.
	Token   string
	Timeout time.Duration
	// Retries is the number of extra attempts after a network failure.
	Retries int
	Logger  *logrus.Logger
}

// Client talks to one server.
type Client struct {
	http *resty.Client
	log  *logrus.Logger
}

// New creates a Client. A zero Timeout falls back to 10 seconds.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetLogger(opts.Logger).
		SetHeader("Accept", "application/json")
	if opts.Token != "" {
		rc.SetAuthToken(opts.Token)
	}

	return &Client{http: rc, log: opts.Logger}
}

// Fetch performs GET / and returns the decoded payload.
func (c *Client) Fetch(ctx context.Context) (payload.QueryPayload, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/")
	if err != nil {
		return payload.QueryPayload{}, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	c.log.WithFields(logrus.Fields{
		"status":     resp.StatusCode(),
		"request_id": resp.Header().Get("X-Request-ID"),
		"duration":   resp.Time().String(),
	}).Debug("payload response")

	if !resp.IsSuccess() {
		return payload.QueryPayload{}, &StatusError{Code: resp.StatusCode(), Message: errorMessage(resp.Body())}
	}

	p, err := payload.Decode(resp.Body())
	if err != nil {
		return payload.QueryPayload{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return p, nil
}

// errorMessage extracts {"error": "..."} from body, or returns the trimmed
// body text, or the empty string.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
