package server_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesaa/sharedshape/internal/server"
	"github.com/vesaa/sharedshape/pkg/payload"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newEngine(opts server.Options) *gin.Engine {
	opts.Logger = quietLogger()
	return server.NewEngine(opts)
}

func do(r http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestFetchPayload(t *testing.T) {
	r := newEngine(server.Options{})

	for i := 0; i < 3; i++ {
		rec := do(r, http.MethodGet, "/", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `{"payload":"server_data_returned_successfully"}`, rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

		got, err := payload.Decode(rec.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, payload.New(), got)
	}
}

func TestPreflight(t *testing.T) {
	r := newEngine(server.Options{})
	rec := do(r, http.MethodOptions, "/", http.Header{"Origin": {"http://localhost:5173"}})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestFetchPayloadInternalFailure(t *testing.T) {
	builders := map[string]server.Builder{
		"error": func() (payload.QueryPayload, error) {
			return payload.QueryPayload{}, errors.New("boom")
		},
		"panic": func() (payload.QueryPayload, error) {
			panic("boom")
		},
		"empty payload": func() (payload.QueryPayload, error) {
			return payload.QueryPayload{}, nil
		},
	}

	for name, b := range builders {
		t.Run(name, func(t *testing.T) {
			r := newEngine(server.Options{Builder: b})
			rec := do(r, http.MethodGet, "/", nil)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestFetchPayloadWithAuth(t *testing.T) {
	const secret = "test-secret"
	r := newEngine(server.Options{AuthSecret: secret})

	valid, err := server.GenerateToken(secret, "cli", time.Hour)
	require.NoError(t, err)
	expired, err := server.GenerateToken(secret, "cli", -time.Minute)
	require.NoError(t, err)
	foreign, err := server.GenerateToken("other-secret", "cli", time.Hour)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		rec := do(r, http.MethodGet, "/", http.Header{"Authorization": {"Bearer " + valid}})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `{"payload":"server_data_returned_successfully"}`, rec.Body.String())
	})

	rejected := map[string]http.Header{
		"missing header": nil,
		"wrong scheme":   {"Authorization": {"Basic " + valid}},
		"expired":        {"Authorization": {"Bearer " + expired}},
		"wrong secret":   {"Authorization": {"Bearer " + foreign}},
		"garbage":        {"Authorization": {"Bearer not-a-jwt"}},
	}
	for name, h := range rejected {
		t.Run(name, func(t *testing.T) {
			rec := do(r, http.MethodGet, "/", h)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}

	t.Run("preflight skips auth", func(t *testing.T) {
		rec := do(r, http.MethodOptions, "/", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestRequestID(t *testing.T) {
	r := newEngine(server.Options{})

	rec := do(r, http.MethodGet, "/", http.Header{"X-Request-Id": {"abc-123"}})
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = do(r, http.MethodGet, "/", nil)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestHealth(t *testing.T) {
	r := newEngine(server.Options{})
	rec := do(r, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"mem_used_percent"`)
}

func TestMetrics(t *testing.T) {
	r := newEngine(server.Options{})
	do(r, http.MethodGet, "/", nil)
	do(r, http.MethodGet, "/", nil)

	rec := do(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sharedshape_payload_requests_total{code="200"} 2`)
}

func TestListenAndServe(t *testing.T) {
	t.Run("stops on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		srv := &http.Server{Addr: "127.0.0.1:0", Handler: newEngine(server.Options{})}

		done := make(chan error, 1)
		go func() { done <- server.ListenAndServe(ctx, srv) }()
		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(server.ShutdownTimeout + time.Second):
			t.Fatal("server did not stop")
		}
	})

	t.Run("reports listen errors", func(t *testing.T) {
		srv := &http.Server{Addr: "127.0.0.1:-1"}
		assert.Error(t, server.ListenAndServe(context.Background(), srv))
	})
}
