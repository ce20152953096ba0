package frontend_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesaa/sharedshape/internal/frontend"
	"github.com/vesaa/sharedshape/pkg/payload"
)

func newEngine(t *testing.T, opts frontend.Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)
	opts.Logger = log
	r, err := frontend.NewEngine(opts)
	require.NoError(t, err)
	return r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

var shell = fstest.MapFS{
	"index.html": &fstest.MapFile{Data: []byte("<html>shell</html>")},
	"app.js":     &fstest.MapFile{Data: []byte("console.log('app')")},
}

func TestEmbeddedShell(t *testing.T) {
	r := newEngine(t, frontend.Options{})

	rec := get(r, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>sharedshape</title>")

	rec = get(r, "/app.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/shape.json")
}

func TestStaticFallback(t *testing.T) {
	r := newEngine(t, frontend.Options{Assets: shell})

	for _, target := range []string{"/", "/index.html", "/some/client/route"} {
		rec := get(r, target)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "<html>shell</html>", rec.Body.String(), target)
	}

	rec := get(r, "/app.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log('app')", rec.Body.String())

	rec = get(r, "/missing.js")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigAndShape(t *testing.T) {
	r := newEngine(t, frontend.Options{Assets: shell, ServerURL: "http://127.0.0.1:3001"})

	rec := get(r, "/config.json")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"server_url":"http://127.0.0.1:3001"}`, rec.Body.String())

	rec = get(r, "/shape.json")
	assert.Equal(t, http.StatusOK, rec.Code)
	var shape payload.Shape
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shape))
	assert.Equal(t, payload.Describe(), shape)
}

func TestVendoredUnits(t *testing.T) {
	vendor := t.TempDir()
	writeFile(t, filepath.Join(vendor, "counter", "index.js"), "export function mount(el) {}")
	writeFile(t, filepath.Join(vendor, "counter", ".git", "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(vendor, "badge", "index.js"), "export function mount(el) {}")
	require.NoError(t, os.MkdirAll(filepath.Join(vendor, "placeholder"), 0o755))

	r := newEngine(t, frontend.Options{Assets: shell, VendorDir: vendor})

	rec := get(r, "/vendor.json")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"components":["badge","counter"]}`, rec.Body.String())

	rec = get(r, "/vendor/counter/index.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "export function mount(el) {}", rec.Body.String())

	for _, target := range []string{"/vendor/counter/.git/HEAD", "/vendor/counter", "/vendor/placeholder/index.js", "/vendor/"} {
		rec = get(r, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestVendoredSymlinksStayInside(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "secret.txt")
	writeFile(t, outside, "TOP-SECRET")

	vendor := t.TempDir()
	writeFile(t, filepath.Join(vendor, "counter", "index.js"), "export function mount(el) {}")
	require.NoError(t, os.Symlink(outside, filepath.Join(vendor, "counter", "leak.txt")))
	require.NoError(t, os.Symlink(filepath.Dir(outside), filepath.Join(vendor, "counter", "up")))
	require.NoError(t, os.Symlink(filepath.Join(vendor, "counter", "index.js"), filepath.Join(vendor, "counter", "alias.js")))

	r := newEngine(t, frontend.Options{Assets: shell, VendorDir: vendor})

	for _, target := range []string{"/vendor/counter/leak.txt", "/vendor/counter/up/secret.txt"} {
		rec := get(r, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.NotContains(t, rec.Body.String(), "TOP-SECRET", target)
	}

	rec := get(r, "/vendor/counter/alias.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "export function mount(el) {}", rec.Body.String())
}

func TestVendoredUnitsWithoutDir(t *testing.T) {
	r := newEngine(t, frontend.Options{Assets: shell, VendorDir: filepath.Join(t.TempDir(), "absent")})

	rec := get(r, "/vendor.json")
	assert.JSONEq(t, `{"components":[]}`, rec.Body.String())
}
