// Package frontend serves the browser client: the embedded application shell
// from the root-level webui package, plus vendored UI units from disk.
//
//	GET /config.json   where the payload server lives
//	GET /shape.json    the QueryPayload shape, from pkg/payload
//	GET /vendor.json   vendored units that are materialized on disk
//	GET /vendor/*      files of the vendored units
//	everything else    embedded assets, with index.html as SPA fallback
package frontend

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vesaa/sharedshape/internal/logging"
	"github.com/vesaa/sharedshape/internal/server"
	"github.com/vesaa/sharedshape/pkg/payload"
	"github.com/vesaa/sharedshape/webui"
)

// entryModule is the file a vendored unit must provide to be loaded.
const entryModule = "index.js"

// Options configures NewEngine.
type Options struct {
	// ServerURL is handed to the page so it knows where to fetch from.
	ServerURL string
	// VendorDir holds one directory per vendored UI unit.
	VendorDir string
	// Assets overrides the embedded shell; nil means webui.FS/web.
	Assets fs.FS
	Logger *logrus.Logger
}

// NewEngine builds the gin engine for the browser client.
func NewEngine(opts Options) (*gin.Engine, error) {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}
	if opts.Assets == nil {
		sub, err := fs.Sub(webui.FS, "web")
		if err != nil {
			return nil, err
		}
		opts.Assets = sub
	}

	r := gin.New()
	r.Use(server.RequestID(), server.AccessLog(opts.Logger), server.Recovery(opts.Logger))

	r.GET("/config.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"server_url": opts.ServerURL})
	})
	r.GET("/shape.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, payload.Describe())
	})
	r.GET("/vendor.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"components": vendoredUnits(opts.VendorDir)})
	})
	r.GET("/vendor/*filepath", func(c *gin.Context) {
		serveVendorFile(c, opts.VendorDir)
	})

	RegisterStaticFiles(r, opts.Assets)
	return r, nil
}

// RegisterStaticFiles mounts assets on r. Routes registered before this take
// precedence. Extension-less paths fall back to index.html for SPA routing;
// missing files with an extension are a plain 404.
func RegisterStaticFiles(r *gin.Engine, assets fs.FS) {
	staticFS := http.FS(assets)

	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		name := strings.TrimPrefix(path.Clean(c.Request.URL.Path), "/")
		if name != "" && name != "index.html" {
			if st, err := fs.Stat(assets, name); err == nil && !st.IsDir() {
				c.FileFromFS(name, staticFS)
				return
			}
			if path.Ext(name) != "" {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
		}

		f, err := staticFS.Open("index.html")
		if err != nil {
			c.String(http.StatusNotFound, "UI not found")
			return
		}
		defer f.Close()
		stat, _ := f.Stat()
		c.DataFromReader(http.StatusOK, stat.Size(), "text/html; charset=utf-8", f, nil)
	})
}

// vendoredUnits lists subdirectories of dir that carry an entry module.
// A pointer that was initialized but never updated is an empty directory
// and is skipped.
func vendoredUnits(dir string) []string {
	units := []string{}
	if dir == "" {
		return units
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return units
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if st, err := os.Stat(filepath.Join(dir, e.Name(), entryModule)); err == nil && !st.IsDir() {
			units = append(units, e.Name())
		}
	}
	sort.Strings(units)
	return units
}

// serveVendorFile serves one file below dir. Dot-segments (".git" and
// friends), directories and symlinks leading out of dir are never exposed.
func serveVendorFile(c *gin.Context, dir string) {
	rel := strings.TrimPrefix(path.Clean(c.Param("filepath")), "/")
	if dir == "" || rel == "" || rel == "." {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
	}

	full, ok := insideDir(dir, filepath.Join(dir, filepath.FromSlash(rel)))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	st, err := os.Stat(full)
	if err != nil || st.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.File(full)
}

// insideDir resolves symlinks in target and reports whether the result still
// lies below dir. Vendored repositories are untrusted content.
func insideDir(dir, target string) (string, bool) {
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", false
	}
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return resolved, true
}
