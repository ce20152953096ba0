// Package server provides the sharedshape payload server.
//
//	GET /         the QueryPayload fetch (optionally bearer-protected)
//	GET /healthz  liveness + host stats (no auth)
//	GET /metrics  Prometheus exposition (no auth)
package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/vesaa/sharedshape/internal/logging"
	"github.com/vesaa/sharedshape/pkg/payload"
)

// Builder constructs the value returned by GET /.
type Builder func() (payload.QueryPayload, error)

// DefaultBuilder wraps payload.New, which cannot fail.
func DefaultBuilder() (payload.QueryPayload, error) {
	return payload.New(), nil
}

// Options configures NewEngine. The zero value serves the fixed payload
// with no authentication.
type Options struct {
	Builder Builder
	// AuthSecret enables HS256 bearer auth on GET / when non-empty.
	AuthSecret string
	Logger     *logrus.Logger
}

// API holds the per-engine dependencies of the handlers.
type API struct {
	build    Builder
	log      *logrus.Logger
	requests *prometheus.CounterVec
	registry *prometheus.Registry
}

// NewEngine builds a gin engine with every route and middleware wired.
func NewEngine(opts Options) *gin.Engine {
	if opts.Builder == nil {
		opts.Builder = DefaultBuilder
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}

	api := &API{
		build:    opts.Builder,
		log:      opts.Logger,
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sharedshape",
			Name:      "payload_requests_total",
			Help:      "Payload fetches served, by HTTP status code.",
		}, []string{"code"}),
	}
	api.registry.MustRegister(api.requests)

	r := gin.New()
	r.Use(RequestID(), AccessLog(api.log), Recovery(api.log), CORSMiddleware())
	RegisterRoutes(r, api, opts.AuthSecret)
	return r
}

// RegisterRoutes wires the handlers of api onto r.
func RegisterRoutes(r *gin.Engine, api *API, authSecret string) {
	fetch := []gin.HandlerFunc{api.countRequests}
	if authSecret != "" {
		fetch = append(fetch, BearerAuth(authSecret))
	}
	fetch = append(fetch, api.handlePayload)
	r.GET("/", fetch...)

	r.GET("/healthz", handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(api.registry, promhttp.HandlerOpts{})))
}

// CORSMiddleware lets any origin read the responses and answers preflights.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// handlePayload returns the shared QueryPayload.
//
//	GET /
//	200 {"payload": "server_data_returned_successfully"}
func (a *API) handlePayload(c *gin.Context) {
	p, err := a.build()
	if err == nil {
		err = payload.Validate(p)
	}
	if err != nil {
		a.log.WithError(err).WithField("request_id", c.GetString(requestIDKey)).Error("building payload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *API) countRequests(c *gin.Context) {
	c.Next()
	a.requests.WithLabelValues(strconv.Itoa(c.Writer.Status())).Inc()
}
