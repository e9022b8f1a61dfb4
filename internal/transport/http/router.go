// Package httptransport assembles the HTTP surface: the therapist-facing
// gate endpoints under /v1, the compliance review surface under /admin and
// the operational endpoints. All business decisions live in the services;
// this package only arranges middleware and routing.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminhandler "sanctum/internal/admin"
	isolationhandler "sanctum/internal/isolation/handler"
	mergehandler "sanctum/internal/merge/handler"
	"sanctum/internal/platform/metrics"
	sanitizehandler "sanctum/internal/sanitize/handler"
	adminmw "sanctum/pkg/platform/middleware/admin"
	"sanctum/pkg/platform/middleware/auth"
	"sanctum/pkg/platform/middleware/contenttype"
	"sanctum/pkg/platform/middleware/logging"
	"sanctum/pkg/platform/middleware/metadata"
	"sanctum/pkg/platform/middleware/recovery"
	"sanctum/pkg/platform/middleware/request"
	"sanctum/pkg/platform/middleware/requesttime"
	"sanctum/pkg/platform/middleware/timeout"
)

// Config carries everything the router needs beyond the handlers.
type Config struct {
	Logger         *slog.Logger
	Metrics        *metrics.HTTP
	TokenValidator auth.TokenValidator
	// AdminTokenHash guards /admin when set; AdminToken is the plaintext
	// fallback for development. When both are empty /admin is not mounted.
	AdminToken     string
	AdminTokenHash string
	RequestTimeout time.Duration
}

// Handlers groups the mounted endpoint handlers.
type Handlers struct {
	Isolation *isolationhandler.Handler
	Merge     *mergehandler.Handler
	Sanitize  *sanitizehandler.Handler
	Admin     *adminhandler.Handler
}

// NewRouter builds the full routing tree.
func NewRouter(cfg Config, h Handlers) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(recovery.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(logging.Logger(cfg.Logger))
	r.Use(timeout.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Every gate endpoint requires a validated therapist identity before the
	// request body is even decoded.
	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(auth.RequireTherapist(cfg.TokenValidator, cfg.Logger))
		v1.Use(contenttype.RequireJSON)
		h.Isolation.Register(v1)
		h.Merge.Register(v1)
		h.Sanitize.Register(v1)
	})

	if h.Admin != nil {
		if guard, ok := adminGuard(cfg); ok {
			r.Route("/admin", func(ar chi.Router) {
				ar.Use(guard)
				h.Admin.Register(ar)
			})
		} else {
			cfg.Logger.Warn("admin token not configured, audit review surface disabled")
		}
	}

	return r
}

// adminGuard prefers the hashed token; plaintext comparison is kept for
// local development only.
func adminGuard(cfg Config) (func(http.Handler) http.Handler, bool) {
	switch {
	case cfg.AdminTokenHash != "":
		return adminmw.RequireHashedAdminToken(cfg.AdminTokenHash, cfg.Logger), true
	case cfg.AdminToken != "":
		return adminmw.RequireAdminToken(cfg.AdminToken, cfg.Logger), true
	default:
		return nil, false
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
