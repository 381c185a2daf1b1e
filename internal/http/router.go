// Package httpapi assembles the public HTTP surface: middleware chain,
// operational endpoints and the ledger API routes.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ledgerhandler "github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/ledger/handler"
	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/internal/platform/metrics"
	authmw "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/middleware/auth"
	requestmw "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/middleware/request"
	timemw "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/platform/middleware/requesttime"
)

// Deps carries everything the router wires together.
type Deps struct {
	Ledger       *ledgerhandler.Handler
	JWTValidator authmw.JWTValidator
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Health       func() error
}

// NewRouter builds the full router. Operational endpoints stay outside
// the auth boundary; every ledger route requires a valid token.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(requestmw.Middleware)
	r.Use(timemw.Middleware)
	r.Use(chimw.Timeout(30 * time.Second))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/healthz", handleHealth(deps.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(deps.JWTValidator, deps.Logger))
		deps.Ledger.Register(r)
	})

	return r
}

func handleHealth(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
