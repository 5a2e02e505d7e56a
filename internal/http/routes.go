package httpx

import (
	"log/slog"
	"net/http"

	"github.com/m-navaneeth8770/queuectl/internal/service"
)

// RouterServices holds the services the dashboard router needs.
type RouterServices struct {
	Queue     *service.QueueService // Required
	Snapshots *service.StatsCache   // Required
	Logger    *slog.Logger          // Optional
}

// NewRouter creates the dashboard HTTP handler. Every route is read-only.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	queueHandlers := &QueueHandlers{
		Svc:       services.Queue,
		Snapshots: services.Snapshots,
	}
	registerQueueRoutes(mux, queueHandlers)

	dashboard := &DashboardHandlers{
		Svc:       services.Queue,
		Snapshots: services.Snapshots,
		Template:  dashboardTemplate,
	}
	mux.HandleFunc("GET /{$}", dashboard.handleIndex)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	return requestLogging(services.Logger)(mux)
}

// requestLogging logs each request at debug level.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.DebugContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
			)
			next.ServeHTTP(w, r)
		})
	}
}
