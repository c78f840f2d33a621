package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/qiyuan/conceptrank/backend/internal/api/handlers"
	"github.com/qiyuan/conceptrank/backend/pkg/logger"
)

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 路由设置只在这个函数
func NewRouter(importHandler *handlers.ImportHandler, rankingHandler *handlers.RankingHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Admin import endpoints
	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/import/upload", importHandler.Upload).Methods("POST")
	admin.HandleFunc("/import/batches", importHandler.ListBatches).Methods("GET")
	admin.HandleFunc("/import/batches/{id:[0-9]+}", importHandler.GetBatch).Methods("GET")
	admin.HandleFunc("/import/batches/{id:[0-9]+}/recompute", importHandler.Recompute).Methods("POST")
	admin.HandleFunc("/import/metrics", importHandler.ListMetricTypes).Methods("GET")

	// Read endpoints
	api.HandleFunc("/rankings/{conceptID:[0-9]+}", rankingHandler.GetRankings).Methods("GET")
	api.HandleFunc("/summaries/{conceptID:[0-9]+}", rankingHandler.GetSummary).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "conceptrank-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
