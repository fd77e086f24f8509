package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/azure/brand-mentions-bot/internal/monitoring"
	"github.com/azure/brand-mentions-bot/internal/storage"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// pipeline is the part of the monitoring service the HTTP endpoints use
type pipeline interface {
	RunPolling(ctx context.Context, kind models.ContentKind) (*monitoring.RunSummary, error)
	GetMetrics() string
}

func newRouter(svc pipeline, archive storage.ArchiveReader, runBudget time.Duration) *mux.Router {
	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Pipeline status as JSON
	router.HandleFunc("/status", statusHandler(svc)).Methods("GET")

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Manual trigger endpoint
	router.HandleFunc("/trigger", triggerHandler(svc, runBudget)).Methods("POST")

	// Archived run summaries
	router.HandleFunc("/runs", listRunsHandler(archive)).Methods("GET")
	router.HandleFunc("/runs/{kind}/{name}", getRunHandler(archive)).Methods("GET")

	return router
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func statusHandler(svc pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(svc.GetMetrics()))
	}
}

// triggerHandler starts a run for ?kind=comment|post. With ?wait=true the
// response carries the run summary; otherwise the run continues in the background.
func triggerHandler(svc pipeline, runBudget time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := models.ContentKind(strings.ToLower(r.URL.Query().Get("kind")))
		if kind == "" {
			kind = models.ContentKindComment
		}
		if kind != models.ContentKindComment && kind != models.ContentKindPost {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be comment or post"})
			return
		}

		if r.URL.Query().Get("wait") != "true" {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), runBudget)
				defer cancel()
				if _, err := svc.RunPolling(ctx, kind); err != nil {
					logrus.Errorf("Manual %s run failed: %v", kind, err)
				}
			}()
			writeJSON(w, http.StatusAccepted, map[string]string{"message": "Polling run triggered", "kind": string(kind)})
			return
		}

		summary, err := svc.RunPolling(r.Context(), kind)
		switch {
		case errors.Is(err, monitoring.ErrRunInProgress):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case summary == nil:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		default:
			status := http.StatusOK
			if err != nil {
				status = http.StatusBadGateway
			}
			writeJSON(w, status, summary)
		}
	}
}

func listRunsHandler(archive storage.ArchiveReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if archive == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run archive not configured"})
			return
		}

		prefix := "runs/"
		if kind := r.URL.Query().Get("kind"); kind != "" {
			prefix += kind + "/"
		}

		names, err := archive.List(r.Context(), prefix)
		if err != nil {
			logrus.Errorf("Failed to list archived runs: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"runs": names})
	}
}

func getRunHandler(archive storage.ArchiveReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if archive == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run archive not configured"})
			return
		}

		vars := mux.Vars(r)
		data, err := archive.Retrieve(r.Context(), "runs/"+vars["kind"]+"/"+vars["name"])
		if errors.Is(err, storage.ErrArchiveNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		if err != nil {
			logrus.Errorf("Failed to retrieve archived run: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to retrieve run"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("Failed to write response: %v", err)
	}
}
