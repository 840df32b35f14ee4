package cmd

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psantana5/edgecap/pkg/logging"
	"github.com/psantana5/edgecap/pkg/middleware"
	"github.com/psantana5/edgecap/pkg/node"
)

// newRouter exposes the registry over HTTP
func newRouter(reg *node.Registry, gatherer prometheus.Gatherer, logger *logging.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(mux.MiddlewareFunc(middleware.Recover(logger)), mux.MiddlewareFunc(middleware.Logging(logger)))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/capabilities", listCapabilities(reg, logger)).Methods(http.MethodGet)
	r.HandleFunc("/capabilities/{handle:[0-9]+}", getCapabilities(reg, logger)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthz(reg, logger)).Methods(http.MethodGet)
	return r
}

func listCapabilities(reg *node.Registry, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs := make([]json.RawMessage, 0, reg.Len())
		for _, n := range reg.Nodes() {
			docs = append(docs, json.RawMessage(n.Capabilities()))
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(docs); err != nil {
			logWriteError(logger, r, err)
		}
	}
}

func getCapabilities(reg *node.Registry, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := strconv.ParseUint(mux.Vars(r)["handle"], 10, 64)
		if err != nil {
			http.Error(w, "invalid handle", http.StatusBadRequest)
			return
		}
		h := node.Handle(raw)

		w.Header().Set("Content-Type", "application/json")
		if _, ok := reg.Lookup(h); !ok {
			w.WriteHeader(http.StatusNotFound)
		}
		if _, err := w.Write([]byte(reg.GetCapabilities(h))); err != nil {
			logWriteError(logger, r, err)
		}
	}
}

func healthz(reg *node.Registry, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stale := 0
		nodes := reg.Nodes()
		for _, n := range nodes {
			if n.Stale() {
				stale++
			}
		}

		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"nodes":  len(nodes),
			"stale":  stale,
		})
		if err != nil {
			logWriteError(logger, r, err)
		}
	}
}

// logWriteError records a response the client did not receive. Headers are
// already sent at this point.
func logWriteError(logger *logging.Logger, r *http.Request, err error) {
	logger.Warn("Failed to write response", map[string]interface{}{
		"path":  r.URL.Path,
		"error": err.Error(),
	})
}
