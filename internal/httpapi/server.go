package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blackboxd/pkg/types"
)

// defaultAggregationWindow applies when GET /vram/aggregated has no window
// parameter.
const defaultAggregationWindow = 60

// Service defines the methods required by the HTTP API layer.
type Service interface {
	LatestSnapshot() types.VRAMSnapshot
	Aggregated(windowSeconds int) types.AggregatedVRAMInfo
	ListModels() types.ModelsResponse
	Deploy(ctx context.Context, req types.DeployRequest) (types.DeployedModelInfo, error)
	Spindown(ctx context.Context, target string) (types.SpindownResponse, error)
	Optimize(ctx context.Context) types.OptimizeResponse
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/vram", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.LatestSnapshot())
	})

	r.Get("/vram/stream", streamVRAM(svc))

	r.Get("/vram/aggregated", func(w http.ResponseWriter, r *http.Request) {
		window := defaultAggregationWindow
		if raw := r.URL.Query().Get("window"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeJSONError(w, http.StatusBadRequest, "window must be a positive integer of seconds")
				return
			}
			window = n
		}
		writeJSON(w, http.StatusOK, svc.Aggregated(window))
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.ListModels())
	})

	r.Post("/deploy", func(w http.ResponseWriter, r *http.Request) {
		var req types.DeployRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		start := time.Now()
		out, err := svc.Deploy(r.Context(), req)
		if err != nil {
			writeJSON(w, statusFor(err), types.DeployResponse{
				Success: false,
				Message: err.Error(),
			})
			return
		}
		logEvent().
			Str("model", out.ModelID).
			Int("port", out.Port).
			Dur("dur", time.Since(start)).
			Msg("deploy handled")
		writeJSON(w, http.StatusOK, types.DeployResponse{
			Success:     true,
			Message:     "deployed " + out.ModelID,
			ContainerID: out.ContainerID,
			Port:        out.Port,
		})
	})

	r.Post("/spindown", func(w http.ResponseWriter, r *http.Request) {
		var req types.SpindownRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		target := req.ModelID
		if target == "" {
			target = req.ContainerID
		}
		res, err := svc.Spindown(r.Context(), target)
		if err != nil {
			writeJSON(w, statusFor(err), types.SpindownResponse{
				Success: false,
				Message: err.Error(),
				Target:  target,
			})
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/optimize", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Optimize(r.Context()))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("collecting"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Error().Err(err).Msg("response encode failed")
	}
}

// decodeJSONBody enforces content type and body size before decoding.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, out any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
