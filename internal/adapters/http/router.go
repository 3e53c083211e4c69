package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/civic-records/internal/config"
	"github.com/kirillkom/civic-records/internal/core/ports"
	"github.com/kirillkom/civic-records/internal/observability/metrics"
)

// Services are the inbound ports the API exposes.
type Services struct {
	Lifecycle ports.RequestLifecycle
	Requests  ports.RequestReader
	Documents ports.DocumentService
	Anchorer  ports.DocumentAnchorer
	Reports   ports.RequestReporter
	Catalog   ports.DocumentTypeReader
}

type Router struct {
	cfg     config.Config
	svc     Services
	loc     *time.Location
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, svc Services) *Router {
	loc, err := cfg.Location()
	if err != nil {
		loc = time.UTC
	}
	return &Router{cfg: cfg, svc: svc, loc: loc}
}

// WithMetrics mounts /metrics and instruments every request.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /v1/document-types", rt.listDocumentTypes)
	api.HandleFunc("GET /v1/document-types/{identifier}", rt.getDocumentType)

	api.HandleFunc("POST /v1/requests", rt.submitRequest)
	api.HandleFunc("GET /v1/requests", rt.listRequests)
	api.HandleFunc("GET /v1/requests/{id}", rt.getRequest)
	api.HandleFunc("POST /v1/requests/{id}/transitions", rt.transitionRequest)
	api.HandleFunc("POST /v1/requests/{id}/approvals", rt.approveRequest)
	api.HandleFunc("POST /v1/requests/{id}/document", rt.completeDocument)

	api.HandleFunc("POST /v1/documents", rt.issueManualDocument)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	api.HandleFunc("GET /v1/documents/{id}/validity", rt.documentValidity)
	api.HandleFunc("POST /v1/documents/{id}/revoke", rt.revokeDocument)
	api.HandleFunc("GET /v1/documents/{id}/ledger", rt.verifyDocument)

	api.HandleFunc("GET /v1/reports/requests.xlsx", rt.exportRequests)

	var limited http.Handler = api
	limited = backpressureMiddleware(limited, rt.cfg.APIBackpressureMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	limited = rateLimitMiddleware(limited, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("/v1/", limited)

	var handler http.Handler = mux
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware("civic-api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listDocumentTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"document_types": rt.svc.Catalog.List()})
}

func (rt *Router) getDocumentType(w http.ResponseWriter, r *http.Request) {
	docType, err := rt.svc.Catalog.Lookup(r.PathValue("identifier"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docType)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(out) == nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
