package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const recordsPrefix = "/api/v1/pengajuan"

// Router wraps the standard http.ServeMux.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler registers an http.Handler (metrics).
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterRecordRoutes registers the case-record endpoints.
func (r *Router) RegisterRecordRoutes(h *RecordsHandler) {
	r.Handle(recordsPrefix, func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Create(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	r.Handle(recordsPrefix+"/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.Trim(strings.TrimPrefix(req.URL.Path, recordsPrefix+"/"), "/")
		parts := strings.Split(rest, "/")

		switch {
		case rest == "":
			w.WriteHeader(http.StatusNotFound)
		case rest == "stats":
			onlyMethod(w, req, http.MethodGet, h.Stats)
		case rest == "export":
			onlyMethod(w, req, http.MethodGet, h.Export)
		case len(parts) == 1:
			onlyMethod(w, req, http.MethodDelete, func(w http.ResponseWriter, req *http.Request) {
				h.Delete(w, req, parts[0])
			})
		case len(parts) == 2 && parts[1] == "status":
			if req.Method != http.MethodPut && req.Method != http.MethodPatch {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.UpdateStatus(w, req, parts[0])
		case len(parts) == 2 && parts[1] == "audit":
			onlyMethod(w, req, http.MethodGet, func(w http.ResponseWriter, req *http.Request) {
				h.History(w, req, parts[0])
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// RegisterInfoRoutes registers map, institution, news and health endpoints.
func (r *Router) RegisterInfoRoutes(h *InfoHandler) {
	r.Handle("/api/v1/sebaran/markers", func(w http.ResponseWriter, req *http.Request) {
		onlyMethod(w, req, http.MethodGet, h.Markers)
	})
	r.Handle("/api/v1/lembaga", func(w http.ResponseWriter, req *http.Request) {
		onlyMethod(w, req, http.MethodGet, h.Institutions)
	})
	r.Handle("/api/v1/lembaga/", func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimPrefix(req.URL.Path, "/api/v1/lembaga/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		onlyMethod(w, req, http.MethodGet, func(w http.ResponseWriter, req *http.Request) {
			h.Institution(w, req, id)
		})
	})
	r.Handle("/api/v1/berita", func(w http.ResponseWriter, req *http.Request) {
		onlyMethod(w, req, http.MethodGet, h.News)
	})
	r.Handle("/healthz", h.Health)
}

func onlyMethod(w http.ResponseWriter, req *http.Request, method string, h http.HandlerFunc) {
	if req.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h(w, req)
}
