package httpapi

import (
	"context"
	"net/http"

	"bnn-rehab/internal/directory"
	"bnn-rehab/internal/mapview"
	"bnn-rehab/internal/service"
)

// FeatureSource provides the current marker layer as GeoJSON.
type FeatureSource interface {
	Features() mapview.FeatureCollection
}

// NewsSource provides agency news.
type NewsSource interface {
	Latest(ctx context.Context) []service.NewsItem
}

// HealthSource reports the record subscription state.
type HealthSource interface {
	Loading() bool
	Err() error
}

// InfoHandler serves the read-only map, institution, news and health endpoints.
type InfoHandler struct {
	features  FeatureSource
	directory *directory.Directory
	news      NewsSource
	health    HealthSource
}

func NewInfoHandler(features FeatureSource, dir *directory.Directory, news NewsSource, health HealthSource) *InfoHandler {
	return &InfoHandler{
		features:  features,
		directory: dir,
		news:      news,
		health:    health,
	}
}

// Markers GET /api/v1/sebaran/markers
func (h *InfoHandler) Markers(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.features.Features())
}

// Institutions GET /api/v1/lembaga?q=
func (h *InfoHandler) Institutions(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.directory.Search(r.URL.Query().Get("q")))
}

// Institution GET /api/v1/lembaga/{id}
func (h *InfoHandler) Institution(w http.ResponseWriter, r *http.Request, id string) {
	l, ok := h.directory.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "institution not found", nil)
		return
	}
	respond(w, http.StatusOK, l)
}

// News GET /api/v1/berita
func (h *InfoHandler) News(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.news.Latest(r.Context()))
}

// Health GET /healthz
func (h *InfoHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Err(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "connectivity failure", map[string]any{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, map[string]any{"loading": h.health.Loading()})
}
