package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bnn-rehab/internal/audit"
	"bnn-rehab/internal/models"
	"bnn-rehab/internal/store"

	"go.uber.org/zap"
)

// RecordService is the record store surface used by the handlers.
type RecordService interface {
	Records() []models.CaseRecord
	Loading() bool
	Err() error
	Create(ctx context.Context, in models.CreateInput) store.Result
	UpdateStatus(ctx context.Context, id string, status models.Status) store.Result
	Delete(ctx context.Context, id string) store.Result
}

// AuditLister reads the persisted mutation history of a record.
type AuditLister interface {
	ListByRecord(ctx context.Context, recordID string, limit int) ([]audit.Entry, error)
}

// RecordStats counts records per status.
type RecordStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
	Mappable int            `json:"mappable"`
}

// RecordsHandler serves /api/v1/pengajuan.
type RecordsHandler struct {
	records RecordService
	audit   AuditLister
	now     func() time.Time
	logger  *zap.Logger
}

// NewRecordsHandler creates the handler; auditLister may be nil.
func NewRecordsHandler(records RecordService, auditLister AuditLister, logger *zap.Logger) *RecordsHandler {
	return &RecordsHandler{
		records: records,
		audit:   auditLister,
		now:     time.Now,
		logger:  logger,
	}
}

// List GET /api/v1/pengajuan?q=&status=
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Err(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "connectivity failure", nil)
		return
	}
	if h.records.Loading() {
		respond(w, http.StatusOK, map[string]any{"loading": true, "items": []models.CaseRecord{}})
		return
	}
	items := h.filtered(r)
	respond(w, http.StatusOK, map[string]any{"loading": false, "items": items, "total": len(items)})
}

// Create POST /api/v1/pengajuan
func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.CreateInput
	if err := decodeRecordBody(w, r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body", nil)
		return
	}
	res := h.records.Create(r.Context(), in)
	writeResult(w, res, "save failed", map[string]any{"id": res.ID})
}

// UpdateStatus PUT /api/v1/pengajuan/{id}/status
func (h *RecordsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeRecordBody(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body", nil)
		return
	}
	status, ok := models.ParseStatus(body.Status)
	if !ok {
		status = models.Status(strings.TrimSpace(body.Status))
	}
	res := h.records.UpdateStatus(r.Context(), id, status)
	writeResult(w, res, "save failed", map[string]any{"id": res.ID, "status": status})
}

// Delete DELETE /api/v1/pengajuan/{id}
func (h *RecordsHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	res := h.records.Delete(r.Context(), id)
	writeResult(w, res, "delete failed", map[string]any{"id": res.ID})
}

// Stats GET /api/v1/pengajuan/stats
func (h *RecordsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	records := h.records.Records()
	stats := RecordStats{Total: len(records), ByStatus: make(map[string]int, len(models.AllStatuses))}
	for _, s := range models.AllStatuses {
		stats.ByStatus[string(s)] = 0
	}
	for _, rec := range records {
		stats.ByStatus[string(rec.Status)]++
		if rec.Mappable() {
			stats.Mappable++
		}
	}
	respond(w, http.StatusOK, stats)
}

// Export GET /api/v1/pengajuan/export?q=&status=
func (h *RecordsHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := GenerateRecordsExport(h.filtered(r))
	if err != nil {
		h.logger.Error("Failed to generate export", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "export failed", nil)
		return
	}
	filename := fmt.Sprintf("pengajuan-%s.xlsx", h.now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// History GET /api/v1/pengajuan/{id}/audit?limit=
func (h *RecordsHandler) History(w http.ResponseWriter, r *http.Request, id string) {
	if h.audit == nil {
		respondError(w, http.StatusNotFound, "audit trail disabled", nil)
		return
	}
	entries, err := h.audit.ListByRecord(r.Context(), id, historyLimit(r))
	if err != nil {
		h.logger.Error("Failed to list audit entries", zap.String("record_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list audit entries", nil)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	respond(w, http.StatusOK, entries)
}

func (h *RecordsHandler) filtered(r *http.Request) []models.CaseRecord {
	q := r.URL.Query()
	var status models.Status
	if raw := q.Get("status"); raw != "" {
		if s, ok := models.ParseStatus(raw); ok {
			status = s
		} else {
			status = models.Status(raw)
		}
	}
	return models.FilterRecords(h.records.Records(), q.Get("q"), status)
}
