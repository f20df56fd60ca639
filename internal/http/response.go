package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"bnn-rehab/internal/store"
)

// Envelope codes understood by the admin and lembaga front-ends.
const (
	CodeOK     = 2000
	CodeFailed = -1
)

// Response wraps every /api/v1 payload. Result is null on failure unless
// the endpoint attaches a detail object.
type Response struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  any    `json:"result"`
}

const (
	maxRecordBody   = 64 << 10
	defaultHistory  = 50
	maxHistoryLimit = 500
)

func respond(w http.ResponseWriter, status int, result any) {
	send(w, status, Response{Code: CodeOK, Type: "success", Message: "ok", Result: result})
}

func respondError(w http.ResponseWriter, status int, message string, detail any) {
	send(w, status, Response{Code: CodeFailed, Type: "error", Message: message, Result: detail})
}

func send(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeResult answers a record mutation. A ValidationError is the caller's
// fault and its text is returned; remote log failures get the generic message.
func writeResult(w http.ResponseWriter, res store.Result, generic string, payload map[string]any) {
	if res.Success {
		respond(w, http.StatusOK, payload)
		return
	}
	var verr *store.ValidationError
	if errors.As(res.Err, &verr) {
		respondError(w, http.StatusBadRequest, verr.Error(), map[string]any{"field": verr.Field})
		return
	}
	respondError(w, http.StatusInternalServerError, generic, nil)
}

// decodeRecordBody reads a JSON request body of at most maxRecordBody bytes.
// An empty body leaves out untouched.
func decodeRecordBody(w http.ResponseWriter, r *http.Request, out any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRecordBody)).Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// historyLimit reads ?limit= for the audit trail, clamped to [1, maxHistoryLimit].
func historyLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	switch {
	case err != nil || n <= 0:
		return defaultHistory
	case n > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return n
	}
}
