package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Gender wire values of the pengajuan collection.
type Gender string

const (
	GenderMale   Gender = "Laki-laki"
	GenderFemale Gender = "Perempuan"
)

// ParseGender accepts wire values and English aliases (case-insensitive).
func ParseGender(s string) (Gender, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "laki-laki", "male", "l":
		return GenderMale, true
	case "perempuan", "female", "p":
		return GenderFemale, true
	}
	return "", false
}

// Status treatment status of a case.
type Status string

const (
	StatusOutpatient Status = "Rawat Jalan"
	StatusInpatient  Status = "Rawat Inap"
	StatusCompleted  Status = "Selesai"
)

// AllStatuses in display order.
var AllStatuses = []Status{StatusInpatient, StatusOutpatient, StatusCompleted}

// ParseStatus accepts wire values and English aliases (case-insensitive).
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rawat jalan", "outpatient":
		return StatusOutpatient, true
	case "rawat inap", "inpatient":
		return StatusInpatient, true
	case "selesai", "completed":
		return StatusCompleted, true
	}
	return "", false
}

// Valid reports whether s is one of the three wire values.
func (s Status) Valid() bool {
	switch s {
	case StatusOutpatient, StatusInpatient, StatusCompleted:
		return true
	}
	return false
}

// CaseRecord one rehabilitation submission (collection "pengajuan").
// JSON names follow the remote collection schema.
type CaseRecord struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"nama"`
	NationalID           string   `json:"nik"`
	Gender               Gender   `json:"jenisKelamin"`
	Address              string   `json:"alamat"`
	Institution          string   `json:"lembaga"`
	Status               Status   `json:"status"`
	AdmissionDate        string   `json:"tanggalMasuk"`
	AdmissionDateDisplay string   `json:"tanggalMasukDisplay"`
	Latitude             *float64 `json:"latitude"`
	Longitude            *float64 `json:"longitude"`
	ReferenceNumber      string   `json:"nomorTAT"`
	SubmittedByEmail     string   `json:"submittedBy,omitempty"`
	SubmittedByName      string   `json:"submittedByName,omitempty"`
	CreatedAt            string   `json:"createdAt,omitempty"`
	UpdatedAt            string   `json:"updatedAt,omitempty"`
	Timestamp            int64    `json:"timestamp"`
}

// Mappable reports whether both coordinates are present and finite.
func (r CaseRecord) Mappable() bool {
	return r.Latitude != nil && r.Longitude != nil && isFinite(*r.Latitude) && isFinite(*r.Longitude)
}

// ToValue renders the record as a remote-log value (the id is the entry key, not a field).
func (r CaseRecord) ToValue() map[string]any {
	v := map[string]any{
		"nama":                r.Name,
		"nik":                 r.NationalID,
		"jenisKelamin":        string(r.Gender),
		"alamat":              r.Address,
		"lembaga":             r.Institution,
		"status":              string(r.Status),
		"tanggalMasuk":        r.AdmissionDate,
		"tanggalMasukDisplay": r.AdmissionDateDisplay,
		"nomorTAT":            r.ReferenceNumber,
		"timestamp":           r.Timestamp,
	}
	if r.Latitude != nil {
		v["latitude"] = *r.Latitude
	}
	if r.Longitude != nil {
		v["longitude"] = *r.Longitude
	}
	if r.SubmittedByEmail != "" {
		v["submittedBy"] = r.SubmittedByEmail
	}
	if r.SubmittedByName != "" {
		v["submittedByName"] = r.SubmittedByName
	}
	if r.CreatedAt != "" {
		v["createdAt"] = r.CreatedAt
	}
	if r.UpdatedAt != "" {
		v["updatedAt"] = r.UpdatedAt
	}
	return v
}

// ParseCaseRecord converts a loosely-typed remote entry into a CaseRecord.
// No untyped value escapes this function.
func ParseCaseRecord(id string, raw map[string]any) CaseRecord {
	r := CaseRecord{
		ID:                   id,
		Name:                 asString(raw["nama"]),
		NationalID:           asString(raw["nik"]),
		Address:              asString(raw["alamat"]),
		Institution:          asString(raw["lembaga"]),
		AdmissionDate:        asString(raw["tanggalMasuk"]),
		AdmissionDateDisplay: asString(raw["tanggalMasukDisplay"]),
		ReferenceNumber:      asString(raw["nomorTAT"]),
		SubmittedByEmail:     asString(raw["submittedBy"]),
		SubmittedByName:      asString(raw["submittedByName"]),
		CreatedAt:            asString(raw["createdAt"]),
		UpdatedAt:            asString(raw["updatedAt"]),
		Latitude:             asFloat(raw["latitude"]),
		Longitude:            asFloat(raw["longitude"]),
		Timestamp:            asInt64(raw["timestamp"]),
	}

	r.Gender = GenderMale
	if g, ok := ParseGender(asString(raw["jenisKelamin"])); ok {
		r.Gender = g
	}
	r.Status = StatusOutpatient
	if s, ok := ParseStatus(asString(raw["status"])); ok {
		r.Status = s
	}
	return r
}

// SortNewestFirst orders by Timestamp descending. The sort is stable, so
// records with equal timestamps keep their incoming (key) order.
func SortNewestFirst(records []CaseRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
}

// ParseCoordinate parses a coordinate given as text; empty, non-numeric and non-finite values fail.
func ParseCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q", s)
	}
	if !isFinite(f) {
		return 0, fmt.Errorf("non-finite coordinate %q", s)
	}
	return f, nil
}

var idMonths = [...]string{"Jan", "Feb", "Mar", "Apr", "Mei", "Jun", "Jul", "Agt", "Sep", "Okt", "Nov", "Des"}

// FormatDisplayDate renders t as "15 Nov 2024" with Indonesian month abbreviations.
func FormatDisplayDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), idMonths[t.Month()-1], t.Year())
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func asFloat(v any) *float64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := ParseCoordinate(val)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if !isFinite(f) {
		return nil
	}
	return &f
}

func asInt64(v any) int64 {
	switch val := v.(type) {
	case float64:
		if !isFinite(val) {
			return 0
		}
		return int64(val)
	case int64:
		return val
	case int:
		return int64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil && isFinite(f) {
			return int64(f)
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i
		}
	}
	return 0
}

// FilterRecords keeps records matching q (name or address, case-insensitive;
// national id as a substring) and, when status is non-empty, that status.
func FilterRecords(records []CaseRecord, q string, status Status) []CaseRecord {
	q = strings.TrimSpace(q)
	lower := strings.ToLower(q)
	out := make([]CaseRecord, 0, len(records))
	for _, r := range records {
		if status != "" && r.Status != status {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(r.Name), lower) &&
			!strings.Contains(r.NationalID, q) &&
			!strings.Contains(strings.ToLower(r.Address), lower) {
			continue
		}
		out = append(out, r)
	}
	return out
}
