package mapview

import (
	"errors"
	"fmt"
	"html"
	"math"
	"strings"

	"bnn-rehab/internal/models"
)

// Label is the popup payload of a marker.
type Label struct {
	Name                 string `json:"name"`
	NationalID           string `json:"nationalId"`
	Address              string `json:"address"`
	Institution          string `json:"institution"`
	AdmissionDateDisplay string `json:"admissionDateDisplay"`
	Status               string `json:"status"`
}

// Popup renders the label as the HTML fragment shown when a marker is clicked.
func (l Label) Popup() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b><br/>", html.EscapeString(l.Name))
	fmt.Fprintf(&b, "NIK: %s<br/>", html.EscapeString(l.NationalID))
	fmt.Fprintf(&b, "Alamat: %s<br/>", html.EscapeString(l.Address))
	fmt.Fprintf(&b, "Lembaga: %s<br/>", html.EscapeString(l.Institution))
	fmt.Fprintf(&b, "Tanggal Masuk: %s<br/>", html.EscapeString(l.AdmissionDateDisplay))
	fmt.Fprintf(&b, "Status: %s", html.EscapeString(l.Status))
	return b.String()
}

// Marker is one placed point, one per mappable record.
type Marker struct {
	RecordID string  `json:"recordId"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Label    Label   `json:"label"`
}

// NewMarker builds the marker for a record.
func NewMarker(r models.CaseRecord) (Marker, error) {
	if r.ID == "" {
		return Marker{}, errors.New("record has no id")
	}
	if !r.Mappable() {
		return Marker{}, fmt.Errorf("record %s has no usable coordinates", r.ID)
	}
	return Marker{
		RecordID: r.ID,
		Lat:      *r.Latitude,
		Lng:      *r.Longitude,
		Label: Label{
			Name:                 r.Name,
			NationalID:           r.NationalID,
			Address:              r.Address,
			Institution:          r.Institution,
			AdmissionDateDisplay: r.AdmissionDateDisplay,
			Status:               string(r.Status),
		},
	}, nil
}

// Geometry is a GeoJSON point; coordinates are [lng, lat].
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Feature is a GeoJSON feature for one marker.
type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FeatureCollection is the GeoJSON form of a marker layer.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// ToFeature converts a marker; it fails for non-finite coordinates.
func ToFeature(m Marker) (Feature, error) {
	if math.IsNaN(m.Lat) || math.IsInf(m.Lat, 0) || math.IsNaN(m.Lng) || math.IsInf(m.Lng, 0) {
		return Feature{}, fmt.Errorf("marker %s has non-finite coordinates", m.RecordID)
	}
	return Feature{
		Type: "Feature",
		ID:   m.RecordID,
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: [2]float64{m.Lng, m.Lat},
		},
		Properties: map[string]any{
			"name":                 m.Label.Name,
			"nationalId":           m.Label.NationalID,
			"address":              m.Label.Address,
			"institution":          m.Label.Institution,
			"admissionDateDisplay": m.Label.AdmissionDateDisplay,
			"status":               m.Label.Status,
			"popup":                m.Label.Popup(),
		},
	}, nil
}

// ToFeatureCollection converts markers, skipping any that cannot be represented.
func ToFeatureCollection(markers []Marker) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(markers))}
	for _, m := range markers {
		f, err := ToFeature(m)
		if err != nil {
			continue
		}
		fc.Features = append(fc.Features, f)
	}
	return fc
}
