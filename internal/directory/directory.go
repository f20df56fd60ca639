// Package directory lists the partner rehabilitation institutions and their
// live occupancy derived from the current case records.
package directory

import (
	"strings"

	"bnn-rehab/internal/models"
)

// Institution is a partner rehabilitation facility.
type Institution struct {
	ID       string `json:"id"`
	Name     string `json:"nama"`
	Address  string `json:"alamat"`
	Phone    string `json:"telepon"`
	Capacity int    `json:"kapasitas"`
}

// Listing is an institution with its current occupancy.
type Listing struct {
	Institution
	Occupied  int `json:"terisi"`
	Available int `json:"tersedia"`
}

// RecordSource provides the current case records.
type RecordSource interface {
	Records() []models.CaseRecord
}

// DefaultInstitutions are the partner facilities in Surabaya.
var DefaultInstitutions = []Institution{
	{ID: "1", Name: "Yayasan Rumah Kita Surabaya", Address: "Jl. Raya Menur No. 31, Surabaya", Phone: "031-5947123", Capacity: 40},
	{ID: "2", Name: "Klinik Pratama BNN Kota Surabaya", Address: "Jl. Ngagel Madya No. 22, Surabaya", Phone: "031-5033841", Capacity: 25},
	{ID: "3", Name: "Yayasan Orbit Surabaya", Address: "Jl. Kendangsari Lebar No. 9, Surabaya", Phone: "031-8430216", Capacity: 30},
	{ID: "4", Name: "RSJ Menur Surabaya", Address: "Jl. Raya Menur No. 120, Surabaya", Phone: "031-5021635", Capacity: 60},
	{ID: "5", Name: "Yayasan Plato Surabaya", Address: "Jl. Bratang Gede No. 6, Surabaya", Phone: "031-5040987", Capacity: 20},
}

// Directory serves institution listings.
type Directory struct {
	institutions []Institution
	records      RecordSource
}

// New creates a directory over institutions; records may be nil.
func New(institutions []Institution, records RecordSource) *Directory {
	return &Directory{institutions: institutions, records: records}
}

// Search returns institutions whose name or address contains q (case-insensitive).
func (d *Directory) Search(q string) []Listing {
	q = strings.ToLower(strings.TrimSpace(q))
	occupied := d.occupancy()

	out := make([]Listing, 0, len(d.institutions))
	for _, inst := range d.institutions {
		if q != "" &&
			!strings.Contains(strings.ToLower(inst.Name), q) &&
			!strings.Contains(strings.ToLower(inst.Address), q) {
			continue
		}
		n := occupied[strings.ToLower(inst.Name)]
		available := inst.Capacity - n
		if available < 0 {
			available = 0
		}
		out = append(out, Listing{Institution: inst, Occupied: n, Available: available})
	}
	return out
}

// Get returns one institution by id.
func (d *Directory) Get(id string) (Listing, bool) {
	for _, l := range d.Search("") {
		if l.ID == id {
			return l, true
		}
	}
	return Listing{}, false
}

// occupancy counts records still in treatment per institution name.
func (d *Directory) occupancy() map[string]int {
	counts := make(map[string]int)
	if d.records == nil {
		return counts
	}
	for _, r := range d.records.Records() {
		if r.Status == models.StatusCompleted {
			continue
		}
		counts[strings.ToLower(strings.TrimSpace(r.Institution))]++
	}
	return counts
}
