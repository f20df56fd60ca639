package store

import (
	"time"

	"bnn-rehab/internal/models"
)

func coord(v float64) *float64 { return &v }

// SeedRecords returns the sample submissions used to provision an empty collection.
// Timestamps are relative to now so the seeds keep their relative order.
func SeedRecords(now time.Time) []models.CaseRecord {
	ms := now.UnixMilli()
	return []models.CaseRecord{
		{
			ID:                   "1",
			Name:                 "Ahmad Suryanto",
			NationalID:           "3578012345678901",
			Gender:               models.GenderMale,
			Address:              "Jl. Mawar No. 10, Surabaya",
			ReferenceNumber:      "TAT-2024-001",
			Status:               models.StatusInpatient,
			Institution:          "Yayasan Rumah Kita Surabaya",
			AdmissionDate:        "2024-11-15",
			AdmissionDateDisplay: "15 Nov 2024",
			Latitude:             coord(-7.2701),
			Longitude:            coord(112.7261),
			Timestamp:            ms - 1000000,
		},
		{
			ID:                   "2",
			Name:                 "Siti Nurhaliza",
			NationalID:           "3578019876543210",
			Gender:               models.GenderFemale,
			Address:              "Jl. Melati No. 25, Surabaya",
			ReferenceNumber:      "TAT-2024-002",
			Status:               models.StatusOutpatient,
			Institution:          "Klinik Pratama BNN Kota Surabaya",
			AdmissionDate:        "2024-11-12",
			AdmissionDateDisplay: "12 Nov 2024",
			Latitude:             coord(-7.2819),
			Longitude:            coord(112.7478),
			Timestamp:            ms - 2000000,
		},
		{
			ID:                   "3",
			Name:                 "Budi Santoso",
			NationalID:           "3578011234567890",
			Gender:               models.GenderMale,
			Address:              "Jl. Kenanga No. 5, Surabaya",
			ReferenceNumber:      "TAT-2024-003",
			Status:               models.StatusInpatient,
			Institution:          "Yayasan Orbit Surabaya",
			AdmissionDate:        "2024-11-10",
			AdmissionDateDisplay: "10 Nov 2024",
			Latitude:             coord(-7.3155),
			Longitude:            coord(112.7689),
			Timestamp:            ms - 3000000,
		},
	}
}
