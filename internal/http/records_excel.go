package httpapi

import (
	"bytes"
	"fmt"

	"bnn-rehab/internal/models"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Pengajuan"

// RecordsExportHeader column titles of the case-record export.
var RecordsExportHeader = []string{
	"Nomor TAT",
	"Nama",
	"NIK",
	"Jenis Kelamin",
	"Alamat",
	"Lembaga",
	"Status",
	"Tanggal Masuk",
	"Latitude",
	"Longitude",
	"Diajukan Oleh",
}

var exportColumnWidths = []float64{18, 25, 20, 14, 40, 35, 14, 16, 12, 12, 25}

// GenerateRecordsExport renders records as an xlsx workbook, one row per record.
func GenerateRecordsExport(records []models.CaseRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range RecordsExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(exportSheet, name, name, exportColumnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, r := range records {
		row := []any{
			r.ReferenceNumber,
			r.Name,
			r.NationalID,
			string(r.Gender),
			r.Address,
			r.Institution,
			string(r.Status),
			r.AdmissionDateDisplay,
			coordinateCell(r.Latitude),
			coordinateCell(r.Longitude),
			submitter(r),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func coordinateCell(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func submitter(r models.CaseRecord) string {
	if r.SubmittedByName != "" {
		return r.SubmittedByName
	}
	return r.SubmittedByEmail
}
