package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// CreateInput fields accepted when registering a submission.
// Coordinates arrive as text or numbers from the form; Latitude/Longitude keep them as text
// so validation can report which one is malformed.
type CreateInput struct {
	Name                 string   `json:"nama"`
	NationalID           string   `json:"nik"`
	Gender               string   `json:"jenisKelamin"`
	Address              string   `json:"alamat"`
	Institution          string   `json:"lembaga"`
	Status               string   `json:"status"`
	AdmissionDate        string   `json:"tanggalMasuk"`
	AdmissionDateDisplay string   `json:"tanggalMasukDisplay"`
	ReferenceNumber      string   `json:"nomorTAT"`
	Latitude             FlexText `json:"latitude"`
	Longitude            FlexText `json:"longitude"`
	SubmittedByEmail     string   `json:"submittedBy"`
	SubmittedByName      string   `json:"submittedByName"`
}

// FlexText decodes a JSON string or number into text.
type FlexText string

func (f *FlexText) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = FlexText(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexText(n.String())
	return nil
}

// Float is a convenience for building inputs in code.
func Float(v float64) FlexText {
	return FlexText(strconv.FormatFloat(v, 'f', -1, 64))
}
