package records

import (
	"time"

	"github.com/google/uuid"
)

// DocumentType classifies an uploaded file.
type DocumentType string

const (
	TypeGeneral      DocumentType = "General"
	TypeTestResult   DocumentType = "Test Result"
	TypePrescription DocumentType = "Prescription"
	TypeReport       DocumentType = "Report"
)

func ValidType(s string) bool {
	switch DocumentType(s) {
	case TypeGeneral, TypeTestResult, TypePrescription, TypeReport:
		return true
	}
	return false
}

// Document is a medical file attached to an emergency case.
type Document struct {
	ID          uuid.UUID    `db:"id" json:"_id"`
	PatientID   uuid.UUID    `db:"patient_id" json:"patientId"`
	UploadedBy  uuid.UUID    `db:"uploaded_by" json:"uploadedBy"`
	Type        DocumentType `db:"type" json:"type"`
	FileName    string       `db:"file_name" json:"fileName"`
	ContentType string       `db:"content_type" json:"contentType"`
	Size        int64        `db:"size_bytes" json:"size"`
	BlobID      string       `db:"blob_id" json:"-"`
	Hash        string       `db:"hash" json:"hash"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
}
