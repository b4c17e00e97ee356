package domain

import "time"

type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusProcessed DocumentStatus = "processed"
	StatusFailed    DocumentStatus = "failed"
)

type DocumentKind string

const (
	KindReport       DocumentKind = "report"
	KindPrescription DocumentKind = "prescription"
	KindLabResult    DocumentKind = "lab_result"
	KindInsurance    DocumentKind = "insurance"
)

func (k DocumentKind) Valid() bool {
	switch k {
	case KindReport, KindPrescription, KindLabResult, KindInsurance:
		return true
	}
	return false
}

// Document is an owner-scoped medical record. Text holds the normalized
// extracted text once processing succeeds; the record is immutable after
// that except for soft deletion.
type Document struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Kind        DocumentKind   `json:"kind"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path,omitempty"`
	Text        string         `json:"-"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	UploadedAt  time.Time      `json:"uploaded_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}
