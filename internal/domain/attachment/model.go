package attachment

import (
	"github.com/google/uuid"
)

// Attachment is the metadata row for an uploaded document. The bytes live in
// the blob store under FilePath.
type Attachment struct {
	ID             uuid.UUID  `json:"id"`
	ClaimID        *uuid.UUID `json:"claimId"`
	PatientID      *uuid.UUID `json:"patientId"`
	FileName       string     `json:"fileName"`
	FileType       string     `json:"fileType"`
	FileSize       int64      `json:"fileSize"`
	FilePath       string     `json:"-"`
	UploadedByID   uuid.UUID  `json:"uploadedById"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	UploadedAt     int64      `json:"uploadedAt"`
}

type Filter struct {
	OrganizationID uuid.UUID
	ClaimID        *uuid.UUID
	PatientID      *uuid.UUID
	FileType       string
}
