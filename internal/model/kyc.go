package model

import "time"

// KYCOwnerType is the kind of record a document belongs to.
type KYCOwnerType string

const (
	KYCOwnerUser        KYCOwnerType = "user"
	KYCOwnerInvestor    KYCOwnerType = "investor"
	KYCOwnerApplication KYCOwnerType = "application"
)

var KYCOwnerTypes = []KYCOwnerType{KYCOwnerUser, KYCOwnerInvestor, KYCOwnerApplication}

type DocumentType string

const (
	DocPassport       DocumentType = "passport"
	DocNationalID     DocumentType = "national_id"
	DocDriversLicense DocumentType = "drivers_license"
	DocProofOfAddress DocumentType = "proof_of_address"
	DocBankStatement  DocumentType = "bank_statement"
	DocTaxDocument    DocumentType = "tax_document"
)

var DocumentTypes = []DocumentType{
	DocPassport, DocNationalID, DocDriversLicense, DocProofOfAddress, DocBankStatement, DocTaxDocument,
}

type DocumentStatus string

const (
	DocPending  DocumentStatus = "pending"
	DocApproved DocumentStatus = "approved"
	DocRejected DocumentStatus = "rejected"
	DocExpired  DocumentStatus = "expired"
)

var DocumentStatuses = []DocumentStatus{DocPending, DocApproved, DocRejected, DocExpired}

// KYCDocument is identity evidence attached to an owner record.
type KYCDocument struct {
	ID              string         `json:"id" db:"id"`
	TenantID        string         `json:"tenant_id" db:"tenant_id"`
	OwnerType       KYCOwnerType   `json:"owner_type" db:"owner_type"`
	OwnerID         string         `json:"owner_id" db:"owner_id"`
	DocumentType    DocumentType   `json:"document_type" db:"document_type"`
	FileURL         string         `json:"file_url" db:"file_url"`
	Status          DocumentStatus `json:"status" db:"status"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty" db:"expires_at"`
	ReviewedBy      *string        `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty" db:"reviewed_at"`
	RejectionReason string         `json:"rejection_reason,omitempty" db:"rejection_reason"`
	Deleted         bool           `json:"-" db:"deleted"`
	DeletedAt       *time.Time     `json:"-" db:"deleted_at"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// IsExpired reports an explicit expiry or a passed expiry date.
func (d *KYCDocument) IsExpired(now time.Time) bool {
	if d.Status == DocExpired {
		return true
	}
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}

// Validate checks field rules.
func (d *KYCDocument) Validate() error {
	var v ValidationErrors
	OneOf(&v, "owner_type", d.OwnerType, KYCOwnerTypes)
	v.Required("owner_id", d.OwnerID)
	OneOf(&v, "document_type", d.DocumentType, DocumentTypes)
	v.Required("file_url", d.FileURL)
	v.MaxLen("file_url", d.FileURL, 2048)
	OneOf(&v, "status", d.Status, DocumentStatuses)
	if d.Status == DocRejected && d.RejectionReason == "" {
		v.Add("rejection_reason", "is required when rejecting")
	}
	return v.Err()
}

// KYCDocumentResponse adds computed fields.
type KYCDocumentResponse struct {
	*KYCDocument
	Expired bool `json:"expired"`
}

func (d *KYCDocument) ToResponse(now time.Time) KYCDocumentResponse {
	return KYCDocumentResponse{KYCDocument: d, Expired: d.IsExpired(now)}
}

// KYCFilter narrows document listings.
type KYCFilter struct {
	OwnerType KYCOwnerType
	OwnerID   string
	Status    DocumentStatus
}

// KYCReview is the outcome of a manual review.
type KYCReview struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}
