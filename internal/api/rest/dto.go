package rest

import (
	"time"

	"github.com/veridoc/registry-indexer/internal/store/schema"
)

// envelope wraps every successful response with the committed checkpoint
// height so callers can detect staleness
type envelope struct {
	Data      interface{} `json:"data"`
	AsOfBlock uint64      `json:"as_of_block"`
}

// statusResponse is the payload of GET /v1/status
type statusResponse struct {
	Chain       string     `json:"chain"`
	BlockNumber uint64     `json:"block_number"`
	LogIndex    uint       `json:"log_index"`
	BlockHash   string     `json:"block_hash,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type identityDTO struct {
	DID           string     `json:"did"`
	Controller    *string    `json:"controller"`
	Active        bool       `json:"active"`
	RegisteredAt  *time.Time `json:"registered_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	LastEventTime time.Time  `json:"last_event_time"`
}

func toIdentityDTO(identity *schema.Identity) identityDTO {
	return identityDTO{
		DID:           identity.DID,
		Controller:    identity.Controller,
		Active:        identity.Active,
		RegisteredAt:  identity.RegisteredAt,
		DeactivatedAt: identity.DeactivatedAt,
		LastEventTime: identity.LastEventTime,
	}
}

type activeRoleDTO struct {
	Role      string     `json:"role"`
	GrantedAt *time.Time `json:"granted_at"`
}

func toActiveRoleDTOs(grants []schema.RoleGrant) []activeRoleDTO {
	roles := make([]activeRoleDTO, 0, len(grants))
	for _, grant := range grants {
		if !grant.Granted {
			continue
		}
		roles = append(roles, activeRoleDTO{
			Role:      grant.Role,
			GrantedAt: grant.GrantedAt,
		})
	}
	return roles
}

type authenticationDTO struct {
	Role        string    `json:"role"`
	Succeeded   bool      `json:"succeeded"`
	Timestamp   time.Time `json:"timestamp"`
	BlockNumber uint64    `json:"block_number"`
	LogIndex    uint      `json:"log_index"`
	TxHash      string    `json:"tx_hash"`
}

func toAuthenticationDTOs(records []schema.AuthenticationRecord) []authenticationDTO {
	attempts := make([]authenticationDTO, 0, len(records))
	for _, record := range records {
		attempts = append(attempts, authenticationDTO{
			Role:        record.Role,
			Succeeded:   record.Succeeded,
			Timestamp:   record.Timestamp,
			BlockNumber: record.BlockNumber,
			LogIndex:    record.LogIndex,
			TxHash:      record.TxHash,
		})
	}
	return attempts
}

type credentialDTO struct {
	ID                   string     `json:"id"`
	CredentialType       string     `json:"credential_type"`
	SubjectDID           string     `json:"subject_did"`
	Issuer               *string    `json:"issuer"`
	IssuedAt             time.Time  `json:"issued_at"`
	Verified             bool       `json:"verified"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`
	VerificationFailedAt *time.Time `json:"verification_failed_at,omitempty"`
}

func toCredentialDTO(credential *schema.Credential) credentialDTO {
	return credentialDTO{
		ID:                   credential.ID,
		CredentialType:       credential.CredentialType,
		SubjectDID:           credential.SubjectDID,
		Issuer:               credential.Issuer,
		IssuedAt:             credential.IssuedAt,
		Verified:             credential.Verified,
		VerifiedAt:           credential.VerifiedAt,
		VerificationFailedAt: credential.VerificationFailedAt,
	}
}

type documentDTO struct {
	ID                string     `json:"id"`
	Issuer            string     `json:"issuer"`
	Holder            string     `json:"holder"`
	DocumentType      *string    `json:"document_type"`
	IssuedAt          time.Time  `json:"issued_at"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	Verified          bool       `json:"verified"`
	Verifier          *string    `json:"verifier,omitempty"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty"`
	PreviousVersionID *string    `json:"previous_version_id,omitempty"`
}

func toDocumentDTO(document *schema.Document) documentDTO {
	return documentDTO{
		ID:                document.ID,
		Issuer:            document.Issuer,
		Holder:            document.Holder,
		DocumentType:      document.DocumentType,
		IssuedAt:          document.IssuedAt,
		ExpiresAt:         document.ExpiresAt,
		Verified:          document.Verified,
		Verifier:          document.Verifier,
		VerifiedAt:        document.VerifiedAt,
		PreviousVersionID: document.PreviousVersionID,
	}
}

func toDocumentDTOs(documents []schema.Document) []documentDTO {
	out := make([]documentDTO, 0, len(documents))
	for i := range documents {
		out = append(out, toDocumentDTO(&documents[i]))
	}
	return out
}

type trustStatusDTO struct {
	CredentialType  string     `json:"credential_type"`
	Issuer          string     `json:"issuer"`
	Trusted         bool       `json:"trusted"`
	Known           bool       `json:"known"`
	StatusChangedAt *time.Time `json:"status_changed_at,omitempty"`
}

type consentDTO struct {
	DocumentID  string     `json:"document_id"`
	Requester   string     `json:"requester"`
	RequestType string     `json:"request_type"`
	Status      string     `json:"status"`
	Active      bool       `json:"active"`
	RequestedAt time.Time  `json:"requested_at"`
	GrantedAt   *time.Time `json:"granted_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
}

func toConsentDTOs(consents []schema.ConsentRequest, now time.Time) []consentDTO {
	out := make([]consentDTO, 0, len(consents))
	for i := range consents {
		consent := &consents[i]
		out = append(out, consentDTO{
			DocumentID:  consent.DocumentID,
			Requester:   consent.Requester,
			RequestType: string(consent.RequestType),
			Status:      string(consent.Status),
			Active:      consent.Active(now),
			RequestedAt: consent.RequestedAt,
			GrantedAt:   consent.GrantedAt,
			RevokedAt:   consent.RevokedAt,
			ValidUntil:  consent.ValidUntil,
		})
	}
	return out
}
