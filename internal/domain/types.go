package domain

import (
	"fmt"
	"time"
)

// Chain represents the blockchain network identifier using CAIP-2 format
type Chain string

const (
	ChainEthereumMainnet Chain = "eip155:1"
	ChainEthereumSepolia Chain = "eip155:11155111"
)

// IsValidChain checks if a chain is valid
func IsValidChain(chain Chain) bool {
	return chain == ChainEthereumMainnet || chain == ChainEthereumSepolia
}

// EventKind identifies one of the registry contract's event types
type EventKind string

const (
	EventIdentityRegistered   EventKind = "identity_registered"
	EventIdentityUpdated      EventKind = "identity_updated"
	EventIdentityDeactivated  EventKind = "identity_deactivated"
	EventRoleGranted          EventKind = "role_granted"
	EventRoleRevoked          EventKind = "role_revoked"
	EventAuthSucceeded        EventKind = "authentication_succeeded"
	EventAuthFailed           EventKind = "authentication_failed"
	EventCredentialIssued     EventKind = "credential_issued"
	EventCredentialVerified   EventKind = "credential_verified"
	EventCredentialVerifyFail EventKind = "credential_verification_failed"
	EventIssuerTrustUpdated   EventKind = "issuer_trust_status_updated"
	EventIssuerRegistered     EventKind = "issuer_registered"
	EventIssuerActivated      EventKind = "issuer_activated"
	EventIssuerDeactivated    EventKind = "issuer_deactivated"
	EventDocumentRegistered   EventKind = "document_registered"
	EventDocumentVerified     EventKind = "document_verified"
	EventDocumentUpdated      EventKind = "document_updated"
	EventShareRequested       EventKind = "share_requested"
	EventConsentGranted       EventKind = "consent_granted"
	EventConsentRevoked       EventKind = "consent_revoked"
	EventVerificationRequest  EventKind = "verification_requested"
)

// Position is the total ordering key for registry events: block number
// first, log index within the block as the only tie-break.
type Position struct {
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint   `json:"log_index"`
}

// Before reports whether p was emitted strictly before other
func (p Position) Before(other Position) bool {
	if p.BlockNumber != other.BlockNumber {
		return p.BlockNumber < other.BlockNumber
	}
	return p.LogIndex < other.LogIndex
}

// After reports whether p was emitted strictly after other
func (p Position) After(other Position) bool {
	return other.Before(p)
}

func (p Position) String() string {
	return fmt.Sprintf("%d/%d", p.BlockNumber, p.LogIndex)
}

// RegistryEvent is a decoded registry contract event in normalized form.
// Kind selects the variant; only the fields that event type defines are set.
// The provenance fields (contract, block, tx, log index, removed) are common
// to every variant.
type RegistryEvent struct {
	Kind            EventKind `json:"kind"`
	Chain           Chain     `json:"chain"`
	ContractAddress string    `json:"contract_address"`
	TxHash          string    `json:"tx_hash"`
	BlockNumber     uint64    `json:"block_number"`
	BlockHash       string    `json:"block_hash"`
	LogIndex        uint      `json:"log_index"`
	Removed         bool      `json:"removed"`
	Timestamp       time.Time `json:"timestamp"`

	DID                DID        `json:"did,omitempty"`
	Controller         string     `json:"controller,omitempty"`
	Role               Role       `json:"role,omitempty"`
	CredentialType     string     `json:"credential_type,omitempty"`
	CredentialID       string     `json:"credential_id,omitempty"`
	Issuer             string     `json:"issuer,omitempty"`
	Holder             string     `json:"holder,omitempty"`
	Requester          string     `json:"requester,omitempty"`
	Verifier           string     `json:"verifier,omitempty"`
	DocumentID         string     `json:"document_id,omitempty"`
	PreviousDocumentID string     `json:"previous_document_id,omitempty"`
	Trusted            *bool      `json:"trusted,omitempty"`
	ValidUntil         *time.Time `json:"valid_until,omitempty"`
}

// Position returns the event's ordering key
func (e *RegistryEvent) Position() Position {
	return Position{BlockNumber: e.BlockNumber, LogIndex: e.LogIndex}
}

// Valid checks that the fields required by the event's kind are present
func (e *RegistryEvent) Valid() bool {
	if e.TxHash == "" || e.BlockHash == "" {
		return false
	}

	switch e.Kind {
	case EventIdentityRegistered:
		return e.DID != "" && e.Controller != ""
	case EventIdentityUpdated, EventIdentityDeactivated:
		return e.DID != ""
	case EventRoleGranted, EventRoleRevoked, EventAuthSucceeded, EventAuthFailed:
		return e.DID != "" && e.Role != ""
	case EventCredentialIssued, EventCredentialVerified, EventCredentialVerifyFail:
		return e.DID != "" && e.CredentialType != "" && e.CredentialID != ""
	case EventIssuerTrustUpdated:
		return e.CredentialType != "" && e.Issuer != "" && e.Trusted != nil
	case EventIssuerRegistered, EventIssuerActivated, EventIssuerDeactivated:
		return e.Issuer != ""
	case EventDocumentRegistered:
		return e.DocumentID != "" && e.Issuer != "" && e.Holder != ""
	case EventDocumentVerified:
		return e.DocumentID != "" && e.Verifier != ""
	case EventDocumentUpdated:
		return e.DocumentID != "" && e.PreviousDocumentID != "" && e.Issuer != ""
	case EventShareRequested, EventConsentGranted, EventConsentRevoked:
		return e.DocumentID != "" && e.Requester != ""
	case EventVerificationRequest:
		return e.DocumentID != "" && e.Holder != ""
	default:
		return false
	}
}
