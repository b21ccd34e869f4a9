package reducer

import (
	"github.com/veridoc/registry-indexer/internal/domain"
	"github.com/veridoc/registry-indexer/internal/store/schema"
)

// The transition functions below are pure: (current entity, event) in, next
// entity out. They never read the store and never mutate their input, which
// keeps them directly testable and makes replay behavior a function of event
// order alone.

// ReduceIdentityRegistered creates the identity row, or fills in the fields a
// placeholder row was created without. It never overwrites a controller that
// is already known.
func ReduceIdentityRegistered(cur *schema.Identity, ev *domain.RegistryEvent) *schema.Identity {
	if cur == nil {
		controller := ev.Controller
		registeredAt := ev.Timestamp
		return &schema.Identity{
			DID:            ev.DID.String(),
			Controller:     &controller,
			Active:         true,
			RegisteredAt:   &registeredAt,
			LastEventBlock: ev.BlockNumber,
			LastEventTime:  ev.Timestamp,
		}
	}

	next := *cur
	if next.Controller == nil && ev.Controller != "" {
		controller := ev.Controller
		next.Controller = &controller
	}
	if next.RegisteredAt == nil {
		registeredAt := ev.Timestamp
		next.RegisteredAt = &registeredAt
	}
	next.LastEventBlock = ev.BlockNumber
	next.LastEventTime = ev.Timestamp
	return &next
}

// ReduceIdentityUpdated applies a controller change to an existing identity
func ReduceIdentityUpdated(cur *schema.Identity, ev *domain.RegistryEvent) *schema.Identity {
	next := *cur
	if ev.Controller != "" {
		controller := ev.Controller
		next.Controller = &controller
	}
	next.LastEventBlock = ev.BlockNumber
	next.LastEventTime = ev.Timestamp
	return &next
}

// ReduceIdentityDeactivated marks the identity inactive. The row is kept;
// deactivation is a state transition, not a deletion.
func ReduceIdentityDeactivated(cur *schema.Identity, ev *domain.RegistryEvent) *schema.Identity {
	next := *cur
	deactivatedAt := ev.Timestamp
	next.Active = false
	next.DeactivatedAt = &deactivatedAt
	next.LastEventBlock = ev.BlockNumber
	next.LastEventTime = ev.Timestamp
	return &next
}

// ReduceRoleChange folds a grant or revoke into the (DID, role) row. A grant
// after a revoke clears RevokedAt so the row reads as currently held again.
func ReduceRoleChange(cur *schema.RoleGrant, ev *domain.RegistryEvent) *schema.RoleGrant {
	var next schema.RoleGrant
	if cur != nil {
		next = *cur
	} else {
		next = schema.RoleGrant{
			DID:  ev.DID.String(),
			Role: ev.Role.String(),
		}
	}

	at := ev.Timestamp
	if ev.Kind == domain.EventRoleGranted {
		next.Granted = true
		next.GrantedAt = &at
		next.RevokedAt = nil
	} else {
		next.Granted = false
		next.RevokedAt = &at
	}
	next.LastEventBlock = ev.BlockNumber
	return &next
}

// ReduceCredentialIssued creates the credential row. A repeated issuance for
// the same id refreshes the issuance fields but keeps verification state.
func ReduceCredentialIssued(cur *schema.Credential, ev *domain.RegistryEvent) *schema.Credential {
	var next schema.Credential
	if cur != nil {
		next = *cur
	}
	next.ID = ev.CredentialID
	next.CredentialType = ev.CredentialType
	next.SubjectDID = ev.DID.String()
	next.IssuedAt = ev.Timestamp
	next.LastEventBlock = ev.BlockNumber
	return &next
}

// ReduceCredentialVerification records the outcome of a verification attempt
// on an existing credential. A failure does not clear an earlier success; the
// timestamps keep both outcomes visible.
func ReduceCredentialVerification(cur *schema.Credential, ev *domain.RegistryEvent) *schema.Credential {
	next := *cur
	at := ev.Timestamp
	if ev.Kind == domain.EventCredentialVerified {
		next.Verified = true
		next.VerifiedAt = &at
	} else {
		next.Verified = false
		next.VerificationFailedAt = &at
	}
	next.LastEventBlock = ev.BlockNumber
	return &next
}

// ReduceIssuerTrustUpdated applies a trust-status change for a (credential
// type, issuer) pair, last writer wins in event order.
func ReduceIssuerTrustUpdated(cur *schema.TrustedIssuer, ev *domain.RegistryEvent) *schema.TrustedIssuer {
	var next schema.TrustedIssuer
	if cur != nil {
		next = *cur
	} else {
		next = schema.TrustedIssuer{
			CredentialType: ev.CredentialType,
			Issuer:         ev.Issuer,
		}
	}
	next.Trusted = *ev.Trusted
	next.StatusChangedAt = ev.Timestamp
	next.LastEventBlock = ev.BlockNumber
	return &next
}

// ReduceIssuerLifecycle folds issuer registration and activation changes
func ReduceIssuerLifecycle(cur *schema.Issuer, ev *domain.RegistryEvent) *schema.Issuer {
	var next schema.Issuer
	if cur != nil {
		next = *cur
	} else {
		next = schema.Issuer{Address: ev.Issuer}
	}

	at := ev.Timestamp
	switch ev.Kind {
	case domain.EventIssuerRegistered:
		next.Active = true
		if next.RegisteredAt == nil {
			next.RegisteredAt = &at
		}
	case domain.EventIssuerActivated:
		next.Active = true
		next.StatusChangedAt = &at
	case domain.EventIssuerDeactivated:
		next.Active = false
		next.StatusChangedAt = &at
	}
	next.LastEventBlock = ev.BlockNumber
	return &next
}

// ReduceDocumentRegistered creates the document row. Registering an id that
// already exists refreshes the issuance fields but keeps verification state
// and any version link.
func ReduceDocumentRegistered(cur *schema.Document, ev *domain.RegistryEvent) *schema.Document {
	var next schema.Document
	if cur != nil {
		next = *cur
	}
	next.ID = ev.DocumentID
	next.Issuer = ev.Issuer
	next.Holder = ev.Holder
	next.IssuedAt = ev.Timestamp
	if ev.ValidUntil != nil {
		validUntil := *ev.ValidUntil
		next.ExpiresAt = &validUntil
	}
	next.LastEventBlock = ev.BlockNumber
	return &next
}

// ReduceDocumentVerified marks an existing document verified
func ReduceDocumentVerified(cur *schema.Document, ev *domain.RegistryEvent) *schema.Document {
	next := *cur
	verifier := ev.Verifier
	at := ev.Timestamp
	next.Verified = true
	next.Verifier = &verifier
	next.VerifiedAt = &at
	next.LastEventBlock = ev.BlockNumber
	return &next
}

// ReduceDocumentUpdated registers the new document version. The previous
// version's row is left untouched; the new row points back at it through
// PreviousVersionID. The holder carries over from the previous version when
// it is known, since update events do not repeat it.
func ReduceDocumentUpdated(cur, previous *schema.Document, ev *domain.RegistryEvent) *schema.Document {
	var next schema.Document
	if cur != nil {
		next = *cur
	}
	next.ID = ev.DocumentID
	next.Issuer = ev.Issuer
	next.IssuedAt = ev.Timestamp
	previousID := ev.PreviousDocumentID
	next.PreviousVersionID = &previousID
	if previous != nil {
		next.Holder = previous.Holder
		if next.DocumentType == nil {
			next.DocumentType = previous.DocumentType
		}
	}
	if ev.Holder != "" {
		next.Holder = ev.Holder
	}
	next.LastEventBlock = ev.BlockNumber
	return &next
}

// ReduceAccessRequested starts (or restarts) a consent cycle for the
// (document, requester) pair. A new request over a previously granted or
// revoked consent resets the row to pending.
func ReduceAccessRequested(cur *schema.ConsentRequest, ev *domain.RegistryEvent, requester string) *schema.ConsentRequest {
	var next schema.ConsentRequest
	if cur != nil {
		next = *cur
	} else {
		next = schema.ConsentRequest{
			DocumentID: ev.DocumentID,
			Requester:  requester,
		}
	}

	next.RequestType = schema.ConsentRequestShare
	if ev.Kind == domain.EventVerificationRequest {
		next.RequestType = schema.ConsentRequestVerification
	}
	next.Status = schema.ConsentStatusPending
	next.RequestedAt = ev.Timestamp
	next.GrantedAt = nil
	next.RevokedAt = nil
	next.ValidUntil = nil
	next.LastEventBlock = ev.BlockNumber
	return &next
}

// ReduceConsentGranted marks the consent granted. A grant without a prior
// request event still creates the row; the request may predate the indexing
// window.
func ReduceConsentGranted(cur *schema.ConsentRequest, ev *domain.RegistryEvent) *schema.ConsentRequest {
	var next schema.ConsentRequest
	if cur != nil {
		next = *cur
	} else {
		next = schema.ConsentRequest{
			DocumentID:  ev.DocumentID,
			Requester:   ev.Requester,
			RequestType: schema.ConsentRequestShare,
			RequestedAt: ev.Timestamp,
		}
	}

	at := ev.Timestamp
	next.Status = schema.ConsentStatusGranted
	next.GrantedAt = &at
	next.RevokedAt = nil
	if ev.ValidUntil != nil {
		validUntil := *ev.ValidUntil
		next.ValidUntil = &validUntil
	}
	next.LastEventBlock = ev.BlockNumber
	return &next
}

// ReduceConsentRevoked records the revocation of an existing consent
func ReduceConsentRevoked(cur *schema.ConsentRequest, ev *domain.RegistryEvent) *schema.ConsentRequest {
	next := *cur
	at := ev.Timestamp
	next.RevokedAt = &at
	next.LastEventBlock = ev.BlockNumber
	return &next
}
