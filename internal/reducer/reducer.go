package reducer

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/veridoc/registry-indexer/internal/domain"
	"github.com/veridoc/registry-indexer/internal/store/schema"
)

// StateReader is the read-only slice of the entity store the reducer
// pipeline loads current state through. Absent entities are returned as
// (nil, nil); errors are transient store failures only.
type StateReader interface {
	GetIdentity(ctx context.Context, did string) (*schema.Identity, error)
	GetRoleGrant(ctx context.Context, did, role string) (*schema.RoleGrant, error)
	GetCredential(ctx context.Context, id string) (*schema.Credential, error)
	GetTrustedIssuer(ctx context.Context, credentialType, issuer string) (*schema.TrustedIssuer, error)
	GetDocument(ctx context.Context, id string) (*schema.Document, error)
	GetIssuer(ctx context.Context, address string) (*schema.Issuer, error)
	GetHolder(ctx context.Context, address string) (*schema.Holder, error)
	GetConsentRequest(ctx context.Context, documentID, requester string) (*schema.ConsentRequest, error)
}

// Applier folds ordered registry events into a Changeset. Each event kind
// has one pure transition function of (current entity, event) → next entity;
// Applier only does the load-stage plumbing around them. Events within a
// batch observe earlier staged state, so applying a batch is equivalent to
// applying its events one at a time.
type Applier struct {
	reader StateReader
}

// NewApplier creates an applier reading current state through reader
func NewApplier(reader StateReader) *Applier {
	return &Applier{reader: reader}
}

// Apply applies one decoded event to the changeset. Referential gaps are
// recorded as warnings on the changeset and skipped; only store read errors
// are returned.
func (a *Applier) Apply(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	switch ev.Kind {
	case domain.EventIdentityRegistered:
		return a.applyIdentityRegistered(ctx, cs, ev)
	case domain.EventIdentityUpdated:
		return a.applyIdentityUpdated(ctx, cs, ev)
	case domain.EventIdentityDeactivated:
		return a.applyIdentityDeactivated(ctx, cs, ev)
	case domain.EventRoleGranted, domain.EventRoleRevoked:
		return a.applyRoleChange(ctx, cs, ev)
	case domain.EventAuthSucceeded, domain.EventAuthFailed:
		return a.applyAuthentication(ctx, cs, ev)
	case domain.EventCredentialIssued:
		return a.applyCredentialIssued(ctx, cs, ev)
	case domain.EventCredentialVerified, domain.EventCredentialVerifyFail:
		return a.applyCredentialVerification(ctx, cs, ev)
	case domain.EventIssuerTrustUpdated:
		return a.applyIssuerTrustUpdated(ctx, cs, ev)
	case domain.EventIssuerRegistered, domain.EventIssuerActivated, domain.EventIssuerDeactivated:
		return a.applyIssuerLifecycle(ctx, cs, ev)
	case domain.EventDocumentRegistered:
		return a.applyDocumentRegistered(ctx, cs, ev)
	case domain.EventDocumentVerified:
		return a.applyDocumentVerified(ctx, cs, ev)
	case domain.EventDocumentUpdated:
		return a.applyDocumentUpdated(ctx, cs, ev)
	case domain.EventShareRequested, domain.EventVerificationRequest:
		return a.applyAccessRequested(ctx, cs, ev)
	case domain.EventConsentGranted:
		return a.applyConsentGranted(ctx, cs, ev)
	case domain.EventConsentRevoked:
		return a.applyConsentRevoked(ctx, cs, ev)
	default:
		cs.warn(ev, "no reducer for event kind")
		return nil
	}
}

// Journal appends the event to the staged journal records
func (a *Applier) Journal(cs *Changeset, ev *domain.RegistryEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event for journal: %w", err)
	}

	cs.Journal = append(cs.Journal, &schema.EventJournal{
		BlockNumber: ev.BlockNumber,
		LogIndex:    ev.LogIndex,
		Kind:        string(ev.Kind),
		TxHash:      ev.TxHash,
		BlockHash:   ev.BlockHash,
		Payload:     datatypes.JSON(payload),
	})
	return nil
}

// loadIdentity reads staged-then-stored identity state
func (a *Applier) loadIdentity(ctx context.Context, cs *Changeset, did string) (*schema.Identity, error) {
	if staged, ok := cs.Identities[did]; ok {
		return staged, nil
	}
	return a.reader.GetIdentity(ctx, did)
}

func (a *Applier) loadRoleGrant(ctx context.Context, cs *Changeset, did, role string) (*schema.RoleGrant, error) {
	if staged, ok := cs.RoleGrants[roleGrantKey(did, role)]; ok {
		return staged, nil
	}
	return a.reader.GetRoleGrant(ctx, did, role)
}

func (a *Applier) loadCredential(ctx context.Context, cs *Changeset, id string) (*schema.Credential, error) {
	if staged, ok := cs.Credentials[id]; ok {
		return staged, nil
	}
	return a.reader.GetCredential(ctx, id)
}

func (a *Applier) loadTrustedIssuer(ctx context.Context, cs *Changeset, credentialType, issuer string) (*schema.TrustedIssuer, error) {
	if staged, ok := cs.TrustedIssuers[trustedIssuerKey(credentialType, issuer)]; ok {
		return staged, nil
	}
	return a.reader.GetTrustedIssuer(ctx, credentialType, issuer)
}

func (a *Applier) loadDocument(ctx context.Context, cs *Changeset, id string) (*schema.Document, error) {
	if staged, ok := cs.Documents[id]; ok {
		return staged, nil
	}
	return a.reader.GetDocument(ctx, id)
}

func (a *Applier) loadIssuer(ctx context.Context, cs *Changeset, address string) (*schema.Issuer, error) {
	if staged, ok := cs.Issuers[address]; ok {
		return staged, nil
	}
	return a.reader.GetIssuer(ctx, address)
}

func (a *Applier) loadHolder(ctx context.Context, cs *Changeset, address string) (*schema.Holder, error) {
	if staged, ok := cs.Holders[address]; ok {
		return staged, nil
	}
	return a.reader.GetHolder(ctx, address)
}

func (a *Applier) loadConsent(ctx context.Context, cs *Changeset, documentID, requester string) (*schema.ConsentRequest, error) {
	if staged, ok := cs.Consents[consentKey(documentID, requester)]; ok {
		return staged, nil
	}
	return a.reader.GetConsentRequest(ctx, documentID, requester)
}

// ensureIdentity stages a placeholder identity for a DID referenced by a
// dependent event before its own registration event arrived. The placeholder
// has the same shape as a registered identity; registration later fills in
// the controller without replacing the row.
func (a *Applier) ensureIdentity(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent, did domain.DID) error {
	cur, err := a.loadIdentity(ctx, cs, did.String())
	if err != nil {
		return err
	}
	if cur != nil {
		return nil
	}

	placeholder := &schema.Identity{
		DID:            did.String(),
		Active:         true,
		LastEventBlock: ev.BlockNumber,
		LastEventTime:  ev.Timestamp,
	}
	if ev.Controller != "" {
		controller := ev.Controller
		placeholder.Controller = &controller
	}
	cs.Identities[did.String()] = placeholder
	return nil
}

// ensureIssuer stages a lazily created issuer participant record
func (a *Applier) ensureIssuer(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent, address string) (*schema.Issuer, error) {
	cur, err := a.loadIssuer(ctx, cs, address)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		return cur, nil
	}

	issuer := &schema.Issuer{
		Address:        address,
		Active:         true,
		LastEventBlock: ev.BlockNumber,
	}
	cs.Issuers[address] = issuer
	return issuer, nil
}

// ensureHolder stages a lazily created holder participant record
func (a *Applier) ensureHolder(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent, address string) error {
	cur, err := a.loadHolder(ctx, cs, address)
	if err != nil {
		return err
	}
	if cur != nil {
		return nil
	}

	cs.Holders[address] = &schema.Holder{
		Address:        address,
		FirstSeenAt:    ev.Timestamp,
		LastEventBlock: ev.BlockNumber,
	}
	return nil
}

func (a *Applier) applyIdentityRegistered(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	cur, err := a.loadIdentity(ctx, cs, ev.DID.String())
	if err != nil {
		return err
	}
	cs.Identities[ev.DID.String()] = ReduceIdentityRegistered(cur, ev)
	return nil
}

func (a *Applier) applyIdentityUpdated(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	cur, err := a.loadIdentity(ctx, cs, ev.DID.String())
	if err != nil {
		return err
	}
	if cur == nil {
		cs.warn(ev, "identity update for unknown DID")
		return nil
	}
	cs.Identities[ev.DID.String()] = ReduceIdentityUpdated(cur, ev)
	return nil
}

func (a *Applier) applyIdentityDeactivated(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	cur, err := a.loadIdentity(ctx, cs, ev.DID.String())
	if err != nil {
		return err
	}
	if cur == nil {
		cs.warn(ev, "identity deactivation for unknown DID")
		return nil
	}
	cs.Identities[ev.DID.String()] = ReduceIdentityDeactivated(cur, ev)
	return nil
}

func (a *Applier) applyRoleChange(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	if err := a.ensureIdentity(ctx, cs, ev, ev.DID); err != nil {
		return err
	}

	cur, err := a.loadRoleGrant(ctx, cs, ev.DID.String(), ev.Role.String())
	if err != nil {
		return err
	}
	cs.RoleGrants[roleGrantKey(ev.DID.String(), ev.Role.String())] = ReduceRoleChange(cur, ev)
	return nil
}

func (a *Applier) applyAuthentication(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	if err := a.ensureIdentity(ctx, cs, ev, ev.DID); err != nil {
		return err
	}

	cs.AuthRecords = append(cs.AuthRecords, &schema.AuthenticationRecord{
		BlockNumber: ev.BlockNumber,
		LogIndex:    ev.LogIndex,
		DID:         ev.DID.String(),
		Role:        ev.Role.String(),
		Succeeded:   ev.Kind == domain.EventAuthSucceeded,
		Timestamp:   ev.Timestamp,
		TxHash:      ev.TxHash,
	})
	return nil
}

func (a *Applier) applyCredentialIssued(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	if err := a.ensureIdentity(ctx, cs, ev, ev.DID); err != nil {
		return err
	}

	cur, err := a.loadCredential(ctx, cs, ev.CredentialID)
	if err != nil {
		return err
	}
	cs.Credentials[ev.CredentialID] = ReduceCredentialIssued(cur, ev)
	return nil
}

func (a *Applier) applyCredentialVerification(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	cur, err := a.loadCredential(ctx, cs, ev.CredentialID)
	if err != nil {
		return err
	}
	if cur == nil {
		cs.warn(ev, "verification for unknown credential")
		return nil
	}
	cs.Credentials[ev.CredentialID] = ReduceCredentialVerification(cur, ev)
	return nil
}

func (a *Applier) applyIssuerTrustUpdated(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	if _, err := a.ensureIssuer(ctx, cs, ev, ev.Issuer); err != nil {
		return err
	}

	cur, err := a.loadTrustedIssuer(ctx, cs, ev.CredentialType, ev.Issuer)
	if err != nil {
		return err
	}
	cs.TrustedIssuers[trustedIssuerKey(ev.CredentialType, ev.Issuer)] = ReduceIssuerTrustUpdated(cur, ev)
	return nil
}

func (a *Applier) applyIssuerLifecycle(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	cur, err := a.loadIssuer(ctx, cs, ev.Issuer)
	if err != nil {
		return err
	}
	cs.Issuers[ev.Issuer] = ReduceIssuerLifecycle(cur, ev)
	return nil
}

func (a *Applier) applyDocumentRegistered(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	if _, err := a.ensureIssuer(ctx, cs, ev, ev.Issuer); err != nil {
		return err
	}
	if err := a.ensureHolder(ctx, cs, ev, ev.Holder); err != nil {
		return err
	}

	cur, err := a.loadDocument(ctx, cs, ev.DocumentID)
	if err != nil {
		return err
	}
	cs.Documents[ev.DocumentID] = ReduceDocumentRegistered(cur, ev)
	return nil
}

func (a *Applier) applyDocumentVerified(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	cur, err := a.loadDocument(ctx, cs, ev.DocumentID)
	if err != nil {
		return err
	}
	if cur == nil {
		// Verifying a document that was never registered is not a valid
		// transition; no entity is created.
		cs.warn(ev, "verification for unknown document")
		return nil
	}
	cs.Documents[ev.DocumentID] = ReduceDocumentVerified(cur, ev)
	return nil
}

func (a *Applier) applyDocumentUpdated(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	if _, err := a.ensureIssuer(ctx, cs, ev, ev.Issuer); err != nil {
		return err
	}

	previous, err := a.loadDocument(ctx, cs, ev.PreviousDocumentID)
	if err != nil {
		return err
	}
	if previous == nil {
		cs.warn(ev, "document update references unknown previous version")
	}

	cur, err := a.loadDocument(ctx, cs, ev.DocumentID)
	if err != nil {
		return err
	}
	next := ReduceDocumentUpdated(cur, previous, ev)
	cs.Documents[ev.DocumentID] = next

	if next.Holder != "" {
		if err := a.ensureHolder(ctx, cs, ev, next.Holder); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) applyAccessRequested(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	requester := ev.Requester
	if ev.Kind == domain.EventVerificationRequest {
		requester = ev.Holder
	}

	cur, err := a.loadConsent(ctx, cs, ev.DocumentID, requester)
	if err != nil {
		return err
	}
	cs.Consents[consentKey(ev.DocumentID, requester)] = ReduceAccessRequested(cur, ev, requester)
	return nil
}

func (a *Applier) applyConsentGranted(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	cur, err := a.loadConsent(ctx, cs, ev.DocumentID, ev.Requester)
	if err != nil {
		return err
	}
	cs.Consents[consentKey(ev.DocumentID, ev.Requester)] = ReduceConsentGranted(cur, ev)
	return nil
}

func (a *Applier) applyConsentRevoked(ctx context.Context, cs *Changeset, ev *domain.RegistryEvent) error {
	cur, err := a.loadConsent(ctx, cs, ev.DocumentID, ev.Requester)
	if err != nil {
		return err
	}
	if cur == nil {
		cs.warn(ev, "consent revocation for unknown request")
		return nil
	}
	cs.Consents[consentKey(ev.DocumentID, ev.Requester)] = ReduceConsentRevoked(cur, ev)
	return nil
}
