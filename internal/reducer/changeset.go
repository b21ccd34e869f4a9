package reducer

import (
	"fmt"

	"github.com/veridoc/registry-indexer/internal/domain"
	"github.com/veridoc/registry-indexer/internal/store/schema"
)

// Warning records an event that could not be applied (referential gap,
// malformed transition). Warnings never abort a batch.
type Warning struct {
	Position domain.Position
	Kind     domain.EventKind
	Reason   string
}

// Changeset is the staging area for one batch. Reducers write next-state
// entities here, and later events in the same batch observe staged state
// before falling back to the durable store. The whole changeset is committed
// atomically together with the cursor advance.
type Changeset struct {
	Identities     map[string]*schema.Identity
	RoleGrants     map[string]*schema.RoleGrant
	Credentials    map[string]*schema.Credential
	TrustedIssuers map[string]*schema.TrustedIssuer
	Documents      map[string]*schema.Document
	Issuers        map[string]*schema.Issuer
	Holders        map[string]*schema.Holder
	Consents       map[string]*schema.ConsentRequest

	AuthRecords []*schema.AuthenticationRecord
	Journal     []*schema.EventJournal

	Warnings []Warning
}

// NewChangeset creates an empty changeset
func NewChangeset() *Changeset {
	return &Changeset{
		Identities:     make(map[string]*schema.Identity),
		RoleGrants:     make(map[string]*schema.RoleGrant),
		Credentials:    make(map[string]*schema.Credential),
		TrustedIssuers: make(map[string]*schema.TrustedIssuer),
		Documents:      make(map[string]*schema.Document),
		Issuers:        make(map[string]*schema.Issuer),
		Holders:        make(map[string]*schema.Holder),
		Consents:       make(map[string]*schema.ConsentRequest),
	}
}

// Empty reports whether the changeset stages no writes at all
func (c *Changeset) Empty() bool {
	return len(c.Identities) == 0 &&
		len(c.RoleGrants) == 0 &&
		len(c.Credentials) == 0 &&
		len(c.TrustedIssuers) == 0 &&
		len(c.Documents) == 0 &&
		len(c.Issuers) == 0 &&
		len(c.Holders) == 0 &&
		len(c.Consents) == 0 &&
		len(c.AuthRecords) == 0 &&
		len(c.Journal) == 0
}

// Size returns the number of staged writes
func (c *Changeset) Size() int {
	return len(c.Identities) + len(c.RoleGrants) + len(c.Credentials) +
		len(c.TrustedIssuers) + len(c.Documents) + len(c.Issuers) +
		len(c.Holders) + len(c.Consents) + len(c.AuthRecords) + len(c.Journal)
}

// warn records a skipped event
func (c *Changeset) warn(ev *domain.RegistryEvent, reason string) {
	c.Warnings = append(c.Warnings, Warning{
		Position: ev.Position(),
		Kind:     ev.Kind,
		Reason:   reason,
	})
}

// Composite-key helpers. All keys are derived from event fields only.

func roleGrantKey(did, role string) string {
	return fmt.Sprintf("%s\x00%s", did, role)
}

func trustedIssuerKey(credentialType, issuer string) string {
	return fmt.Sprintf("%s\x00%s", credentialType, issuer)
}

func consentKey(documentID, requester string) string {
	return fmt.Sprintf("%s\x00%s", documentID, requester)
}
