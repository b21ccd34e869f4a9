package store

import (
	"context"
	"time"

	"github.com/veridoc/registry-indexer/internal/domain"
	"github.com/veridoc/registry-indexer/internal/reducer"
	"github.com/veridoc/registry-indexer/internal/store/schema"
)

// AuthenticationFilter narrows an authentication history query.
// Zero-valued fields are ignored.
type AuthenticationFilter struct {
	// From is the inclusive lower bound on the attempt timestamp
	From *time.Time
	// To is the exclusive upper bound on the attempt timestamp
	To *time.Time
	// Limit caps the number of returned records (0 means no cap)
	Limit int
}

// Store defines the interface for database operations
type Store interface {
	// GetCheckpoint retrieves the committed cursor for a chain, nil if the
	// chain has never committed a batch
	GetCheckpoint(ctx context.Context, chain domain.Chain) (*schema.Checkpoint, error)
	// CommitBatch atomically writes a changeset and advances the checkpoint.
	// Either all staged writes and the cursor land, or none do.
	CommitBatch(ctx context.Context, chain domain.Chain, checkpoint schema.Checkpoint, cs *reducer.Changeset) error

	// GetIdentity retrieves an identity by DID, nil if absent
	GetIdentity(ctx context.Context, did string) (*schema.Identity, error)
	// GetRoleGrant retrieves the grant row for a (DID, role) pair, nil if absent
	GetRoleGrant(ctx context.Context, did, role string) (*schema.RoleGrant, error)
	// GetCredential retrieves a credential by its on-chain id, nil if absent
	GetCredential(ctx context.Context, id string) (*schema.Credential, error)
	// GetTrustedIssuer retrieves the trust row for a (credential type, issuer)
	// pair, nil if absent
	GetTrustedIssuer(ctx context.Context, credentialType, issuer string) (*schema.TrustedIssuer, error)
	// GetDocument retrieves a document by its on-chain id, nil if absent
	GetDocument(ctx context.Context, id string) (*schema.Document, error)
	// GetIssuer retrieves an issuer by address, nil if absent
	GetIssuer(ctx context.Context, address string) (*schema.Issuer, error)
	// GetHolder retrieves a holder by address, nil if absent
	GetHolder(ctx context.Context, address string) (*schema.Holder, error)
	// GetConsentRequest retrieves the consent row for a (document, requester)
	// pair, nil if absent
	GetConsentRequest(ctx context.Context, documentID, requester string) (*schema.ConsentRequest, error)

	// ListRoleGrants retrieves all grant rows for a DID, granted or not,
	// ordered by role
	ListRoleGrants(ctx context.Context, did string) ([]schema.RoleGrant, error)
	// ListAuthenticationHistory retrieves authentication attempts for a DID,
	// most recent first
	ListAuthenticationHistory(ctx context.Context, did string, filter AuthenticationFilter) ([]schema.AuthenticationRecord, error)
	// ListDocumentsByHolder retrieves all documents held by an address,
	// most recently issued first
	ListDocumentsByHolder(ctx context.Context, holder string) ([]schema.Document, error)
	// ListDocumentVersions walks the version chain backwards from a document id
	ListDocumentVersions(ctx context.Context, id string) ([]schema.Document, error)
	// ListConsentsByDocument retrieves all consent rows for a document
	ListConsentsByDocument(ctx context.Context, documentID string) ([]schema.ConsentRequest, error)

	// UpdateCredentialIssuer backfills the issuer on a credential row
	UpdateCredentialIssuer(ctx context.Context, id, issuer string) error
	// UpdateIdentityController backfills the controller on a placeholder identity
	UpdateIdentityController(ctx context.Context, did, controller string) error
	// UpdateDocumentInfo backfills the type and expiry on a document row
	UpdateDocumentInfo(ctx context.Context, id, documentType string, expiresAt *time.Time) error
}

// compile-time check that the store satisfies the reducer's read interface
var _ reducer.StateReader = Store(nil)
