package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/veridoc/registry-indexer/internal/domain"
	"github.com/veridoc/registry-indexer/internal/reducer"
	"github.com/veridoc/registry-indexer/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Migrate creates or updates the indexer tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.Checkpoint{},
		&schema.Identity{},
		&schema.RoleGrant{},
		&schema.AuthenticationRecord{},
		&schema.Credential{},
		&schema.TrustedIssuer{},
		&schema.Document{},
		&schema.Issuer{},
		&schema.Holder{},
		&schema.ConsentRequest{},
		&schema.EventJournal{},
	)
}

// GetCheckpoint retrieves the committed cursor for a chain
func (s *pgStore) GetCheckpoint(ctx context.Context, chain domain.Chain) (*schema.Checkpoint, error) {
	var checkpoint schema.Checkpoint
	err := s.db.WithContext(ctx).Where("chain = ?", string(chain)).First(&checkpoint).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// CommitBatch atomically writes a changeset and advances the checkpoint
func (s *pgStore) CommitBatch(ctx context.Context, chain domain.Chain, checkpoint schema.Checkpoint, cs *reducer.Changeset) error {
	checkpoint.Chain = string(chain)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current schema.Checkpoint
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("chain = ?", string(chain)).
			First(&current).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to lock checkpoint: %w", err)
		}
		if err == nil {
			committed := domain.Position{BlockNumber: current.BlockNumber, LogIndex: current.LogIndex}
			next := domain.Position{BlockNumber: checkpoint.BlockNumber, LogIndex: checkpoint.LogIndex}
			if next.Before(committed) {
				return fmt.Errorf("%w: batch ends at %s but checkpoint is at %s",
					domain.ErrCheckpointInconsistent, next, committed)
			}
		}

		if len(cs.Identities) > 0 {
			identities := make([]*schema.Identity, 0, len(cs.Identities))
			for _, identity := range cs.Identities {
				identities = append(identities, identity)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "did"}},
				UpdateAll: true,
			}).Create(identities).Error; err != nil {
				return fmt.Errorf("failed to upsert identities: %w", err)
			}
		}

		if len(cs.RoleGrants) > 0 {
			grants := make([]*schema.RoleGrant, 0, len(cs.RoleGrants))
			for _, grant := range cs.RoleGrants {
				grants = append(grants, grant)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "did"}, {Name: "role"}},
				UpdateAll: true,
			}).Create(grants).Error; err != nil {
				return fmt.Errorf("failed to upsert role grants: %w", err)
			}
		}

		if len(cs.Credentials) > 0 {
			credentials := make([]*schema.Credential, 0, len(cs.Credentials))
			for _, credential := range cs.Credentials {
				credentials = append(credentials, credential)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(credentials).Error; err != nil {
				return fmt.Errorf("failed to upsert credentials: %w", err)
			}
		}

		if len(cs.TrustedIssuers) > 0 {
			trusted := make([]*schema.TrustedIssuer, 0, len(cs.TrustedIssuers))
			for _, row := range cs.TrustedIssuers {
				trusted = append(trusted, row)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "credential_type"}, {Name: "issuer"}},
				UpdateAll: true,
			}).Create(trusted).Error; err != nil {
				return fmt.Errorf("failed to upsert trusted issuers: %w", err)
			}
		}

		if len(cs.Documents) > 0 {
			documents := make([]*schema.Document, 0, len(cs.Documents))
			for _, document := range cs.Documents {
				documents = append(documents, document)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(documents).Error; err != nil {
				return fmt.Errorf("failed to upsert documents: %w", err)
			}
		}

		if len(cs.Issuers) > 0 {
			issuers := make([]*schema.Issuer, 0, len(cs.Issuers))
			for _, issuer := range cs.Issuers {
				issuers = append(issuers, issuer)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "address"}},
				UpdateAll: true,
			}).Create(issuers).Error; err != nil {
				return fmt.Errorf("failed to upsert issuers: %w", err)
			}
		}

		if len(cs.Holders) > 0 {
			holders := make([]*schema.Holder, 0, len(cs.Holders))
			for _, holder := range cs.Holders {
				holders = append(holders, holder)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "address"}},
				DoNothing: true,
			}).Create(holders).Error; err != nil {
				return fmt.Errorf("failed to upsert holders: %w", err)
			}
		}

		if len(cs.Consents) > 0 {
			consents := make([]*schema.ConsentRequest, 0, len(cs.Consents))
			for _, consent := range cs.Consents {
				consents = append(consents, consent)
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "document_id"}, {Name: "requester"}},
				UpdateAll: true,
			}).Create(consents).Error; err != nil {
				return fmt.Errorf("failed to upsert consent requests: %w", err)
			}
		}

		// append-only tables conflict only when a batch is redelivered,
		// in which case the existing rows are already correct
		if len(cs.AuthRecords) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "block_number"}, {Name: "log_index"}},
				DoNothing: true,
			}).Create(cs.AuthRecords).Error; err != nil {
				return fmt.Errorf("failed to insert authentication records: %w", err)
			}
		}
		if len(cs.Journal) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "block_number"}, {Name: "log_index"}},
				DoNothing: true,
			}).Create(cs.Journal).Error; err != nil {
				return fmt.Errorf("failed to insert journal records: %w", err)
			}
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chain"}},
			UpdateAll: true,
		}).Create(&checkpoint).Error; err != nil {
			return fmt.Errorf("failed to advance checkpoint: %w", err)
		}

		return nil
	})
}

// GetIdentity retrieves an identity by DID
func (s *pgStore) GetIdentity(ctx context.Context, did string) (*schema.Identity, error) {
	var identity schema.Identity
	err := s.db.WithContext(ctx).Where("did = ?", did).First(&identity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &identity, nil
}

// GetRoleGrant retrieves the grant row for a (DID, role) pair
func (s *pgStore) GetRoleGrant(ctx context.Context, did, role string) (*schema.RoleGrant, error) {
	var grant schema.RoleGrant
	err := s.db.WithContext(ctx).Where("did = ? AND role = ?", did, role).First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get role grant: %w", err)
	}
	return &grant, nil
}

// GetCredential retrieves a credential by its on-chain id
func (s *pgStore) GetCredential(ctx context.Context, id string) (*schema.Credential, error) {
	var credential schema.Credential
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&credential).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &credential, nil
}

// GetTrustedIssuer retrieves the trust row for a (credential type, issuer) pair
func (s *pgStore) GetTrustedIssuer(ctx context.Context, credentialType, issuer string) (*schema.TrustedIssuer, error) {
	var row schema.TrustedIssuer
	err := s.db.WithContext(ctx).
		Where("credential_type = ? AND issuer = ?", credentialType, issuer).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get trusted issuer: %w", err)
	}
	return &row, nil
}

// GetDocument retrieves a document by its on-chain id
func (s *pgStore) GetDocument(ctx context.Context, id string) (*schema.Document, error) {
	var document schema.Document
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&document).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &document, nil
}

// GetIssuer retrieves an issuer by address
func (s *pgStore) GetIssuer(ctx context.Context, address string) (*schema.Issuer, error) {
	var issuer schema.Issuer
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&issuer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get issuer: %w", err)
	}
	return &issuer, nil
}

// GetHolder retrieves a holder by address
func (s *pgStore) GetHolder(ctx context.Context, address string) (*schema.Holder, error) {
	var holder schema.Holder
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&holder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get holder: %w", err)
	}
	return &holder, nil
}

// GetConsentRequest retrieves the consent row for a (document, requester) pair
func (s *pgStore) GetConsentRequest(ctx context.Context, documentID, requester string) (*schema.ConsentRequest, error) {
	var consent schema.ConsentRequest
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND requester = ?", documentID, requester).
		First(&consent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get consent request: %w", err)
	}
	return &consent, nil
}

// ListRoleGrants retrieves all grant rows for a DID
func (s *pgStore) ListRoleGrants(ctx context.Context, did string) ([]schema.RoleGrant, error) {
	var grants []schema.RoleGrant
	err := s.db.WithContext(ctx).
		Where("did = ?", did).
		Order("role ASC").
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list role grants: %w", err)
	}
	return grants, nil
}

// ListAuthenticationHistory retrieves authentication attempts for a DID,
// most recent first
func (s *pgStore) ListAuthenticationHistory(ctx context.Context, did string, filter AuthenticationFilter) ([]schema.AuthenticationRecord, error) {
	query := s.db.WithContext(ctx).Where("did = ?", did)
	if filter.From != nil {
		query = query.Where("timestamp >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("timestamp < ?", *filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var records []schema.AuthenticationRecord
	err := query.
		Order("block_number DESC, log_index DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list authentication history: %w", err)
	}
	return records, nil
}

// ListDocumentsByHolder retrieves all documents held by an address
func (s *pgStore) ListDocumentsByHolder(ctx context.Context, holder string) ([]schema.Document, error) {
	var documents []schema.Document
	err := s.db.WithContext(ctx).
		Where("holder = ?", holder).
		Order("issued_at DESC, id ASC").
		Find(&documents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents by holder: %w", err)
	}
	return documents, nil
}

// ListDocumentVersions walks the version chain backwards from a document id.
// The head document comes first. The walk stops on a missing link, so a chain
// whose tail predates the indexing window returns the known suffix.
func (s *pgStore) ListDocumentVersions(ctx context.Context, id string) ([]schema.Document, error) {
	var versions []schema.Document
	seen := make(map[string]bool)

	for id != "" && !seen[id] {
		seen[id] = true
		document, err := s.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		if document == nil {
			break
		}
		versions = append(versions, *document)
		if document.PreviousVersionID == nil {
			break
		}
		id = *document.PreviousVersionID
	}

	return versions, nil
}

// ListConsentsByDocument retrieves all consent rows for a document
func (s *pgStore) ListConsentsByDocument(ctx context.Context, documentID string) ([]schema.ConsentRequest, error) {
	var consents []schema.ConsentRequest
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("requested_at DESC, requester ASC").
		Find(&consents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	return consents, nil
}

// UpdateCredentialIssuer backfills the issuer on a credential row
func (s *pgStore) UpdateCredentialIssuer(ctx context.Context, id, issuer string) error {
	err := s.db.WithContext(ctx).
		Model(&schema.Credential{}).
		Where("id = ? AND issuer IS NULL", id).
		Update("issuer", issuer).Error
	if err != nil {
		return fmt.Errorf("failed to update credential issuer: %w", err)
	}
	return nil
}

// UpdateIdentityController backfills the controller on a placeholder identity
func (s *pgStore) UpdateIdentityController(ctx context.Context, did, controller string) error {
	err := s.db.WithContext(ctx).
		Model(&schema.Identity{}).
		Where("did = ? AND controller IS NULL", did).
		Update("controller", controller).Error
	if err != nil {
		return fmt.Errorf("failed to update identity controller: %w", err)
	}
	return nil
}

// UpdateDocumentInfo backfills the type and expiry on a document row
func (s *pgStore) UpdateDocumentInfo(ctx context.Context, id, documentType string, expiresAt *time.Time) error {
	updates := map[string]interface{}{"document_type": documentType}
	if expiresAt != nil {
		updates["expires_at"] = *expiresAt
	}
	err := s.db.WithContext(ctx).
		Model(&schema.Document{}).
		Where("id = ? AND document_type IS NULL", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update document info: %w", err)
	}
	return nil
}
