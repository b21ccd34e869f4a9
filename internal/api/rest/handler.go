package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/veridoc/registry-indexer/internal/adapter"
	"github.com/veridoc/registry-indexer/internal/domain"
	"github.com/veridoc/registry-indexer/internal/store"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)

	// GetStatus returns the committed checkpoint for the configured chain
	// GET /api/v1/status
	GetStatus(c *gin.Context)

	// GetIdentity retrieves an identity by DID
	// GET /api/v1/identities/:did
	GetIdentity(c *gin.Context)

	// GetActiveRoles lists the roles an identity currently holds
	// GET /api/v1/identities/:did/roles
	GetActiveRoles(c *gin.Context)

	// GetAuthenticationHistory lists an identity's authentication attempts
	// GET /api/v1/identities/:did/authentications?from=<rfc3339>&to=<rfc3339>&limit=<n>
	GetAuthenticationHistory(c *gin.Context)

	// GetCredential retrieves a credential by its on-chain id
	// GET /api/v1/credentials/:id
	GetCredential(c *gin.Context)

	// GetDocument retrieves a document by its on-chain id
	// GET /api/v1/documents/:id
	GetDocument(c *gin.Context)

	// GetDocumentVersions walks a document's version chain, newest first
	// GET /api/v1/documents/:id/versions
	GetDocumentVersions(c *gin.Context)

	// GetDocumentConsents lists consent requests for a document
	// GET /api/v1/documents/:id/consents
	GetDocumentConsents(c *gin.Context)

	// ListDocumentsByHolder lists documents held by an address
	// GET /api/v1/holders/:address/documents
	ListDocumentsByHolder(c *gin.Context)

	// GetTrustStatus reports whether an issuer is trusted for a credential type
	// GET /api/v1/trust-status?credential_type=<type>&issuer=<address>
	GetTrustStatus(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	store store.Store
	chain domain.Chain
	clock adapter.Clock
}

// NewHandler creates a new REST API handler
func NewHandler(st store.Store, chain domain.Chain, clock adapter.Clock) Handler {
	return &handler{store: st, chain: chain, clock: clock}
}

// asOfBlock resolves the committed checkpoint height for response envelopes.
// A store error degrades to 0 rather than failing the read.
func (h *handler) asOfBlock(c *gin.Context) uint64 {
	checkpoint, err := h.store.GetCheckpoint(c.Request.Context(), h.chain)
	if err != nil || checkpoint == nil {
		return 0
	}
	return checkpoint.BlockNumber
}

func (h *handler) respond(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{Data: data, AsOfBlock: h.asOfBlock(c)})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStatus returns the committed checkpoint for the configured chain
func (h *handler) GetStatus(c *gin.Context) {
	checkpoint, err := h.store.GetCheckpoint(c.Request.Context(), h.chain)
	if err != nil {
		respondInternalError(c, err, "Failed to load checkpoint")
		return
	}

	status := statusResponse{Chain: string(h.chain)}
	if checkpoint != nil {
		status.BlockNumber = checkpoint.BlockNumber
		status.LogIndex = checkpoint.LogIndex
		status.BlockHash = checkpoint.BlockHash
		updatedAt := checkpoint.UpdatedAt
		status.UpdatedAt = &updatedAt
	}
	c.JSON(http.StatusOK, status)
}

// GetIdentity retrieves an identity by DID
func (h *handler) GetIdentity(c *gin.Context) {
	did := c.Param("did")
	if did == "" {
		respondBadRequest(c, "DID is required")
		return
	}

	identity, err := h.store.GetIdentity(c.Request.Context(), did)
	if err != nil {
		respondInternalError(c, err, "Failed to get identity", zap.String("did", did))
		return
	}
	if identity == nil {
		respondNotFound(c, "Identity not found")
		return
	}

	h.respond(c, toIdentityDTO(identity))
}

// GetActiveRoles lists the roles an identity currently holds
func (h *handler) GetActiveRoles(c *gin.Context) {
	did := c.Param("did")
	if did == "" {
		respondBadRequest(c, "DID is required")
		return
	}

	grants, err := h.store.ListRoleGrants(c.Request.Context(), did)
	if err != nil {
		respondInternalError(c, err, "Failed to list roles", zap.String("did", did))
		return
	}

	h.respond(c, toActiveRoleDTOs(grants))
}

// GetAuthenticationHistory lists an identity's authentication attempts
func (h *handler) GetAuthenticationHistory(c *gin.Context) {
	did := c.Param("did")
	if did == "" {
		respondBadRequest(c, "DID is required")
		return
	}

	var filter store.AuthenticationFilter
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondBadRequest(c, "Invalid 'from' timestamp", err.Error())
			return
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondBadRequest(c, "Invalid 'to' timestamp", err.Error())
			return
		}
		filter.To = &to
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondBadRequest(c, "Invalid 'limit'")
			return
		}
		filter.Limit = limit
	}

	records, err := h.store.ListAuthenticationHistory(c.Request.Context(), did, filter)
	if err != nil {
		respondInternalError(c, err, "Failed to list authentication history", zap.String("did", did))
		return
	}

	h.respond(c, toAuthenticationDTOs(records))
}

// GetCredential retrieves a credential by its on-chain id
func (h *handler) GetCredential(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondBadRequest(c, "Credential id is required")
		return
	}

	credential, err := h.store.GetCredential(c.Request.Context(), id)
	if err != nil {
		respondInternalError(c, err, "Failed to get credential", zap.String("id", id))
		return
	}
	if credential == nil {
		respondNotFound(c, "Credential not found")
		return
	}

	h.respond(c, toCredentialDTO(credential))
}

// GetDocument retrieves a document by its on-chain id
func (h *handler) GetDocument(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondBadRequest(c, "Document id is required")
		return
	}

	document, err := h.store.GetDocument(c.Request.Context(), id)
	if err != nil {
		respondInternalError(c, err, "Failed to get document", zap.String("id", id))
		return
	}
	if document == nil {
		respondNotFound(c, "Document not found")
		return
	}

	h.respond(c, toDocumentDTO(document))
}

// GetDocumentVersions walks a document's version chain, newest first
func (h *handler) GetDocumentVersions(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondBadRequest(c, "Document id is required")
		return
	}

	versions, err := h.store.ListDocumentVersions(c.Request.Context(), id)
	if err != nil {
		respondInternalError(c, err, "Failed to list document versions", zap.String("id", id))
		return
	}
	if len(versions) == 0 {
		respondNotFound(c, "Document not found")
		return
	}

	h.respond(c, toDocumentDTOs(versions))
}

// GetDocumentConsents lists consent requests for a document
func (h *handler) GetDocumentConsents(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondBadRequest(c, "Document id is required")
		return
	}

	consents, err := h.store.ListConsentsByDocument(c.Request.Context(), id)
	if err != nil {
		respondInternalError(c, err, "Failed to list consents", zap.String("id", id))
		return
	}

	h.respond(c, toConsentDTOs(consents, h.clock.Now()))
}

// ListDocumentsByHolder lists documents held by an address
func (h *handler) ListDocumentsByHolder(c *gin.Context) {
	address := c.Param("address")
	if address == "" {
		respondBadRequest(c, "Holder address is required")
		return
	}

	documents, err := h.store.ListDocumentsByHolder(c.Request.Context(), domain.NormalizeAddress(address))
	if err != nil {
		respondInternalError(c, err, "Failed to list documents", zap.String("holder", address))
		return
	}

	h.respond(c, toDocumentDTOs(documents))
}

// GetTrustStatus reports whether an issuer is trusted for a credential type
func (h *handler) GetTrustStatus(c *gin.Context) {
	credentialType := c.Query("credential_type")
	issuer := c.Query("issuer")
	if credentialType == "" || issuer == "" {
		respondBadRequest(c, "credential_type and issuer are required")
		return
	}

	row, err := h.store.GetTrustedIssuer(c.Request.Context(), credentialType, domain.NormalizeAddress(issuer))
	if err != nil {
		respondInternalError(c, err, "Failed to get trust status",
			zap.String("credential_type", credentialType),
			zap.String("issuer", issuer))
		return
	}

	status := trustStatusDTO{
		CredentialType: credentialType,
		Issuer:         domain.NormalizeAddress(issuer),
	}
	if row != nil {
		status.Known = true
		status.Trusted = row.Trusted
		statusChangedAt := row.StatusChangedAt
		status.StatusChangedAt = &statusChangedAt
	}

	h.respond(c, status)
}
