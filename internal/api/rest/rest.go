package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/veridoc/registry-indexer/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes (public read access)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", handler.GetStatus)

		v1.GET("/identities/:did", handler.GetIdentity)
		v1.GET("/identities/:did/roles", handler.GetActiveRoles)
		v1.GET("/identities/:did/authentications", handler.GetAuthenticationHistory)

		v1.GET("/credentials/:id", handler.GetCredential)

		v1.GET("/documents/:id", handler.GetDocument)
		v1.GET("/documents/:id/versions", handler.GetDocumentVersions)

		// Consent rows expose requester addresses, so this one is keyed
		v1.GET("/documents/:id/consents", middleware.APIKeyAuth(authCfg), handler.GetDocumentConsents)

		v1.GET("/holders/:address/documents", handler.ListDocumentsByHolder)

		v1.GET("/trust-status", handler.GetTrustStatus)
	}
}
