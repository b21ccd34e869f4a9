package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/registry-indexer/internal/api/middleware"
	"github.com/veridoc/registry-indexer/internal/api/rest"
	"github.com/veridoc/registry-indexer/internal/domain"
	"github.com/veridoc/registry-indexer/internal/logger"
	"github.com/veridoc/registry-indexer/internal/reducer"
	"github.com/veridoc/registry-indexer/internal/store"
	"github.com/veridoc/registry-indexer/internal/store/schema"
)

const testAPIKey = "test-api-key"

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	gin.SetMode(gin.TestMode)

	code := m.Run()
	os.Exit(code)
}

// fixedClock implements adapter.Clock at a pinned instant
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time                       { return c.now }
func (c *fixedClock) After(time.Duration) <-chan time.Time { return nil }

// fakeStore serves canned rows and records the arguments of list queries
type fakeStore struct {
	checkpoint  *schema.Checkpoint
	identities  map[string]*schema.Identity
	credentials map[string]*schema.Credential
	documents   map[string]*schema.Document
	grants      map[string][]schema.RoleGrant
	auths       map[string][]schema.AuthenticationRecord
	versions    map[string][]schema.Document
	consents    map[string][]schema.ConsentRequest
	holderDocs  map[string][]schema.Document
	trusted     map[string]*schema.TrustedIssuer

	lastAuthFilter  store.AuthenticationFilter
	lastHolderQuery string
	lastIssuerQuery string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities:  make(map[string]*schema.Identity),
		credentials: make(map[string]*schema.Credential),
		documents:   make(map[string]*schema.Document),
		grants:      make(map[string][]schema.RoleGrant),
		auths:       make(map[string][]schema.AuthenticationRecord),
		versions:    make(map[string][]schema.Document),
		consents:    make(map[string][]schema.ConsentRequest),
		holderDocs:  make(map[string][]schema.Document),
		trusted:     make(map[string]*schema.TrustedIssuer),
	}
}

func (f *fakeStore) GetCheckpoint(context.Context, domain.Chain) (*schema.Checkpoint, error) {
	return f.checkpoint, nil
}

func (f *fakeStore) CommitBatch(context.Context, domain.Chain, schema.Checkpoint, *reducer.Changeset) error {
	return nil
}

func (f *fakeStore) GetIdentity(_ context.Context, did string) (*schema.Identity, error) {
	return f.identities[did], nil
}

func (f *fakeStore) GetRoleGrant(context.Context, string, string) (*schema.RoleGrant, error) {
	return nil, nil
}

func (f *fakeStore) GetCredential(_ context.Context, id string) (*schema.Credential, error) {
	return f.credentials[id], nil
}

func (f *fakeStore) GetTrustedIssuer(_ context.Context, credentialType, issuer string) (*schema.TrustedIssuer, error) {
	f.lastIssuerQuery = issuer
	return f.trusted[credentialType+"|"+issuer], nil
}

func (f *fakeStore) GetDocument(_ context.Context, id string) (*schema.Document, error) {
	return f.documents[id], nil
}

func (f *fakeStore) GetIssuer(context.Context, string) (*schema.Issuer, error) {
	return nil, nil
}

func (f *fakeStore) GetHolder(context.Context, string) (*schema.Holder, error) {
	return nil, nil
}

func (f *fakeStore) GetConsentRequest(context.Context, string, string) (*schema.ConsentRequest, error) {
	return nil, nil
}

func (f *fakeStore) ListRoleGrants(_ context.Context, did string) ([]schema.RoleGrant, error) {
	return f.grants[did], nil
}

func (f *fakeStore) ListAuthenticationHistory(_ context.Context, did string, filter store.AuthenticationFilter) ([]schema.AuthenticationRecord, error) {
	f.lastAuthFilter = filter
	return f.auths[did], nil
}

func (f *fakeStore) ListDocumentsByHolder(_ context.Context, holder string) ([]schema.Document, error) {
	f.lastHolderQuery = holder
	return f.holderDocs[holder], nil
}

func (f *fakeStore) ListDocumentVersions(_ context.Context, id string) ([]schema.Document, error) {
	return f.versions[id], nil
}

func (f *fakeStore) ListConsentsByDocument(_ context.Context, documentID string) ([]schema.ConsentRequest, error) {
	return f.consents[documentID], nil
}

func (f *fakeStore) UpdateCredentialIssuer(context.Context, string, string) error { return nil }

func (f *fakeStore) UpdateIdentityController(context.Context, string, string) error { return nil }

func (f *fakeStore) UpdateDocumentInfo(context.Context, string, string, *time.Time) error {
	return nil
}

var _ store.Store = (*fakeStore)(nil)

func newRouter(st store.Store) *gin.Engine {
	router := gin.New()
	handler := rest.NewHandler(st, domain.ChainEthereumSepolia, &fixedClock{now: testNow})
	rest.SetupRoutes(router, handler, middleware.AuthConfig{APIKeys: []string{testAPIKey}})
	return router
}

func perform(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeEnvelope unwraps the response envelope into target
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, target interface{}) uint64 {
	t.Helper()
	var resp struct {
		Data      json.RawMessage `json:"data"`
		AsOfBlock uint64          `json:"as_of_block"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NoError(t, json.Unmarshal(resp.Data, target))
	return resp.AsOfBlock
}

func TestHealthCheck(t *testing.T) {
	router := newRouter(newFakeStore())

	w := perform(router, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGetStatus(t *testing.T) {
	st := newFakeStore()
	router := newRouter(st)

	t.Run("no checkpoint yet", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/status", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var status map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, "eip155:11155111", status["chain"])
		assert.EqualValues(t, 0, status["block_number"])
	})

	t.Run("committed checkpoint", func(t *testing.T) {
		st.checkpoint = &schema.Checkpoint{
			Chain:       string(domain.ChainEthereumSepolia),
			BlockNumber: 1234,
			LogIndex:    7,
			BlockHash:   "0xabc",
		}

		w := perform(router, http.MethodGet, "/api/v1/status", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var status map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.EqualValues(t, 1234, status["block_number"])
		assert.EqualValues(t, 7, status["log_index"])
		assert.Equal(t, "0xabc", status["block_hash"])
	})
}

func TestGetIdentity(t *testing.T) {
	st := newFakeStore()
	st.checkpoint = &schema.Checkpoint{BlockNumber: 900}
	controller := "0xController"
	registeredAt := testNow.Add(-24 * time.Hour)
	st.identities["did:pkh:eip155:11155111:0xabc"] = &schema.Identity{
		DID:           "did:pkh:eip155:11155111:0xabc",
		Controller:    &controller,
		Active:        true,
		RegisteredAt:  &registeredAt,
		LastEventTime: registeredAt,
	}
	router := newRouter(st)

	t.Run("found", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/identities/did:pkh:eip155:11155111:0xabc", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var identity map[string]interface{}
		asOf := decodeEnvelope(t, w, &identity)
		assert.EqualValues(t, 900, asOf)
		assert.Equal(t, "did:pkh:eip155:11155111:0xabc", identity["did"])
		assert.Equal(t, "0xController", identity["controller"])
		assert.Equal(t, true, identity["active"])
	})

	t.Run("not found", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/identities/did:pkh:eip155:11155111:0xmissing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGetActiveRoles_FiltersRevoked(t *testing.T) {
	st := newFakeStore()
	grantedAt := testNow.Add(-time.Hour)
	st.grants["did:pkh:eip155:11155111:0xabc"] = []schema.RoleGrant{
		{DID: "did:pkh:eip155:11155111:0xabc", Role: "HOLDER_ROLE", Granted: true, GrantedAt: &grantedAt},
		{DID: "did:pkh:eip155:11155111:0xabc", Role: "ISSUER_ROLE", Granted: false, GrantedAt: &grantedAt},
	}
	router := newRouter(st)

	w := perform(router, http.MethodGet, "/api/v1/identities/did:pkh:eip155:11155111:0xabc/roles", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var roles []map[string]interface{}
	decodeEnvelope(t, w, &roles)
	require.Len(t, roles, 1)
	assert.Equal(t, "HOLDER_ROLE", roles[0]["role"])
}

func TestGetAuthenticationHistory(t *testing.T) {
	st := newFakeStore()
	st.auths["did:pkh:eip155:11155111:0xabc"] = []schema.AuthenticationRecord{
		{DID: "did:pkh:eip155:11155111:0xabc", Role: "HOLDER_ROLE", Succeeded: true,
			Timestamp: testNow.Add(-time.Hour), BlockNumber: 100, LogIndex: 3, TxHash: "0xtx"},
	}
	router := newRouter(st)

	t.Run("filter passthrough", func(t *testing.T) {
		w := perform(router, http.MethodGet,
			"/api/v1/identities/did:pkh:eip155:11155111:0xabc/authentications?from=2026-05-01T00:00:00Z&to=2026-05-02T00:00:00Z&limit=5", nil)

		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, st.lastAuthFilter.From)
		assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), st.lastAuthFilter.From.UTC())
		require.NotNil(t, st.lastAuthFilter.To)
		assert.Equal(t, 5, st.lastAuthFilter.Limit)

		var attempts []map[string]interface{}
		decodeEnvelope(t, w, &attempts)
		require.Len(t, attempts, 1)
		assert.Equal(t, true, attempts[0]["succeeded"])
		assert.EqualValues(t, 100, attempts[0]["block_number"])
	})

	t.Run("bad from timestamp", func(t *testing.T) {
		w := perform(router, http.MethodGet,
			"/api/v1/identities/did:pkh:eip155:11155111:0xabc/authentications?from=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("negative limit", func(t *testing.T) {
		w := perform(router, http.MethodGet,
			"/api/v1/identities/did:pkh:eip155:11155111:0xabc/authentications?limit=-1", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetCredential(t *testing.T) {
	st := newFakeStore()
	issuer := "0xIssuer"
	verifiedAt := testNow.Add(-time.Hour)
	st.credentials["901"] = &schema.Credential{
		ID:             "901",
		CredentialType: "DiplomaCredential",
		SubjectDID:     "did:pkh:eip155:11155111:0xabc",
		Issuer:         &issuer,
		IssuedAt:       testNow.Add(-48 * time.Hour),
		Verified:       true,
		VerifiedAt:     &verifiedAt,
	}
	router := newRouter(st)

	t.Run("found", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/credentials/901", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var credential map[string]interface{}
		decodeEnvelope(t, w, &credential)
		assert.Equal(t, "DiplomaCredential", credential["credential_type"])
		assert.Equal(t, "0xIssuer", credential["issuer"])
		assert.Equal(t, true, credential["verified"])
	})

	t.Run("not found", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/credentials/999", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGetDocumentVersions(t *testing.T) {
	st := newFakeStore()
	previous := "0xdoc1"
	st.versions["0xdoc2"] = []schema.Document{
		{ID: "0xdoc2", Issuer: "0xIssuer", Holder: "0xHolder", PreviousVersionID: &previous},
		{ID: "0xdoc1", Issuer: "0xIssuer", Holder: "0xHolder"},
	}
	router := newRouter(st)

	t.Run("chain newest first", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/documents/0xdoc2/versions", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var versions []map[string]interface{}
		decodeEnvelope(t, w, &versions)
		require.Len(t, versions, 2)
		assert.Equal(t, "0xdoc2", versions[0]["id"])
		assert.Equal(t, "0xdoc1", versions[1]["id"])
	})

	t.Run("unknown document", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/documents/0xmissing/versions", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestListDocumentsByHolder_NormalizesAddress(t *testing.T) {
	st := newFakeStore()
	checksummed := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	st.holderDocs[checksummed] = []schema.Document{
		{ID: "0xdoc1", Issuer: "0xIssuer", Holder: checksummed},
	}
	router := newRouter(st)

	// lowercase in the path, checksummed in the store
	w := perform(router, http.MethodGet,
		"/api/v1/holders/0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed/documents", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, checksummed, st.lastHolderQuery)

	var documents []map[string]interface{}
	decodeEnvelope(t, w, &documents)
	require.Len(t, documents, 1)
	assert.Equal(t, "0xdoc1", documents[0]["id"])
}

func TestGetDocumentConsents_RequiresAPIKey(t *testing.T) {
	st := newFakeStore()
	grantedAt := testNow.Add(-2 * time.Hour)
	expired := testNow.Add(-time.Hour)
	valid := testNow.Add(time.Hour)
	st.consents["0xdoc1"] = []schema.ConsentRequest{
		{DocumentID: "0xdoc1", Requester: "0xActive", RequestType: schema.ConsentRequestShare,
			Status: schema.ConsentStatusGranted, RequestedAt: grantedAt, GrantedAt: &grantedAt, ValidUntil: &valid},
		{DocumentID: "0xdoc1", Requester: "0xExpired", RequestType: schema.ConsentRequestShare,
			Status: schema.ConsentStatusGranted, RequestedAt: grantedAt, GrantedAt: &grantedAt, ValidUntil: &expired},
	}
	router := newRouter(st)

	t.Run("missing key", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/documents/0xdoc1/consents", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/documents/0xdoc1/consents",
			map[string]string{"Authorization": "Bearer wrong"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid key", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/documents/0xdoc1/consents",
			map[string]string{"Authorization": "Bearer " + testAPIKey})

		require.Equal(t, http.StatusOK, w.Code)
		var consents []map[string]interface{}
		decodeEnvelope(t, w, &consents)
		require.Len(t, consents, 2)

		// activity is evaluated against the server clock
		byRequester := map[string]bool{}
		for _, consent := range consents {
			byRequester[consent["requester"].(string)] = consent["active"].(bool)
		}
		assert.True(t, byRequester["0xActive"])
		assert.False(t, byRequester["0xExpired"])
	})
}

func TestGetTrustStatus(t *testing.T) {
	st := newFakeStore()
	issuer := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	st.trusted["DiplomaCredential|"+issuer] = &schema.TrustedIssuer{
		CredentialType:  "DiplomaCredential",
		Issuer:          issuer,
		Trusted:         true,
		StatusChangedAt: testNow.Add(-time.Hour),
	}
	router := newRouter(st)

	t.Run("missing parameters", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/trust-status?issuer="+issuer, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("known issuer", func(t *testing.T) {
		// lowercase issuer normalizes to the stored checksummed form
		w := perform(router, http.MethodGet,
			"/api/v1/trust-status?credential_type=DiplomaCredential&issuer=0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var status map[string]interface{}
		decodeEnvelope(t, w, &status)
		assert.Equal(t, true, status["known"])
		assert.Equal(t, true, status["trusted"])
		assert.Equal(t, issuer, st.lastIssuerQuery)
	})

	t.Run("unknown issuer never errors", func(t *testing.T) {
		w := perform(router, http.MethodGet,
			"/api/v1/trust-status?credential_type=DiplomaCredential&issuer=0x0000000000000000000000000000000000000001", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var status map[string]interface{}
		decodeEnvelope(t, w, &status)
		assert.Equal(t, false, status["known"])
		assert.Equal(t, false, status["trusted"])
	})
}
