package reducer_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/registry-indexer/internal/domain"
	"github.com/veridoc/registry-indexer/internal/reducer"
	"github.com/veridoc/registry-indexer/internal/store/schema"
)

// fakeReader is an in-memory StateReader for applier tests
type fakeReader struct {
	identities  map[string]*schema.Identity
	roleGrants  map[string]*schema.RoleGrant
	credentials map[string]*schema.Credential
	trusted     map[string]*schema.TrustedIssuer
	documents   map[string]*schema.Document
	issuers     map[string]*schema.Issuer
	holders     map[string]*schema.Holder
	consents    map[string]*schema.ConsentRequest
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		identities:  make(map[string]*schema.Identity),
		roleGrants:  make(map[string]*schema.RoleGrant),
		credentials: make(map[string]*schema.Credential),
		trusted:     make(map[string]*schema.TrustedIssuer),
		documents:   make(map[string]*schema.Document),
		issuers:     make(map[string]*schema.Issuer),
		holders:     make(map[string]*schema.Holder),
		consents:    make(map[string]*schema.ConsentRequest),
	}
}

func (f *fakeReader) GetIdentity(_ context.Context, did string) (*schema.Identity, error) {
	return f.identities[did], nil
}

func (f *fakeReader) GetRoleGrant(_ context.Context, did, role string) (*schema.RoleGrant, error) {
	return f.roleGrants[did+"/"+role], nil
}

func (f *fakeReader) GetCredential(_ context.Context, id string) (*schema.Credential, error) {
	return f.credentials[id], nil
}

func (f *fakeReader) GetTrustedIssuer(_ context.Context, credentialType, issuer string) (*schema.TrustedIssuer, error) {
	return f.trusted[credentialType+"/"+issuer], nil
}

func (f *fakeReader) GetDocument(_ context.Context, id string) (*schema.Document, error) {
	return f.documents[id], nil
}

func (f *fakeReader) GetIssuer(_ context.Context, address string) (*schema.Issuer, error) {
	return f.issuers[address], nil
}

func (f *fakeReader) GetHolder(_ context.Context, address string) (*schema.Holder, error) {
	return f.holders[address], nil
}

func (f *fakeReader) GetConsentRequest(_ context.Context, documentID, requester string) (*schema.ConsentRequest, error) {
	return f.consents[documentID+"/"+requester], nil
}

func TestApplier_ForwardReferenceCreatesPlaceholder(t *testing.T) {
	applier := reducer.NewApplier(newFakeReader())
	cs := reducer.NewChangeset()
	ctx := context.Background()

	// credential issuance arrives before the subject's registration
	issue := event(domain.EventCredentialIssued, 100, 0)
	issue.DID = "did:pkh:eip155:11155111:0xsubject"
	issue.CredentialType = "DiplomaCredential"
	issue.CredentialID = "7"

	require.NoError(t, applier.Apply(ctx, cs, issue))

	placeholder, ok := cs.Identities[issue.DID.String()]
	require.True(t, ok, "placeholder identity staged")
	assert.Nil(t, placeholder.Controller)
	assert.True(t, placeholder.Active)
	assert.Nil(t, placeholder.RegisteredAt)

	credential, ok := cs.Credentials["7"]
	require.True(t, ok)
	assert.Equal(t, issue.DID.String(), credential.SubjectDID)

	// registration later in the same batch fills the placeholder in place
	register := event(domain.EventIdentityRegistered, 100, 1)
	register.DID = issue.DID
	register.Controller = "0xController"

	require.NoError(t, applier.Apply(ctx, cs, register))

	identity := cs.Identities[issue.DID.String()]
	require.NotNil(t, identity.Controller)
	assert.Equal(t, "0xController", *identity.Controller)
	require.NotNil(t, identity.RegisteredAt)
	assert.Len(t, cs.Identities, 1, "registration fills the row instead of adding one")
	assert.Empty(t, cs.Warnings)
}

func TestApplier_BatchObservesStagedState(t *testing.T) {
	applier := reducer.NewApplier(newFakeReader())
	cs := reducer.NewChangeset()
	ctx := context.Background()

	grant := event(domain.EventRoleGranted, 100, 0)
	grant.DID = "did:pkh:eip155:11155111:0xabc"
	grant.Role = "ISSUER_ROLE"

	revoke := event(domain.EventRoleRevoked, 100, 1)
	revoke.DID = grant.DID
	revoke.Role = grant.Role
	revoke.Timestamp = baseTime.Add(time.Minute)

	require.NoError(t, applier.Apply(ctx, cs, grant))
	require.NoError(t, applier.Apply(ctx, cs, revoke))

	require.Len(t, cs.RoleGrants, 1)
	for _, row := range cs.RoleGrants {
		assert.False(t, row.Granted, "revoke folded over the staged grant")
		require.NotNil(t, row.GrantedAt, "grant timestamp kept from the staged row")
		require.NotNil(t, row.RevokedAt)
	}
}

func TestApplier_AuthenticationAppendsRecord(t *testing.T) {
	applier := reducer.NewApplier(newFakeReader())
	cs := reducer.NewChangeset()

	auth := event(domain.EventAuthFailed, 150, 2)
	auth.DID = "did:pkh:eip155:11155111:0xabc"
	auth.Role = "VERIFIER_ROLE"

	require.NoError(t, applier.Apply(context.Background(), cs, auth))

	require.Len(t, cs.AuthRecords, 1)
	record := cs.AuthRecords[0]
	assert.Equal(t, uint64(150), record.BlockNumber)
	assert.Equal(t, uint(2), record.LogIndex)
	assert.False(t, record.Succeeded)
	assert.Equal(t, auth.DID.String(), record.DID)

	// the attempting identity is staged even if unseen before
	_, ok := cs.Identities[auth.DID.String()]
	assert.True(t, ok)
}

func TestApplier_UnknownReferencesWarnAndSkip(t *testing.T) {
	applier := reducer.NewApplier(newFakeReader())
	ctx := context.Background()

	update := event(domain.EventIdentityUpdated, 100, 0)
	update.DID = "did:pkh:eip155:11155111:0xghost"

	verifyCred := event(domain.EventCredentialVerified, 100, 1)
	verifyCred.DID = update.DID
	verifyCred.CredentialType = "DiplomaCredential"
	verifyCred.CredentialID = "404"

	verifyDoc := event(domain.EventDocumentVerified, 100, 2)
	verifyDoc.DocumentID = "0xghostdoc"
	verifyDoc.Verifier = "0xVerifier"

	revoke := event(domain.EventConsentRevoked, 100, 3)
	revoke.DocumentID = "0xghostdoc"
	revoke.Requester = "0xRequester"

	cs := reducer.NewChangeset()
	for _, ev := range []*domain.RegistryEvent{update, verifyCred, verifyDoc, revoke} {
		require.NoError(t, applier.Apply(ctx, cs, ev))
	}

	assert.Len(t, cs.Warnings, 4)
	assert.Empty(t, cs.Identities)
	assert.Empty(t, cs.Credentials)
	assert.Empty(t, cs.Documents, "verifying an unregistered document creates no entity")
	assert.Empty(t, cs.Consents)
}

func TestApplier_DocumentUpdateWithUnknownPrevious(t *testing.T) {
	applier := reducer.NewApplier(newFakeReader())
	cs := reducer.NewChangeset()

	ev := event(domain.EventDocumentUpdated, 200, 0)
	ev.DocumentID = "0xdoc2"
	ev.PreviousDocumentID = "0xdoc1"
	ev.Issuer = "0xIssuer"

	require.NoError(t, applier.Apply(context.Background(), cs, ev))

	// the new version is still registered, with a warning for the gap
	require.Len(t, cs.Warnings, 1)
	doc, ok := cs.Documents["0xdoc2"]
	require.True(t, ok)
	require.NotNil(t, doc.PreviousVersionID)
	assert.Equal(t, "0xdoc1", *doc.PreviousVersionID)
}

func TestApplier_DocumentUpdateReadsStoredPrevious(t *testing.T) {
	reader := newFakeReader()
	docType := "diploma"
	reader.documents["0xdoc1"] = &schema.Document{
		ID:           "0xdoc1",
		Issuer:       "0xIssuer",
		Holder:       "0xHolder",
		DocumentType: &docType,
	}

	applier := reducer.NewApplier(reader)
	cs := reducer.NewChangeset()

	ev := event(domain.EventDocumentUpdated, 200, 0)
	ev.DocumentID = "0xdoc2"
	ev.PreviousDocumentID = "0xdoc1"
	ev.Issuer = "0xIssuer"

	require.NoError(t, applier.Apply(context.Background(), cs, ev))

	assert.Empty(t, cs.Warnings)
	doc := cs.Documents["0xdoc2"]
	require.NotNil(t, doc)
	assert.Equal(t, "0xHolder", doc.Holder)

	_, ok := cs.Holders["0xHolder"]
	assert.True(t, ok, "carried-over holder is staged")
}

func TestApplier_VerificationRequestedUsesHolderAsRequester(t *testing.T) {
	applier := reducer.NewApplier(newFakeReader())
	cs := reducer.NewChangeset()

	ev := event(domain.EventVerificationRequest, 120, 0)
	ev.DocumentID = "0xdoc"
	ev.Holder = "0xHolder"

	require.NoError(t, applier.Apply(context.Background(), cs, ev))

	require.Len(t, cs.Consents, 1)
	for _, consent := range cs.Consents {
		assert.Equal(t, "0xHolder", consent.Requester)
		assert.Equal(t, schema.ConsentRequestVerification, consent.RequestType)
		assert.Equal(t, schema.ConsentStatusPending, consent.Status)
	}
}

func TestApplier_DocumentRegisteredStagesParticipants(t *testing.T) {
	applier := reducer.NewApplier(newFakeReader())
	cs := reducer.NewChangeset()

	ev := event(domain.EventDocumentRegistered, 100, 0)
	ev.DocumentID = "0xdoc"
	ev.Issuer = "0xIssuer"
	ev.Holder = "0xHolder"

	require.NoError(t, applier.Apply(context.Background(), cs, ev))

	_, ok := cs.Issuers["0xIssuer"]
	assert.True(t, ok)
	_, ok = cs.Holders["0xHolder"]
	assert.True(t, ok)
	_, ok = cs.Documents["0xdoc"]
	assert.True(t, ok)
}

func TestApplier_Journal(t *testing.T) {
	applier := reducer.NewApplier(newFakeReader())
	cs := reducer.NewChangeset()

	ev := event(domain.EventRoleGranted, 100, 5)
	ev.DID = "did:pkh:eip155:11155111:0xabc"
	ev.Role = "ISSUER_ROLE"

	require.NoError(t, applier.Journal(cs, ev))

	require.Len(t, cs.Journal, 1)
	entry := cs.Journal[0]
	assert.Equal(t, uint64(100), entry.BlockNumber)
	assert.Equal(t, uint(5), entry.LogIndex)
	assert.Equal(t, string(domain.EventRoleGranted), entry.Kind)

	var decoded domain.RegistryEvent
	require.NoError(t, json.Unmarshal(entry.Payload, &decoded))
	assert.Equal(t, ev.DID, decoded.DID)
	assert.Equal(t, ev.Role, decoded.Role)
}

func TestChangeset_SizeAndEmpty(t *testing.T) {
	cs := reducer.NewChangeset()
	assert.True(t, cs.Empty())
	assert.Zero(t, cs.Size())

	cs.Identities["did:pkh:eip155:1:0xabc"] = &schema.Identity{}
	cs.AuthRecords = append(cs.AuthRecords, &schema.AuthenticationRecord{})

	assert.False(t, cs.Empty())
	assert.Equal(t, 2, cs.Size())
}
