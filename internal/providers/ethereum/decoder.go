package ethereum

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/veridoc/registry-indexer/internal/domain"
)

// registryABI describes the registry contract's events. All fields are
// non-indexed, so every event decodes from the data payload alone and
// topics[0] carries the signature.
const registryABI = `[
	{"type":"event","name":"IdentityRegistered","inputs":[{"name":"did","type":"string"},{"name":"controller","type":"address"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"IdentityUpdated","inputs":[{"name":"did","type":"string"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"IdentityDeactivated","inputs":[{"name":"did","type":"string"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"RoleGranted","inputs":[{"name":"did","type":"string"},{"name":"role","type":"bytes32"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"RoleRevoked","inputs":[{"name":"did","type":"string"},{"name":"role","type":"bytes32"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"AuthenticationSucceeded","inputs":[{"name":"did","type":"string"},{"name":"role","type":"bytes32"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"AuthenticationFailed","inputs":[{"name":"did","type":"string"},{"name":"role","type":"bytes32"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"CredentialIssued","inputs":[{"name":"credentialType","type":"string"},{"name":"subject","type":"string"},{"name":"credentialId","type":"uint256"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"CredentialVerified","inputs":[{"name":"did","type":"string"},{"name":"credentialType","type":"string"},{"name":"credentialId","type":"uint256"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"CredentialVerificationFailed","inputs":[{"name":"did","type":"string"},{"name":"credentialType","type":"string"},{"name":"credentialId","type":"uint256"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"IssuerTrustStatusUpdated","inputs":[{"name":"credentialType","type":"string"},{"name":"issuer","type":"address"},{"name":"trusted","type":"bool"}]},
	{"type":"event","name":"IssuerRegistered","inputs":[{"name":"issuer","type":"address"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"IssuerActivated","inputs":[{"name":"issuer","type":"address"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"IssuerDeactivated","inputs":[{"name":"issuer","type":"address"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"DocumentRegistered","inputs":[{"name":"documentId","type":"bytes32"},{"name":"issuer","type":"address"},{"name":"holder","type":"address"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"DocumentVerified","inputs":[{"name":"documentId","type":"bytes32"},{"name":"verifier","type":"address"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"DocumentUpdated","inputs":[{"name":"oldDocumentId","type":"bytes32"},{"name":"newDocumentId","type":"bytes32"},{"name":"issuer","type":"address"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"ShareRequested","inputs":[{"name":"documentId","type":"bytes32"},{"name":"requester","type":"address"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"ConsentGranted","inputs":[{"name":"documentId","type":"bytes32"},{"name":"requester","type":"address"},{"name":"timestamp","type":"uint256"},{"name":"validUntil","type":"uint256"}]},
	{"type":"event","name":"ConsentRevoked","inputs":[{"name":"documentId","type":"bytes32"},{"name":"requester","type":"address"},{"name":"timestamp","type":"uint256"}]},
	{"type":"event","name":"VerificationRequested","inputs":[{"name":"documentId","type":"bytes32"},{"name":"holder","type":"address"},{"name":"timestamp","type":"uint256"}]}
]`

// event signature hashes, topics[0] of each emitted log
var (
	identityRegisteredSig   = crypto.Keccak256Hash([]byte("IdentityRegistered(string,address,uint256)"))
	identityUpdatedSig      = crypto.Keccak256Hash([]byte("IdentityUpdated(string,uint256)"))
	identityDeactivatedSig  = crypto.Keccak256Hash([]byte("IdentityDeactivated(string,uint256)"))
	roleGrantedSig          = crypto.Keccak256Hash([]byte("RoleGranted(string,bytes32,uint256)"))
	roleRevokedSig          = crypto.Keccak256Hash([]byte("RoleRevoked(string,bytes32,uint256)"))
	authSucceededSig        = crypto.Keccak256Hash([]byte("AuthenticationSucceeded(string,bytes32,uint256)"))
	authFailedSig           = crypto.Keccak256Hash([]byte("AuthenticationFailed(string,bytes32,uint256)"))
	credentialIssuedSig     = crypto.Keccak256Hash([]byte("CredentialIssued(string,string,uint256,uint256)"))
	credentialVerifiedSig   = crypto.Keccak256Hash([]byte("CredentialVerified(string,string,uint256,uint256)"))
	credentialVerifyFailSig = crypto.Keccak256Hash([]byte("CredentialVerificationFailed(string,string,uint256,uint256)"))
	issuerTrustUpdatedSig   = crypto.Keccak256Hash([]byte("IssuerTrustStatusUpdated(string,address,bool)"))
	issuerRegisteredSig     = crypto.Keccak256Hash([]byte("IssuerRegistered(address,uint256)"))
	issuerActivatedSig      = crypto.Keccak256Hash([]byte("IssuerActivated(address,uint256)"))
	issuerDeactivatedSig    = crypto.Keccak256Hash([]byte("IssuerDeactivated(address,uint256)"))
	documentRegisteredSig   = crypto.Keccak256Hash([]byte("DocumentRegistered(bytes32,address,address,uint256)"))
	documentVerifiedSig     = crypto.Keccak256Hash([]byte("DocumentVerified(bytes32,address,uint256)"))
	documentUpdatedSig      = crypto.Keccak256Hash([]byte("DocumentUpdated(bytes32,bytes32,address,uint256)"))
	shareRequestedSig       = crypto.Keccak256Hash([]byte("ShareRequested(bytes32,address,uint256)"))
	consentGrantedSig       = crypto.Keccak256Hash([]byte("ConsentGranted(bytes32,address,uint256,uint256)"))
	consentRevokedSig       = crypto.Keccak256Hash([]byte("ConsentRevoked(bytes32,address,uint256)"))
	verificationRequestSig  = crypto.Keccak256Hash([]byte("VerificationRequested(bytes32,address,uint256)"))
)

// EventSignatures returns the topic hashes of every event the decoder
// understands, for use in log filter queries.
func EventSignatures() []common.Hash {
	return []common.Hash{
		identityRegisteredSig, identityUpdatedSig, identityDeactivatedSig,
		roleGrantedSig, roleRevokedSig,
		authSucceededSig, authFailedSig,
		credentialIssuedSig, credentialVerifiedSig, credentialVerifyFailSig,
		issuerTrustUpdatedSig,
		issuerRegisteredSig, issuerActivatedSig, issuerDeactivatedSig,
		documentRegisteredSig, documentVerifiedSig, documentUpdatedSig,
		shareRequestedSig, consentGrantedSig, consentRevokedSig,
		verificationRequestSig,
	}
}

// Decoder turns raw registry contract logs into normalized registry events.
// Decoding is pure: no ledger access, no clock. Logs from unknown event
// signatures decode to (nil, nil); only malformed payloads of known events
// return an error.
type Decoder struct {
	chain domain.Chain
	abi   abi.ABI
}

// NewDecoder creates a decoder for registry contract logs on the given chain
func NewDecoder(chain domain.Chain) (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}
	return &Decoder{chain: chain, abi: parsed}, nil
}

// Decode parses a raw log into a normalized registry event
func (d *Decoder) Decode(vLog types.Log) (*domain.RegistryEvent, error) {
	if len(vLog.Topics) == 0 {
		return nil, nil
	}

	event := &domain.RegistryEvent{
		Chain:           d.chain,
		ContractAddress: vLog.Address.Hex(),
		TxHash:          vLog.TxHash.Hex(),
		BlockNumber:     vLog.BlockNumber,
		BlockHash:       vLog.BlockHash.Hex(),
		LogIndex:        vLog.Index,
		Removed:         vLog.Removed,
	}

	switch vLog.Topics[0] {
	case identityRegisteredSig:
		var out struct {
			Did        string
			Controller common.Address
			Timestamp  *big.Int
		}
		if err := d.abi.UnpackIntoInterface(&out, "IdentityRegistered", vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode IdentityRegistered: %w", err)
		}
		event.Kind = domain.EventIdentityRegistered
		event.DID = domain.DID(out.Did)
		event.Controller = out.Controller.Hex()
		event.Timestamp = unixTime(out.Timestamp)

	case identityUpdatedSig, identityDeactivatedSig:
		var out struct {
			Did       string
			Timestamp *big.Int
		}
		name := "IdentityUpdated"
		event.Kind = domain.EventIdentityUpdated
		if vLog.Topics[0] == identityDeactivatedSig {
			name = "IdentityDeactivated"
			event.Kind = domain.EventIdentityDeactivated
		}
		if err := d.abi.UnpackIntoInterface(&out, name, vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		event.DID = domain.DID(out.Did)
		event.Timestamp = unixTime(out.Timestamp)

	case roleGrantedSig, roleRevokedSig, authSucceededSig, authFailedSig:
		var out struct {
			Did       string
			Role      [32]byte
			Timestamp *big.Int
		}
		var name string
		switch vLog.Topics[0] {
		case roleGrantedSig:
			name = "RoleGranted"
			event.Kind = domain.EventRoleGranted
		case roleRevokedSig:
			name = "RoleRevoked"
			event.Kind = domain.EventRoleRevoked
		case authSucceededSig:
			name = "AuthenticationSucceeded"
			event.Kind = domain.EventAuthSucceeded
		default:
			name = "AuthenticationFailed"
			event.Kind = domain.EventAuthFailed
		}
		if err := d.abi.UnpackIntoInterface(&out, name, vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		event.DID = domain.DID(out.Did)
		event.Role = domain.RoleFromBytes32(out.Role)
		event.Timestamp = unixTime(out.Timestamp)

	case credentialIssuedSig:
		var out struct {
			CredentialType string
			Subject        string
			CredentialId   *big.Int
			Timestamp      *big.Int
		}
		if err := d.abi.UnpackIntoInterface(&out, "CredentialIssued", vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode CredentialIssued: %w", err)
		}
		event.Kind = domain.EventCredentialIssued
		event.CredentialType = out.CredentialType
		event.DID = domain.DID(out.Subject)
		event.CredentialID = out.CredentialId.String()
		event.Timestamp = unixTime(out.Timestamp)

	case credentialVerifiedSig, credentialVerifyFailSig:
		var out struct {
			Did            string
			CredentialType string
			CredentialId   *big.Int
			Timestamp      *big.Int
		}
		name := "CredentialVerified"
		event.Kind = domain.EventCredentialVerified
		if vLog.Topics[0] == credentialVerifyFailSig {
			name = "CredentialVerificationFailed"
			event.Kind = domain.EventCredentialVerifyFail
		}
		if err := d.abi.UnpackIntoInterface(&out, name, vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		event.DID = domain.DID(out.Did)
		event.CredentialType = out.CredentialType
		event.CredentialID = out.CredentialId.String()
		event.Timestamp = unixTime(out.Timestamp)

	case issuerTrustUpdatedSig:
		var out struct {
			CredentialType string
			Issuer         common.Address
			Trusted        bool
		}
		if err := d.abi.UnpackIntoInterface(&out, "IssuerTrustStatusUpdated", vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode IssuerTrustStatusUpdated: %w", err)
		}
		event.Kind = domain.EventIssuerTrustUpdated
		event.CredentialType = out.CredentialType
		event.Issuer = out.Issuer.Hex()
		trusted := out.Trusted
		event.Trusted = &trusted
		// no timestamp field on this event; the ingester stamps it with
		// the block timestamp

	case issuerRegisteredSig, issuerActivatedSig, issuerDeactivatedSig:
		var out struct {
			Issuer    common.Address
			Timestamp *big.Int
		}
		var name string
		switch vLog.Topics[0] {
		case issuerRegisteredSig:
			name = "IssuerRegistered"
			event.Kind = domain.EventIssuerRegistered
		case issuerActivatedSig:
			name = "IssuerActivated"
			event.Kind = domain.EventIssuerActivated
		default:
			name = "IssuerDeactivated"
			event.Kind = domain.EventIssuerDeactivated
		}
		if err := d.abi.UnpackIntoInterface(&out, name, vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		event.Issuer = out.Issuer.Hex()
		event.Timestamp = unixTime(out.Timestamp)

	case documentRegisteredSig:
		var out struct {
			DocumentId [32]byte
			Issuer     common.Address
			Holder     common.Address
			Timestamp  *big.Int
		}
		if err := d.abi.UnpackIntoInterface(&out, "DocumentRegistered", vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode DocumentRegistered: %w", err)
		}
		event.Kind = domain.EventDocumentRegistered
		event.DocumentID = common.BytesToHash(out.DocumentId[:]).Hex()
		event.Issuer = out.Issuer.Hex()
		event.Holder = out.Holder.Hex()
		event.Timestamp = unixTime(out.Timestamp)

	case documentVerifiedSig:
		var out struct {
			DocumentId [32]byte
			Verifier   common.Address
			Timestamp  *big.Int
		}
		if err := d.abi.UnpackIntoInterface(&out, "DocumentVerified", vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode DocumentVerified: %w", err)
		}
		event.Kind = domain.EventDocumentVerified
		event.DocumentID = common.BytesToHash(out.DocumentId[:]).Hex()
		event.Verifier = out.Verifier.Hex()
		event.Timestamp = unixTime(out.Timestamp)

	case documentUpdatedSig:
		var out struct {
			OldDocumentId [32]byte
			NewDocumentId [32]byte
			Issuer        common.Address
			Timestamp     *big.Int
		}
		if err := d.abi.UnpackIntoInterface(&out, "DocumentUpdated", vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode DocumentUpdated: %w", err)
		}
		event.Kind = domain.EventDocumentUpdated
		event.PreviousDocumentID = common.BytesToHash(out.OldDocumentId[:]).Hex()
		event.DocumentID = common.BytesToHash(out.NewDocumentId[:]).Hex()
		event.Issuer = out.Issuer.Hex()
		event.Timestamp = unixTime(out.Timestamp)

	case shareRequestedSig, consentRevokedSig:
		var out struct {
			DocumentId [32]byte
			Requester  common.Address
			Timestamp  *big.Int
		}
		name := "ShareRequested"
		event.Kind = domain.EventShareRequested
		if vLog.Topics[0] == consentRevokedSig {
			name = "ConsentRevoked"
			event.Kind = domain.EventConsentRevoked
		}
		if err := d.abi.UnpackIntoInterface(&out, name, vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		event.DocumentID = common.BytesToHash(out.DocumentId[:]).Hex()
		event.Requester = out.Requester.Hex()
		event.Timestamp = unixTime(out.Timestamp)

	case consentGrantedSig:
		var out struct {
			DocumentId [32]byte
			Requester  common.Address
			Timestamp  *big.Int
			ValidUntil *big.Int
		}
		if err := d.abi.UnpackIntoInterface(&out, "ConsentGranted", vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode ConsentGranted: %w", err)
		}
		event.Kind = domain.EventConsentGranted
		event.DocumentID = common.BytesToHash(out.DocumentId[:]).Hex()
		event.Requester = out.Requester.Hex()
		event.Timestamp = unixTime(out.Timestamp)
		// validUntil of zero means the grant does not expire
		if out.ValidUntil != nil && out.ValidUntil.Sign() > 0 {
			validUntil := unixTime(out.ValidUntil)
			event.ValidUntil = &validUntil
		}

	case verificationRequestSig:
		var out struct {
			DocumentId [32]byte
			Holder     common.Address
			Timestamp  *big.Int
		}
		if err := d.abi.UnpackIntoInterface(&out, "VerificationRequested", vLog.Data); err != nil {
			return nil, fmt.Errorf("failed to decode VerificationRequested: %w", err)
		}
		event.Kind = domain.EventVerificationRequest
		event.DocumentID = common.BytesToHash(out.DocumentId[:]).Hex()
		event.Holder = out.Holder.Hex()
		event.Timestamp = unixTime(out.Timestamp)

	default:
		// not a registry event
		return nil, nil
	}

	return event, nil
}

func unixTime(ts *big.Int) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return time.Unix(ts.Int64(), 0).UTC()
}
