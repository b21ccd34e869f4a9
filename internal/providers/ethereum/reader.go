package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/veridoc/registry-indexer/internal/adapter"
)

// readerABI describes the registry contract's view functions used for
// backfill. Each returns an exists flag so "absent" is an explicit result
// rather than an error or a zero value guess.
const readerABI = `[
	{"type":"function","name":"credentialIssuer","stateMutability":"view","inputs":[{"name":"credentialId","type":"uint256"}],"outputs":[{"name":"issuer","type":"address"},{"name":"exists","type":"bool"}]},
	{"type":"function","name":"documentInfo","stateMutability":"view","inputs":[{"name":"documentId","type":"bytes32"}],"outputs":[{"name":"documentType","type":"string"},{"name":"expiresAt","type":"uint256"},{"name":"exists","type":"bool"}]},
	{"type":"function","name":"identityController","stateMutability":"view","inputs":[{"name":"did","type":"string"}],"outputs":[{"name":"controller","type":"address"},{"name":"exists","type":"bool"}]}
]`

// DocumentInfo is the contract's stored document metadata
type DocumentInfo struct {
	DocumentType string
	ExpiresAt    *time.Time
}

// RegistryReader performs read-only contract calls that fill in fields the
// registry events do not carry. Every read distinguishes present, absent and
// error outcomes; only "absent" is a normal result.
type RegistryReader struct {
	client   adapter.EthClient
	contract common.Address
	abi      abi.ABI
}

// NewRegistryReader creates a reader for the registry contract
func NewRegistryReader(client adapter.EthClient, contractAddress string) (*RegistryReader, error) {
	parsed, err := abi.JSON(strings.NewReader(readerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse reader ABI: %w", err)
	}
	return &RegistryReader{
		client:   client,
		contract: common.HexToAddress(contractAddress),
		abi:      parsed,
	}, nil
}

func (r *RegistryReader) call(ctx context.Context, method string, out interface{}, args ...interface{}) error {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := r.client.CallContract(ctx, ethereum.CallMsg{
		To:   &r.contract,
		Data: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}

	if err := r.abi.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return nil
}

// CredentialIssuer fetches the issuing address of a credential.
// The second return is false when the contract has no such credential.
func (r *RegistryReader) CredentialIssuer(ctx context.Context, credentialID string) (string, bool, error) {
	id, ok := new(big.Int).SetString(credentialID, 10)
	if !ok {
		return "", false, fmt.Errorf("invalid credential id: %s", credentialID)
	}

	var out struct {
		Issuer common.Address
		Exists bool
	}
	if err := r.call(ctx, "credentialIssuer", &out, id); err != nil {
		return "", false, err
	}
	if !out.Exists {
		return "", false, nil
	}
	return out.Issuer.Hex(), true, nil
}

// DocumentInfo fetches the stored type and expiry of a document.
// The second return is false when the contract has no such document.
func (r *RegistryReader) DocumentInfo(ctx context.Context, documentID string) (*DocumentInfo, bool, error) {
	var out struct {
		DocumentType string
		ExpiresAt    *big.Int
		Exists       bool
	}
	if err := r.call(ctx, "documentInfo", &out, common.HexToHash(documentID)); err != nil {
		return nil, false, err
	}
	if !out.Exists {
		return nil, false, nil
	}

	info := &DocumentInfo{DocumentType: out.DocumentType}
	if out.ExpiresAt != nil && out.ExpiresAt.Sign() > 0 {
		expiresAt := time.Unix(out.ExpiresAt.Int64(), 0).UTC()
		info.ExpiresAt = &expiresAt
	}
	return info, true, nil
}

// IdentityController fetches the controlling address of a DID.
// The second return is false when the contract has no such identity.
func (r *RegistryReader) IdentityController(ctx context.Context, did string) (string, bool, error) {
	var out struct {
		Controller common.Address
		Exists     bool
	}
	if err := r.call(ctx, "identityController", &out, did); err != nil {
		return "", false, err
	}
	if !out.Exists {
		return "", false, nil
	}
	return out.Controller.Hex(), true, nil
}
