package domain

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
)

// DID represents a Decentralized Identifier (W3C standard)
type DID string

// NewDID creates a DID for an on-chain account
// Reference: https://github.com/w3c-ccg/did-pkh
func NewDID(address string, chain Chain) DID {
	return DID(fmt.Sprintf("did:pkh:%s:%s", strings.ToLower(string(chain)), strings.ToLower(address)))
}

// String returns the string representation of the DID
func (d DID) String() string {
	return string(d)
}

// Valid checks the did:method:identifier shape
func (d DID) Valid() bool {
	parts := strings.SplitN(string(d), ":", 3)
	return len(parts) == 3 && parts[0] == "did" && parts[1] != "" && parts[2] != ""
}

// Role is a fixed-width role identifier emitted by the registry contract
// as a bytes32 value. Printable identifiers keep their ASCII form; anything
// else is carried as 0x-prefixed hex.
type Role string

// RoleFromBytes32 converts a raw bytes32 role identifier to its Role form
func RoleFromBytes32(raw [32]byte) Role {
	trimmed := raw[:]
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == 0 {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if len(trimmed) == 0 {
		return ""
	}

	for _, b := range trimmed {
		if b > unicode.MaxASCII || !unicode.IsPrint(rune(b)) {
			return Role(common.BytesToHash(raw[:]).Hex())
		}
	}
	return Role(trimmed)
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// NormalizeAddress normalizes an EVM address to its checksummed form
func NormalizeAddress(address string) string {
	if common.IsHexAddress(address) {
		return common.HexToAddress(address).Hex()
	}
	return address
}
