// Package evm provides concrete, ethclient-backed implementations of the
// capability interfaces the upto client SDK and facilitator depend on.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	uptoevm "github.com/upto-protocol/upto-go/mechanisms/evm"
)

// ClientSigner implements uptoevm.ClientSigner using an ECDSA private key
// held in memory. It never touches the network: signing EIP-712 typed
// data is a pure local computation.
type ClientSigner struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// NewClientSignerFromPrivateKey creates a client signer from a
// hex-encoded secp256k1 private key (with or without "0x" prefix).
func NewClientSignerFromPrivateKey(privateKeyHex string) (uptoevm.ClientSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	return &ClientSigner{privateKey: key, address: address}, nil
}

// Address returns the Ethereum address derived from the signer's key.
func (s *ClientSigner) Address() string {
	return s.address
}

// SignTypedData signs an EIP-712 digest and returns a 65-byte (r, s, v)
// signature with v normalized to 27/28.
func (s *ClientSigner) SignTypedData(
	ctx context.Context,
	domain uptoevm.TypedDataDomain,
	types map[string][]uptoevm.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	digest, err := eip712Digest(domain, types, primaryType, message)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	signature[64] += 27

	return signature, nil
}

// eip712Digest computes keccak256("\x19\x01" || domainSeparator ||
// structHash), shared by both the client and facilitator signers so the
// hash they sign/verify against is computed exactly one way.
func eip712Digest(
	domain uptoevm.TypedDataDomain,
	types map[string][]uptoevm.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types),
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: message,
	}
	for typeName, fields := range types {
		typedFields := make([]apitypes.Type, len(fields))
		for i, field := range fields {
			typedFields[i] = apitypes.Type{Name: field.Name, Type: field.Type}
		}
		typedData.Types[typeName] = typedFields
	}
	if _, exists := typedData.Types["EIP712Domain"]; !exists {
		typedData.Types["EIP712Domain"] = []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		}
	}

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	return crypto.Keccak256(rawData), nil
}
