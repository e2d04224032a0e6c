package evm

import (
	"context"
	"encoding/json"
	"math/big"
)

// NetworkConfig pairs a chain id with the default settlement asset for a
// CAIP-2 network.
type NetworkConfig struct {
	ChainID      *big.Int
	DefaultAsset AssetInfo
}

// AssetInfo describes the ERC-20 token used as the default settlement
// asset on a network.
type AssetInfo struct {
	Address  string
	Name     string
	Decimals int
}

// PaymentRequirements is advertised by the resource server in the 402 body
// and echoed back to the facilitator on /verify and /settle.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	Asset             string `json:"asset"`
	MaxAmount         string `json:"maxAmount"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
}

// TokenPermissions is the `permitted` field of a Permit2 authorization:
// the token and the ceiling amount the payer is authorizing.
type TokenPermissions struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// Witness binds a Permit2 authorization to a specific recipient and an
// earliest-usable timestamp, with room for scheme-specific opaque data.
type Witness struct {
	To         string `json:"to"`
	ValidAfter string `json:"validAfter"`
	Extra      string `json:"extra"`
}

// Permit2Authorization is the payer-signed ceiling authorization. Spender
// is always the Upto proxy address.
type Permit2Authorization struct {
	From      string           `json:"from"`
	Permitted TokenPermissions `json:"permitted"`
	Spender   string           `json:"spender"`
	Nonce     string           `json:"nonce"`
	Deadline  string           `json:"deadline"`
	Witness   Witness          `json:"witness"`
}

// UptoPayload is the value transmitted on the wire in the X-Payment
// header, base64-of-JSON encoded. SettlementAmount is absent until the
// resource middleware fills it in after metering.
type UptoPayload struct {
	Signature            string               `json:"signature"`
	Permit2Authorization  Permit2Authorization `json:"permit2Authorization"`
	SettlementAmount      *string              `json:"settlementAmount,omitempty"`
}

// VerifyResult is the outcome of a verify() call, returned verbatim by the
// facilitator's /verify endpoint.
type VerifyResult struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResult is the outcome of a settle() call, returned verbatim by the
// facilitator's /settle endpoint.
type SettleResult struct {
	Success        bool   `json:"success"`
	TxHash         string `json:"txHash,omitempty"`
	SettledAmount  string `json:"settledAmount,omitempty"`
	Error          string `json:"error,omitempty"`
}

// TypedDataDomain is the EIP-712 domain separator. Permit2's domain has no
// Version field, so it is simply left empty when building one.
type TypedDataDomain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract string
}

// TypedDataField names and types one field of an EIP-712 struct type.
type TypedDataField struct {
	Name string
	Type string
}

// TransactionReceipt is the chain-agnostic slice of a transaction receipt
// the settler needs to interpret an on-chain write.
type TransactionReceipt struct {
	Status      uint64
	BlockNumber uint64
	TxHash      string
}

// ClientSigner is the capability set the client SDK needs: an address to
// authorize from, and the ability to produce an EIP-712 signature over a
// typed message. Production code wires this to a private key (or a wallet
// RPC); tests wire it to an in-memory fake.
type ClientSigner interface {
	Address() string
	SignTypedData(
		ctx context.Context,
		domain TypedDataDomain,
		types map[string][]TypedDataField,
		primaryType string,
		message map[string]interface{},
	) ([]byte, error)
}

// FacilitatorSigner is the capability set the verifier and settler need:
// reading and writing contract state, recovering a typed-data signer, and
// waiting for a transaction to land. Production code wires this to an
// ethclient.Client backed by a private key; tests wire it to an in-memory
// fake.
type FacilitatorSigner interface {
	Address() string
	ReadContract(ctx context.Context, contractAddress string, abiJSON []byte, functionName string, args ...interface{}) (interface{}, error)
	VerifyTypedData(
		ctx context.Context,
		address string,
		domain TypedDataDomain,
		types map[string][]TypedDataField,
		primaryType string,
		message map[string]interface{},
		signature []byte,
	) (bool, error)
	WriteContract(ctx context.Context, contractAddress string, abiJSON []byte, functionName string, args ...interface{}) (string, error)
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)
	GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error)
}

// ToJSON marshals the payload the way it is transmitted on the wire
// (base64 of this JSON goes into the X-Payment header).
func (p UptoPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// PayloadFromJSON parses a decoded X-Payment header body.
func PayloadFromJSON(data []byte) (UptoPayload, error) {
	var p UptoPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return UptoPayload{}, err
	}
	return p, nil
}
