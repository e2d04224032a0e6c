package evm

import (
	"math/big"
)

const (
	// SchemeUpto is the scheme identifier advertised in payment requirements
	// and payloads. This package only ever implements this one scheme.
	SchemeUpto = "upto"

	// DefaultDecimals is the token decimal count used by every asset this
	// package currently knows about (USDC, 6 decimals).
	DefaultDecimals = 6

	// DefaultMaxTimeoutSeconds is used when a route omits MaxTimeoutSeconds.
	DefaultMaxTimeoutSeconds = 300

	// FunctionSettle is the Upto proxy method name called at settlement time.
	FunctionSettle = "settle"

	// ValidAfterBufferSeconds is subtracted from "now" when the client
	// builder computes the witness's validAfter, absorbing clock skew
	// between the signer's clock and the chain's.
	ValidAfterBufferSeconds = 60

	// TxStatusSuccess and TxStatusFailed mirror go-ethereum's
	// types.Receipt.Status values.
	TxStatusSuccess = 1
	TxStatusFailed  = 0

	// PERMIT2Address is the canonical Uniswap Permit2 contract address,
	// identical on every chain via CREATE2 deployment.
	PERMIT2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

	// UptoProxyAddress is the upto payment proxy: it wraps Permit2 and
	// accepts a settlement amount up to, but not necessarily equal to,
	// the permitted ceiling.
	UptoProxyAddress = "0x4020633461b2895a48930Ff97eE8fCdE8E520002"

	// ApproveSelector is the 4-byte selector of ERC-20's approve(address,uint256).
	ApproveSelector = "0x095ea7b3"
)

var (
	// MaxUint160 is 2^160 - 1, the amount the approval transaction builder
	// grants Permit2 (Permit2 itself enforces the real per-spend ceiling).
	MaxUint160 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))

	ChainIDBase        = big.NewInt(8453)
	ChainIDBaseSepolia = big.NewInt(84532)

	// NetworkConfigs maps a CAIP-2 network identifier to its chain id and
	// default settlement asset. Only Base and Base Sepolia are supported;
	// adding a chain means adding an entry here.
	NetworkConfigs = map[string]NetworkConfig{
		"eip155:8453": {
			ChainID: ChainIDBase,
			DefaultAsset: AssetInfo{
				Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
				Name:     "USD Coin",
				Decimals: DefaultDecimals,
			},
		},
		"eip155:84532": {
			ChainID: ChainIDBaseSepolia,
			DefaultAsset: AssetInfo{
				Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				Name:     "USDC",
				Decimals: DefaultDecimals,
			},
		},
	}

	// ERC20AllowanceABI checks how much the owner has approved Permit2 to
	// move on their behalf.
	ERC20AllowanceABI = []byte(`[
		{
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"name": "allowance",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// ERC20ApproveABI backs the approval transaction builder.
	ERC20ApproveABI = []byte(`[
		{
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"name": "approve",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// ERC20BalanceOfABI backs the verifier's balance check.
	ERC20BalanceOfABI = []byte(`[
		{
			"inputs": [
				{"name": "account", "type": "address"}
			],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// UptoProxySettleABI is the ABI fragment for the settle() call the
	// settler issues against the Upto proxy.
	UptoProxySettleABI = []byte(`[
		{
			"type": "function",
			"name": "settle",
			"inputs": [
				{
					"name": "permit",
					"type": "tuple",
					"components": [
						{
							"name": "permitted",
							"type": "tuple",
							"components": [
								{"name": "token", "type": "address"},
								{"name": "amount", "type": "uint256"}
							]
						},
						{"name": "nonce", "type": "uint256"},
						{"name": "deadline", "type": "uint256"}
					]
				},
				{"name": "amount", "type": "uint256"},
				{"name": "owner", "type": "address"},
				{
					"name": "witness",
					"type": "tuple",
					"components": [
						{"name": "to", "type": "address"},
						{"name": "validAfter", "type": "uint256"},
						{"name": "extra", "type": "bytes"}
					]
				},
				{"name": "signature", "type": "bytes"}
			],
			"outputs": [],
			"stateMutability": "nonpayable"
		}
	]`)

	// EIP712DomainTypes is Permit2's domain shape: name + chainId +
	// verifyingContract, deliberately omitting a version field.
	EIP712DomainTypes = []TypedDataField{
		{Name: "name", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}

	// Permit2WitnessTypes defines the EIP-712 types for
	// PermitWitnessTransferFrom. Field order must match the on-chain
	// Permit2 contract exactly.
	Permit2WitnessTypes = map[string][]TypedDataField{
		"PermitWitnessTransferFrom": {
			{Name: "permitted", Type: "TokenPermissions"},
			{Name: "spender", Type: "address"},
			{Name: "nonce", Type: "uint256"},
			{Name: "deadline", Type: "uint256"},
			{Name: "witness", Type: "Witness"},
		},
		"TokenPermissions": {
			{Name: "token", Type: "address"},
			{Name: "amount", Type: "uint256"},
		},
		"Witness": {
			{Name: "to", Type: "address"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "extra", Type: "bytes"},
		},
	}
)

// GetPermit2EIP712Types returns the complete EIP-712 types map for signing
// or verifying a PermitWitnessTransferFrom message, domain type included.
func GetPermit2EIP712Types() map[string][]TypedDataField {
	return map[string][]TypedDataField{
		"EIP712Domain":              EIP712DomainTypes,
		"PermitWitnessTransferFrom": Permit2WitnessTypes["PermitWitnessTransferFrom"],
		"TokenPermissions":          Permit2WitnessTypes["TokenPermissions"],
		"Witness":                   Permit2WitnessTypes["Witness"],
	}
}

// IsValidNetwork reports whether network is a CAIP-2 identifier this
// package has a configuration for.
func IsValidNetwork(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}

// GetNetworkConfig returns the chain configuration for a CAIP-2 network
// identifier, or an error if the network is unsupported.
func GetNetworkConfig(network string) (NetworkConfig, error) {
	cfg, ok := NetworkConfigs[network]
	if !ok {
		return NetworkConfig{}, &UnsupportedNetworkError{Network: network}
	}
	return cfg, nil
}

// UnsupportedNetworkError is returned when a CAIP-2 network identifier has
// no configured chain id or default asset.
type UnsupportedNetworkError struct {
	Network string
}

func (e *UnsupportedNetworkError) Error() string {
	return "unsupported network: " + e.Network
}
