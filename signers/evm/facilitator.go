package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	uptoevm "github.com/upto-protocol/upto-go/mechanisms/evm"
)

// FacilitatorSigner implements uptoevm.FacilitatorSigner against a real
// chain over JSON-RPC: it reads contract state, recovers EIP-712
// signatures, broadcasts the settle() transaction, and polls for its
// receipt.
type FacilitatorSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	client     *ethclient.Client
	chainID    *big.Int
}

// NewFacilitatorSigner dials rpcURL and derives the facilitator's address
// from privateKeyHex. The chain id is fetched once at construction time.
func NewFacilitatorSigner(ctx context.Context, privateKeyHex, rpcURL string) (*FacilitatorSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}

	return &FacilitatorSigner{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		client:     client,
		chainID:    chainID,
	}, nil
}

// Address returns the facilitator's own address (the transaction sender).
func (s *FacilitatorSigner) Address() string {
	return s.address.Hex()
}

// ReadContract packs functionName(args...), calls it, and unpacks the
// result. A single return value is returned bare; multiple returns are
// returned as a []interface{}.
func (s *FacilitatorSigner) ReadContract(
	ctx context.Context,
	contractAddress string,
	abiJSON []byte,
	functionName string,
	args ...interface{},
) (interface{}, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(functionName, normalizeAddresses(args)...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	addr := common.HexToAddress(contractAddress)
	result, err := s.client.CallContract(ctx, gethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}

	outputs, err := contractABI.Unpack(functionName, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}
	if len(outputs) == 1 {
		return outputs[0], nil
	}
	return outputs, nil
}

// VerifyTypedData recovers the signer of an EIP-712 digest and compares it
// against address, case-insensitively.
func (s *FacilitatorSigner) VerifyTypedData(
	ctx context.Context,
	address string,
	domain uptoevm.TypedDataDomain,
	typesMap map[string][]uptoevm.TypedDataField,
	primaryType string,
	message map[string]interface{},
	signature []byte,
) (bool, error) {
	if len(signature) != 65 {
		return false, fmt.Errorf("signature must be 65 bytes, got %d", len(signature))
	}

	digest, err := eip712Digest(domain, typesMap, primaryType, message)
	if err != nil {
		return false, err
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return false, fmt.Errorf("failed to recover public key: %w", err)
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	return strings.EqualFold(recovered.Hex(), address), nil
}

// WriteContract packs functionName(args...), broadcasts it as a
// transaction from the facilitator's own address, and returns the
// transaction hash without waiting for it to be mined.
func (s *FacilitatorSigner) WriteContract(
	ctx context.Context,
	contractAddress string,
	abiJSON []byte,
	functionName string,
	args ...interface{},
) (string, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(functionName, normalizeAddresses(args)...)
	if err != nil {
		return "", fmt.Errorf("failed to pack method call: %w", err)
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	to := common.HexToAddress(contractAddress)
	tx := types.NewTransaction(nonce, to, big.NewInt(0), 300000, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash().Hex(), nil
}

// WaitForTransactionReceipt polls for up to 30 seconds for txHash's
// receipt to appear.
func (s *FacilitatorSigner) WaitForTransactionReceipt(ctx context.Context, txHash string) (*uptoevm.TransactionReceipt, error) {
	hash := common.HexToHash(txHash)

	for i := 0; i < 30; i++ {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return &uptoevm.TransactionReceipt{
				Status:      receipt.Status,
				BlockNumber: receipt.BlockNumber.Uint64(),
				TxHash:      receipt.TxHash.Hex(),
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	return nil, fmt.Errorf("transaction receipt not found after 30 seconds")
}

// GetBalance returns the native balance when tokenAddress is empty, or the
// ERC-20 balanceOf(address) otherwise.
func (s *FacilitatorSigner) GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error) {
	if tokenAddress == "" || strings.EqualFold(tokenAddress, "0x0000000000000000000000000000000000000000") {
		balance, err := s.client.BalanceAt(ctx, common.HexToAddress(address), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		return balance, nil
	}

	result, err := s.ReadContract(ctx, tokenAddress, uptoevm.ERC20BalanceOfABI, "balanceOf", address)
	if err != nil {
		return nil, err
	}
	balance, ok := result.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balance type: %T", result)
	}
	return balance, nil
}

// normalizeAddresses converts any bare hex-string arguments that represent
// addresses into common.Address so abi.Pack's type checking accepts them.
func normalizeAddresses(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok && strings.HasPrefix(s, "0x") && len(s) == 42 {
			out[i] = common.HexToAddress(s)
			continue
		}
		out[i] = a
	}
	return out
}
