// Package client builds and signs upto authorization payloads on behalf of
// a payer, and builds the one-time Permit2 approval transaction.
package client

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/upto-protocol/upto-go/mechanisms/evm"
)

// BuildAuthorization constructs and signs an upto payload authorizing up
// to requirements.MaxAmount, addressed to requirements.PayTo on
// requirements.Network. SettlementAmount is left unset: the resource
// middleware fills it in after metering.
func BuildAuthorization(
	ctx context.Context,
	signer evm.ClientSigner,
	requirements evm.PaymentRequirements,
) (evm.UptoPayload, error) {
	parts := strings.SplitN(requirements.Network, ":", 2)
	if len(parts) != 2 || parts[0] != "eip155" {
		return evm.UptoPayload{}, fmt.Errorf("unsupported network format: %s", requirements.Network)
	}
	chainID, ok := new(big.Int).SetString(parts[1], 10)
	if !ok {
		return evm.UptoPayload{}, fmt.Errorf("unsupported network format: %s", requirements.Network)
	}

	maxTimeout := requirements.MaxTimeoutSeconds
	if maxTimeout <= 0 {
		maxTimeout = evm.DefaultMaxTimeoutSeconds
	}
	deadline, validAfter := evm.ComputeDeadlineAndValidAfter(maxTimeout)

	nonce, err := evm.CreatePermit2Nonce()
	if err != nil {
		return evm.UptoPayload{}, err
	}

	authorization := evm.Permit2Authorization{
		From: signer.Address(),
		Permitted: evm.TokenPermissions{
			Token:  requirements.Asset,
			Amount: requirements.MaxAmount,
		},
		Spender:  evm.UptoProxyAddress,
		Nonce:    nonce,
		Deadline: deadline,
		Witness: evm.Witness{
			To:         requirements.PayTo,
			ValidAfter: validAfter,
			Extra:      "0x",
		},
	}

	signature, err := signPermit2Authorization(ctx, signer, authorization, chainID)
	if err != nil {
		return evm.UptoPayload{}, fmt.Errorf("failed to sign authorization: %w", err)
	}

	return evm.UptoPayload{
		Signature:            evm.BytesToHex(signature),
		Permit2Authorization: authorization,
	}, nil
}

func signPermit2Authorization(
	ctx context.Context,
	signer evm.ClientSigner,
	authorization evm.Permit2Authorization,
	chainID *big.Int,
) ([]byte, error) {
	domain := evm.TypedDataDomain{
		Name:              "Permit2",
		ChainID:           chainID,
		VerifyingContract: evm.PERMIT2Address,
	}
	types := evm.GetPermit2EIP712Types()

	amount, ok := new(big.Int).SetString(authorization.Permitted.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid permitted amount: %s", authorization.Permitted.Amount)
	}
	nonce, ok := new(big.Int).SetString(authorization.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("invalid nonce: %s", authorization.Nonce)
	}
	deadline, ok := new(big.Int).SetString(authorization.Deadline, 10)
	if !ok {
		return nil, fmt.Errorf("invalid deadline: %s", authorization.Deadline)
	}
	validAfter, ok := new(big.Int).SetString(authorization.Witness.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter: %s", authorization.Witness.ValidAfter)
	}
	extraBytes, err := evm.HexToBytes(authorization.Witness.Extra)
	if err != nil {
		return nil, fmt.Errorf("invalid witness extra: %w", err)
	}

	message := map[string]interface{}{
		"permitted": map[string]interface{}{
			"token":  authorization.Permitted.Token,
			"amount": amount,
		},
		"spender":  authorization.Spender,
		"nonce":    nonce,
		"deadline": deadline,
		"witness": map[string]interface{}{
			"to":         authorization.Witness.To,
			"validAfter": validAfter,
			"extra":      extraBytes,
		},
	}

	return signer.SignTypedData(ctx, domain, types, "PermitWitnessTransferFrom", message)
}

// BuildApprovalTx returns the calldata for a one-time, max-allowance
// ERC-20 approve(Permit2, 2^160-1) transaction against tokenAddress. The
// payer must send this once per token before the upto scheme can settle
// on their behalf.
func BuildApprovalTx(tokenAddress string) (to string, data []byte, err error) {
	contractABI, err := abi.JSON(strings.NewReader(string(evm.ERC20ApproveABI)))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse approve ABI: %w", err)
	}

	data, err = contractABI.Pack("approve", common.HexToAddress(evm.PERMIT2Address), evm.MaxUint160)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode approval calldata: %w", err)
	}

	return tokenAddress, data, nil
}
