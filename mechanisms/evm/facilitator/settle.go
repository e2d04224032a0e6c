package facilitator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/upto-protocol/upto-go/mechanisms/evm"
)

// Settle clamps the metered settlement amount to the authorized ceiling,
// elides zero-amount settlements, re-verifies, and then calls settle() on
// the upto proxy. It never calls the chain for an amount that exceeds the
// authorization or for a zero-amount settlement.
func Settle(
	ctx context.Context,
	signer evm.FacilitatorSigner,
	payload evm.UptoPayload,
	requirements evm.PaymentRequirements,
) (evm.SettleResult, error) {
	auth := payload.Permit2Authorization

	permitted, ok := new(big.Int).SetString(auth.Permitted.Amount, 10)
	if !ok {
		return evm.SettleResult{Success: false, Error: ErrSettlementExceedsAuthorization}, nil
	}

	amountStr := auth.Permitted.Amount
	if payload.SettlementAmount != nil {
		amountStr = *payload.SettlementAmount
	}
	amount, ok := new(big.Int).SetString(amountStr, 10)
	if !ok {
		return evm.SettleResult{Success: false, Error: ErrSettlementExceedsAuthorization}, nil
	}

	// Step 2: clamp. A settlement amount above the signed ceiling is a
	// programming error upstream and must never reach the chain.
	if amount.Cmp(permitted) > 0 {
		return evm.SettleResult{Success: false, Error: ErrSettlementExceedsAuthorization}, nil
	}

	// Step 3: zero-amount elision. No-op settlements never touch the chain.
	if amount.Sign() == 0 {
		return evm.SettleResult{Success: true, SettledAmount: "0"}, nil
	}

	// Step 4: re-verify, closing the window between middleware verify and
	// settle during which balance or allowance may have changed.
	verifyResult, err := Verify(ctx, signer, payload, requirements)
	if err != nil {
		return evm.SettleResult{}, err
	}
	if !verifyResult.IsValid {
		return evm.SettleResult{Success: false, Error: verifyResult.InvalidReason}, nil
	}

	// Step 5: call settle() on the upto proxy and await the receipt.
	txHash, err := writeSettle(ctx, signer, auth, payload.Signature, amount)
	if err != nil {
		return evm.SettleResult{Success: false, Error: err.Error()}, nil
	}

	receipt, err := signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return evm.SettleResult{Success: false, Error: err.Error()}, nil
	}

	// Step 6: a reverted transaction is a settlement failure, not an error.
	if receipt.Status != evm.TxStatusSuccess {
		return evm.SettleResult{Success: false, Error: ErrTransactionReverted, TxHash: txHash}, nil
	}

	// Step 7: success.
	return evm.SettleResult{Success: true, TxHash: txHash, SettledAmount: amount.String()}, nil
}

func writeSettle(
	ctx context.Context,
	signer evm.FacilitatorSigner,
	auth evm.Permit2Authorization,
	signatureHex string,
	amount *big.Int,
) (string, error) {
	nonce, ok := new(big.Int).SetString(auth.Nonce, 10)
	if !ok {
		return "", &verifyError{"invalid nonce"}
	}
	deadline, ok := new(big.Int).SetString(auth.Deadline, 10)
	if !ok {
		return "", &verifyError{"invalid deadline"}
	}
	permittedAmount, ok := new(big.Int).SetString(auth.Permitted.Amount, 10)
	if !ok {
		return "", &verifyError{"invalid permitted amount"}
	}
	validAfter, ok := new(big.Int).SetString(auth.Witness.ValidAfter, 10)
	if !ok {
		return "", &verifyError{"invalid validAfter"}
	}
	extra, err := evm.HexToBytes(auth.Witness.Extra)
	if err != nil {
		return "", err
	}
	signature, err := evm.HexToBytes(signatureHex)
	if err != nil {
		return "", err
	}

	type tokenPermissions struct {
		Token  common.Address
		Amount *big.Int
	}
	type permit struct {
		Permitted tokenPermissions
		Nonce     *big.Int
		Deadline  *big.Int
	}
	type witness struct {
		To         common.Address
		ValidAfter *big.Int
		Extra      []byte
	}

	permitArg := permit{
		Permitted: tokenPermissions{
			Token:  common.HexToAddress(auth.Permitted.Token),
			Amount: permittedAmount,
		},
		Nonce:    nonce,
		Deadline: deadline,
	}
	witnessArg := witness{
		To:         common.HexToAddress(auth.Witness.To),
		ValidAfter: validAfter,
		Extra:      extra,
	}

	return signer.WriteContract(
		ctx,
		evm.UptoProxyAddress,
		evm.UptoProxySettleABI,
		evm.FunctionSettle,
		permitArg,
		amount,
		common.HexToAddress(auth.From),
		witnessArg,
		signature,
	)
}
