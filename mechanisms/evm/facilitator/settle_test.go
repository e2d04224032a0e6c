package facilitator_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/upto-protocol/upto-go/mechanisms/evm"
	"github.com/upto-protocol/upto-go/mechanisms/evm/facilitator"
)

func settlementAmount(amount string) *string {
	return &amount
}

func TestSettle_DefaultsToPermittedAmount(t *testing.T) {
	now := time.Now().Unix()
	requirements := validRequirements()
	payload := validPayload(now)
	signer := arrangeSigner(payload, requirements)

	result, err := facilitator.Settle(context.Background(), signer, payload, requirements)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, payload.Permit2Authorization.Permitted.Amount, result.SettledAmount)
	require.Equal(t, signer.txHash, result.TxHash)
}

func TestSettle_PartialAmountWithinCeiling(t *testing.T) {
	now := time.Now().Unix()
	requirements := validRequirements()
	payload := validPayload(now)
	payload.SettlementAmount = settlementAmount("437000")
	signer := arrangeSigner(payload, requirements)

	result, err := facilitator.Settle(context.Background(), signer, payload, requirements)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "437000", result.SettledAmount)
}

func TestSettle_ExceedsAuthorizationNeverTouchesChain(t *testing.T) {
	now := time.Now().Unix()
	requirements := validRequirements()
	payload := validPayload(now)
	payload.SettlementAmount = settlementAmount("1000001")
	signer := arrangeSigner(payload, requirements)
	signer.writeErr = errAlwaysFails

	result, err := facilitator.Settle(context.Background(), signer, payload, requirements)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, facilitator.ErrSettlementExceedsAuthorization, result.Error)
}

func TestSettle_ZeroAmountElidesChainCall(t *testing.T) {
	now := time.Now().Unix()
	requirements := validRequirements()
	payload := validPayload(now)
	payload.SettlementAmount = settlementAmount("0")
	signer := arrangeSigner(payload, requirements)
	signer.writeErr = errAlwaysFails

	result, err := facilitator.Settle(context.Background(), signer, payload, requirements)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "0", result.SettledAmount)
	require.Empty(t, result.TxHash)
}

func TestSettle_ReVerifyFailureBlocksSettlement(t *testing.T) {
	now := time.Now().Unix()
	requirements := validRequirements()
	payload := validPayload(now)
	signer := arrangeSigner(payload, requirements)
	signer.allowances[payload.Permit2Authorization.From] = big.NewInt(0)

	result, err := facilitator.Settle(context.Background(), signer, payload, requirements)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, facilitator.ErrPermit2AllowanceRequired, result.Error)
}

func TestSettle_TransactionReverted(t *testing.T) {
	now := time.Now().Unix()
	requirements := validRequirements()
	payload := validPayload(now)
	signer := arrangeSigner(payload, requirements)
	signer.receipt = &evm.TransactionReceipt{Status: evm.TxStatusFailed, TxHash: signer.txHash}

	result, err := facilitator.Settle(context.Background(), signer, payload, requirements)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, facilitator.ErrTransactionReverted, result.Error)
	require.Equal(t, signer.txHash, result.TxHash)
}

func TestSettle_WriteContractError(t *testing.T) {
	now := time.Now().Unix()
	requirements := validRequirements()
	payload := validPayload(now)
	signer := arrangeSigner(payload, requirements)
	signer.writeErr = errAlwaysFails

	result, err := facilitator.Settle(context.Background(), signer, payload, requirements)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Error)
}

var errAlwaysFails = &staticErr{"write failed"}

type staticErr struct{ msg string }

func (e *staticErr) Error() string { return e.msg }
