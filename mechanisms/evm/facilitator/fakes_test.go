package facilitator_test

import (
	"context"
	"math/big"

	"github.com/upto-protocol/upto-go/mechanisms/evm"
)

// fakeClientSigner is an in-memory evm.ClientSigner used across the
// facilitator package's tests.
type fakeClientSigner struct {
	address   string
	signature []byte
	signErr   error
}

func (s *fakeClientSigner) Address() string { return s.address }

func (s *fakeClientSigner) SignTypedData(
	ctx context.Context,
	domain evm.TypedDataDomain,
	types map[string][]evm.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	if s.signErr != nil {
		return nil, s.signErr
	}
	if s.signature != nil {
		return s.signature, nil
	}
	return make([]byte, 65), nil
}

// fakeFacilitatorSigner is an in-memory evm.FacilitatorSigner. Every
// capability is driven by a field so tests can arrange exactly the chain
// state a scenario needs.
type fakeFacilitatorSigner struct {
	address        string
	allowances     map[string]*big.Int
	balances       map[string]*big.Int
	signatureValid bool
	verifyErr      error
	readErr        error
	writeErr       error
	txHash         string
	writeErrOnCall error
	receipt        *evm.TransactionReceipt
	receiptErr     error
}

func newFakeFacilitatorSigner() *fakeFacilitatorSigner {
	return &fakeFacilitatorSigner{
		address:        "0xFacilitator0000000000000000000000000001",
		allowances:     make(map[string]*big.Int),
		balances:       make(map[string]*big.Int),
		signatureValid: true,
		txHash:         "0xabc",
		receipt:        &evm.TransactionReceipt{Status: evm.TxStatusSuccess, TxHash: "0xabc"},
	}
}

func (s *fakeFacilitatorSigner) Address() string { return s.address }

func (s *fakeFacilitatorSigner) ReadContract(ctx context.Context, contractAddress string, abiJSON []byte, functionName string, args ...interface{}) (interface{}, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	switch functionName {
	case "allowance":
		owner, _ := args[0].(string)
		if v, ok := s.allowances[owner]; ok {
			return v, nil
		}
		return big.NewInt(0), nil
	case "balanceOf":
		owner, _ := args[0].(string)
		if v, ok := s.balances[owner]; ok {
			return v, nil
		}
		return big.NewInt(0), nil
	}
	return nil, nil
}

func (s *fakeFacilitatorSigner) VerifyTypedData(
	ctx context.Context,
	address string,
	domain evm.TypedDataDomain,
	types map[string][]evm.TypedDataField,
	primaryType string,
	message map[string]interface{},
	signature []byte,
) (bool, error) {
	if s.verifyErr != nil {
		return false, s.verifyErr
	}
	return s.signatureValid, nil
}

func (s *fakeFacilitatorSigner) WriteContract(ctx context.Context, contractAddress string, abiJSON []byte, functionName string, args ...interface{}) (string, error) {
	if s.writeErr != nil {
		return "", s.writeErr
	}
	return s.txHash, nil
}

func (s *fakeFacilitatorSigner) WaitForTransactionReceipt(ctx context.Context, txHash string) (*evm.TransactionReceipt, error) {
	if s.receiptErr != nil {
		return nil, s.receiptErr
	}
	return s.receipt, nil
}

func (s *fakeFacilitatorSigner) GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	if v, ok := s.balances[address]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}
