package facilitatorhttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/upto-protocol/upto-go/facilitatorhttp"
	"github.com/upto-protocol/upto-go/mechanisms/evm"
	"github.com/upto-protocol/upto-go/store"
)

type fakeSigner struct {
	allowances map[string]*big.Int
	balances   map[string]*big.Int
	valid      bool
	txHash     string
	receipt    *evm.TransactionReceipt
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{
		allowances: make(map[string]*big.Int),
		balances:   make(map[string]*big.Int),
		valid:      true,
		txHash:     "0xabc",
		receipt:    &evm.TransactionReceipt{Status: evm.TxStatusSuccess, TxHash: "0xabc"},
	}
}

func (s *fakeSigner) Address() string { return "0xFacilitator0000000000000000000000000001" }

func (s *fakeSigner) ReadContract(ctx context.Context, contractAddress string, abiJSON []byte, functionName string, args ...interface{}) (interface{}, error) {
	owner, _ := args[0].(string)
	switch functionName {
	case "allowance":
		if v, ok := s.allowances[owner]; ok {
			return v, nil
		}
	case "balanceOf":
		if v, ok := s.balances[owner]; ok {
			return v, nil
		}
	}
	return big.NewInt(0), nil
}

func (s *fakeSigner) VerifyTypedData(ctx context.Context, address string, domain evm.TypedDataDomain, types map[string][]evm.TypedDataField, primaryType string, message map[string]interface{}, signature []byte) (bool, error) {
	return s.valid, nil
}

func (s *fakeSigner) WriteContract(ctx context.Context, contractAddress string, abiJSON []byte, functionName string, args ...interface{}) (string, error) {
	return s.txHash, nil
}

func (s *fakeSigner) WaitForTransactionReceipt(ctx context.Context, txHash string) (*evm.TransactionReceipt, error) {
	return s.receipt, nil
}

func (s *fakeSigner) GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error) {
	if v, ok := s.balances[address]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func requirements() evm.PaymentRequirements {
	return evm.PaymentRequirements{
		Scheme:            evm.SchemeUpto,
		Network:           "eip155:84532",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		MaxAmount:         "1000000",
		PayTo:             "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		MaxTimeoutSeconds: 300,
	}
}

func payload() evm.UptoPayload {
	return evm.UptoPayload{
		Signature: "0x" + stringsRepeatZero(130),
		Permit2Authorization: evm.Permit2Authorization{
			From: "0xPayer0000000000000000000000000000000001",
			Permitted: evm.TokenPermissions{
				Token:  requirements().Asset,
				Amount: "1000000",
			},
			Spender:  evm.UptoProxyAddress,
			Nonce:    "654321",
			Deadline: "9999999999",
			Witness: evm.Witness{
				To:         requirements().PayTo,
				ValidAfter: "1",
				Extra:      "0x",
			},
		},
	}
}

func stringsRepeatZero(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_VerifyInsertsAuditRowOnSuccess(t *testing.T) {
	signer := newFakeSigner()
	signer.allowances[payload().Permit2Authorization.From] = big.NewInt(1000000)
	signer.balances[payload().Permit2Authorization.From] = big.NewInt(1000000)
	auditStore := store.NewInMemory()

	router := facilitatorhttp.NewRouter(signer, auditStore, facilitatorhttp.Config{
		Network:     "eip155:84532",
		Facilitator: signer.Address(),
	}, nil)

	rec := postJSON(t, router, "/verify", map[string]interface{}{
		"payload":      payload(),
		"requirements": requirements(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result evm.VerifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.IsValid)

	stats, err := auditStore.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalPayments)
}

func TestRouter_VerifyMalformedBodyReturns400(t *testing.T) {
	signer := newFakeSigner()
	auditStore := store.NewInMemory()
	router := facilitatorhttp.NewRouter(signer, auditStore, facilitatorhttp.Config{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader([]byte("not-json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SettleMarksAuditRowSettled(t *testing.T) {
	signer := newFakeSigner()
	signer.allowances[payload().Permit2Authorization.From] = big.NewInt(1000000)
	signer.balances[payload().Permit2Authorization.From] = big.NewInt(1000000)
	auditStore := store.NewInMemory()

	router := facilitatorhttp.NewRouter(signer, auditStore, facilitatorhttp.Config{
		Network:     "eip155:84532",
		Facilitator: signer.Address(),
	}, nil)

	verifyRec := postJSON(t, router, "/verify", map[string]interface{}{
		"payload":      payload(),
		"requirements": requirements(),
	})
	require.Equal(t, http.StatusOK, verifyRec.Code)

	settleRec := postJSON(t, router, "/settle", map[string]interface{}{
		"payload":      payload(),
		"requirements": requirements(),
	})
	require.Equal(t, http.StatusOK, settleRec.Code)

	var result evm.SettleResult
	require.NoError(t, json.Unmarshal(settleRec.Body.Bytes(), &result))
	require.True(t, result.Success)
	require.Equal(t, "0xabc", result.TxHash)

	stats, err := auditStore.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.SettledPayments)
}

func TestRouter_SupportedListsConfiguredNetwork(t *testing.T) {
	signer := newFakeSigner()
	auditStore := store.NewInMemory()
	router := facilitatorhttp.NewRouter(signer, auditStore, facilitatorhttp.Config{
		Network:     "eip155:84532",
		Facilitator: signer.Address(),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/supported", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	networks := body["networks"].([]interface{})
	require.Equal(t, "eip155:84532", networks[0])
}

func TestRouter_StatsReturnsAggregate(t *testing.T) {
	signer := newFakeSigner()
	auditStore := store.NewInMemory()
	router := facilitatorhttp.NewRouter(signer, auditStore, facilitatorhttp.Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 0, body["totalPayments"])
}
