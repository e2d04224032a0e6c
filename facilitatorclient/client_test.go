package facilitatorclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/upto-protocol/upto-go/facilitatorclient"
	"github.com/upto-protocol/upto-go/mechanisms/evm"
)

func TestClient_Verify_DecodesFacilitatorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verify", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(evm.VerifyResult{IsValid: true, Payer: "0xPayer"})
	}))
	defer server.Close()

	client := facilitatorclient.New(server.URL)
	result, err := client.Verify(context.Background(), evm.UptoPayload{}, evm.PaymentRequirements{})
	require.NoError(t, err)
	require.True(t, result.IsValid)
	require.Equal(t, "0xPayer", result.Payer)
}

func TestClient_Settle_DecodesFacilitatorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/settle", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(evm.SettleResult{Success: true, TxHash: "0xabc", SettledAmount: "100"})
	}))
	defer server.Close()

	client := facilitatorclient.New(server.URL)
	result, err := client.Settle(context.Background(), evm.UptoPayload{}, evm.PaymentRequirements{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "0xabc", result.TxHash)
}

func TestClient_Verify_WrapsTransportError(t *testing.T) {
	client := facilitatorclient.New("http://127.0.0.1:0")
	_, err := client.Verify(context.Background(), evm.UptoPayload{}, evm.PaymentRequirements{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "facilitator unavailable")
}

func TestClient_Verify_TreatsServerErrorAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := facilitatorclient.New(server.URL)
	_, err := client.Verify(context.Background(), evm.UptoPayload{}, evm.PaymentRequirements{})
	require.Error(t, err)
}

func TestClient_Supported_ReturnsAdvertisedNetworks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/supported", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(facilitatorclient.SupportedResponse{
			Schemes:     []string{"upto"},
			Networks:    []string{"eip155:84532"},
			Facilitator: "0xFacilitator",
		})
	}))
	defer server.Close()

	client := facilitatorclient.New(server.URL)
	result, err := client.Supported(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"upto"}, result.Schemes)
}
