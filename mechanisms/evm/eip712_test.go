package evm_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/upto-protocol/upto-go/mechanisms/evm"
)

func sampleAuthorization() evm.Permit2Authorization {
	return evm.Permit2Authorization{
		From: "0xPayer0000000000000000000000000000000001",
		Permitted: evm.TokenPermissions{
			Token:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Amount: "1000000",
		},
		Spender:  evm.UptoProxyAddress,
		Nonce:    "123456",
		Deadline: "2000000000",
		Witness: evm.Witness{
			To:         "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			ValidAfter: "1000000000",
			Extra:      "0x",
		},
	}
}

func TestHashPermit2Authorization_IsDeterministic(t *testing.T) {
	auth := sampleAuthorization()
	chainID := big.NewInt(84532)

	first, err := evm.HashPermit2Authorization(auth, chainID)
	require.NoError(t, err)
	second, err := evm.HashPermit2Authorization(auth, chainID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 32)
}

func TestHashPermit2Authorization_DiffersByChainID(t *testing.T) {
	auth := sampleAuthorization()

	base, err := evm.HashPermit2Authorization(auth, big.NewInt(8453))
	require.NoError(t, err)
	sepolia, err := evm.HashPermit2Authorization(auth, big.NewInt(84532))
	require.NoError(t, err)
	require.NotEqual(t, base, sepolia)
}

func TestHashPermit2Authorization_DiffersByAmount(t *testing.T) {
	chainID := big.NewInt(84532)
	auth := sampleAuthorization()
	first, err := evm.HashPermit2Authorization(auth, chainID)
	require.NoError(t, err)

	auth.Permitted.Amount = "2000000"
	second, err := evm.HashPermit2Authorization(auth, chainID)
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func TestHashPermit2Authorization_RejectsMalformedAmount(t *testing.T) {
	auth := sampleAuthorization()
	auth.Permitted.Amount = "not-a-number"

	_, err := evm.HashPermit2Authorization(auth, big.NewInt(84532))
	require.Error(t, err)
}
