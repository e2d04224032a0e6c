package facilitator

import (
	"context"
	"math/big"
	"time"

	"github.com/upto-protocol/upto-go/mechanisms/evm"
)

// Verify runs the eight ordered checks from cheapest to most expensive,
// returning on the first failure. It is pure with respect to local state;
// checks 6-8 read chain state through signer.
func Verify(
	ctx context.Context,
	signer evm.FacilitatorSigner,
	payload evm.UptoPayload,
	requirements evm.PaymentRequirements,
) (evm.VerifyResult, error) {
	auth := payload.Permit2Authorization

	// 1. spender must be the upto proxy.
	if !evm.SameAddress(auth.Spender, evm.UptoProxyAddress) {
		return invalid(ErrInvalidSpender), nil
	}

	// 2. witness.to must match the advertised recipient.
	if !evm.SameAddress(auth.Witness.To, requirements.PayTo) {
		return invalid(ErrInvalidRecipient), nil
	}

	deadline, ok := new(big.Int).SetString(auth.Deadline, 10)
	if !ok {
		return invalid(ErrPermit2DeadlineExpired), nil
	}
	now := time.Now().Unix()

	// 3. deadline must be strictly in the future.
	if deadline.Cmp(big.NewInt(now)) <= 0 {
		return invalid(ErrPermit2DeadlineExpired), nil
	}

	validAfter, ok := new(big.Int).SetString(auth.Witness.ValidAfter, 10)
	if !ok {
		return invalid(ErrPermit2NotYetValid), nil
	}

	// 4. validAfter must not be in the future.
	if validAfter.Cmp(big.NewInt(now)) > 0 {
		return invalid(ErrPermit2NotYetValid), nil
	}

	permitted, ok := new(big.Int).SetString(auth.Permitted.Amount, 10)
	if !ok {
		return invalid(ErrInsufficientAuthorized), nil
	}
	required, ok := new(big.Int).SetString(requirements.MaxAmount, 10)
	if !ok {
		return invalid(ErrInsufficientAuthorized), nil
	}

	// 5. the authorized ceiling must cover the advertised requirement.
	if permitted.Cmp(required) < 0 {
		return invalid(ErrInsufficientAuthorized), nil
	}

	// 6. the EIP-712 signature must recover to the claimed payer.
	if err := verifySignature(ctx, signer, requirements.Network, auth, payload.Signature); err != nil {
		if err == errSignatureInvalid {
			return invalid(ErrInvalidPermit2Signature), nil
		}
		return invalid(ErrSignatureVerification), nil
	}

	// 7. Permit2 must already be approved for at least the ceiling.
	allowance, err := readAllowance(ctx, signer, auth)
	if err != nil {
		return invalid(ErrAllowanceCheckFailed), nil
	}
	if allowance.Cmp(permitted) < 0 {
		return invalid(ErrPermit2AllowanceRequired), nil
	}

	// 8. the payer must hold at least the ceiling in the settlement asset.
	balance, err := signer.GetBalance(ctx, auth.From, auth.Permitted.Token)
	if err != nil {
		return invalid(ErrBalanceCheckFailed), nil
	}
	if balance.Cmp(permitted) < 0 {
		return invalid(ErrInsufficientBalance), nil
	}

	return evm.VerifyResult{IsValid: true, Payer: auth.From}, nil
}

func invalid(reason string) evm.VerifyResult {
	return evm.VerifyResult{IsValid: false, InvalidReason: reason}
}

var errSignatureInvalid = &verifyError{"signature does not recover to claimed payer"}

type verifyError struct{ msg string }

func (e *verifyError) Error() string { return e.msg }

func verifySignature(
	ctx context.Context,
	signer evm.FacilitatorSigner,
	network string,
	auth evm.Permit2Authorization,
	signatureHex string,
) error {
	chainCfg, err := evm.GetNetworkConfig(network)
	if err != nil {
		return err
	}

	signature, err := evm.HexToBytes(signatureHex)
	if err != nil {
		return err
	}

	domain := evm.TypedDataDomain{
		Name:              "Permit2",
		ChainID:           chainCfg.ChainID,
		VerifyingContract: evm.PERMIT2Address,
	}
	types := evm.GetPermit2EIP712Types()

	amount, ok := new(big.Int).SetString(auth.Permitted.Amount, 10)
	if !ok {
		return errSignatureInvalid
	}
	nonce, ok := new(big.Int).SetString(auth.Nonce, 10)
	if !ok {
		return errSignatureInvalid
	}
	deadline, ok := new(big.Int).SetString(auth.Deadline, 10)
	if !ok {
		return errSignatureInvalid
	}
	validAfter, ok := new(big.Int).SetString(auth.Witness.ValidAfter, 10)
	if !ok {
		return errSignatureInvalid
	}
	extra, err := evm.HexToBytes(auth.Witness.Extra)
	if err != nil {
		return errSignatureInvalid
	}

	message := map[string]interface{}{
		"permitted": map[string]interface{}{
			"token":  auth.Permitted.Token,
			"amount": amount,
		},
		"spender":  auth.Spender,
		"nonce":    nonce,
		"deadline": deadline,
		"witness": map[string]interface{}{
			"to":         auth.Witness.To,
			"validAfter": validAfter,
			"extra":      extra,
		},
	}

	valid, err := signer.VerifyTypedData(ctx, auth.From, domain, types, "PermitWitnessTransferFrom", message, signature)
	if err != nil {
		return err
	}
	if !valid {
		return errSignatureInvalid
	}
	return nil
}

func readAllowance(ctx context.Context, signer evm.FacilitatorSigner, auth evm.Permit2Authorization) (*big.Int, error) {
	result, err := signer.ReadContract(ctx, auth.Permitted.Token, evm.ERC20AllowanceABI, "allowance", auth.From, evm.PERMIT2Address)
	if err != nil {
		return nil, err
	}
	allowance, ok := result.(*big.Int)
	if !ok {
		return nil, &verifyError{"unexpected allowance result type"}
	}
	return allowance, nil
}
