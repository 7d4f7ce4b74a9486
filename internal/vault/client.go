package vault

import (
	"agreement-notary/internal/identity"
	"agreement-notary/internal/ledger"
	"agreement-notary/internal/model"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Client talks to the proof vault. Creation goes through a lookup first so that a finalization
// can be re-driven after a restart without producing a second proof for the agreement.
type Client struct {
	logger  *zap.Logger
	vault   ledger.ProofVault
	timeout time.Duration
}

func NewClient(logger *zap.Logger, vault ledger.ProofVault, timeout time.Duration) Client {
	return Client{logger: logger, vault: vault, timeout: timeout}
}

// CreateNotarization returns the existing proof id for the agreement or creates a new proof.
// The boolean is true when a proof was created by this call.
func (c Client) CreateNotarization(ctx context.Context, agreementID, contentHash string, signers []identity.Identity, creator identity.Identity, templateType string) (string, bool, error) {
	existing, found, err := c.GetProofByAgreement(ctx, agreementID)
	if err != nil {
		return "", false, errors.New("looking up the proof of the agreement failed: " + err.Error())
	}
	if found {
		c.logger.Debug("reusing the existing notarization proof", zap.String("agreementID", agreementID), zap.String("proofID", existing.ID))
		return existing.ID, false, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	proofID, err := c.vault.CreateNotarization(callCtx, agreementID, contentHash, signers, creator, templateType)
	if errors.Is(err, ledger.ErrProofExists) {
		// lost a race with a concurrent finalization, the stored proof wins
		existing, found, lookupErr := c.GetProofByAgreement(ctx, agreementID)
		if lookupErr != nil {
			return "", false, errors.New("proof exists but could not be read back: " + lookupErr.Error())
		}
		if !found {
			return "", false, errors.New("proof of agreement " + agreementID + " exists but could not be found")
		}
		return existing.ID, false, nil
	}
	if err != nil {
		return "", false, errors.New("creating the notarization proof failed: " + err.Error())
	}

	c.logger.Info("notarization proof created", zap.String("agreementID", agreementID), zap.String("proofID", proofID))

	return proofID, true, nil
}

// AddChainProof appends the chain proof. An entry already recorded under the same chain name
// is reported as (false, nil): the append is idempotent per (proof id, chain name).
func (c Client) AddChainProof(ctx context.Context, caller identity.Identity, proofID string, chainProof model.ChainProof) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ok, err := c.vault.AddChainProof(callCtx, caller, proofID, chainProof)
	if errors.Is(err, ledger.ErrChainProofExists) {
		c.logger.Info("chain proof already recorded, skipping", zap.String("proofID", proofID), zap.String("chain", chainProof.ChainName))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errors.New("the vault refused the " + chainProof.ChainName + " chain proof")
	}

	return true, nil
}

func (c Client) GetProof(ctx context.Context, id string) (model.NotarizationProof, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.vault.GetProof(callCtx, id)
}

func (c Client) GetProofByAgreement(ctx context.Context, agreementID string) (model.NotarizationProof, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.vault.GetProofByAgreement(callCtx, agreementID)
}

func (c Client) GetAllProofs(ctx context.Context) ([]model.NotarizationProof, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.vault.GetAllProofs(callCtx)
}

// VerifyProof compares the stored content hash of the proof with contentHash.
func (c Client) VerifyProof(ctx context.Context, id, contentHash string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.vault.VerifyProof(callCtx, id, contentHash)
}
