package app

import (
	"agreement-notary/internal/hashing"
	"agreement-notary/internal/ledger"
	"agreement-notary/internal/model"
	"context"
	"strings"
)

func (a App) GetProof(ctx context.Context, id string) (model.NotarizationProof, error) {
	proof, found, err := a.vault.GetProof(ctx, id)
	if err != nil {
		return model.NotarizationProof{}, err
	}
	if !found {
		return model.NotarizationProof{}, ledger.ErrProofNotFound
	}
	return proof, nil
}

func (a App) GetAgreementProof(ctx context.Context, agreementID string) (model.NotarizationProof, error) {
	proof, found, err := a.vault.GetProofByAgreement(ctx, agreementID)
	if err != nil {
		return model.NotarizationProof{}, err
	}
	if !found {
		return model.NotarizationProof{}, ledger.ErrProofNotFound
	}
	return proof, nil
}

func (a App) GetAllProofs(ctx context.Context) ([]model.NotarizationProof, error) {
	return a.vault.GetAllProofs(ctx)
}

// VerifyProof checks a document, or its hash, against the proof.
func (a App) VerifyProof(ctx context.Context, id string, content []byte, contentHash string) (bool, error) {
	if len(content) > 0 {
		contentHash = hashing.ContentHash(content)
	}
	contentHash = strings.ToLower(strings.TrimSpace(contentHash))
	if contentHash == "" {
		return false, inputError("content or content hash is required")
	}

	if _, err := a.GetProof(ctx, id); err != nil {
		return false, err
	}
	return a.vault.VerifyProof(ctx, id, contentHash)
}
