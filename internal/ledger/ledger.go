// Package ledger defines the request/response contracts of the canonical ledger services
// (agreement store and proof vault) together with in-process implementations.
package ledger

import (
	"agreement-notary/internal/identity"
	"agreement-notary/internal/model"
	"context"
	"errors"
)

var (
	ErrAgreementNotFound = errors.New("agreement not found")
	ErrProofNotFound     = errors.New("notarization proof not found")
	ErrProofExists       = errors.New("a notarization proof already exists for the agreement")
	ErrNotAuthorized     = errors.New("caller is neither the creator nor a signer of the proof")
	ErrChainProofExists  = errors.New("a chain proof with this chain name is already recorded")
)

// AgreementStore holds agreement state and signatures.
type AgreementStore interface {
	CreateAgreement(ctx context.Context, creator identity.Identity, templateType, title, contentHash string, parties []identity.Identity) (string, error)
	GetAgreement(ctx context.Context, id string) (model.Agreement, bool, error)
	GetUserAgreements(ctx context.Context, user identity.Identity) ([]model.Agreement, error)
	AddParties(ctx context.Context, id string, parties []identity.Identity) error
	// SignAgreement returns false with the reason when the signature was refused.
	SignAgreement(ctx context.Context, id string, signer identity.Identity) (bool, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) (bool, error)
	GetUserStats(ctx context.Context, user identity.Identity) (model.UserStats, error)
}

// ProofVault stores canonical notarization proofs with their append-only chain proofs.
type ProofVault interface {
	// CreateNotarization fails with ErrProofExists if the agreement already has a proof.
	CreateNotarization(ctx context.Context, agreementID, contentHash string, signers []identity.Identity, creator identity.Identity, templateType string) (string, error)
	// AddChainProof returns false with ErrChainProofExists when the chain name is already present,
	// or ErrNotAuthorized when caller may not append.
	AddChainProof(ctx context.Context, caller identity.Identity, proofID string, proof model.ChainProof) (bool, error)
	GetProof(ctx context.Context, id string) (model.NotarizationProof, bool, error)
	GetProofByAgreement(ctx context.Context, agreementID string) (model.NotarizationProof, bool, error)
	GetAllProofs(ctx context.Context) ([]model.NotarizationProof, error)
	VerifyProof(ctx context.Context, id, contentHash string) (bool, error)
}
