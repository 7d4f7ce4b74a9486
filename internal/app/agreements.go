package app

import (
	"agreement-notary/internal/hashing"
	"agreement-notary/internal/identity"
	"agreement-notary/internal/ledger"
	"agreement-notary/internal/model"
	"agreement-notary/internal/saga"
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// NewAgreement is the creation request. Either the document content or its hash is given.
type NewAgreement struct {
	TemplateType string
	Title        string
	Content      []byte
	ContentHash  string
	Parties      []string
}

// SignResult carries the finalization outcome when the signature completed the agreement.
// A failed finalization does not undo the signature.
type SignResult struct {
	Agreement         model.Agreement
	Finalization      *saga.FinalizationStatus
	FinalizationError error
}

func (a App) CreateAgreement(ctx context.Context, creator identity.Identity, request NewAgreement) (string, error) {
	contentHash := strings.ToLower(strings.TrimSpace(request.ContentHash))
	if len(request.Content) > 0 {
		computed := hashing.ContentHash(request.Content)
		if contentHash != "" && contentHash != computed {
			return "", inputError("the content hash does not match the content")
		}
		contentHash = computed
	}

	parties, err := a.resolveParties(request.Parties)
	if err != nil {
		return "", err
	}

	id, err := a.agreements.CreateAgreement(ctx, creator, request.TemplateType, request.Title, contentHash, parties)
	if err != nil {
		return "", err
	}

	a.logger.Info("agreement created", zap.String("agreementID", id), zap.String("creator", creator.String()), zap.Int("parties", len(parties)))
	return id, nil
}

func (a App) GetAgreement(ctx context.Context, id string) (model.Agreement, error) {
	agreement, found, err := a.agreements.GetAgreement(ctx, id)
	if err != nil {
		return model.Agreement{}, err
	}
	if !found {
		return model.Agreement{}, ledger.ErrAgreementNotFound
	}
	return agreement, nil
}

// GetUserAgreements lists the agreements the user created or is a party of.
func (a App) GetUserAgreements(ctx context.Context, user string) ([]model.Agreement, error) {
	id, err := a.Caller(user)
	if err != nil {
		return nil, err
	}
	return a.agreements.GetUserAgreements(ctx, id)
}

func (a App) GetUserStats(ctx context.Context, user string) (model.UserStats, error) {
	id, err := a.Caller(user)
	if err != nil {
		return model.UserStats{}, err
	}
	return a.agreements.GetUserStats(ctx, id)
}

// AddParties completes a draft; only its creator may do it.
func (a App) AddParties(ctx context.Context, caller identity.Identity, id string, inputs []string) error {
	agreement, err := a.GetAgreement(ctx, id)
	if err != nil {
		return err
	}
	if agreement.Creator != caller {
		return ErrNotCreator
	}

	parties, err := a.resolveParties(inputs)
	if err != nil {
		return err
	}
	if len(parties) == 0 {
		return inputError("no parties given")
	}

	return a.agreements.AddParties(ctx, id, parties)
}

// Sign records the caller's signature. When it was the last one missing, the finalization
// starts right away with the caller's wallet session.
func (a App) Sign(ctx context.Context, caller identity.Identity, id string) (SignResult, error) {
	if _, err := a.agreements.SignAgreement(ctx, id, caller); err != nil {
		return SignResult{}, err
	}
	a.logger.Info("agreement signed", zap.String("agreementID", id), zap.String("signer", caller.String()))

	agreement, err := a.GetAgreement(ctx, id)
	if err != nil {
		return SignResult{}, err
	}
	if !agreement.ReadyForFinalization() {
		return SignResult{Agreement: agreement}, nil
	}

	a.logger.Info("all parties signed, finalizing", zap.String("agreementID", id))
	status, err := a.Finalize(ctx, caller, id)
	result := SignResult{Finalization: &status, FinalizationError: err}

	// read again: the commit step may have changed the status
	if result.Agreement, err = a.GetAgreement(ctx, id); err != nil {
		result.Agreement = agreement
	}
	return result, nil
}

// Cancel is allowed to the creator while the agreement is not final.
func (a App) Cancel(ctx context.Context, caller identity.Identity, id string) error {
	agreement, err := a.GetAgreement(ctx, id)
	if err != nil {
		return err
	}
	if agreement.Creator != caller {
		return ErrNotCreator
	}

	if _, err := a.agreements.UpdateStatus(ctx, id, model.StatusCancelled); err != nil {
		return err
	}
	a.logger.Info("agreement cancelled", zap.String("agreementID", id))
	return nil
}

func (a App) resolveParties(inputs []string) ([]identity.Identity, error) {
	parties, unverified := a.resolver.ResolveAll(inputs)
	if len(unverified) > 0 {
		return nil, inputError("unrecognized party identities: " + strings.Join(unverified, ", "))
	}
	return parties, nil
}

// IsNotFound reports errors that mean the requested record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ledger.ErrAgreementNotFound) || errors.Is(err, ledger.ErrProofNotFound)
}
