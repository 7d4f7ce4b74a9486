package app

import (
	"agreement-notary/internal/identity"
	"agreement-notary/internal/saga"
	"context"

	"go.uber.org/zap"
)

// Finalize runs or resumes the finalization with the caller's wallet session, if connected.
// A second finalization of the same agreement is refused while one is running.
func (a App) Finalize(ctx context.Context, caller identity.Identity, id string) (saga.FinalizationStatus, error) {
	if !a.inflight.acquire(id) {
		return saga.FinalizationStatus{}, ErrFinalizationInProgress
	}
	defer a.inflight.release(id)

	session, connected := a.sessions.Session(caller)
	if !connected {
		a.logger.Debug("no wallet session for the finalizing party", zap.String("agreementID", id), zap.String("caller", caller.String()))
	}

	return a.orchestrator.Finalize(ctx, id, caller, session)
}

// FinalizationStatus returns the recorded saga state, NotStarted when none exists.
func (a App) FinalizationStatus(ctx context.Context, id string) (saga.FinalizationStatus, error) {
	if _, err := a.GetAgreement(ctx, id); err != nil {
		return saga.FinalizationStatus{}, err
	}

	status, found, err := a.orchestrator.Status(ctx, id)
	if err != nil {
		return saga.FinalizationStatus{}, err
	}
	if !found {
		return saga.NewFinalizationStatus(id), nil
	}
	return status, nil
}
