package app

import (
	"agreement-notary/internal/identity"
	"agreement-notary/internal/ledger"
	"agreement-notary/internal/saga"
	"agreement-notary/internal/vault"
	"agreement-notary/internal/wallet"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrUnverifiedCaller       = errors.New("the caller identity could not be verified")
	ErrNotCreator             = errors.New("only the creator of the agreement may do this")
	ErrFinalizationInProgress = errors.New("the agreement is already being finalized")
)

// App is the caller of the finalization saga: it resolves identities, records signatures and
// starts the finalization once the last party has signed.
type App struct {
	logger        *zap.Logger
	resolver      identity.Resolver
	agreements    ledger.AgreementStore
	vault         vault.Client
	orchestrator  *saga.Orchestrator
	sessions      *wallet.Registry
	network       NetworkStatus
	chains        CertificateChains
	inflight      *inflight
	activeChainID int64
}

func NewApp(logger *zap.Logger, agreements ledger.AgreementStore, vaultClient vault.Client, orchestrator *saga.Orchestrator, sessions *wallet.Registry, network NetworkStatus, chains CertificateChains, activeChainID int64) App {
	return App{
		logger:        logger,
		resolver:      identity.NewResolver(logger),
		agreements:    agreements,
		vault:         vaultClient,
		orchestrator:  orchestrator,
		sessions:      sessions,
		network:       network,
		chains:        chains,
		inflight:      newInflight(),
		activeChainID: activeChainID,
	}
}

// ResolveIdentity maps an account address or principal text onto a principal.
func (a App) ResolveIdentity(input string) identity.Resolution {
	return a.resolver.Resolve(input)
}

// Caller resolves the authenticated caller. Unverified inputs are refused here since
// they would all act as the anonymous identity.
func (a App) Caller(input string) (identity.Identity, error) {
	resolution := a.resolver.Resolve(input)
	if !resolution.Verified {
		return "", ErrUnverifiedCaller
	}
	return resolution.Identity, nil
}

func inputError(message string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, message)
}
