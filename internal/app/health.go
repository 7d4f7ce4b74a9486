package app

import "context"

type NetworkStatus interface {
	NetworkAvailable(ctx context.Context) bool
}

type CertificateChains interface {
	ChainsWithContracts() []int64
}

type Health struct {
	ValidationNetwork bool
	CertificateChains []int64
	ActiveChainID     int64
	ActiveChainReady  bool
}

// Healthy is false when a finalization started now could not complete.
func (h Health) Healthy() bool {
	return h.ValidationNetwork && h.ActiveChainReady
}

func (a App) Health(ctx context.Context) Health {
	chains := a.CertificateChains()
	health := Health{
		ValidationNetwork: a.network.NetworkAvailable(ctx),
		CertificateChains: chains,
		ActiveChainID:     a.activeChainID,
	}
	for _, id := range chains {
		if id == a.activeChainID {
			health.ActiveChainReady = true
		}
	}
	return health
}

// CertificateChains lists the chains a certificate can be minted on.
func (a App) CertificateChains() []int64 {
	return a.chains.ChainsWithContracts()
}
