package app

import "github.com/sasha-s/go-deadlock"

// inflight tracks agreements whose finalization is running in this process.
type inflight struct {
	mu     *deadlock.Mutex
	active map[string]bool
}

func newInflight() *inflight {
	return &inflight{mu: &deadlock.Mutex{}, active: make(map[string]bool)}
}

// acquire returns false when the agreement is already being finalized.
func (f *inflight) acquire(agreementID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.active[agreementID] {
		return false
	}
	f.active[agreementID] = true
	return true
}

func (f *inflight) release(agreementID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, agreementID)
}
