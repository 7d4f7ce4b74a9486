package wallet

import (
	"agreement-notary/internal/identity"
	"time"

	cache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Registry holds the connected wallet sessions, keyed by the identity their account resolves to.
type Registry struct {
	logger   *zap.Logger
	sessions *cache.Cache
}

func NewRegistry(logger *zap.Logger, ttl time.Duration) *Registry {
	return &Registry{
		logger:   logger,
		sessions: cache.New(ttl, 2*ttl),
	}
}

// Connect registers the session for its account. A zero ttl applies the registry default,
// a negative one keeps the session until it is disconnected.
func (r *Registry) Connect(session Session, ttl time.Duration) identity.Identity {
	id := IdentityOf(session)

	expiration := cache.DefaultExpiration
	if ttl < 0 {
		expiration = cache.NoExpiration
	} else if ttl > 0 {
		expiration = ttl
	}
	r.sessions.Set(string(id), session, expiration)

	r.logger.Info("wallet session connected",
		zap.String("address", session.Address().Hex()),
		zap.String("identity", id.String()),
		zap.Int64("chainID", session.ChainID()))

	return id
}

func (r *Registry) Session(id identity.Identity) (Session, bool) {
	value, ok := r.sessions.Get(string(id))
	if !ok {
		return nil, false
	}
	session, ok := value.(Session)
	return session, ok
}

func (r *Registry) Disconnect(id identity.Identity) {
	r.sessions.Delete(string(id))
}

// IdentityOf is the ledger identity of the session's account.
func IdentityOf(session Session) identity.Identity {
	return identity.FromAccountAddress(session.Address().Hex())
}
