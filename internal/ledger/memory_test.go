package ledger_test

import (
	"agreement-notary/internal/hashing"
	"agreement-notary/internal/identity"
	"agreement-notary/internal/ledger"
	"agreement-notary/internal/model"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = identity.EncodePrincipal([]byte("alice"))
	bob   = identity.EncodePrincipal([]byte("bob"))
	carol = identity.EncodePrincipal([]byte("carol"))

	contentHash = hashing.ContentHash([]byte("contract body"))
)

func TestAgreementLifecycle(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryAgreementStore()

	id, err := store.CreateAgreement(ctx, alice, "nda", "NDA", contentHash, []identity.Identity{alice, bob})
	require.NoError(t, err)

	ok, err := store.SignAgreement(ctx, id, carol)
	assert.False(t, ok)
	assert.ErrorIs(t, err, model.ErrNotAParty)

	ok, err = store.SignAgreement(ctx, id, alice)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SignAgreement(ctx, id, alice)
	assert.False(t, ok)
	assert.ErrorIs(t, err, model.ErrAlreadySigned)

	ok, err = store.SignAgreement(ctx, id, bob)
	require.NoError(t, err)
	assert.True(t, ok)

	agreement, found, err := store.GetAgreement(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.StatusPending, agreement.Status)
	assert.True(t, agreement.ReadyForFinalization())

	ok, err = store.UpdateStatus(ctx, id, model.StatusSigned)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UpdateStatus(ctx, id, model.StatusCancelled)
	assert.False(t, ok)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestAgreementNotFound(t *testing.T) {
	store := ledger.NewMemoryAgreementStore()

	_, found, err := store.GetAgreement(context.Background(), "missing")
	assert.NoError(t, err)
	assert.False(t, found)

	_, err = store.SignAgreement(context.Background(), "missing", alice)
	assert.ErrorIs(t, err, ledger.ErrAgreementNotFound)
}

func TestUserAgreementsAndStats(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryAgreementStore()

	first, err := store.CreateAgreement(ctx, alice, "nda", "first", contentHash, []identity.Identity{bob})
	require.NoError(t, err)
	_, err = store.CreateAgreement(ctx, carol, "lease", "second", contentHash, []identity.Identity{carol})
	require.NoError(t, err)

	_, err = store.SignAgreement(ctx, first, bob)
	require.NoError(t, err)
	_, err = store.UpdateStatus(ctx, first, model.StatusSigned)
	require.NoError(t, err)

	agreements, err := store.GetUserAgreements(ctx, bob)
	require.NoError(t, err)
	require.Len(t, agreements, 1)
	assert.Equal(t, first, agreements[0].ID)

	stats, err := store.GetUserStats(ctx, carol)
	require.NoError(t, err)
	assert.Equal(t, model.UserStats{Total: 1, PendingSignatures: 1}, stats)

	stats, err = store.GetUserStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, model.UserStats{Total: 1, Signed: 1}, stats)
}

func TestReturnedAgreementIsACopy(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryAgreementStore()

	id, err := store.CreateAgreement(ctx, alice, "nda", "NDA", contentHash, []identity.Identity{bob})
	require.NoError(t, err)

	agreement, _, _ := store.GetAgreement(ctx, id)
	agreement.Parties[0] = carol

	stored, _, _ := store.GetAgreement(ctx, id)
	assert.Equal(t, bob, stored.Parties[0])
}

func TestProofVault(t *testing.T) {
	ctx := context.Background()
	vault := ledger.NewMemoryProofVault()

	id, err := vault.CreateNotarization(ctx, "agreement-1", contentHash, []identity.Identity{alice, bob}, alice, "nda")
	require.NoError(t, err)

	_, err = vault.CreateNotarization(ctx, "agreement-1", contentHash, nil, alice, "nda")
	assert.ErrorIs(t, err, ledger.ErrProofExists)

	proof, found, err := vault.GetProofByAgreement(ctx, "agreement-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, proof.ID)
	assert.Empty(t, proof.Chains)

	chainProof := model.ChainProof{ChainName: model.ChainConstellation, TxHash: "dag_1", Timestamp: time.Now()}

	ok, err := vault.AddChainProof(ctx, carol, id, chainProof)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ledger.ErrNotAuthorized)

	ok, err = vault.AddChainProof(ctx, bob, id, chainProof)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = vault.AddChainProof(ctx, bob, id, chainProof)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ledger.ErrChainProofExists)

	ok, err = vault.AddChainProof(ctx, bob, "missing", chainProof)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ledger.ErrProofNotFound)

	proof, _, _ = vault.GetProof(ctx, id)
	assert.Len(t, proof.Chains, 1)

	all, err := vault.GetAllProofs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestVerifyProof(t *testing.T) {
	ctx := context.Background()
	vault := ledger.NewMemoryProofVault()

	id, err := vault.CreateNotarization(ctx, "agreement-1", contentHash, []identity.Identity{alice}, alice, "nda")
	require.NoError(t, err)

	valid, err := vault.VerifyProof(ctx, id, contentHash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = vault.VerifyProof(ctx, id, hashing.ContentHash([]byte("tampered")))
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = vault.VerifyProof(ctx, "missing", contentHash)
	require.NoError(t, err)
	assert.False(t, valid)
}
