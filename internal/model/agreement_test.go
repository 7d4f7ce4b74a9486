package model_test

import (
	"agreement-notary/internal/hashing"
	"agreement-notary/internal/identity"
	"agreement-notary/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = identity.EncodePrincipal([]byte("alice"))
	bob   = identity.EncodePrincipal([]byte("bob"))
	carol = identity.EncodePrincipal([]byte("carol"))
)

func newTestAgreement(t *testing.T, parties ...identity.Identity) model.Agreement {
	agreement, err := model.NewAgreement("nda", "Mutual NDA", hashing.ContentHash([]byte("document")), alice, parties, time.Unix(100, 0))
	require.NoError(t, err)
	return agreement
}

func TestNewAgreementValidation(t *testing.T) {
	_, err := model.NewAgreement("", "", "nothex", "", nil, time.Now())
	assert.ErrorIs(t, err, model.ErrInvalidAgreement)
	assert.Contains(t, err.Error(), "title is missing")
	assert.Contains(t, err.Error(), "template type is missing")
	assert.Contains(t, err.Error(), "content hash")
	assert.Contains(t, err.Error(), "creator is missing")
}

func TestNewAgreementStatus(t *testing.T) {
	draft := newTestAgreement(t)
	assert.Equal(t, model.StatusDraft, draft.Status)
	assert.NotEmpty(t, draft.ID)

	pending := newTestAgreement(t, alice, bob)
	assert.Equal(t, model.StatusPending, pending.Status)
	assert.Equal(t, []identity.Identity{alice, bob}, pending.Parties)
}

func TestDuplicatePartiesRejected(t *testing.T) {
	_, err := model.NewAgreement("nda", "t", hashing.ContentHash([]byte("d")), alice, []identity.Identity{bob, bob}, time.Now())
	assert.ErrorIs(t, err, model.ErrDuplicateParty)
}

func TestAddPartiesOnlyWhileDraft(t *testing.T) {
	agreement := newTestAgreement(t)
	require.NoError(t, agreement.AddParties([]identity.Identity{bob}, time.Now()))
	assert.Equal(t, model.StatusPending, agreement.Status)

	err := agreement.AddParties([]identity.Identity{carol}, time.Now())
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestSign(t *testing.T) {
	agreement := newTestAgreement(t, alice, bob)

	_, err := agreement.Sign(carol, time.Now())
	assert.ErrorIs(t, err, model.ErrNotAParty)

	signature, err := agreement.Sign(alice, time.Unix(200, 0))
	require.NoError(t, err)
	assert.Equal(t, identity.SignatureHash(alice), signature.SignatureHash)
	assert.False(t, agreement.ReadyForFinalization())

	_, err = agreement.Sign(alice, time.Now())
	assert.ErrorIs(t, err, model.ErrAlreadySigned)

	_, err = agreement.Sign(bob, time.Unix(300, 0))
	require.NoError(t, err)

	// the last signature makes it ready but does not set Signed
	assert.Equal(t, model.StatusPending, agreement.Status)
	assert.True(t, agreement.ReadyForFinalization())
	assert.Len(t, agreement.Signatures, len(agreement.Parties))
	assert.Equal(t, time.Unix(300, 0), agreement.LastSignedAt(time.Time{}))
}

func TestTransitions(t *testing.T) {
	agreement := newTestAgreement(t, alice, bob)

	assert.ErrorIs(t, agreement.Transition(model.StatusSigned, time.Now()), model.ErrNotFullySigned)
	assert.ErrorIs(t, agreement.Transition(model.StatusDraft, time.Now()), model.ErrInvalidTransition)

	_, _ = agreement.Sign(alice, time.Now())
	_, _ = agreement.Sign(bob, time.Now())
	require.NoError(t, agreement.Transition(model.StatusSigned, time.Now()))

	for _, to := range []model.Status{model.StatusDraft, model.StatusPending, model.StatusCancelled} {
		assert.ErrorIs(t, agreement.Transition(to, time.Now()), model.ErrInvalidTransition)
	}

	_, err := agreement.Sign(alice, time.Now())
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestCancel(t *testing.T) {
	draft := newTestAgreement(t)
	require.NoError(t, draft.Transition(model.StatusCancelled, time.Now()))
	assert.True(t, draft.Status.IsTerminal())

	_, err := draft.Sign(alice, time.Now())
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestStatusText(t *testing.T) {
	for _, status := range []model.Status{model.StatusDraft, model.StatusPending, model.StatusSigned, model.StatusCancelled} {
		text, err := status.MarshalText()
		require.NoError(t, err)

		var parsed model.Status
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, status, parsed)
	}

	_, err := model.ParseStatus("Archived")
	assert.Error(t, err)
}

func TestUserStats(t *testing.T) {
	pending := newTestAgreement(t, alice)
	draft := newTestAgreement(t)
	signed := newTestAgreement(t, alice)
	_, _ = signed.Sign(alice, time.Now())
	require.NoError(t, signed.Transition(model.StatusSigned, time.Now()))

	stats := model.ComputeUserStats([]model.Agreement{pending, draft, signed})
	assert.Equal(t, model.UserStats{Total: 3, PendingSignatures: 1, Signed: 1}, stats)
}
