package model_test

import (
	"agreement-notary/internal/identity"
	"agreement-notary/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotarizationProof(t *testing.T) {
	now := time.Unix(0, 1700000000000000000)
	proof := model.NewNotarizationProof("agreement-1", "abc", []identity.Identity{alice, bob}, carol, "nda", now)

	assert.Equal(t, model.NewProofID("agreement-1", "abc", now), proof.ID)
	assert.Len(t, proof.ID, 64)
	assert.Equal(t, 2, proof.Metadata.TotalSignatures)
	assert.Empty(t, proof.Chains)

	assert.True(t, proof.MayAppend(carol))
	assert.True(t, proof.MayAppend(bob))
	assert.False(t, proof.MayAppend(identity.Anonymous))

	assert.False(t, proof.HasChain(model.ChainConstellation))
	proof.Chains = append(proof.Chains, model.ChainProof{ChainName: model.ChainConstellation, TxHash: "dag_x"})
	chain, ok := proof.Chain(model.ChainConstellation)
	assert.True(t, ok)
	assert.Equal(t, "dag_x", chain.TxHash)
}

func TestProofIDDependsOnTime(t *testing.T) {
	assert.NotEqual(t,
		model.NewProofID("a", "h", time.Unix(0, 1)),
		model.NewProofID("a", "h", time.Unix(0, 2)))
}
