package saga_test

import (
	"agreement-notary/internal/certificate"
	"agreement-notary/internal/dag"
	"agreement-notary/internal/hashing"
	"agreement-notary/internal/identity"
	"agreement-notary/internal/ledger"
	"agreement-notary/internal/model"
	"agreement-notary/internal/saga"
	"agreement-notary/internal/vault"
	"agreement-notary/internal/wallet"
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	alice = identity.EncodePrincipal([]byte("alice"))
	bob   = identity.EncodePrincipal([]byte("bob"))
	carol = identity.EncodePrincipal([]byte("carol"))

	contentHash = hashing.ContentHash([]byte("lease body"))
)

type fakeValidator struct {
	calls int
	fail  bool
}

func (v *fakeValidator) Validate(_ context.Context, request dag.ValidationRequest) dag.ValidationResult {
	v.calls++
	if v.fail {
		return dag.ValidationResult{Success: false, Error: "could not connect to the validation network"}
	}
	hash, err := dag.ComputeDagHash(request, 1000)
	if err != nil {
		return dag.ValidationResult{Success: false, Error: err.Error()}
	}
	return dag.ValidationResult{Success: true, DagHash: hash, Ordinal: 1000, Timestamp: time.Now().UnixMilli()}
}

type fakeMinter struct {
	calls        int
	resumes      int
	result       certificate.MintResult
	resumeResult certificate.MintResult
	resumedChain int64
	resumedRef   string
	metadata     certificate.CertificateMetadata
}

func (m *fakeMinter) Mint(_ context.Context, session wallet.Session, metadata certificate.CertificateMetadata, sent func(txRef string)) certificate.MintResult {
	m.calls++
	m.metadata = metadata
	if session == nil {
		return certificate.MintResult{Success: false, Error: "no wallet connected", Precondition: true}
	}
	if m.result.TokenID == "" && m.result.Error == "" {
		sent("0xabc")
		return certificate.MintResult{Success: true, TokenID: strconv.Itoa(m.calls), TxRef: "0xabc", BlockNumber: 77}
	}
	if m.result.TxRef != "" {
		sent(m.result.TxRef)
	}
	return m.result
}

func (m *fakeMinter) Resume(_ context.Context, chainID int64, txRef string) certificate.MintResult {
	m.resumes++
	m.resumedChain = chainID
	m.resumedRef = txRef
	return m.resumeResult
}

// failingAppendVault refuses the certificate chain proof once.
type failingAppendVault struct {
	ledger.ProofVault
	failed bool
}

func (v *failingAppendVault) AddChainProof(ctx context.Context, caller identity.Identity, proofID string, proof model.ChainProof) (bool, error) {
	if proof.ChainName == model.ChainEthereum && !v.failed {
		v.failed = true
		return false, errors.New("ledger unreachable")
	}
	return v.ProofVault.AddChainProof(ctx, caller, proofID, proof)
}

type fixture struct {
	agreements *ledger.MemoryAgreementStore
	vault      ledger.ProofVault
	validator  *fakeValidator
	minter     *fakeMinter
	states     *saga.MemoryStateStore
	session    wallet.Session
	orch       *saga.Orchestrator
}

func newFixture(t *testing.T, proofVault ledger.ProofVault) *fixture {
	if proofVault == nil {
		proofVault = ledger.NewMemoryProofVault()
	}
	session, err := wallet.NewHexKeySession(devKey, 84532)
	require.NoError(t, err)

	f := &fixture{
		agreements: ledger.NewMemoryAgreementStore(),
		vault:      proofVault,
		validator:  &fakeValidator{},
		minter:     &fakeMinter{},
		states:     saga.NewMemoryStateStore(),
		session:    session,
	}
	f.orch = f.orchestrator()
	return f
}

func (f *fixture) orchestrator() *saga.Orchestrator {
	logger := zap.NewNop()
	client := vault.NewClient(logger, f.vault, time.Second)
	return saga.NewOrchestrator(logger, f.agreements, client, f.validator, f.minter, f.states, time.Second)
}

func (f *fixture) signedAgreement(t *testing.T) string {
	ctx := context.Background()
	id, err := f.agreements.CreateAgreement(ctx, alice, "lease", "Lease", contentHash, []identity.Identity{alice, bob})
	require.NoError(t, err)

	for _, signer := range []identity.Identity{alice, bob} {
		ok, err := f.agreements.SignAgreement(ctx, id, signer)
		require.NoError(t, err)
		require.True(t, ok)
	}
	return id
}

func (f *fixture) status(t *testing.T, id string) model.Status {
	agreement, found, err := f.agreements.GetAgreement(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	return agreement.Status
}

func (f *fixture) proof(t *testing.T, agreementID string) model.NotarizationProof {
	proof, found, err := f.vault.GetProofByAgreement(context.Background(), agreementID)
	require.NoError(t, err)
	require.True(t, found)
	return proof
}

func TestFinalizeHappyPath(t *testing.T) {
	f := newFixture(t, nil)
	id := f.signedAgreement(t)

	status, err := f.orch.Finalize(context.Background(), id, bob, f.session)
	require.NoError(t, err)

	assert.Equal(t, saga.PhaseAgreementFinalized, status.Phase)
	assert.Equal(t, saga.StepSuccess, status.Vault)
	assert.Equal(t, saga.StepSuccess, status.Validation)
	assert.Equal(t, saga.StepSuccess, status.Mint)
	assert.Equal(t, "1", status.TokenID)
	assert.Equal(t, uint64(1000), status.Ordinal)
	assert.Equal(t, model.StatusSigned, f.status(t, id))

	proof := f.proof(t, id)
	assert.Equal(t, status.ProofID, proof.ID)
	require.Len(t, proof.Chains, 2)
	assert.Equal(t, model.ChainConstellation, proof.Chains[0].ChainName)
	assert.Equal(t, status.ValidationHash, proof.Chains[0].TxHash)
	assert.Equal(t, model.ChainEthereum, proof.Chains[1].ChainName)
	assert.Equal(t, "1", proof.Chains[1].TxHash)

	assert.Equal(t, status.ValidationHash, f.minter.metadata.DagHash)
	assert.Equal(t, proof.ID, f.minter.metadata.ProofID)

	stored, found, err := f.orch.Status(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, status, stored)
}

func TestFinalizeValidationUnreachable(t *testing.T) {
	f := newFixture(t, nil)
	id := f.signedAgreement(t)
	f.validator.fail = true

	status, err := f.orch.Finalize(context.Background(), id, bob, f.session)

	var stepErr *saga.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, saga.StepValidation, stepErr.Step)
	assert.Equal(t, saga.KindConnectivity, stepErr.Kind)

	assert.Equal(t, saga.PhaseError, status.Phase)
	assert.Equal(t, "ErrorAt(validation)", status.PhaseLabel())
	assert.Equal(t, saga.StepSuccess, status.Vault)
	assert.Equal(t, saga.StepFailed, status.Validation)
	assert.Equal(t, saga.StepPending, status.Mint)
	assert.NotEmpty(t, status.ProofID)

	assert.Empty(t, f.proof(t, id).Chains)
	assert.Equal(t, model.StatusPending, f.status(t, id))
	assert.Zero(t, f.minter.calls)
}

func TestFinalizeResumesWithTheSameProof(t *testing.T) {
	f := newFixture(t, nil)
	id := f.signedAgreement(t)
	f.validator.fail = true

	first, err := f.orch.Finalize(context.Background(), id, bob, f.session)
	require.Error(t, err)

	f.validator.fail = false
	second, err := f.orch.Finalize(context.Background(), id, bob, f.session)
	require.NoError(t, err)

	assert.Equal(t, first.ProofID, second.ProofID)
	assert.Empty(t, second.Error)

	proofs, err := f.vault.GetAllProofs(context.Background())
	require.NoError(t, err)
	assert.Len(t, proofs, 1)
}

func TestVaultStepIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	id := f.signedAgreement(t)
	client := vault.NewClient(zap.NewNop(), f.vault, time.Second)

	first, created, err := client.CreateNotarization(context.Background(), id, contentHash, []identity.Identity{alice, bob}, alice, "lease")
	require.NoError(t, err)
	assert.True(t, created)

	status, err := f.orch.Finalize(context.Background(), id, bob, f.session)
	require.NoError(t, err)
	assert.Equal(t, first, status.ProofID)
}

func TestFinalizeWithoutSession(t *testing.T) {
	f := newFixture(t, nil)
	id := f.signedAgreement(t)

	status, err := f.orch.Finalize(context.Background(), id, bob, nil)

	var stepErr *saga.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, saga.StepMint, stepErr.Step)
	assert.Equal(t, saga.KindPrecondition, stepErr.Kind)
	assert.ErrorIs(t, err, saga.ErrNoSession)
	assert.Equal(t, saga.StepSuccess, status.Validation)
	assert.NotEmpty(t, status.ValidationHash)
	assert.Zero(t, f.minter.calls)
	assert.Equal(t, model.StatusPending, f.status(t, id))

	// connecting a wallet and retrying skips the recorded validation
	status, err = f.orch.Finalize(context.Background(), id, bob, f.session)
	require.NoError(t, err)
	assert.Equal(t, 1, f.validator.calls)
	assert.Len(t, f.proof(t, id).Chains, 2)
	assert.Equal(t, saga.PhaseAgreementFinalized, status.Phase)
}

func TestMintFailureKinds(t *testing.T) {
	f := newFixture(t, nil)
	id := f.signedAgreement(t)
	f.minter.result = certificate.MintResult{Success: false, Error: "no certificate contract deployed on chain 1", Precondition: true}

	status, err := f.orch.Finalize(context.Background(), id, bob, f.session)
	var stepErr *saga.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, saga.KindPrecondition, stepErr.Kind)
	assert.Equal(t, saga.StepFailed, status.Mint)

	f.minter.result = certificate.MintResult{Success: false, Error: "timeout", TxRef: "0xdead"}
	status, err = f.orch.Finalize(context.Background(), id, bob, f.session)
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, saga.KindConnectivity, stepErr.Kind)
	assert.Equal(t, "0xdead", status.TxRef)
}

func TestMintedTokenIsNotMintedTwice(t *testing.T) {
	proofVault := &failingAppendVault{ProofVault: ledger.NewMemoryProofVault()}
	f := newFixture(t, proofVault)
	id := f.signedAgreement(t)

	status, err := f.orch.Finalize(context.Background(), id, bob, f.session)
	require.Error(t, err)
	assert.Equal(t, saga.StepMint, status.FailedStep)
	assert.Equal(t, "1", status.TokenID)

	// a restarted orchestrator over the same persisted state
	f.orch = f.orchestrator()
	status, err = f.orch.Finalize(context.Background(), id, bob, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, f.minter.calls)
	assert.Equal(t, "1", status.TokenID)
	proof := f.proof(t, id)
	ethereum, ok := proof.Chain(model.ChainEthereum)
	require.True(t, ok)
	assert.Equal(t, "1", ethereum.TxHash)
}

func TestFinalizeRejectsIncompleteAgreements(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	id, err := f.agreements.CreateAgreement(ctx, alice, "lease", "Lease", contentHash, []identity.Identity{alice, bob})
	require.NoError(t, err)
	_, err = f.agreements.SignAgreement(ctx, id, alice)
	require.NoError(t, err)

	_, err = f.orch.Finalize(ctx, id, alice, f.session)
	assert.ErrorIs(t, err, saga.ErrNotReady)

	_, err = f.orch.Finalize(ctx, "missing", alice, f.session)
	assert.ErrorIs(t, err, ledger.ErrAgreementNotFound)

	_, found, err := f.vault.GetProofByAgreement(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFinalizeByOutsiderIsRefused(t *testing.T) {
	f := newFixture(t, nil)
	id := f.signedAgreement(t)

	_, err := f.orch.Finalize(context.Background(), id, carol, f.session)
	assert.ErrorIs(t, err, ledger.ErrNotAuthorized)

	var stepErr *saga.StepError
	assert.False(t, errors.As(err, &stepErr))
	assert.Zero(t, f.validator.calls)
	assert.Zero(t, f.minter.calls)

	_, found, err := f.vault.GetProofByAgreement(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = f.orch.Status(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, found)

	// a signer finalizing afterwards mints with their own wallet
	status, err := f.orch.Finalize(context.Background(), id, bob, f.session)
	require.NoError(t, err)
	assert.Equal(t, 1, f.minter.calls)
	assert.Equal(t, "1", status.TokenID)
}

func TestUnconfirmedMintIsSettledNotResent(t *testing.T) {
	f := newFixture(t, nil)
	id := f.signedAgreement(t)
	f.minter.result = certificate.MintResult{Success: false, Error: "minting failed: context deadline exceeded", TxRef: "0xsent"}

	status, err := f.orch.Finalize(context.Background(), id, bob, f.session)
	require.Error(t, err)
	assert.Equal(t, "0xsent", status.TxRef)
	assert.Equal(t, int64(84532), status.MintChainID)
	assert.Empty(t, status.TokenID)

	f.minter.resumeResult = certificate.MintResult{Success: true, TokenID: "5", TxRef: "0xsent", BlockNumber: 90}
	f.orch = f.orchestrator()
	status, err = f.orch.Finalize(context.Background(), id, bob, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, f.minter.calls)
	assert.Equal(t, 1, f.minter.resumes)
	assert.Equal(t, int64(84532), f.minter.resumedChain)
	assert.Equal(t, "0xsent", f.minter.resumedRef)
	assert.Equal(t, "5", status.TokenID)
	assert.Equal(t, uint64(90), status.MintBlock)

	ethereum, ok := f.proof(t, id).Chain(model.ChainEthereum)
	require.True(t, ok)
	assert.Equal(t, "5", ethereum.TxHash)
}

func TestPendingMintBlocksANewMint(t *testing.T) {
	f := newFixture(t, nil)
	id := f.signedAgreement(t)
	f.minter.result = certificate.MintResult{Success: false, Error: "minting failed: context canceled", TxRef: "0xsent"}

	_, err := f.orch.Finalize(context.Background(), id, bob, f.session)
	require.Error(t, err)

	f.minter.result = certificate.MintResult{}
	f.minter.resumeResult = certificate.MintResult{Success: false, Error: "minting failed: context deadline exceeded", TxRef: "0xsent"}
	status, err := f.orch.Finalize(context.Background(), id, bob, f.session)

	var stepErr *saga.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, saga.KindConnectivity, stepErr.Kind)
	assert.Equal(t, 1, f.minter.calls)
	assert.Equal(t, "0xsent", status.TxRef)
}

func TestDroppedMintIsReplaced(t *testing.T) {
	f := newFixture(t, nil)
	id := f.signedAgreement(t)
	f.minter.result = certificate.MintResult{Success: false, Error: "minting failed: context canceled", TxRef: "0xsent"}

	_, err := f.orch.Finalize(context.Background(), id, bob, f.session)
	require.Error(t, err)

	f.minter.result = certificate.MintResult{}
	f.minter.resumeResult = certificate.MintResult{Success: false, Error: "minting failed: mint transaction is unknown to the chain", TxRef: "0xsent", NotMinted: true}
	status, err := f.orch.Finalize(context.Background(), id, bob, f.session)
	require.NoError(t, err)

	assert.Equal(t, 1, f.minter.resumes)
	assert.Equal(t, 2, f.minter.calls)
	assert.Equal(t, "0xabc", status.TxRef)
	assert.Equal(t, "2", status.TokenID)
}

func TestFinalizeTwiceIsANoop(t *testing.T) {
	f := newFixture(t, nil)
	id := f.signedAgreement(t)

	first, err := f.orch.Finalize(context.Background(), id, bob, f.session)
	require.NoError(t, err)

	second, err := f.orch.Finalize(context.Background(), id, alice, f.session)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.minter.calls)
	assert.Equal(t, 1, f.validator.calls)
	assert.Len(t, f.proof(t, id).Chains, 2)
}

// deadlineStore records whether every save was bounded.
type deadlineStore struct {
	*saga.MemoryStateStore
	saves     int
	unbounded int
}

func (s *deadlineStore) Save(ctx context.Context, status saga.FinalizationStatus) error {
	s.saves++
	if _, ok := ctx.Deadline(); !ok {
		s.unbounded++
	}
	return s.MemoryStateStore.Save(ctx, status)
}

func TestStateSavesAreBounded(t *testing.T) {
	f := newFixture(t, nil)
	id := f.signedAgreement(t)
	store := &deadlineStore{MemoryStateStore: f.states}

	client := vault.NewClient(zap.NewNop(), f.vault, time.Second)
	orch := saga.NewOrchestrator(zap.NewNop(), f.agreements, client, f.validator, f.minter, store, time.Second)

	_, err := orch.Finalize(context.Background(), id, bob, f.session)
	require.NoError(t, err)
	assert.NotZero(t, store.saves)
	assert.Zero(t, store.unbounded)
}
