package saga

import (
	"agreement-notary/internal/certificate"
	"agreement-notary/internal/dag"
	"agreement-notary/internal/identity"
	"agreement-notary/internal/ledger"
	"agreement-notary/internal/model"
	"agreement-notary/internal/vault"
	"agreement-notary/internal/wallet"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotReady  = errors.New("not every party has signed the agreement")
	ErrNoSession = errors.New("no wallet session connected for the finalizing party")
)

// Validator commits agreements to the validation network.
type Validator interface {
	Validate(ctx context.Context, request dag.ValidationRequest) dag.ValidationResult
}

// Minter mints certificates; it bounds its own chain calls.
// Resume settles a mint whose transaction was sent by an earlier run.
type Minter interface {
	Mint(ctx context.Context, session wallet.Session, metadata certificate.CertificateMetadata, sent func(txRef string)) certificate.MintResult
	Resume(ctx context.Context, chainID int64, txRef string) certificate.MintResult
}

// Orchestrator drives an agreement through vault, validation, mint and commit.
// Steps run strictly in order and are never retried automatically: the caller re-invokes
// Finalize, and every step first checks whether its effect is already recorded.
type Orchestrator struct {
	logger      *zap.Logger
	agreements  ledger.AgreementStore
	vault       vault.Client
	validator   Validator
	minter      Minter
	states      StateStore
	stepTimeout time.Duration
	now         func() time.Time
}

func NewOrchestrator(logger *zap.Logger, agreements ledger.AgreementStore, vaultClient vault.Client, validator Validator, minter Minter, states StateStore, stepTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		logger:      logger,
		agreements:  agreements,
		vault:       vaultClient,
		validator:   validator,
		minter:      minter,
		states:      states,
		stepTimeout: stepTimeout,
		now:         time.Now,
	}
}

// Status returns the last recorded finalization state of the agreement.
func (o *Orchestrator) Status(ctx context.Context, agreementID string) (FinalizationStatus, bool, error) {
	return o.states.Load(ctx, agreementID)
}

// Finalize runs or resumes the finalization of a fully signed agreement on behalf of caller.
// session is the caller's wallet and is only needed when a certificate still has to be minted.
//
// Only the creator or a signer may finalize; the check runs before any external call.
// Entry condition failures are returned as plain errors (ErrNotReady, ledger.ErrAgreementNotFound,
// ledger.ErrNotAuthorized).
// Step failures are returned as *StepError together with the partial status.
// Concurrent calls for the same agreement must be prevented by the caller.
func (o *Orchestrator) Finalize(ctx context.Context, agreementID string, caller identity.Identity, session wallet.Session) (FinalizationStatus, error) {
	agreement, err := o.loadAgreement(ctx, agreementID)
	if err != nil {
		return FinalizationStatus{}, err
	}
	if !agreement.ReadyForFinalization() && agreement.Status != model.StatusSigned {
		return FinalizationStatus{}, ErrNotReady
	}
	if caller != agreement.Creator && !agreement.HasSigned(caller) {
		return FinalizationStatus{}, fmt.Errorf("%w: %s is neither the creator nor a signer of agreement %s", ledger.ErrNotAuthorized, caller, agreementID)
	}

	loadCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	state, found, err := o.states.Load(loadCtx, agreementID)
	cancel()
	if err != nil {
		return FinalizationStatus{}, errors.New("failed to load the finalization state: " + err.Error())
	}
	if !found {
		state = NewFinalizationStatus(agreementID)
	}
	if state.Finalized() && agreement.Status == model.StatusSigned {
		return state, nil
	}
	state.clearError()

	logger := o.logger.With(zap.String("agreementID", agreementID), zap.String("caller", caller.String()))
	logger.Info("finalization started", zap.String("phase", state.PhaseLabel()))

	proof, err := o.vaultStep(ctx, logger, &state, agreement)
	if err != nil {
		return state, err
	}

	if proof, err = o.validationStep(ctx, logger, &state, agreement, proof, caller); err != nil {
		return state, err
	}

	if err = o.mintStep(ctx, logger, &state, agreement, proof, caller, session); err != nil {
		return state, err
	}

	if err = o.commitStep(ctx, logger, &state, agreement); err != nil {
		return state, err
	}

	logger.Info("finalization completed",
		zap.String("proofID", state.ProofID),
		zap.String("dagHash", state.ValidationHash),
		zap.String("tokenID", state.TokenID))

	return state, nil
}

func (o *Orchestrator) loadAgreement(ctx context.Context, agreementID string) (model.Agreement, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	agreement, found, err := o.agreements.GetAgreement(callCtx, agreementID)
	if err != nil {
		return model.Agreement{}, errors.New("failed to read the agreement: " + err.Error())
	}
	if !found {
		return model.Agreement{}, ledger.ErrAgreementNotFound
	}
	return agreement, nil
}

// vaultStep looks up or creates the notarization proof.
func (o *Orchestrator) vaultStep(ctx context.Context, logger *zap.Logger, state *FinalizationStatus, agreement model.Agreement) (model.NotarizationProof, error) {
	o.begin(ctx, logger, state, StepVault, PhaseVaultPending)

	proofID, created, err := o.vault.CreateNotarization(ctx, agreement.ID, agreement.ContentHash, agreement.Signers(), agreement.Creator, agreement.TemplateType)
	if err != nil {
		return model.NotarizationProof{}, o.fail(ctx, logger, state, StepVault, KindConnectivity, err)
	}
	state.ProofID = proofID

	proof, found, err := o.vault.GetProof(ctx, proofID)
	if err != nil {
		return model.NotarizationProof{}, o.fail(ctx, logger, state, StepVault, KindConnectivity, err)
	}
	if !found {
		return model.NotarizationProof{}, o.fail(ctx, logger, state, StepVault, KindConsistency, errors.New("proof "+proofID+" vanished after creation"))
	}

	o.done(ctx, logger, state, StepVault, PhaseVaultDone, zap.String("proofID", proofID), zap.Bool("created", created))
	return proof, nil
}

// validationStep commits to the validation network unless the proof already carries its chain proof.
func (o *Orchestrator) validationStep(ctx context.Context, logger *zap.Logger, state *FinalizationStatus, agreement model.Agreement, proof model.NotarizationProof, caller identity.Identity) (model.NotarizationProof, error) {
	if recorded, ok := proof.Chain(model.ChainConstellation); ok {
		state.ValidationHash = recorded.TxHash
		if recorded.BlockNumber != nil {
			state.Ordinal = *recorded.BlockNumber
		}
		o.done(ctx, logger, state, StepValidation, PhaseValidationDone, zap.Bool("recorded", true))
		return proof, nil
	}

	o.begin(ctx, logger, state, StepValidation, PhaseValidationPending)

	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	result := o.validator.Validate(stepCtx, validationRequest(agreement, proof, o.now()))
	cancel()
	if !result.Success {
		return proof, o.fail(ctx, logger, state, StepValidation, KindConnectivity, errors.New(result.Error))
	}
	state.ValidationHash = result.DagHash
	state.Ordinal = result.Ordinal

	ordinal := result.Ordinal
	chainProof := model.ChainProof{
		ChainName:   model.ChainConstellation,
		TxHash:      result.DagHash,
		BlockNumber: &ordinal,
		Timestamp:   time.UnixMilli(result.Timestamp),
	}

	proof, err := o.appendChainProof(ctx, caller, proof, chainProof)
	if err != nil {
		return proof, o.fail(ctx, logger, state, StepValidation, appendErrorKind(err), err)
	}

	// a concurrent append may have won, the stored entry is authoritative
	if recorded, ok := proof.Chain(model.ChainConstellation); ok {
		state.ValidationHash = recorded.TxHash
		if recorded.BlockNumber != nil {
			state.Ordinal = *recorded.BlockNumber
		}
	}

	o.done(ctx, logger, state, StepValidation, PhaseValidationDone, zap.String("dagHash", state.ValidationHash), zap.Uint64("ordinal", state.Ordinal))
	return proof, nil
}

// mintStep mints the certificate unless one is recorded on the proof or a previous run already
// minted it. The transaction reference is persisted as soon as the mint is sent and the token id
// before the vault append, so a retry settles the earlier transaction instead of minting again.
func (o *Orchestrator) mintStep(ctx context.Context, logger *zap.Logger, state *FinalizationStatus, agreement model.Agreement, proof model.NotarizationProof, caller identity.Identity, session wallet.Session) error {
	if recorded, ok := proof.Chain(model.ChainEthereum); ok {
		state.TokenID = recorded.TxHash
		o.done(ctx, logger, state, StepMint, PhaseMintDone, zap.Bool("recorded", true))
		return nil
	}

	o.begin(ctx, logger, state, StepMint, PhaseMintPending)

	if state.TokenID == "" && state.TxRef != "" {
		result := o.minter.Resume(ctx, state.MintChainID, state.TxRef)
		switch {
		case result.Success:
			o.minted(ctx, logger, state, result)
		case result.NotMinted:
			logger.Warn("earlier mint transaction minted nothing, minting again: "+result.Error, zap.String("txRef", state.TxRef))
			state.TxRef = ""
			state.MintChainID = 0
			o.save(ctx, logger, state)
		default:
			return o.fail(ctx, logger, state, StepMint, mintErrorKind(result), errors.New(result.Error))
		}
	}

	if state.TokenID == "" {
		if session == nil {
			return o.fail(ctx, logger, state, StepMint, KindPrecondition, ErrNoSession)
		}

		metadata := certificate.CertificateMetadata{
			AgreementID: agreement.ID,
			Title:       agreement.Title,
			ContentHash: agreement.ContentHash,
			ProofID:     proof.ID,
			DagHash:     state.ValidationHash,
			Parties:     agreement.Parties,
			CreatedAt:   agreement.CreatedAt,
			SignedAt:    agreement.LastSignedAt(agreement.UpdatedAt),
			ChainProofs: proof.Chains,
		}
		result := o.minter.Mint(ctx, session, metadata, func(txRef string) {
			state.TxRef = txRef
			state.MintChainID = session.ChainID()
			o.save(ctx, logger, state)
		})
		if !result.Success {
			if result.NotMinted {
				state.TxRef = ""
				state.MintChainID = 0
			} else if result.TxRef != "" {
				state.TxRef = result.TxRef
			}
			return o.fail(ctx, logger, state, StepMint, mintErrorKind(result), errors.New(result.Error))
		}
		o.minted(ctx, logger, state, result)
	} else {
		logger.Info("certificate already minted, recording it", zap.String("tokenID", state.TokenID))
	}

	block := state.MintBlock
	chainProof := model.ChainProof{
		ChainName:   model.ChainEthereum,
		TxHash:      state.TokenID,
		BlockNumber: &block,
		Timestamp:   o.now(),
	}
	if _, err := o.appendChainProof(ctx, caller, proof, chainProof); err != nil {
		return o.fail(ctx, logger, state, StepMint, appendErrorKind(err), err)
	}

	o.done(ctx, logger, state, StepMint, PhaseMintDone, zap.String("tokenID", state.TokenID), zap.String("txRef", state.TxRef))
	return nil
}

func (o *Orchestrator) minted(ctx context.Context, logger *zap.Logger, state *FinalizationStatus, result certificate.MintResult) {
	state.TokenID = result.TokenID
	state.TxRef = result.TxRef
	state.MintBlock = result.BlockNumber
	o.save(ctx, logger, state)
}

func mintErrorKind(result certificate.MintResult) ErrorKind {
	if result.Precondition {
		return KindPrecondition
	}
	return KindConnectivity
}

// commitStep is the only step that changes the agreement's visible status.
func (o *Orchestrator) commitStep(ctx context.Context, logger *zap.Logger, state *FinalizationStatus, agreement model.Agreement) error {
	if agreement.Status != model.StatusSigned {
		callCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
		ok, err := o.agreements.UpdateStatus(callCtx, agreement.ID, model.StatusSigned)
		cancel()
		if err != nil {
			return o.fail(ctx, logger, state, StepCommit, KindConnectivity, err)
		}
		if !ok {
			return o.fail(ctx, logger, state, StepCommit, KindConsistency, errors.New("the agreement store refused the Signed status"))
		}
	}

	state.Phase = PhaseAgreementFinalized
	o.save(ctx, logger, state)
	return nil
}

// appendChainProof appends and returns the proof as stored afterwards.
func (o *Orchestrator) appendChainProof(ctx context.Context, caller identity.Identity, proof model.NotarizationProof, chainProof model.ChainProof) (model.NotarizationProof, error) {
	if _, err := o.vault.AddChainProof(ctx, caller, proof.ID, chainProof); err != nil {
		return proof, err
	}

	stored, found, err := o.vault.GetProof(ctx, proof.ID)
	if err != nil {
		return proof, err
	}
	if !found {
		return proof, errors.New("proof " + proof.ID + " not found after appending the " + chainProof.ChainName + " chain proof")
	}
	return stored, nil
}

func appendErrorKind(err error) ErrorKind {
	if errors.Is(err, ledger.ErrNotAuthorized) {
		return KindPrecondition
	}
	if errors.Is(err, ledger.ErrProofNotFound) {
		return KindConsistency
	}
	return KindConnectivity
}

func validationRequest(agreement model.Agreement, proof model.NotarizationProof, now time.Time) dag.ValidationRequest {
	return dag.ValidationRequest{
		AgreementID: agreement.ID,
		ContentHash: agreement.ContentHash,
		Parties:     identity.Strings(agreement.Parties),
		CreatedAt:   agreement.CreatedAt.UnixMilli(),
		SignedAt:    agreement.LastSignedAt(now).UnixMilli(),
		Metadata: map[string]string{
			"title":         agreement.Title,
			"template_type": agreement.TemplateType,
			"creator":       agreement.Creator.String(),
			"proof_id":      proof.ID,
			"signatures":    strconv.Itoa(len(agreement.Signatures)),
		},
	}
}

func (o *Orchestrator) begin(ctx context.Context, logger *zap.Logger, state *FinalizationStatus, step Step, phase Phase) {
	state.Phase = phase
	state.setStep(step, runningStatus(step))
	o.save(ctx, logger, state)
	logger.Info("finalization step started", zap.String("step", step.String()))
}

func (o *Orchestrator) done(ctx context.Context, logger *zap.Logger, state *FinalizationStatus, step Step, phase Phase, fields ...zap.Field) {
	state.Phase = phase
	state.setStep(step, StepSuccess)
	o.save(ctx, logger, state)
	logger.Info("finalization step succeeded", append(fields, zap.String("step", step.String()))...)
}

func (o *Orchestrator) fail(ctx context.Context, logger *zap.Logger, state *FinalizationStatus, step Step, kind ErrorKind, err error) error {
	state.Phase = PhaseError
	state.setStep(step, StepFailed)
	state.FailedStep = step
	state.ErrorKind = kind
	state.Error = err.Error()
	o.save(ctx, logger, state)

	logger.Error("finalization step failed: "+err.Error(), zap.String("step", step.String()), zap.String("kind", kind.String()))
	return &StepError{Step: step, Kind: kind, Err: err}
}

func (o *Orchestrator) save(ctx context.Context, logger *zap.Logger, state *FinalizationStatus) {
	state.UpdatedAt = o.now()

	callCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	if err := o.states.Save(callCtx, *state); err != nil {
		logger.Error("failed to persist the finalization state: "+err.Error(), zap.String("phase", state.PhaseLabel()))
	}
}
