package saga

import (
	"errors"
	"time"
)

var errUnknownName = errors.New("unknown name")

// Step names a finalization step.
type Step int

const (
	StepNone Step = iota
	StepVault
	StepValidation
	StepMint
	StepCommit
)

var stepNames = map[Step]string{
	StepNone:       "",
	StepVault:      "vault",
	StepValidation: "validation",
	StepMint:       "mint",
	StepCommit:     "commit",
}

// StepStatus is the progress of one step. The running state is named after the step:
// creating for the vault, validating for validation and minting for the mint.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepCreating
	StepValidating
	StepMinting
	StepSuccess
	StepFailed
)

var stepStatusNames = map[StepStatus]string{
	StepPending:    "pending",
	StepCreating:   "creating",
	StepValidating: "validating",
	StepMinting:    "minting",
	StepSuccess:    "success",
	StepFailed:     "error",
}

func runningStatus(step Step) StepStatus {
	switch step {
	case StepVault:
		return StepCreating
	case StepValidation:
		return StepValidating
	case StepMint:
		return StepMinting
	default:
		return StepPending
	}
}

// Phase is the state of the saga as a whole. PhaseError is ErrorAt(FailedStep).
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseVaultPending
	PhaseVaultDone
	PhaseValidationPending
	PhaseValidationDone
	PhaseMintPending
	PhaseMintDone
	PhaseAgreementFinalized
	PhaseError
)

var phaseNames = map[Phase]string{
	PhaseNotStarted:         "NotStarted",
	PhaseVaultPending:       "VaultPending",
	PhaseVaultDone:          "VaultDone",
	PhaseValidationPending:  "ValidationPending",
	PhaseValidationDone:     "ValidationDone",
	PhaseMintPending:        "MintPending",
	PhaseMintDone:           "MintDone",
	PhaseAgreementFinalized: "AgreementFinalized",
	PhaseError:              "Error",
}

// ErrorKind classifies a step failure.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindInput is rejected before any external call.
	KindInput
	// KindConnectivity is a timeout or an unreachable system; retrying may succeed.
	KindConnectivity
	// KindPrecondition needs user action, such as connecting a wallet.
	KindPrecondition
	// KindConsistency means the stored records disagree with what the saga expects.
	KindConsistency
)

var kindNames = map[ErrorKind]string{
	KindNone:         "",
	KindInput:        "input",
	KindConnectivity: "connectivity",
	KindPrecondition: "precondition",
	KindConsistency:  "consistency",
}

func (s Step) String() string {
	return stepNames[s]
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	return parseName(stepNames, string(text), s)
}

func (s StepStatus) String() string {
	return stepStatusNames[s]
}

func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StepStatus) UnmarshalText(text []byte) error {
	return parseName(stepStatusNames, string(text), s)
}

func (p Phase) String() string {
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	return parseName(phaseNames, string(text), p)
}

func (k ErrorKind) String() string {
	return kindNames[k]
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ErrorKind) UnmarshalText(text []byte) error {
	return parseName(kindNames, string(text), k)
}

func parseName[T comparable](names map[T]string, name string, out *T) error {
	for value, n := range names {
		if n == name {
			*out = value
			return nil
		}
	}
	return errors.New(errUnknownName.Error() + ": " + name)
}

// FinalizationStatus is the persisted record of one agreement's finalization.
// It carries whatever the steps produced before a failure.
type FinalizationStatus struct {
	AgreementID    string     `json:"agreementId"`
	Phase          Phase      `json:"phase"`
	Vault          StepStatus `json:"vault"`
	Validation     StepStatus `json:"validation"`
	Mint           StepStatus `json:"mint"`
	ProofID        string     `json:"proofId,omitempty"`
	ValidationHash string     `json:"validationHash,omitempty"`
	Ordinal        uint64     `json:"ordinal,omitempty"`
	TokenID        string     `json:"tokenId,omitempty"`
	TxRef          string     `json:"txRef,omitempty"`
	MintChainID    int64      `json:"mintChainId,omitempty"`
	MintBlock      uint64     `json:"mintBlock,omitempty"`
	FailedStep     Step       `json:"failedStep,omitempty"`
	ErrorKind      ErrorKind  `json:"errorKind,omitempty"`
	Error          string     `json:"error,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func NewFinalizationStatus(agreementID string) FinalizationStatus {
	return FinalizationStatus{AgreementID: agreementID, Phase: PhaseNotStarted}
}

// Finalized is true once the commit step ran.
func (s FinalizationStatus) Finalized() bool {
	return s.Phase == PhaseAgreementFinalized
}

// Failed is true while the saga rests in ErrorAt(step).
func (s FinalizationStatus) Failed() bool {
	return s.Phase == PhaseError
}

// PhaseLabel renders the saga phase, ErrorAt(step) for failures.
func (s FinalizationStatus) PhaseLabel() string {
	if s.Phase == PhaseError {
		return "ErrorAt(" + s.FailedStep.String() + ")"
	}
	return s.Phase.String()
}

func (s *FinalizationStatus) setStep(step Step, status StepStatus) {
	switch step {
	case StepVault:
		s.Vault = status
	case StepValidation:
		s.Validation = status
	case StepMint:
		s.Mint = status
	}
}

func (s *FinalizationStatus) clearError() {
	s.FailedStep = StepNone
	s.ErrorKind = KindNone
	s.Error = ""
}

// StepError is returned by Finalize with the name of the failing step.
type StepError struct {
	Step Step
	Kind ErrorKind
	Err  error
}

func (e *StepError) Error() string {
	return "finalization failed at the " + e.Step.String() + " step (" + e.Kind.String() + "): " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}
