package model

import (
	"agreement-notary/internal/hashing"
	"agreement-notary/internal/identity"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

var (
	ErrNotAParty         = errors.New("signer is not a party of the agreement")
	ErrAlreadySigned     = errors.New("signer has already signed the agreement")
	ErrInvalidTransition = errors.New("invalid agreement status transition")
	ErrNotFullySigned    = errors.New("not all parties have signed the agreement")
	ErrDuplicateParty    = errors.New("duplicate party")
	ErrInvalidAgreement  = errors.New("invalid agreement")
)

type Signature struct {
	Signer        identity.Identity
	SignedAt      time.Time
	SignatureHash string
}

// Agreement is the canonical ledger record of a drafted document and its signatures.
type Agreement struct {
	ID           string
	Title        string
	TemplateType string
	ContentHash  string
	Creator      identity.Identity
	Parties      []identity.Identity
	Signatures   []Signature
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewAgreement validates the input and returns a Draft agreement, or a Pending one
// when parties are already given.
func NewAgreement(templateType, title, contentHash string, creator identity.Identity, parties []identity.Identity, now time.Time) (Agreement, error) {
	agreement := Agreement{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(title),
		TemplateType: strings.TrimSpace(templateType),
		ContentHash:  strings.ToLower(strings.TrimSpace(contentHash)),
		Creator:      creator,
		Status:       StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := agreement.validate(); err != nil {
		return Agreement{}, fmt.Errorf("%w: %v", ErrInvalidAgreement, err)
	}

	if len(parties) > 0 {
		if err := agreement.AddParties(parties, now); err != nil {
			return Agreement{}, err
		}
	}

	return agreement, nil
}

func (a Agreement) validate() error {
	var err error
	if a.Title == "" {
		err = multierr.Append(err, errors.New("title is missing"))
	}
	if a.TemplateType == "" {
		err = multierr.Append(err, errors.New("template type is missing"))
	}
	if !hashing.IsContentHash(a.ContentHash) {
		err = multierr.Append(err, errors.New("content hash is not a hex sha256 digest: "+a.ContentHash))
	}
	if a.Creator == "" {
		err = multierr.Append(err, errors.New("creator is missing"))
	}
	return err
}

// AddParties is only allowed while drafting; a non-empty party set moves the agreement to Pending.
func (a *Agreement) AddParties(parties []identity.Identity, now time.Time) error {
	if a.Status != StatusDraft {
		return fmt.Errorf("%w: parties can only be added to a draft, status is %s", ErrInvalidTransition, a.Status)
	}

	merged := append(append([]identity.Identity{}, a.Parties...), parties...)
	seen := make(map[identity.Identity]bool, len(merged))
	for _, party := range merged {
		if party == "" {
			return fmt.Errorf("%w: empty party identity", ErrInvalidAgreement)
		}
		if seen[party] {
			return fmt.Errorf("%w: %s", ErrDuplicateParty, party)
		}
		seen[party] = true
	}

	a.Parties = merged
	a.UpdatedAt = now
	if len(a.Parties) > 0 {
		a.Status = StatusPending
	}
	return nil
}

func (a Agreement) IsParty(id identity.Identity) bool {
	for _, party := range a.Parties {
		if party == id {
			return true
		}
	}
	return false
}

func (a Agreement) HasSigned(id identity.Identity) bool {
	for _, signature := range a.Signatures {
		if signature.Signer == id {
			return true
		}
	}
	return false
}

// Sign records the signer's consent. It never sets Signed: completing the signature set only
// makes the agreement ready for finalization.
func (a *Agreement) Sign(signer identity.Identity, now time.Time) (Signature, error) {
	if a.Status != StatusDraft && a.Status != StatusPending {
		return Signature{}, fmt.Errorf("%w: cannot sign an agreement in status %s", ErrInvalidTransition, a.Status)
	}
	if !a.IsParty(signer) {
		return Signature{}, ErrNotAParty
	}
	if a.HasSigned(signer) {
		return Signature{}, ErrAlreadySigned
	}

	signature := Signature{
		Signer:        signer,
		SignedAt:      now,
		SignatureHash: identity.SignatureHash(signer),
	}

	a.Signatures = append(a.Signatures, signature)
	a.Status = StatusPending
	a.UpdatedAt = now

	return signature, nil
}

// ReadyForFinalization is true once every party has signed a pending agreement.
func (a Agreement) ReadyForFinalization() bool {
	return a.Status == StatusPending && len(a.Parties) > 0 && len(a.Signatures) == len(a.Parties)
}

func (a *Agreement) Transition(to Status, now time.Time) error {
	if !a.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}
	if to == StatusSigned && !a.ReadyForFinalization() {
		return ErrNotFullySigned
	}

	a.Status = to
	a.UpdatedAt = now
	return nil
}

// LastSignedAt returns the time of the latest signature, or fallback when unsigned.
func (a Agreement) LastSignedAt(fallback time.Time) time.Time {
	if len(a.Signatures) == 0 {
		return fallback
	}
	return a.Signatures[len(a.Signatures)-1].SignedAt
}

// Involves reports whether id created the agreement or is one of its parties.
func (a Agreement) Involves(id identity.Identity) bool {
	return a.Creator == id || a.IsParty(id)
}

// Signers lists the identities that signed, in signing order.
func (a Agreement) Signers() []identity.Identity {
	signers := make([]identity.Identity, len(a.Signatures))
	for i, signature := range a.Signatures {
		signers[i] = signature.Signer
	}
	return signers
}
