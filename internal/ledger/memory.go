package ledger

import (
	"agreement-notary/internal/identity"
	"agreement-notary/internal/model"
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// MemoryAgreementStore keeps agreements in process memory.
type MemoryAgreementStore struct {
	mutex      *deadlock.RWMutex
	agreements map[string]model.Agreement
	now        func() time.Time
}

func NewMemoryAgreementStore() *MemoryAgreementStore {
	return &MemoryAgreementStore{
		mutex:      &deadlock.RWMutex{},
		agreements: make(map[string]model.Agreement),
		now:        time.Now,
	}
}

func (s *MemoryAgreementStore) CreateAgreement(_ context.Context, creator identity.Identity, templateType, title, contentHash string, parties []identity.Identity) (string, error) {
	agreement, err := model.NewAgreement(templateType, title, contentHash, creator, parties, s.now())
	if err != nil {
		return "", err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.agreements[agreement.ID] = agreement

	return agreement.ID, nil
}

func (s *MemoryAgreementStore) GetAgreement(_ context.Context, id string) (model.Agreement, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	agreement, ok := s.agreements[id]
	return copyAgreement(agreement), ok, nil
}

func (s *MemoryAgreementStore) GetUserAgreements(_ context.Context, user identity.Identity) ([]model.Agreement, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []model.Agreement
	for _, agreement := range s.agreements {
		if agreement.Involves(user) {
			result = append(result, copyAgreement(agreement))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (s *MemoryAgreementStore) AddParties(_ context.Context, id string, parties []identity.Identity) error {
	return s.update(id, func(agreement *model.Agreement) error {
		return agreement.AddParties(parties, s.now())
	})
}

func (s *MemoryAgreementStore) SignAgreement(_ context.Context, id string, signer identity.Identity) (bool, error) {
	err := s.update(id, func(agreement *model.Agreement) error {
		_, err := agreement.Sign(signer, s.now())
		return err
	})
	return err == nil, err
}

func (s *MemoryAgreementStore) UpdateStatus(_ context.Context, id string, status model.Status) (bool, error) {
	err := s.update(id, func(agreement *model.Agreement) error {
		return agreement.Transition(status, s.now())
	})
	return err == nil, err
}

func (s *MemoryAgreementStore) GetUserStats(ctx context.Context, user identity.Identity) (model.UserStats, error) {
	agreements, err := s.GetUserAgreements(ctx, user)
	if err != nil {
		return model.UserStats{}, err
	}
	return model.ComputeUserStats(agreements), nil
}

func (s *MemoryAgreementStore) update(id string, change func(*model.Agreement) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	agreement, ok := s.agreements[id]
	if !ok {
		return ErrAgreementNotFound
	}

	agreement = copyAgreement(agreement)
	if err := change(&agreement); err != nil {
		return err
	}

	s.agreements[id] = agreement
	return nil
}

func copyAgreement(a model.Agreement) model.Agreement {
	a.Parties = append([]identity.Identity(nil), a.Parties...)
	a.Signatures = append([]model.Signature(nil), a.Signatures...)
	return a
}

// MemoryProofVault keeps notarization proofs in process memory.
type MemoryProofVault struct {
	mutex       *deadlock.RWMutex
	proofs      map[string]model.NotarizationProof
	byAgreement map[string]string
	now         func() time.Time
}

func NewMemoryProofVault() *MemoryProofVault {
	return &MemoryProofVault{
		mutex:       &deadlock.RWMutex{},
		proofs:      make(map[string]model.NotarizationProof),
		byAgreement: make(map[string]string),
		now:         time.Now,
	}
}

func (v *MemoryProofVault) CreateNotarization(_ context.Context, agreementID, contentHash string, signers []identity.Identity, creator identity.Identity, templateType string) (string, error) {
	if agreementID == "" {
		return "", errors.New("agreement id is missing")
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	if _, ok := v.byAgreement[agreementID]; ok {
		return "", ErrProofExists
	}

	proof := model.NewNotarizationProof(agreementID, contentHash, signers, creator, templateType, v.now())
	v.proofs[proof.ID] = proof
	v.byAgreement[agreementID] = proof.ID

	return proof.ID, nil
}

func (v *MemoryProofVault) AddChainProof(_ context.Context, caller identity.Identity, proofID string, chainProof model.ChainProof) (bool, error) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	proof, ok := v.proofs[proofID]
	if !ok {
		return false, ErrProofNotFound
	}
	if !proof.MayAppend(caller) {
		return false, ErrNotAuthorized
	}
	if proof.HasChain(chainProof.ChainName) {
		return false, ErrChainProofExists
	}

	proof.Chains = append(append([]model.ChainProof(nil), proof.Chains...), chainProof)
	v.proofs[proofID] = proof

	return true, nil
}

func (v *MemoryProofVault) GetProof(_ context.Context, id string) (model.NotarizationProof, bool, error) {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	proof, ok := v.proofs[id]
	return proof, ok, nil
}

func (v *MemoryProofVault) GetProofByAgreement(ctx context.Context, agreementID string) (model.NotarizationProof, bool, error) {
	v.mutex.RLock()
	id, ok := v.byAgreement[agreementID]
	v.mutex.RUnlock()

	if !ok {
		return model.NotarizationProof{}, false, nil
	}
	return v.GetProof(ctx, id)
}

func (v *MemoryProofVault) GetAllProofs(_ context.Context) ([]model.NotarizationProof, error) {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	proofs := make([]model.NotarizationProof, 0, len(v.proofs))
	for _, proof := range v.proofs {
		proofs = append(proofs, proof)
	}
	sort.Slice(proofs, func(i, j int) bool {
		return proofs[i].NotarizedAt.Before(proofs[j].NotarizedAt)
	})

	return proofs, nil
}

func (v *MemoryProofVault) VerifyProof(ctx context.Context, id, contentHash string) (bool, error) {
	proof, ok, err := v.GetProof(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	return strings.EqualFold(proof.ContentHash, contentHash), nil
}
