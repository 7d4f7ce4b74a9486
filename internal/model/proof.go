package model

import (
	"agreement-notary/internal/hashing"
	"agreement-notary/internal/identity"
	"strconv"
	"time"
)

// Chain names recorded in chain proofs.
const (
	ChainConstellation = "Constellation"
	ChainEthereum      = "Ethereum"
)

type ChainProof struct {
	ChainName   string
	TxHash      string
	BlockNumber *uint64
	Timestamp   time.Time
}

type ProofMetadata struct {
	Creator         identity.Identity
	Signers         []identity.Identity
	TemplateType    string
	TotalSignatures int
}

// NotarizationProof ties an agreement's content hash and signers to the chain proofs
// collected while finalizing it. At most one exists per agreement.
type NotarizationProof struct {
	ID          string
	AgreementID string
	ContentHash string
	Metadata    ProofMetadata
	NotarizedAt time.Time
	Chains      []ChainProof
}

func NewNotarizationProof(agreementID, contentHash string, signers []identity.Identity, creator identity.Identity, templateType string, now time.Time) NotarizationProof {
	return NotarizationProof{
		ID:          NewProofID(agreementID, contentHash, now),
		AgreementID: agreementID,
		ContentHash: contentHash,
		Metadata: ProofMetadata{
			Creator:         creator,
			Signers:         append([]identity.Identity{}, signers...),
			TemplateType:    templateType,
			TotalSignatures: len(signers),
		},
		NotarizedAt: now,
	}
}

// NewProofID is hex(sha256(agreementID || contentHash || notarizedAt in ns)).
func NewProofID(agreementID, contentHash string, at time.Time) string {
	return hashing.CalculateSHA256FromStr(agreementID + contentHash + strconv.FormatInt(at.UnixNano(), 10))
}

func (p NotarizationProof) Chain(name string) (ChainProof, bool) {
	for _, chain := range p.Chains {
		if chain.ChainName == name {
			return chain, true
		}
	}
	return ChainProof{}, false
}

func (p NotarizationProof) HasChain(name string) bool {
	_, ok := p.Chain(name)
	return ok
}

// MayAppend reports whether caller is allowed to add chain proofs: the creator or a signer.
func (p NotarizationProof) MayAppend(caller identity.Identity) bool {
	if p.Metadata.Creator == caller {
		return true
	}
	for _, signer := range p.Metadata.Signers {
		if signer == caller {
			return true
		}
	}
	return false
}
