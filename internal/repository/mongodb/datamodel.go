package mongodb

import (
	"agreement-notary/internal/identity"
	"agreement-notary/internal/model"
	"agreement-notary/internal/saga"
	"time"
)

// Timestamps are stored as unix nanoseconds to keep their full resolution.

type storedSignature struct {
	Signer        string `bson:"signer"`
	SignedAt      int64  `bson:"signedAt"`
	SignatureHash string `bson:"signatureHash"`
}

type storedAgreement struct {
	ID           string            `bson:"_id"`
	Title        string            `bson:"title"`
	TemplateType string            `bson:"templateType"`
	ContentHash  string            `bson:"contentHash"`
	Creator      string            `bson:"creator"`
	Parties      []string          `bson:"parties"`
	Signatures   []storedSignature `bson:"signatures"`
	Status       string            `bson:"status"`
	CreatedAt    int64             `bson:"createdAt"`
	UpdatedAt    int64             `bson:"updatedAt"`
	// Version is bumped on every update and guards read-modify-write cycles.
	Version int64 `bson:"version"`
}

type storedChainProof struct {
	ChainName   string  `bson:"chainName"`
	TxHash      string  `bson:"txHash"`
	BlockNumber *uint64 `bson:"blockNumber,omitempty"`
	Timestamp   int64   `bson:"timestamp"`
}

type storedProof struct {
	ID              string             `bson:"_id"`
	AgreementID     string             `bson:"agreementId"`
	ContentHash     string             `bson:"contentHash"`
	Creator         string             `bson:"creator"`
	Signers         []string           `bson:"signers"`
	TemplateType    string             `bson:"templateType"`
	TotalSignatures int                `bson:"totalSignatures"`
	NotarizedAt     int64              `bson:"notarizedAt"`
	Chains          []storedChainProof `bson:"chains"`
}

type storedFinalization struct {
	AgreementID    string `bson:"_id"`
	Phase          string `bson:"phase"`
	Vault          string `bson:"vault"`
	Validation     string `bson:"validation"`
	Mint           string `bson:"mint"`
	ProofID        string `bson:"proofId,omitempty"`
	ValidationHash string `bson:"validationHash,omitempty"`
	Ordinal        uint64 `bson:"ordinal"`
	TokenID        string `bson:"tokenId,omitempty"`
	TxRef          string `bson:"txRef,omitempty"`
	MintChainID    int64  `bson:"mintChainId,omitempty"`
	MintBlock      uint64 `bson:"mintBlock"`
	FailedStep     string `bson:"failedStep,omitempty"`
	ErrorKind      string `bson:"errorKind,omitempty"`
	Error          string `bson:"error,omitempty"`
	UpdatedAt      int64  `bson:"updatedAt"`
}

func toIdentities(values []string) []identity.Identity {
	ids := make([]identity.Identity, len(values))
	for i, value := range values {
		ids[i] = identity.Identity(value)
	}
	return ids
}

func fromNanos(nanos int64) time.Time {
	return time.Unix(0, nanos)
}

func newStoredAgreement(a model.Agreement, version int64) storedAgreement {
	signatures := make([]storedSignature, len(a.Signatures))
	for i, signature := range a.Signatures {
		signatures[i] = storedSignature{
			Signer:        signature.Signer.String(),
			SignedAt:      signature.SignedAt.UnixNano(),
			SignatureHash: signature.SignatureHash,
		}
	}

	return storedAgreement{
		ID:           a.ID,
		Title:        a.Title,
		TemplateType: a.TemplateType,
		ContentHash:  a.ContentHash,
		Creator:      a.Creator.String(),
		Parties:      identity.Strings(a.Parties),
		Signatures:   signatures,
		Status:       a.Status.String(),
		CreatedAt:    a.CreatedAt.UnixNano(),
		UpdatedAt:    a.UpdatedAt.UnixNano(),
		Version:      version,
	}
}

func (s storedAgreement) toModel() (model.Agreement, error) {
	status, err := model.ParseStatus(s.Status)
	if err != nil {
		return model.Agreement{}, err
	}

	signatures := make([]model.Signature, len(s.Signatures))
	for i, signature := range s.Signatures {
		signatures[i] = model.Signature{
			Signer:        identity.Identity(signature.Signer),
			SignedAt:      fromNanos(signature.SignedAt),
			SignatureHash: signature.SignatureHash,
		}
	}

	return model.Agreement{
		ID:           s.ID,
		Title:        s.Title,
		TemplateType: s.TemplateType,
		ContentHash:  s.ContentHash,
		Creator:      identity.Identity(s.Creator),
		Parties:      toIdentities(s.Parties),
		Signatures:   signatures,
		Status:       status,
		CreatedAt:    fromNanos(s.CreatedAt),
		UpdatedAt:    fromNanos(s.UpdatedAt),
	}, nil
}

func newStoredChainProof(c model.ChainProof) storedChainProof {
	return storedChainProof{
		ChainName:   c.ChainName,
		TxHash:      c.TxHash,
		BlockNumber: c.BlockNumber,
		Timestamp:   c.Timestamp.UnixNano(),
	}
}

func newStoredProof(p model.NotarizationProof) storedProof {
	chains := make([]storedChainProof, len(p.Chains))
	for i, chain := range p.Chains {
		chains[i] = newStoredChainProof(chain)
	}

	return storedProof{
		ID:              p.ID,
		AgreementID:     p.AgreementID,
		ContentHash:     p.ContentHash,
		Creator:         p.Metadata.Creator.String(),
		Signers:         identity.Strings(p.Metadata.Signers),
		TemplateType:    p.Metadata.TemplateType,
		TotalSignatures: p.Metadata.TotalSignatures,
		NotarizedAt:     p.NotarizedAt.UnixNano(),
		Chains:          chains,
	}
}

func (s storedProof) toModel() model.NotarizationProof {
	chains := make([]model.ChainProof, len(s.Chains))
	for i, chain := range s.Chains {
		chains[i] = model.ChainProof{
			ChainName:   chain.ChainName,
			TxHash:      chain.TxHash,
			BlockNumber: chain.BlockNumber,
			Timestamp:   fromNanos(chain.Timestamp),
		}
	}

	return model.NotarizationProof{
		ID:          s.ID,
		AgreementID: s.AgreementID,
		ContentHash: s.ContentHash,
		Metadata: model.ProofMetadata{
			Creator:         identity.Identity(s.Creator),
			Signers:         toIdentities(s.Signers),
			TemplateType:    s.TemplateType,
			TotalSignatures: s.TotalSignatures,
		},
		NotarizedAt: fromNanos(s.NotarizedAt),
		Chains:      chains,
	}
}

func newStoredFinalization(s saga.FinalizationStatus) storedFinalization {
	return storedFinalization{
		AgreementID:    s.AgreementID,
		Phase:          s.Phase.String(),
		Vault:          s.Vault.String(),
		Validation:     s.Validation.String(),
		Mint:           s.Mint.String(),
		ProofID:        s.ProofID,
		ValidationHash: s.ValidationHash,
		Ordinal:        s.Ordinal,
		TokenID:        s.TokenID,
		TxRef:          s.TxRef,
		MintChainID:    s.MintChainID,
		MintBlock:      s.MintBlock,
		FailedStep:     s.FailedStep.String(),
		ErrorKind:      s.ErrorKind.String(),
		Error:          s.Error,
		UpdatedAt:      s.UpdatedAt.UnixNano(),
	}
}

func (s storedFinalization) toModel() (saga.FinalizationStatus, error) {
	status := saga.FinalizationStatus{
		AgreementID:    s.AgreementID,
		ProofID:        s.ProofID,
		ValidationHash: s.ValidationHash,
		Ordinal:        s.Ordinal,
		TokenID:        s.TokenID,
		TxRef:          s.TxRef,
		MintChainID:    s.MintChainID,
		MintBlock:      s.MintBlock,
		Error:          s.Error,
		UpdatedAt:      fromNanos(s.UpdatedAt),
	}

	for _, field := range []struct {
		text   string
		target interface{ UnmarshalText([]byte) error }
	}{
		{s.Phase, &status.Phase},
		{s.Vault, &status.Vault},
		{s.Validation, &status.Validation},
		{s.Mint, &status.Mint},
		{s.FailedStep, &status.FailedStep},
		{s.ErrorKind, &status.ErrorKind},
	} {
		if err := field.target.UnmarshalText([]byte(field.text)); err != nil {
			return saga.FinalizationStatus{}, err
		}
	}

	return status, nil
}
