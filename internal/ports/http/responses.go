package http

import (
	"agreement-notary/internal/app"
	"agreement-notary/internal/identity"
	"agreement-notary/internal/model"
	"time"
)

type signatureResponse struct {
	Signer        string    `json:"signer"`
	SignedAt      time.Time `json:"signedAt"`
	SignatureHash string    `json:"signatureHash"`
}

type agreementResponse struct {
	ID                   string              `json:"id"`
	Title                string              `json:"title"`
	TemplateType         string              `json:"templateType"`
	ContentHash          string              `json:"contentHash"`
	Creator              string              `json:"creator"`
	Parties              []string            `json:"parties"`
	Signatures           []signatureResponse `json:"signatures"`
	Status               string              `json:"status"`
	ReadyForFinalization bool                `json:"readyForFinalization"`
	CreatedAt            time.Time           `json:"createdAt"`
	UpdatedAt            time.Time           `json:"updatedAt"`
}

func newAgreementResponse(agreement model.Agreement) agreementResponse {
	signatures := make([]signatureResponse, len(agreement.Signatures))
	for i, signature := range agreement.Signatures {
		signatures[i] = signatureResponse{
			Signer:        signature.Signer.String(),
			SignedAt:      signature.SignedAt,
			SignatureHash: signature.SignatureHash,
		}
	}

	return agreementResponse{
		ID:                   agreement.ID,
		Title:                agreement.Title,
		TemplateType:         agreement.TemplateType,
		ContentHash:          agreement.ContentHash,
		Creator:              agreement.Creator.String(),
		Parties:              identity.Strings(agreement.Parties),
		Signatures:           signatures,
		Status:               agreement.Status.String(),
		ReadyForFinalization: agreement.ReadyForFinalization(),
		CreatedAt:            agreement.CreatedAt,
		UpdatedAt:            agreement.UpdatedAt,
	}
}

type chainProofResponse struct {
	ChainName   string    `json:"chainName"`
	TxHash      string    `json:"txHash"`
	BlockNumber *uint64   `json:"blockNumber,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type proofMetadataResponse struct {
	Creator         string   `json:"creator"`
	Signers         []string `json:"signers"`
	TemplateType    string   `json:"templateType"`
	TotalSignatures int      `json:"totalSignatures"`
}

type proofResponse struct {
	ID          string                `json:"id"`
	AgreementID string                `json:"agreementId"`
	ContentHash string                `json:"contentHash"`
	Metadata    proofMetadataResponse `json:"metadata"`
	NotarizedAt time.Time             `json:"notarizedAt"`
	Chains      []chainProofResponse  `json:"chains"`
}

func newProofResponse(proof model.NotarizationProof) proofResponse {
	chains := make([]chainProofResponse, len(proof.Chains))
	for i, chain := range proof.Chains {
		chains[i] = chainProofResponse{
			ChainName:   chain.ChainName,
			TxHash:      chain.TxHash,
			BlockNumber: chain.BlockNumber,
			Timestamp:   chain.Timestamp,
		}
	}

	return proofResponse{
		ID:          proof.ID,
		AgreementID: proof.AgreementID,
		ContentHash: proof.ContentHash,
		Metadata: proofMetadataResponse{
			Creator:         proof.Metadata.Creator.String(),
			Signers:         identity.Strings(proof.Metadata.Signers),
			TemplateType:    proof.Metadata.TemplateType,
			TotalSignatures: proof.Metadata.TotalSignatures,
		},
		NotarizedAt: proof.NotarizedAt,
		Chains:      chains,
	}
}

type statsResponse struct {
	Total             int `json:"total"`
	PendingSignatures int `json:"pendingSignatures"`
	Signed            int `json:"signed"`
}

type healthResponse struct {
	Status            string  `json:"status"`
	ValidationNetwork bool    `json:"validationNetwork"`
	CertificateChains []int64 `json:"certificateChains"`
	ActiveChainID     int64   `json:"activeChainId"`
	ActiveChainReady  bool    `json:"activeChainReady"`
}

func newHealthResponse(health app.Health) healthResponse {
	status := "ok"
	if !health.Healthy() {
		status = "degraded"
	}
	chains := health.CertificateChains
	if chains == nil {
		chains = []int64{}
	}
	return healthResponse{
		Status:            status,
		ValidationNetwork: health.ValidationNetwork,
		CertificateChains: chains,
		ActiveChainID:     health.ActiveChainID,
		ActiveChainReady:  health.ActiveChainReady,
	}
}

type chainsResponse struct {
	Chains []int64 `json:"chains"`
}
