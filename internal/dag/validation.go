package dag

import (
	"agreement-notary/internal/hashing"
	"context"
	"encoding/json"
	"errors"

	"github.com/fxamacker/cbor"
	"go.uber.org/zap"
)

const (
	DagHashPrefix   = "dag_"
	ProtocolVersion = "1.0"

	payloadType = "legal_agreement_validation"
	dataType    = "legal_agreement"
)

// ValidationRequest carries the agreement fields committed to. Times are unix milliseconds.
type ValidationRequest struct {
	AgreementID string
	ContentHash string
	Parties     []string
	CreatedAt   int64
	SignedAt    int64
	Metadata    map[string]string
}

// ValidationResult never carries a Go error: failures are reported through Success and Error.
type ValidationResult struct {
	Success         bool
	DagHash         string
	Ordinal         uint64
	ValidationProof string
	Timestamp       int64
	Error           string
}

type validationProof struct {
	DagHash         string `json:"dag_hash"`
	NetworkSnapshot string `json:"network_snapshot"`
	SnapshotOrdinal uint64 `json:"snapshot_ordinal"`
	ValidatedAt     int64  `json:"validated_at"`
	Network         string `json:"network"`
	ExplorerURL     string `json:"explorer_url"`
}

// Validate commits to the agreement against the current snapshot ordinal.
//
// The returned hash is a local digest over a snapshot reported by a single node. It is not
// an inclusion proof: it is only as strong as the trust placed in that node's ordinal.
func (c Client) Validate(ctx context.Context, request ValidationRequest) ValidationResult {
	if request.AgreementID == "" || request.ContentHash == "" {
		return ValidationResult{Success: false, Error: "agreement id and content hash are required"}
	}

	snapshot, err := c.GetSnapshot(ctx)
	if err != nil {
		c.logger.Error("validation network unreachable: "+err.Error(), zap.String("agreementID", request.AgreementID))
		return ValidationResult{Success: false, Error: "could not connect to the validation network: " + err.Error()}
	}

	dagHash, err := ComputeDagHash(request, snapshot.Ordinal)
	if err != nil {
		return ValidationResult{Success: false, Error: err.Error()}
	}

	validatedAt := c.now().UnixMilli()
	proof, err := json.Marshal(validationProof{
		DagHash:         dagHash,
		NetworkSnapshot: snapshot.LastSnapshotHash,
		SnapshotOrdinal: snapshot.Ordinal,
		ValidatedAt:     validatedAt,
		Network:         c.network,
		ExplorerURL:     c.ExplorerURL(snapshot.Ordinal),
	})
	if err != nil {
		return ValidationResult{Success: false, Error: "failed to marshal the validation proof: " + err.Error()}
	}

	c.logger.Info("validation commitment created",
		zap.String("agreementID", request.AgreementID),
		zap.String("dagHash", dagHash),
		zap.Uint64("ordinal", snapshot.Ordinal),
		zap.String("network", c.network))

	return ValidationResult{
		Success:         true,
		DagHash:         dagHash,
		Ordinal:         snapshot.Ordinal,
		ValidationProof: string(proof),
		Timestamp:       validatedAt,
	}
}

// ComputeDagHash is "dag_" + hex(sha256(canonical CBOR of the validation payload)).
// Map keys are sorted by the canonical encoding, so the digest is reproducible.
func ComputeDagHash(request ValidationRequest, ordinal uint64) (string, error) {
	payload, err := canonicalPayload(request, ordinal)
	if err != nil {
		return "", err
	}
	return DagHashPrefix + hashing.CalculateSHA256(payload), nil
}

// VerifyDagHash recomputes the commitment for the request at the given ordinal.
func VerifyDagHash(request ValidationRequest, ordinal uint64, dagHash string) bool {
	expected, err := ComputeDagHash(request, ordinal)
	return err == nil && expected == dagHash
}

func canonicalPayload(request ValidationRequest, ordinal uint64) ([]byte, error) {
	metadata := request.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	parties := request.Parties
	if parties == nil {
		parties = []string{}
	}

	payload := map[string]interface{}{
		"type":    payloadType,
		"version": ProtocolVersion,
		"data": map[string]interface{}{
			"agreement_id":    request.AgreementID,
			"content_hash":    request.ContentHash,
			"parties":         parties,
			"created_at":      request.CreatedAt,
			"signed_at":       request.SignedAt,
			"network_ordinal": ordinal,
			"metadata":        metadata,
		},
		"protocol": map[string]interface{}{
			"protocol_version": ProtocolVersion,
			"data_type":        dataType,
		},
	}

	encoded, err := cbor.Marshal(payload, cbor.CanonicalEncOptions())
	if err != nil {
		return nil, errors.New("failed to encode the validation payload: " + err.Error())
	}
	return encoded, nil
}
