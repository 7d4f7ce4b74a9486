package certificate

import (
	"agreement-notary/internal/identity"
	"agreement-notary/internal/model"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	pendingDagHash = "pending"
	tokenURIPrefix = "data:application/json;base64,"
)

// CertificateMetadata is what the minted token commits to.
type CertificateMetadata struct {
	AgreementID string
	Title       string
	ContentHash string
	ProofID     string
	DagHash     string
	Parties     []identity.Identity
	CreatedAt   time.Time
	SignedAt    time.Time
	ChainProofs []model.ChainProof
}

// Document follows the common ERC-721 metadata JSON layout.
type Document struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	ExternalURL string      `json:"external_url"`
	Attributes  []Attribute `json:"attributes"`
	Properties  Properties  `json:"properties"`
}

type Attribute struct {
	TraitType   string      `json:"trait_type"`
	Value       interface{} `json:"value"`
	DisplayType string      `json:"display_type,omitempty"`
}

type Properties struct {
	AgreementID          string           `json:"agreement_id"`
	ProofID              string           `json:"proof_id,omitempty"`
	ConstellationDagHash string           `json:"constellation_dag_hash"`
	Parties              []string         `json:"parties"`
	ChainProofs          []ChainReference `json:"chain_proofs"`
}

type ChainReference struct {
	Chain       string  `json:"chain"`
	Reference   string  `json:"reference"`
	BlockNumber *uint64 `json:"block_number,omitempty"`
}

// BuildDocument renders the metadata document. A missing validation hash is shown as "pending".
func BuildDocument(metadata CertificateMetadata, image, externalBase string) Document {
	dagHash := metadata.DagHash
	if dagHash == "" {
		dagHash = pendingDagHash
	}

	name := "Agreement Certificate"
	if metadata.Title != "" {
		name += ": " + metadata.Title
	}

	externalURL := ""
	if externalBase != "" {
		externalURL = externalBase + "/agreements/" + metadata.AgreementID
	}

	references := make([]ChainReference, 0, len(metadata.ChainProofs))
	for _, proof := range metadata.ChainProofs {
		references = append(references, ChainReference{
			Chain:       proof.ChainName,
			Reference:   proof.TxHash,
			BlockNumber: proof.BlockNumber,
		})
	}

	return Document{
		Name: name,
		Description: "Certificate of a notarized agreement signed by " + strconv.Itoa(len(metadata.Parties)) +
			" parties. Content hash " + metadata.ContentHash + ".",
		Image:       image,
		ExternalURL: externalURL,
		Attributes: []Attribute{
			{TraitType: "Agreement_ID", Value: metadata.AgreementID},
			{TraitType: "Content_Hash", Value: metadata.ContentHash},
			{TraitType: "Constellation_DAG", Value: dagHash},
			{TraitType: "Parties", Value: len(metadata.Parties), DisplayType: "number"},
			{TraitType: "Created_At", Value: metadata.CreatedAt.Unix(), DisplayType: "date"},
			{TraitType: "Signed_At", Value: metadata.SignedAt.Unix(), DisplayType: "date"},
		},
		Properties: Properties{
			AgreementID:          metadata.AgreementID,
			ProofID:              metadata.ProofID,
			ConstellationDagHash: dagHash,
			Parties:              identity.Strings(metadata.Parties),
			ChainProofs:          references,
		},
	}
}

// TokenURI embeds the document as a base64 JSON data URI.
func TokenURI(document Document) (string, error) {
	encoded, err := json.Marshal(document)
	if err != nil {
		return "", errors.New("failed to marshal the certificate metadata: " + err.Error())
	}
	return tokenURIPrefix + base64.StdEncoding.EncodeToString(encoded), nil
}

// DecodeTokenURI is the inverse of TokenURI.
func DecodeTokenURI(uri string) (Document, error) {
	if !strings.HasPrefix(uri, tokenURIPrefix) {
		return Document{}, errors.New("not a base64 JSON data uri")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, tokenURIPrefix))
	if err != nil {
		return Document{}, errors.New("invalid token uri encoding: " + err.Error())
	}

	var document Document
	if err := json.Unmarshal(raw, &document); err != nil {
		return Document{}, errors.New("invalid token uri document: " + err.Error())
	}
	return document, nil
}

func formatChainID(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}
