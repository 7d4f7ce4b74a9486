package mongodb

import (
	"agreement-notary/internal/identity"
	"agreement-notary/internal/ledger"
	"agreement-notary/internal/model"
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ProofVault keeps notarization proofs in MongoDB. A unique index on agreementId
// allows one proof per agreement and the append filter allows one chain proof per chain name.
type ProofVault struct {
	logger     *zap.Logger
	collection *mongo.Collection
	now        func() time.Time
}

func (v ProofVault) CreateNotarization(ctx context.Context, agreementID, contentHash string, signers []identity.Identity, creator identity.Identity, templateType string) (string, error) {
	if agreementID == "" {
		return "", errors.New("agreement id is missing")
	}

	proof := model.NewNotarizationProof(agreementID, contentHash, signers, creator, templateType, v.now())
	_, err := v.collection.InsertOne(ctx, newStoredProof(proof))
	if mongo.IsDuplicateKeyError(err) {
		return "", ledger.ErrProofExists
	}
	if err != nil {
		return "", errors.New("failed to insert the proof: " + err.Error())
	}

	v.logger.Debug("proof stored", zap.String("proofID", proof.ID), zap.String("agreementID", agreementID))
	return proof.ID, nil
}

func (v ProofVault) AddChainProof(ctx context.Context, caller identity.Identity, proofID string, chainProof model.ChainProof) (bool, error) {
	proof, found, err := v.GetProof(ctx, proofID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, ledger.ErrProofNotFound
	}
	if !proof.MayAppend(caller) {
		return false, ledger.ErrNotAuthorized
	}

	result, err := v.collection.UpdateOne(ctx,
		bson.M{"_id": proofID, "chains.chainName": bson.M{"$ne": chainProof.ChainName}},
		bson.M{"$push": bson.M{"chains": newStoredChainProof(chainProof)}})
	if err != nil {
		return false, errors.New("failed to append the chain proof: " + err.Error())
	}
	if result.MatchedCount == 0 {
		return false, ledger.ErrChainProofExists
	}

	return true, nil
}

func (v ProofVault) GetProof(ctx context.Context, id string) (model.NotarizationProof, bool, error) {
	return v.findOne(ctx, bson.M{"_id": id})
}

func (v ProofVault) GetProofByAgreement(ctx context.Context, agreementID string) (model.NotarizationProof, bool, error) {
	return v.findOne(ctx, bson.M{"agreementId": agreementID})
}

func (v ProofVault) GetAllProofs(ctx context.Context) ([]model.NotarizationProof, error) {
	cursor, err := v.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "notarizedAt", Value: 1}}))
	if err != nil {
		return nil, errors.New("failed to query the proofs: " + err.Error())
	}

	var stored []storedProof
	if err := cursor.All(ctx, &stored); err != nil {
		return nil, errors.New("failed to decode the proofs: " + err.Error())
	}

	proofs := make([]model.NotarizationProof, len(stored))
	for i, s := range stored {
		proofs[i] = s.toModel()
	}
	return proofs, nil
}

func (v ProofVault) VerifyProof(ctx context.Context, id, contentHash string) (bool, error) {
	proof, found, err := v.GetProof(ctx, id)
	if err != nil || !found {
		return false, err
	}
	return strings.EqualFold(proof.ContentHash, contentHash), nil
}

func (v ProofVault) findOne(ctx context.Context, filter bson.M) (model.NotarizationProof, bool, error) {
	var stored storedProof
	err := v.collection.FindOne(ctx, filter).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.NotarizationProof{}, false, nil
	}
	if err != nil {
		return model.NotarizationProof{}, false, errors.New("failed to read the proof: " + err.Error())
	}
	return stored.toModel(), true, nil
}
