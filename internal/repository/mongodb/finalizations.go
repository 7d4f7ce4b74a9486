package mongodb

import (
	"agreement-notary/internal/saga"
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StateStore persists finalization records, one document per agreement.
type StateStore struct {
	collection *mongo.Collection
}

func (s StateStore) Load(ctx context.Context, agreementID string) (saga.FinalizationStatus, bool, error) {
	var stored storedFinalization
	err := s.collection.FindOne(ctx, bson.M{"_id": agreementID}).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return saga.FinalizationStatus{}, false, nil
	}
	if err != nil {
		return saga.FinalizationStatus{}, false, errors.New("failed to read the finalization state: " + err.Error())
	}

	status, err := stored.toModel()
	if err != nil {
		return saga.FinalizationStatus{}, false, errors.New("corrupted finalization state: " + err.Error())
	}
	return status, true, nil
}

func (s StateStore) Save(ctx context.Context, status saga.FinalizationStatus) error {
	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": status.AgreementID},
		newStoredFinalization(status),
		options.Replace().SetUpsert(true))
	if err != nil {
		return errors.New("failed to save the finalization state: " + err.Error())
	}
	return nil
}
