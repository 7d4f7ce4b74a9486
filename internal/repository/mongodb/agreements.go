package mongodb

import (
	"agreement-notary/internal/identity"
	"agreement-notary/internal/ledger"
	"agreement-notary/internal/model"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const maxUpdateAttempts = 3

var errConcurrentUpdate = errors.New("the agreement was modified concurrently")

// AgreementStore keeps agreements in MongoDB. State changes go through the model's
// transition rules in a read-modify-write cycle guarded by a version field.
type AgreementStore struct {
	logger     *zap.Logger
	collection *mongo.Collection
	now        func() time.Time
}

func (s AgreementStore) CreateAgreement(ctx context.Context, creator identity.Identity, templateType, title, contentHash string, parties []identity.Identity) (string, error) {
	agreement, err := model.NewAgreement(templateType, title, contentHash, creator, parties, s.now())
	if err != nil {
		return "", err
	}

	if _, err := s.collection.InsertOne(ctx, newStoredAgreement(agreement, 1)); err != nil {
		return "", errors.New("failed to insert the agreement: " + err.Error())
	}

	s.logger.Debug("agreement stored", zap.String("agreementID", agreement.ID), zap.String("status", agreement.Status.String()))
	return agreement.ID, nil
}

func (s AgreementStore) GetAgreement(ctx context.Context, id string) (model.Agreement, bool, error) {
	stored, found, err := s.find(ctx, id)
	if err != nil || !found {
		return model.Agreement{}, false, err
	}

	agreement, err := stored.toModel()
	if err != nil {
		return model.Agreement{}, false, err
	}
	return agreement, true, nil
}

func (s AgreementStore) GetUserAgreements(ctx context.Context, user identity.Identity) ([]model.Agreement, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"creator": user.String()},
		bson.M{"parties": user.String()},
	}}
	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, errors.New("failed to query the user agreements: " + err.Error())
	}

	var stored []storedAgreement
	if err := cursor.All(ctx, &stored); err != nil {
		return nil, errors.New("failed to decode the user agreements: " + err.Error())
	}

	agreements := make([]model.Agreement, 0, len(stored))
	for _, s := range stored {
		agreement, err := s.toModel()
		if err != nil {
			return nil, err
		}
		agreements = append(agreements, agreement)
	}
	return agreements, nil
}

func (s AgreementStore) AddParties(ctx context.Context, id string, parties []identity.Identity) error {
	return s.update(ctx, id, func(agreement *model.Agreement) error {
		return agreement.AddParties(parties, s.now())
	})
}

func (s AgreementStore) SignAgreement(ctx context.Context, id string, signer identity.Identity) (bool, error) {
	err := s.update(ctx, id, func(agreement *model.Agreement) error {
		_, err := agreement.Sign(signer, s.now())
		return err
	})
	return err == nil, err
}

func (s AgreementStore) UpdateStatus(ctx context.Context, id string, status model.Status) (bool, error) {
	err := s.update(ctx, id, func(agreement *model.Agreement) error {
		return agreement.Transition(status, s.now())
	})
	return err == nil, err
}

func (s AgreementStore) GetUserStats(ctx context.Context, user identity.Identity) (model.UserStats, error) {
	agreements, err := s.GetUserAgreements(ctx, user)
	if err != nil {
		return model.UserStats{}, err
	}
	return model.ComputeUserStats(agreements), nil
}

func (s AgreementStore) find(ctx context.Context, id string) (storedAgreement, bool, error) {
	var stored storedAgreement
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storedAgreement{}, false, nil
	}
	if err != nil {
		return storedAgreement{}, false, errors.New("failed to read the agreement: " + err.Error())
	}
	return stored, true, nil
}

func (s AgreementStore) update(ctx context.Context, id string, change func(*model.Agreement) error) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		stored, found, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return ledger.ErrAgreementNotFound
		}

		agreement, err := stored.toModel()
		if err != nil {
			return err
		}
		if err := change(&agreement); err != nil {
			return err
		}

		result, err := s.collection.ReplaceOne(ctx,
			bson.M{"_id": id, "version": stored.Version},
			newStoredAgreement(agreement, stored.Version+1))
		if err != nil {
			return errors.New("failed to update the agreement: " + err.Error())
		}
		if result.MatchedCount == 1 {
			return nil
		}

		s.logger.Debug("agreement update conflict, retrying", zap.String("agreementID", id), zap.Int("attempt", attempt+1))
	}
	return errConcurrentUpdate
}
