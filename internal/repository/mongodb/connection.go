package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	agreementsCollection    = "agreements"
	proofsCollection        = "proofs"
	finalizationsCollection = "finalizations"
)

type Repository struct {
	// connection closer function
	Disconnect func()

	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

func NewConnection(logger *zap.Logger, uri, database string) (Repository, error) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		logger.Error("db connection failed", zap.String("uri", uri))
		return Repository{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return Repository{}, err
	}

	closer := func() {
		if err = client.Disconnect(context.Background()); err != nil {
			logger.Error("failed to disconnect the DB: " + err.Error())
		}
	}

	repo := Repository{
		Disconnect: closer,
		client:     client,
		db:         client.Database(database),
		logger:     logger,
	}

	if err := repo.ensureIndexes(ctx); err != nil {
		closer()
		return Repository{}, err
	}

	return repo, nil
}

// ensureIndexes backs the one-proof-per-agreement rule with a unique index.
func (r Repository) ensureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(proofsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "agreementId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.New("failed to create the proof index: " + err.Error())
	}

	_, err = r.db.Collection(agreementsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "creator", Value: 1}}},
		{Keys: bson.D{{Key: "parties", Value: 1}}},
	})
	if err != nil {
		return errors.New("failed to create the agreement indexes: " + err.Error())
	}
	return nil
}

// Drop removes the whole database.
func (r Repository) Drop(ctx context.Context) error {
	return r.db.Drop(ctx)
}

func (r Repository) Agreements() AgreementStore {
	return AgreementStore{logger: r.logger, collection: r.db.Collection(agreementsCollection), now: time.Now}
}

func (r Repository) Proofs() ProofVault {
	return ProofVault{logger: r.logger, collection: r.db.Collection(proofsCollection), now: time.Now}
}

func (r Repository) Finalizations() StateStore {
	return StateStore{collection: r.db.Collection(finalizationsCollection)}
}
