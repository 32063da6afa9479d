package trades

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

const (
	DefaultDatabase   = "moexfolio"
	DefaultCollection = "trades"
	connectTimeout    = 10 * time.Second
)

// MongoStore keeps the ledger in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	l      *zap.Logger
}

// NewMongoStore connects to uri and pings the server.
func NewMongoStore(ctx context.Context, l *zap.Logger, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongodb uri is required")
	}
	if database == "" {
		database = DefaultDatabase
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongodb")
	}

	coll := client.Database(database).Collection(DefaultCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: 1}},
	})
	if err != nil {
		l.Warn("failed to ensure trades index", zap.Error(err))
	}

	l.Info("connected to mongodb", zap.String("database", database))

	return &MongoStore{client: client, coll: coll, l: l}, nil
}

func (s *MongoStore) List(ctx context.Context, userID int64) ([]domain.Trade, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find trades")
	}
	defer cur.Close(ctx)

	var out []domain.Trade
	for cur.Next(ctx) {
		var r record
		if err := cur.Decode(&r); err != nil {
			return nil, errors.Wrap(err, "decode trade document")
		}
		t, err := r.trade()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate trades")
	}

	return out, nil
}

func (s *MongoStore) Create(ctx context.Context, trade domain.Trade) (domain.Trade, error) {
	trade = withID(trade)
	if _, err := s.coll.InsertOne(ctx, newRecord(trade)); err != nil {
		return domain.Trade{}, errors.Wrap(err, "insert trade")
	}
	return trade, nil
}

// CreateBatch inserts all trades. When the insert fails midway the documents already written
// are removed so the batch is never partially applied.
func (s *MongoStore) CreateBatch(ctx context.Context, trades []domain.Trade) ([]domain.Trade, error) {
	if len(trades) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidTrade, "empty batch")
	}

	out := make([]domain.Trade, len(trades))
	docs := make([]any, len(trades))
	ids := make([]string, len(trades))
	for i, t := range trades {
		out[i] = withID(t)
		docs[i] = newRecord(out[i])
		ids[i] = out[i].ID
	}

	if _, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		if _, derr := s.coll.DeleteMany(context.WithoutCancel(ctx), bson.M{"_id": bson.M{"$in": ids}}); derr != nil {
			s.l.Error("failed to roll back partial trade batch", zap.Int("size", len(ids)), zap.Error(derr))
		}
		return nil, errors.Wrap(err, "insert trade batch")
	}

	return out, nil
}

func (s *MongoStore) Delete(ctx context.Context, userID int64, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return errors.Wrap(err, "delete trade")
	}
	if res.DeletedCount == 0 {
		return errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
