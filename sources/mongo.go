package sources

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"resolution-dashboard/config"
	"resolution-dashboard/models"
)

// MongoSource reads experiments and their results directly from MongoDB.
type MongoSource struct {
	client      *mongo.Client
	experiments *mongo.Collection
	results     *mongo.Collection
	timeout     time.Duration
	log         zerolog.Logger
}

// NewMongoSource connects to MongoDB and verifies the connection.
func NewMongoSource(ctx context.Context, cfg config.MongoConfig, log zerolog.Logger) (*MongoSource, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(cfg.Database)
	return &MongoSource{
		client:      client,
		experiments: db.Collection(cfg.ExperimentsCollection),
		results:     db.Collection(cfg.ResultsCollection),
		timeout:     cfg.Timeout,
		log:         log.With().Str("source", "mongo").Logger(),
	}, nil
}

func (s *MongoSource) Name() string { return "mongo" }

// Close disconnects from MongoDB.
func (s *MongoSource) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type experimentDoc struct {
	ID           any    `bson:"_id"`
	ExperimentID string `bson:"experiment_id"`
	Directory    string `bson:"directory"`
	Title        string `bson:"title"`
	Description  string `bson:"description"`
	Timestamp    any    `bson:"timestamp"`
	Count        int    `bson:"total_records"`
}

func (s *MongoSource) ListExperiments(ctx context.Context) ([]Experiment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.experiments.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find experiments: %w", err)
	}
	defer cur.Close(ctx)

	var out []Experiment
	for cur.Next(ctx) {
		var doc experimentDoc
		if err := cur.Decode(&doc); err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable experiment")
			continue
		}
		id := doc.ExperimentID
		if id == "" {
			id = doc.Directory
		}
		if id == "" {
			id = fmt.Sprint(doc.ID)
		}
		exp := Experiment{
			ID:          id,
			Directory:   doc.Directory,
			Title:       doc.Title,
			Description: doc.Description,
			Timestamp:   bsonTimestamp(doc.Timestamp),
			Source:      OriginMongoDB,
			Count:       doc.Count,
			origin:      s,
		}
		if exp.Title == "" {
			exp.Title = id
		}
		out = append(out, exp)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate experiments: %w", err)
	}
	sortExperiments(out)
	return out, nil
}

// LoadRecords loads the results stored for the experiment.
func (s *MongoSource) LoadRecords(ctx context.Context, exp Experiment) ([]*models.Record, error) {
	records, err := s.find(ctx, bson.D{{Key: "experiment_id", Value: exp.ID}})
	if err != nil {
		return nil, fmt.Errorf("load experiment %s: %w", exp.ID, err)
	}
	if len(records) == 0 {
		return nil, notFound("experiment " + exp.ID)
	}
	return records, nil
}

// AllRecords returns every stored result.
func (s *MongoSource) AllRecords(ctx context.Context) ([]*models.Record, error) {
	return s.find(ctx, bson.D{})
}

func (s *MongoSource) find(ctx context.Context, filter bson.D) ([]*models.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.results.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var records []*models.Record
	for cur.Next(ctx) {
		rec, err := decodeDocument(cur.Current)
		if err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable document")
			continue
		}
		records = append(records, rec)
	}
	return records, cur.Err()
}

// decodeDocument converts a stored result through relaxed extended JSON,
// so ObjectIDs and dates reach the record decoder as {"$oid"} and {"$date"}.
func decodeDocument(raw bson.Raw) (*models.Record, error) {
	data, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("convert document: %w", err)
	}
	return models.DecodeRecord(data)
}

func bsonTimestamp(v any) models.Timestamp {
	switch t := v.(type) {
	case time.Time:
		return models.Timestamp(t.Unix())
	case interface{ Time() time.Time }:
		return models.Timestamp(t.Time().Unix())
	case int32:
		return numericTimestamp(float64(t))
	case int64:
		return numericTimestamp(float64(t))
	case float64:
		return numericTimestamp(t)
	case string:
		var ts models.Timestamp
		if err := ts.UnmarshalJSON([]byte(strconv.Quote(t))); err == nil {
			return ts
		}
	}
	return 0
}

func numericTimestamp(f float64) models.Timestamp {
	var ts models.Timestamp
	_ = ts.UnmarshalJSON([]byte(strconv.FormatFloat(f, 'f', -1, 64)))
	return ts
}
