package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"dynetl/internal/config"
	"dynetl/internal/dbclient"
	"dynetl/internal/domain"
	"dynetl/internal/logging"
)

// RecordsCollection is the collection every source database stores its
// documents in.
const RecordsCollection = "records"

// LegacySuffix is appended to a field name to mark its prior type after a
// type change.
const LegacySuffix = "_legacy"

// MongoStore implements domain.DocumentStore. Each source gets its own
// database named <prefix><sanitized source id>.
type MongoStore struct {
	client *mongo.Client
	prefix string
	logger *zap.Logger
}

var _ domain.DocumentStore = (*MongoStore)(nil)

// ConnectMongo dials the configured server and verifies it with a ping.
func ConnectMongo(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetConnectTimeout(cfg.Timeout).SetServerSelectionTimeout(cfg.Timeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	store := NewMongoStore(client, cfg.DatabasePrefix, logger)
	if err := store.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.Info("connected to document store", zap.String("uri", logging.SanitizeConnectionString(cfg.URI)))
	return store, nil
}

// NewMongoStore wraps an existing client.
func NewMongoStore(client *mongo.Client, prefix string, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStore{client: client, prefix: prefix, logger: logger}
}

// DatabaseName returns the database holding sourceID's documents.
func DatabaseName(prefix, sourceID string) string {
	return prefix + domain.SanitizeIdentifier(sourceID)
}

func (s *MongoStore) collection(sourceID string) *mongo.Collection {
	return s.client.Database(DatabaseName(s.prefix, sourceID)).Collection(RecordsCollection)
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongodb: %w", err)
	}
	return nil
}

// Prepare creates the records collection and its version index.
func (s *MongoStore) Prepare(ctx context.Context, sourceID string) error {
	db := s.client.Database(DatabaseName(s.prefix, sourceID))
	names, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: RecordsCollection}})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	if !slices.Contains(names, RecordsCollection) {
		if err := db.CreateCollection(ctx, RecordsCollection); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
		s.logger.Info("created collection", zap.String("database", db.Name()))
	}
	_, err = db.Collection(RecordsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: domain.DocFieldSchemaVersion, Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create version index: %w", err)
	}
	return nil
}

// InsertBatch writes docs unordered so one bad document does not stop the
// rest. Per-document write errors are counted, not returned.
func (s *MongoStore) InsertBatch(ctx context.Context, sourceID string, docs []map[string]domain.Value) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	batch := make([]any, len(docs))
	for i, d := range docs {
		batch[i] = domain.ToMap(d)
	}

	_, err := s.collection(sourceID).InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	if err == nil {
		return len(docs), nil
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && bwe.WriteConcernError == nil && len(bwe.WriteErrors) > 0 {
		for _, we := range bwe.WriteErrors {
			s.logger.Warn("document rejected",
				zap.String("source_id", sourceID),
				zap.Int("index", we.Index),
				zap.String("error", we.Message))
		}
		return len(docs) - len(bwe.WriteErrors), nil
	}
	return 0, fmt.Errorf("insert documents: %w", err)
}

// Evolve back-fills added top-level fields with null and marks values that
// do not fit a changed type with <field>_legacy holding the prior type.
// Both updates only touch documents not already migrated.
func (s *MongoStore) Evolve(ctx context.Context, sourceID string, diff *domain.SchemaDiff) error {
	if diff.IsEmpty() {
		return nil
	}
	coll := s.collection(sourceID)
	for _, op := range EvolveOps(diff) {
		res, err := coll.UpdateMany(ctx, op.Filter, op.Update)
		if err != nil {
			return fmt.Errorf("evolve %s: %w", op.Field, err)
		}
		s.logger.Debug("evolved field",
			zap.String("source_id", sourceID),
			zap.String("field", op.Field),
			zap.Int64("modified", res.ModifiedCount))
	}
	return nil
}

// EvolveOp is one UpdateMany applied by Evolve.
type EvolveOp struct {
	Field  string
	Filter bson.M
	Update bson.M
}

// topLevelField reports whether path names a real top-level document key.
// Nested paths ("a.b") and list-element paths ("tags[]") are collector
// artefacts, not keys.
func topLevelField(path string) bool {
	return !strings.Contains(path, ".") && !strings.Contains(path, "[]")
}

// EvolveOps renders the idempotent updates for diff. Only top-level fields
// are back-filled; a nested or list-element path is covered by its parent.
func EvolveOps(diff *domain.SchemaDiff) []EvolveOp {
	var ops []EvolveOp
	for _, f := range diff.AddedFields {
		if !topLevelField(f) {
			continue
		}
		ops = append(ops, EvolveOp{
			Field:  f,
			Filter: bson.M{f: bson.M{"$exists": false}},
			Update: bson.M{"$set": bson.M{f: nil}},
		})
	}
	for _, f := range sortedKeys(diff.TypeChanges) {
		if strings.Contains(f, "[]") {
			continue
		}
		tc := diff.TypeChanges[f]
		legacy := f + LegacySuffix
		ops = append(ops, EvolveOp{
			Field: f,
			Filter: bson.M{
				f:      bson.M{"$exists": true, "$ne": nil, "$not": bson.M{"$type": BSONTypesFor(tc.New)}},
				legacy: bson.M{"$exists": false},
			},
			Update: bson.M{"$set": bson.M{legacy: tc.Old}},
		})
	}
	return ops
}

// BSONTypesFor lists the BSON type aliases that satisfy a schema type.
func BSONTypesFor(schemaType string) bson.A {
	switch schemaType {
	case domain.TypeString:
		return bson.A{"string"}
	case domain.TypeInteger:
		return bson.A{"int", "long"}
	case domain.TypeNumber:
		return bson.A{"double", "int", "long", "decimal"}
	case domain.TypeBoolean:
		return bson.A{"bool"}
	case domain.TypeObject:
		return bson.A{"object"}
	case domain.TypeArray:
		return bson.A{"array"}
	default:
		return bson.A{"null"}
	}
}

func (s *MongoStore) Find(ctx context.Context, sourceID string, q domain.DocumentQuery) ([]map[string]any, error) {
	opts := options.Find()
	if len(q.Sort) > 0 {
		sort := bson.D{}
		for _, k := range q.Sort {
			sort = append(sort, bson.E{Key: k.Field, Value: k.Direction})
		}
		opts.SetSort(sort)
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.collection(sourceID).Find(ctx, MongoFilter(q.Filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	results := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		if m, ok := dbclient.PlainBSON(d).(map[string]any); ok {
			results = append(results, m)
		}
	}
	return results, nil
}

func (s *MongoStore) Count(ctx context.Context, sourceID string, filter map[string]any) (int64, error) {
	n, err := s.collection(sourceID).CountDocuments(ctx, MongoFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// MongoFilter converts a decoded filter into BSON. A hex string _id is
// matched as an ObjectID, since Find returns ids in hex form.
func MongoFilter(filter map[string]any) bson.M {
	out := bson.M{}
	for k, v := range filter {
		if k == "_id" {
			if s, ok := v.(string); ok {
				if oid, err := bson.ObjectIDFromHex(s); err == nil {
					out[k] = oid
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
