package datastore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/schema"
)

// mongoTimeout bounds connecting and pinging a MongoDB deployment.
const mongoTimeout = 10 * time.Second

// codeIllegalOperation is returned by standalone servers for transactions.
const codeIllegalOperation = 20

func connectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, contract.DataSourceError(err, "connect to MongoDB")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, contract.DataSourceError(err, "ping MongoDB")
	}
	return client, nil
}

func databaseOrDefault(name string) string {
	if name == "" {
		return DefaultMongoDatabase
	}
	return name
}

// MongoMatchStore reads and writes match documents in a MongoDB collection.
type MongoMatchStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ contract.MatchSource = &MongoMatchStore{} // Compile-time check

// NewMongoMatchStore connects to uri and selects database.collection.
func NewMongoMatchStore(ctx context.Context, uri, database, collection string) (*MongoMatchStore, error) {
	client, err := connectMongo(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &MongoMatchStore{
		client:     client,
		collection: client.Database(databaseOrDefault(database)).Collection(collection),
	}, nil
}

// FetchMatches implements contract.MatchSource. Matches are returned oldest first.
func (s *MongoMatchStore) FetchMatches(ctx context.Context, since time.Time, limit int) ([]schema.MatchRecord, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	filter := bson.M{"time": bson.M{"$gt": since.UnixMilli()}}
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "time", Value: 1}}).
		SetProjection(bson.M{"time": 1, "rank": 1, "pokemons.name": 1})
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, contract.DataSourceError(err, "find matches in %s", s.collection.Name())
	}

	var docs []matchDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, contract.DataSourceError(err, "decode matches")
	}

	matches := make([]schema.MatchRecord, len(docs))
	for i, d := range docs {
		matches[i] = d.record()
	}
	return matches, nil
}

// WriteMatches implements MatchWriter.
func (s *MongoMatchStore) WriteMatches(ctx context.Context, matches []schema.MatchRecord) error {
	if len(matches) == 0 {
		return nil
	}
	docs := make([]any, len(matches))
	for i, m := range matches {
		docs[i] = toDocument(m)
	}
	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return contract.DataSourceError(err, "insert matches into %s", s.collection.Name())
	}
	return nil
}

// Close implements contract.MatchSource.
func (s *MongoMatchStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// MongoReportSink writes each named report to its own collection, one document per archetype.
type MongoReportSink struct {
	client   *mongo.Client
	database *mongo.Database
	insert   func(ctx context.Context, coll *mongo.Collection, docs []any) error
}

var _ contract.ReportSink = &MongoReportSink{} // Compile-time check

// stagingSuffix names the collection a report is built in before it replaces the live one.
const stagingSuffix = "_staging"

// NewMongoReportSink connects to uri and selects database.
func NewMongoReportSink(ctx context.Context, uri, database string) (*MongoReportSink, error) {
	client, err := connectMongo(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &MongoReportSink{
		client:   client,
		database: client.Database(databaseOrDefault(database)),
		insert:   insertDocuments,
	}, nil
}

func insertDocuments(ctx context.Context, coll *mongo.Collection, docs []any) error {
	_, err := coll.InsertMany(ctx, docs)
	return err
}

// ReplaceReport clears the collection named after the report and inserts entries.
// Replica sets get a transaction. Standalone servers build the report in a staging
// collection and rename it over the live one, so a failed write leaves the prior report.
func (s *MongoReportSink) ReplaceReport(ctx context.Context, name string, entries []schema.MetaReportEntry) error {
	if name == "" {
		return contract.ConfigurationError("report name cannot be empty")
	}
	docs := make([]any, len(entries))
	for i, e := range entries {
		docs[i] = e
	}

	session, err := s.client.StartSession()
	if err != nil {
		return contract.DataSourceError(err, "start session")
	}
	defer session.EndSession(context.Background())

	coll := s.database.Collection(name)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		if _, err := coll.DeleteMany(sc, bson.M{}); err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return nil, nil
		}
		return nil, s.insert(sc, coll, docs)
	})
	if err != nil && transactionsUnsupported(err) {
		err = s.replaceByRename(ctx, name, docs)
	}
	if err != nil {
		return contract.DataSourceError(err, "replace report %q", name)
	}
	return nil
}

// replaceByRename fills name+stagingSuffix and renames it onto name with dropTarget.
func (s *MongoReportSink) replaceByRename(ctx context.Context, name string, docs []any) error {
	staging := s.database.Collection(name + stagingSuffix)
	if err := staging.Drop(ctx); err != nil {
		return err
	}
	if err := s.database.CreateCollection(ctx, staging.Name()); err != nil {
		return err
	}
	if len(docs) > 0 {
		if err := s.insert(ctx, staging, docs); err != nil {
			_ = staging.Drop(context.Background())
			return err
		}
	}

	dbName := s.database.Name()
	rename := bson.D{
		{Key: "renameCollection", Value: dbName + "." + staging.Name()},
		{Key: "to", Value: dbName + "." + name},
		{Key: "dropTarget", Value: true},
	}
	if err := s.client.Database("admin").RunCommand(ctx, rename).Err(); err != nil {
		_ = staging.Drop(context.Background())
		return err
	}
	return nil
}

// ReadReport returns the archetypes stored under name ordered by cluster id.
func (s *MongoReportSink) ReadReport(ctx context.Context, name string) ([]schema.MetaReportEntry, error) {
	cursor, err := s.database.Collection(name).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "cluster_id", Value: 1}}))
	if err != nil {
		return nil, contract.DataSourceError(err, "find report %q", name)
	}
	var entries []schema.MetaReportEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, contract.DataSourceError(err, "decode report %q", name)
	}
	return entries, nil
}

// Close implements contract.ReportSink.
func (s *MongoReportSink) Close() error {
	return s.client.Disconnect(context.Background())
}

func transactionsUnsupported(err error) bool {
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(codeIllegalOperation) ||
			se.HasErrorMessage("Transaction numbers are only allowed on a replica set member or mongos")
	}
	return false
}
