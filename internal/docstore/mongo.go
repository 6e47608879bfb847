package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Every document lives in the Mongo collection named after the last segment
// of its collection path, so all "stories" sub-collections share one Mongo
// collection and a collection-group query is a plain find on it.
const (
	fieldID     = "_id"
	fieldParent = "_parent"
)

// Server error codes mapped onto the store's sentinel errors.
const (
	codeUnauthorized             = 13
	codeIndexNotFound            = 27
	codeQueryExceededMemoryLimit = 292
)

// Mongo is the Store backed by a hosted MongoDB deployment.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects and pings the deployment.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Mongo{client: client, db: client.Database(database)}, nil
}

// EnsureIndexes creates the indexes the store's queries rely on.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.db.Collection(StoriesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: fieldParent, Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create story indexes: %w", mapMongoErr(err))
	}
	_, err = m.db.Collection(UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: fieldParent, Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", mapMongoErr(err))
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) collectionFor(path string) *mongo.Collection {
	parent, _ := splitDocPath(path)
	segments := strings.Split(parent, "/")
	return m.db.Collection(segments[len(segments)-1])
}

func (m *Mongo) Get(ctx context.Context, path string) (Document, error) {
	if err := validDocPath(path); err != nil {
		return nil, err
	}
	var raw bson.M
	err := m.collectionFor(path).FindOne(ctx, bson.M{fieldID: path}).Decode(&raw)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return fromBSON(raw), nil
}

func (m *Mongo) Set(ctx context.Context, path string, data Document) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	parent, _ := splitDocPath(path)
	fields := bson.M{fieldParent: parent}
	for k, v := range data {
		if k == fieldID || k == fieldParent {
			continue
		}
		fields[k] = v
	}
	_, err := m.collectionFor(path).UpdateOne(ctx,
		bson.M{fieldID: path},
		bson.M{"$set": fields},
		options.Update().SetUpsert(true),
	)
	return mapMongoErr(err)
}

func (m *Mongo) Update(ctx context.Context, path string, fields Document) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	set := bson.M{}
	for k, v := range fields {
		if k == fieldID || k == fieldParent {
			continue
		}
		set[k] = v
	}
	return m.updateExisting(ctx, path, bson.M{"$set": set})
}

func (m *Mongo) updateExisting(ctx context.Context, path string, update any) error {
	res, err := m.collectionFor(path).UpdateOne(ctx, bson.M{fieldID: path}, update)
	if err != nil {
		return mapMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, path string) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	_, err := m.collectionFor(path).DeleteOne(ctx, bson.M{fieldID: path})
	return mapMongoErr(err)
}

func (m *Mongo) List(ctx context.Context, collection string) ([]Snapshot, error) {
	if err := validCollectionPath(collection); err != nil {
		return nil, err
	}
	segments := strings.Split(collection, "/")
	cur, err := m.db.Collection(segments[len(segments)-1]).Find(ctx, bson.M{fieldParent: collection})
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return readAll(ctx, cur)
}

func (m *Mongo) QueryGroup(ctx context.Context, group, orderBy string) ([]Snapshot, error) {
	opts := options.Find().SetSort(bson.D{{Key: orderBy, Value: -1}})
	cur, err := m.db.Collection(group).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, mapMongoErr(err)
	}
	return readAll(ctx, cur)
}

// Increment runs as a single pipeline update so the clamp at zero is atomic.
func (m *Mongo) Increment(ctx context.Context, path, field string, delta int64) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	next := bson.D{{Key: "$max", Value: bson.A{
		0,
		bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{"$" + field, 0}}},
			delta,
		}}},
	}}}
	pipeline := mongo.Pipeline{{{Key: "$set", Value: bson.D{{Key: field, Value: next}}}}}
	return m.updateExisting(ctx, path, pipeline)
}

func (m *Mongo) ArrayUnion(ctx context.Context, path, field string, values ...any) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	return m.updateExisting(ctx, path, bson.M{
		"$addToSet": bson.M{field: bson.M{"$each": values}},
	})
}

func (m *Mongo) ArrayRemove(ctx context.Context, path, field string, values ...any) error {
	if err := validDocPath(path); err != nil {
		return err
	}
	return m.updateExisting(ctx, path, bson.M{
		"$pull": bson.M{field: bson.M{"$in": values}},
	})
}

func readAll(ctx context.Context, cur *mongo.Cursor) ([]Snapshot, error) {
	defer cur.Close(ctx)

	var out []Snapshot
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		path, _ := raw[fieldID].(string)
		out = append(out, Snapshot{Path: path, Data: fromBSON(raw)})
	}
	if err := cur.Err(); err != nil {
		return nil, mapMongoErr(err)
	}
	return out, nil
}

// fromBSON strips the bookkeeping fields and converts driver types into the
// plain maps and slices the decoders expect.
func fromBSON(raw bson.M) Document {
	doc := make(Document, len(raw))
	for k, v := range raw {
		if k == fieldID || k == fieldParent {
			continue
		}
		doc[k] = plain(v)
	}
	return doc
}

func plain(v any) any {
	switch t := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plain(e)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = plain(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case primitive.DateTime:
		return int64(t)
	}
	return v
}

func mapMongoErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}

	var se mongo.ServerError
	if errors.As(err, &se) {
		switch {
		case se.HasErrorCode(codeUnauthorized):
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		case se.HasErrorCode(codeIndexNotFound), se.HasErrorCode(codeQueryExceededMemoryLimit):
			return fmt.Errorf("%w: %v", ErrFailedPrecondition, err)
		}
	}

	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
