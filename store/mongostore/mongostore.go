// Package mongostore implements the store adapters over MongoDB collections
// "foods" and "orders".
package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/store"
)

const (
	FoodsCollection  = "foods"
	OrdersCollection = "orders"

	catalogLimit = 500
)

// Store is the MongoDB implementation of store.MenuStore and store.OrderStore.
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
	log     *logger.Logger
}

var (
	_ store.MenuStore  = (*Store)(nil)
	_ store.OrderStore = (*Store)(nil)
)

// Connect dials uri and pings the primary before returning.
func Connect(ctx context.Context, uri, dbName string, timeout time.Duration, log *logger.Logger) (*Store, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout).
		SetAppName("tomato-support")
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return New(client, dbName, timeout, log), nil
}

// New wraps an already connected client.
func New(client *mongo.Client, dbName string, timeout time.Duration, log *logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{client: client, db: client.Database(dbName), timeout: timeout, log: log.WithField("component", "mongostore")}
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Name is the database name.
func (s *Store) Name() string { return s.db.Name() }

func (s *Store) foods() *mongo.Collection  { return s.db.Collection(FoodsCollection) }
func (s *Store) orders() *mongo.Collection { return s.db.Collection(OrdersCollection) }

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

// categoryFilter matches category case-insensitively and exactly.
func categoryFilter(category string) bson.M {
	if category == "" {
		return bson.M{}
	}
	return bson.M{"category": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(category) + "$", Options: "i"}}
}

func (s *Store) names(ctx context.Context, filter bson.M, sort bson.D, limit int) ([]string, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	opts := options.Find().SetProjection(bson.M{"name": 1})
	if sort != nil {
		opts.SetSort(sort)
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.foods().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find foods: %w", err)
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var doc struct {
			Name string `bson:"name"`
		}
		if err := cur.Decode(&doc); err == nil && doc.Name != "" {
			out = append(out, doc.Name)
		}
	}
	return out, cur.Err()
}

func (s *Store) ListByCategory(ctx context.Context, category string, limit int) ([]string, error) {
	return s.names(ctx, categoryFilter(category), nil, limit)
}

func (s *Store) ListAllNames(ctx context.Context, limit int) ([]string, error) {
	return s.names(ctx, bson.M{}, bson.D{{Key: "name", Value: 1}}, limit)
}

func (s *Store) TopByPopularity(ctx context.Context, category string, limit int) ([]string, error) {
	return s.names(ctx, categoryFilter(category), bson.D{{Key: "orders", Value: -1}, {Key: "name", Value: 1}}, limit)
}

type foodDoc struct {
	ID             interface{} `bson:"_id"`
	store.MenuItem `bson:",inline"`
}

func (d foodDoc) item() store.MenuItem {
	it := d.MenuItem
	switch id := d.ID.(type) {
	case primitive.ObjectID:
		it.ID = id.Hex()
	case string:
		it.ID = id
	default:
		it.ID = fmt.Sprint(id)
	}
	return it
}

func (s *Store) Catalog(ctx context.Context, limit int) ([]store.MenuItem, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	if limit <= 0 {
		limit = catalogLimit
	}
	cur, err := s.foods().Find(ctx, bson.M{}, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("find foods: %w", err)
	}
	var docs []foodDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode foods: %w", err)
	}
	out := make([]store.MenuItem, len(docs))
	for i, d := range docs {
		out[i] = d.item()
	}
	return out, nil
}

// Search loads the catalog and ranks it in process; the menu is small.
func (s *Store) Search(ctx context.Context, query string, k int) ([]store.Match, error) {
	catalog, err := s.Catalog(ctx, catalogLimit)
	if err != nil {
		return nil, err
	}
	return store.RankMatches(query, catalog, k), nil
}

func (s *Store) FindByIDs(ctx context.Context, ids []string) (map[string]store.MenuItem, error) {
	out := make(map[string]store.MenuItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	oids, raw := bson.A{}, bson.A{}
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
		raw = append(raw, id)
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	cur, err := s.foods().Find(ctx, bson.M{"$or": bson.A{
		bson.M{"_id": bson.M{"$in": oids}},
		bson.M{"_id": bson.M{"$in": raw}},
	}})
	if err != nil {
		return nil, fmt.Errorf("find foods by id: %w", err)
	}
	var docs []foodDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode foods: %w", err)
	}
	for _, d := range docs {
		it := d.item()
		out[it.ID] = it
	}
	return out, nil
}

// BumpPopularity applies one $inc per item. Concurrent bumps may interleave;
// counts are advisory.
func (s *Store) BumpPopularity(ctx context.Context, bumps []store.Bump) error {
	if len(bumps) == 0 {
		return nil
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	models := make([]mongo.WriteModel, 0, len(bumps))
	for _, b := range bumps {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			continue
		}
		qty := b.Qty
		if qty < 1 {
			qty = 1
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"name": name}).
			SetUpdate(bson.M{"$inc": bson.M{"orders": qty}}))
	}
	if len(models) == 0 {
		return nil
	}
	_, err := s.foods().BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("bump popularity: %w", err)
	}
	return nil
}

// Bootstrap upserts seed by name when the collection holds fewer than
// store.BootstrapThreshold documents, then ensures indexes. It returns the
// number of upserted documents.
func (s *Store) Bootstrap(ctx context.Context, seed []store.MenuItem) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 4*s.timeout)
	defer cancel()

	n, err := s.foods().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count foods: %w", err)
	}
	upserted := 0
	if n < store.BootstrapThreshold {
		models := make([]mongo.WriteModel, 0, len(seed))
		for _, it := range seed {
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"name": it.Name}).
				SetUpdate(bson.M{
					"$set":         bson.M{"category": it.Category, "price": it.Price, "description": it.Description},
					"$setOnInsert": bson.M{"orders": it.Orders},
				}).
				SetUpsert(true))
		}
		res, err := s.foods().BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
		if err != nil {
			return 0, fmt.Errorf("seed foods: %w", err)
		}
		upserted = int(res.UpsertedCount)
		s.log.WithField("upserted", upserted).Info("seeded menu")
	}

	_, err = s.foods().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "orders", Value: -1}}},
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		s.log.Error("create food indexes", err)
	}
	return upserted, nil
}
