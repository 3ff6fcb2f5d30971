package mongostore

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tomato-app/tomato-support/store"
)

// RecencyStages normalizes the first present timestamp field into _ts and
// sorts newest first; documents without one fall back to _id order.
func RecencyStages() bson.A {
	conv := make(bson.A, 0, len(store.TimestampFields)+1)
	for _, f := range store.TimestampFields {
		conv = append(conv, bson.M{"$convert": bson.M{
			"input":   "$" + f,
			"to":      "date",
			"onError": nil,
			"onNull":  nil,
		}})
	}
	conv = append(conv, nil)
	return bson.A{
		bson.M{"$addFields": bson.M{"_ts": bson.M{"$ifNull": conv}}},
		bson.M{"$sort": bson.D{{Key: "_ts", Value: -1}, {Key: "_id", Value: -1}}},
	}
}

// RecentOrdersPipeline selects a user's newest orders.
func RecentOrdersPipeline(userID string, limit int) bson.A {
	p := bson.A{bson.M{"$match": store.IdentityFilter(userID)}}
	p = append(p, RecencyStages()...)
	return append(p, bson.M{"$limit": limit})
}

func (s *Store) RecentOrders(ctx context.Context, userID string, limit int) ([]store.OrderRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	cur, err := s.orders().Aggregate(ctx, RecentOrdersPipeline(userID, limit))
	if err != nil {
		return nil, fmt.Errorf("aggregate orders: %w", err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	out := make([]store.OrderRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, store.DecodeOrder(d))
	}
	return out, nil
}

func (s *Store) RecentOrderIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	orders, err := s.RecentOrders(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.ID != "" {
			ids = append(ids, o.ID)
		}
	}
	return ids, nil
}

func (s *Store) LatestOrder(ctx context.Context, userID string) (*store.OrderRecord, error) {
	orders, err := s.RecentOrders(ctx, userID, 1)
	if err != nil || len(orders) == 0 {
		return nil, err
	}
	return &orders[0], nil
}

// TopOrderedPipeline sums item quantities across orders. Items are joined to
// foods on lower-cased name, optionally restricted to category, and grouped
// by the canonical menu name so dishes no longer on the menu drop out.
func TopOrderedPipeline(category string, limit int) bson.A {
	match := bson.A{
		bson.M{"$eq": bson.A{bson.M{"$toLower": "$name"}, bson.M{"$toLower": "$$itemName"}}},
	}
	if category != "" {
		match = append(match, bson.M{"$eq": bson.A{bson.M{"$toLower": "$category"}, strings.ToLower(category)}})
	}
	return bson.A{
		bson.M{"$unwind": "$items"},
		bson.M{"$addFields": bson.M{"qty": bson.M{"$ifNull": bson.A{"$items.quantity", "$items.qty", 1}}}},
		bson.M{"$lookup": bson.M{
			"from": FoodsCollection,
			"let":  bson.M{"itemName": "$items.name"},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"$expr": bson.M{"$and": match}}},
				bson.M{"$project": bson.M{"_id": 0, "name": 1}},
			},
			"as": "food",
		}},
		bson.M{"$match": bson.M{"food.0": bson.M{"$exists": true}}},
		bson.M{"$addFields": bson.M{"canonName": bson.M{"$arrayElemAt": bson.A{"$food.name", 0}}}},
		bson.M{"$group": bson.M{"_id": "$canonName", "totalQty": bson.M{"$sum": "$qty"}}},
		bson.M{"$sort": bson.D{{Key: "totalQty", Value: -1}, {Key: "_id", Value: 1}}},
		bson.M{"$limit": limit},
	}
}

func (s *Store) TopOrderedItems(ctx context.Context, category string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 3
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	cur, err := s.orders().Aggregate(ctx, TopOrderedPipeline(category, limit))
	if err != nil {
		return nil, fmt.Errorf("aggregate top items: %w", err)
	}
	var rows []struct {
		Name string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode top items: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Name != "" {
			names = append(names, r.Name)
		}
	}
	return names, nil
}
