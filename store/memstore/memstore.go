// Package memstore is an in-process implementation of the store adapters. It
// backs the dev server when no MongoDB URI is configured and the agent tests.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tomato-app/tomato-support/store"
)

// Store holds menu items and raw order documents in memory.
type Store struct {
	mu     sync.RWMutex
	items  []store.MenuItem
	orders []orderDoc
	nextID int

	orderQueries int
}

type orderDoc struct {
	seq int
	doc bson.M
}

var (
	_ store.MenuStore  = (*Store)(nil)
	_ store.OrderStore = (*Store)(nil)
)

// New returns a store holding items.
func New(items ...store.MenuItem) *Store {
	s := &Store{}
	for _, it := range items {
		s.insertLocked(it)
	}
	return s
}

func (s *Store) insertLocked(it store.MenuItem) {
	s.nextID++
	if it.ID == "" {
		it.ID = "item-" + strconv.Itoa(s.nextID)
	}
	s.items = append(s.items, it)
}

// AddOrder appends a raw order document, as the checkout service would.
func (s *Store) AddOrder(doc bson.M) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, orderDoc{seq: len(s.orders), doc: doc})
}

// Item returns the item named name.
func (s *Store) Item(name string) (store.MenuItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if strings.EqualFold(it.Name, name) {
			return it, true
		}
	}
	return store.MenuItem{}, false
}

// OrderQueries counts calls that read order history.
func (s *Store) OrderQueries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderQueries
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) filterNames(category string, less func(a, b store.MenuItem) bool, limit int) []string {
	s.mu.RLock()
	matched := make([]store.MenuItem, 0, len(s.items))
	for _, it := range s.items {
		if category == "" || strings.EqualFold(it.Category, category) {
			matched = append(matched, it)
		}
	}
	s.mu.RUnlock()
	if less != nil {
		sort.SliceStable(matched, func(i, j int) bool { return less(matched[i], matched[j]) })
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]string, len(matched))
	for i, it := range matched {
		out[i] = it.Name
	}
	return out
}

func (s *Store) ListByCategory(_ context.Context, category string, limit int) ([]string, error) {
	return s.filterNames(category, nil, limit), nil
}

func (s *Store) ListAllNames(_ context.Context, limit int) ([]string, error) {
	return s.filterNames("", func(a, b store.MenuItem) bool { return a.Name < b.Name }, limit), nil
}

func (s *Store) TopByPopularity(_ context.Context, category string, limit int) ([]string, error) {
	return s.filterNames(category, func(a, b store.MenuItem) bool {
		if a.Orders != b.Orders {
			return a.Orders > b.Orders
		}
		return a.Name < b.Name
	}, limit), nil
}

func (s *Store) Catalog(_ context.Context, limit int) ([]store.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]store.MenuItem, n)
	copy(out, s.items[:n])
	return out, nil
}

func (s *Store) Search(ctx context.Context, query string, k int) ([]store.Match, error) {
	catalog, _ := s.Catalog(ctx, 0)
	return store.RankMatches(query, catalog, k), nil
}

func (s *Store) FindByIDs(_ context.Context, ids []string) (map[string]store.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[string]store.MenuItem, len(ids))
	for _, it := range s.items {
		if want[it.ID] {
			out[it.ID] = it
		}
	}
	return out, nil
}

func (s *Store) BumpPopularity(_ context.Context, bumps []store.Bump) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bumps {
		qty := b.Qty
		if qty < 1 {
			qty = 1
		}
		for i := range s.items {
			if s.items[i].Name == strings.TrimSpace(b.Name) {
				s.items[i].Orders += int64(qty)
			}
		}
	}
	return nil
}

func (s *Store) Bootstrap(_ context.Context, seed []store.MenuItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) >= store.BootstrapThreshold {
		return 0, nil
	}
	upserted := 0
	for _, it := range seed {
		found := false
		for i := range s.items {
			if s.items[i].Name == it.Name {
				s.items[i].Category, s.items[i].Price, s.items[i].Description = it.Category, it.Price, it.Description
				found = true
				break
			}
		}
		if !found {
			s.insertLocked(it)
			upserted++
		}
	}
	return upserted, nil
}

// ownedBy evaluates store.IdentityFilter semantics against a raw document.
func ownedBy(doc bson.M, userID string) bool {
	for _, e := range store.IdentityEncodings {
		clause, ok := e.Clause(userID)
		if !ok {
			continue
		}
		want := clause[e.Field()]
		if lookup(doc, e.Field()) == want {
			return true
		}
	}
	return false
}

func lookup(doc bson.M, path string) interface{} {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		return doc[path]
	}
	switch sub := doc[head].(type) {
	case bson.M:
		return lookup(sub, rest)
	case map[string]interface{}:
		return lookup(bson.M(sub), rest)
	}
	return nil
}

func (s *Store) RecentOrders(_ context.Context, userID string, limit int) ([]store.OrderRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	s.mu.Lock()
	s.orderQueries++
	type ranked struct {
		seq int
		rec store.OrderRecord
	}
	var mine []ranked
	for _, o := range s.orders {
		if ownedBy(o.doc, userID) {
			mine = append(mine, ranked{o.seq, store.DecodeOrder(o.doc)})
		}
	}
	s.mu.Unlock()

	// newest timestamp first; documents without one sort last, by insertion
	sort.SliceStable(mine, func(i, j int) bool {
		a, b := mine[i], mine[j]
		if a.rec.HasTimestamp != b.rec.HasTimestamp {
			return a.rec.HasTimestamp
		}
		if !a.rec.PlacedAt.Equal(b.rec.PlacedAt) {
			return a.rec.PlacedAt.After(b.rec.PlacedAt)
		}
		return a.seq > b.seq
	})
	if limit > 0 && len(mine) > limit {
		mine = mine[:limit]
	}
	out := make([]store.OrderRecord, len(mine))
	for i, m := range mine {
		out[i] = m.rec
	}
	return out, nil
}

func (s *Store) RecentOrderIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	orders, _ := s.RecentOrders(ctx, userID, limit)
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.ID != "" {
			ids = append(ids, o.ID)
		}
	}
	return ids, nil
}

func (s *Store) LatestOrder(ctx context.Context, userID string) (*store.OrderRecord, error) {
	orders, _ := s.RecentOrders(ctx, userID, 1)
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (s *Store) TopOrderedItems(_ context.Context, category string, limit int) ([]string, error) {
	s.mu.Lock()
	s.orderQueries++
	docs := make([]bson.M, len(s.orders))
	for i, o := range s.orders {
		docs[i] = o.doc
	}
	items := append([]store.MenuItem(nil), s.items...)
	s.mu.Unlock()

	canon := map[string]store.MenuItem{}
	for _, it := range items {
		canon[strings.ToLower(it.Name)] = it
	}
	totals := map[string]int{}
	display := map[string]string{}
	for _, d := range docs {
		for _, line := range store.DecodeOrder(d).Items {
			key := strings.ToLower(line.Name)
			it, ok := canon[key]
			if !ok || (category != "" && !strings.EqualFold(it.Category, category)) {
				continue
			}
			display[key] = it.Name
			totals[key] += line.Qty
		}
	}
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if totals[keys[i]] != totals[keys[j]] {
			return totals[keys[i]] > totals[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = display[k]
	}
	return out, nil
}
