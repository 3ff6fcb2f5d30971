package support

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tomato-app/tomato-support/intent"
	"github.com/tomato-app/tomato-support/knowledge"
	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/memory"
	"github.com/tomato-app/tomato-support/orderservice"
	"github.com/tomato-app/tomato-support/store"
	"github.com/tomato-app/tomato-support/store/memstore"
)

var creds = orderservice.Credentials{Token: "tok-1"}

type fakeLLM struct {
	mu     sync.Mutex
	reply  string
	err    error
	system []string
	user   []string
}

func (f *fakeLLM) Chat(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.system = append(f.system, system)
	f.user = append(f.user, user)
	return f.reply, f.err
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.user)
}

type fakeCart struct {
	mu          sync.Mutex
	requireAuth bool
	lines       []orderservice.CartLine
	adds        []store.Bump
	removes     []store.Bump
	clears      int
	calls       int
	checkoutReq *orderservice.CheckoutRequest
	result      orderservice.CheckoutResult
	confirmed   string
}

var _ CartService = (*fakeCart)(nil)

func (f *fakeCart) RequiresAuth() bool { return f.requireAuth }

func (f *fakeCart) AddToCart(_ context.Context, _ orderservice.Credentials, _ string, item store.MenuItem, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.adds = append(f.adds, store.Bump{Name: item.Name, Qty: qty})
	for i := range f.lines {
		if f.lines[i].Name == item.Name {
			f.lines[i].Qty += qty
			return nil
		}
	}
	f.lines = append(f.lines, orderservice.CartLine{ItemID: item.ID, Name: item.Name, Qty: qty, Price: item.Price})
	return nil
}

func (f *fakeCart) RemoveFromCart(_ context.Context, _ orderservice.Credentials, _ string, item store.MenuItem, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.removes = append(f.removes, store.Bump{Name: item.Name, Qty: qty})
	for i := range f.lines {
		if f.lines[i].Name == item.Name {
			f.lines[i].Qty -= qty
			if f.lines[i].Qty <= 0 {
				f.lines = append(f.lines[:i], f.lines[i+1:]...)
			}
			break
		}
	}
	return nil
}

func (f *fakeCart) GetCart(context.Context, orderservice.Credentials, string) (orderservice.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return orderservice.Cart{Lines: append([]orderservice.CartLine(nil), f.lines...)}, nil
}

func (f *fakeCart) ClearCart(context.Context, orderservice.Credentials, string) (orderservice.ClearStrategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.clears++
	f.lines = nil
	return orderservice.ClearedByEndpoint, nil
}

func (f *fakeCart) Checkout(_ context.Context, _ orderservice.Credentials, _ string, req orderservice.CheckoutRequest) (orderservice.CheckoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.checkoutReq = &req
	return f.result, nil
}

func (f *fakeCart) Confirm(_ context.Context, _ orderservice.Credentials, _, ref string) (orderservice.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.confirmed = ref
	return orderservice.Confirmation{OrderID: "ord-9", ETA: "30 minutes"}, nil
}

func (f *fakeCart) snapshot() ([]orderservice.CartLine, []store.Bump, []store.Bump, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]orderservice.CartLine(nil), f.lines...), append([]store.Bump(nil), f.adds...), append([]store.Bump(nil), f.removes...), f.calls
}

type fakeMemory struct {
	mu        sync.Mutex
	hits      []string
	appendErr error
	appended  map[string][]memory.Entry
}

func (f *fakeMemory) Search(context.Context, string, string, int) ([]string, error) {
	return f.hits, nil
}

func (f *fakeMemory) Append(_ context.Context, userID string, entries ...memory.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	if f.appended == nil {
		f.appended = map[string][]memory.Entry{}
	}
	f.appended[userID] = append(f.appended[userID], entries...)
	return nil
}

func (f *fakeMemory) Ping(context.Context) error { return nil }
func (f *fakeMemory) Close() error               { return nil }

func (f *fakeMemory) entries(userID string) []memory.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]memory.Entry(nil), f.appended[userID]...)
}

func seeded() *memstore.Store {
	return memstore.New(store.SeedMenu()...)
}

func newAgent(t *testing.T, cfg Config, deps Deps) *Agent {
	t.Helper()
	deps.Log = logger.NewNop()
	a := New(cfg, deps)
	t.Cleanup(a.Wait)
	return a
}

func ask(t *testing.T, a *Agent, msg, userID string, c orderservice.Credentials) Reply {
	t.Helper()
	r, err := a.Handle(context.Background(), Turn{Message: msg, UserID: userID, Credentials: c, RequestID: "req-test"})
	require.NoError(t, err)
	return r
}

func TestPaymentErrorBlob(t *testing.T) {
	db := seeded()
	a := newAgent(t, Config{}, Deps{Menu: db, Orders: db})

	r := ask(t, a, "card_declined decline_code: insufficient_funds", "", orderservice.Credentials{})
	assert.Equal(t, intent.KindPaymentError, r.Intent)
	assert.Contains(t, r.Text, "insufficient_funds")
	assert.Contains(t, r.Text, "contact your bank")
	assert.True(t, strings.HasSuffix(r.Text, knowledge.NextSteps), r.Text)
}

func TestDessertListing(t *testing.T) {
	db := seeded()
	a := newAgent(t, Config{}, Deps{Menu: db, Orders: db})

	r := ask(t, a, "what desserts do you have", "", orderservice.Credentials{})
	assert.Equal(t, intent.KindCategoryListing, r.Intent)
	assert.Equal(t, "Our dessert options include: Ripple Ice Cream, Fruit Ice Cream, Jar Ice Cream, Vanilla Ice Cream.", r.Text)
}

func TestCategoryListingShowsTen(t *testing.T) {
	var items []store.MenuItem
	for i := 0; i < 14; i++ {
		items = append(items, store.MenuItem{Name: fmt.Sprintf("Pasta No %02d", i), Category: "pasta", Price: 10})
	}
	db := memstore.New(items...)
	a := newAgent(t, Config{}, Deps{Menu: db})

	r := ask(t, a, "any pasta?", "", orderservice.Credentials{})
	require.True(t, strings.HasPrefix(r.Text, "Our pasta options include: "), r.Text)
	assert.Len(t, strings.Split(strings.TrimSuffix(strings.TrimPrefix(r.Text, "Our pasta options include: "), "."), ", "), 10)
}

func TestAddBumpsPopularity(t *testing.T) {
	db := seeded()
	cart := &fakeCart{requireAuth: true}
	a := newAgent(t, Config{}, Deps{Menu: db, Orders: db, Cart: cart})

	r := ask(t, a, "add Rice Zucchini x 2, Clover Salad", "u1", creds)
	assert.Equal(t, intent.KindAddItems, r.Intent)
	assert.Equal(t, "Added to your cart: 2 x Rice Zucchini, 1 x Clover Salad.", r.Text)

	_, adds, _, _ := cart.snapshot()
	assert.Equal(t, []store.Bump{{Name: "Rice Zucchini", Qty: 2}, {Name: "Clover Salad", Qty: 1}}, adds)

	rz, _ := db.Item("Rice Zucchini")
	cs, _ := db.Item("Clover Salad")
	assert.EqualValues(t, store.PopularityStart+2, rz.Orders)
	assert.EqualValues(t, store.PopularityStart+1, cs.Orders)
}

func TestAddThroughOrderService(t *testing.T) {
	var mu sync.Mutex
	var got []store.Bump
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/cart/add" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Name     string `json:"name"`
			Quantity int    `json:"quantity"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		got = append(got, store.Bump{Name: body.Name, Qty: body.Quantity})
		mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	db := seeded()
	client, err := orderservice.New(orderservice.Config{BaseURL: srv.URL, RequireAuth: true}, nil, db, nil, logger.NewNop())
	require.NoError(t, err)
	a := newAgent(t, Config{}, Deps{Menu: db, Orders: db, Cart: client})

	r := ask(t, a, "add Rice Zucchini x 2, Clover Salad", "u1", creds)
	assert.Equal(t, "Added to your cart: 2 x Rice Zucchini, 1 x Clover Salad.", r.Text)
	mu.Lock()
	assert.Equal(t, []store.Bump{{Name: "Rice Zucchini", Qty: 2}, {Name: "Clover Salad", Qty: 1}}, got)
	mu.Unlock()

	r = ask(t, a, "add Cup Cake", "u1", orderservice.Credentials{})
	assert.Equal(t, cartLogin, r.Text)
}

func TestAddAmbiguousAbortsWholeAction(t *testing.T) {
	db := seeded()
	cart := &fakeCart{}
	a := newAgent(t, Config{}, Deps{Menu: db, Cart: cart})

	r := ask(t, a, "add Greek salad, chicken", "u1", creds)
	assert.True(t, strings.HasPrefix(r.Text, "Did you mean one of these: "), r.Text)
	_, adds, _, _ := cart.snapshot()
	assert.Empty(t, adds)
	gs, _ := db.Item("Greek salad")
	assert.EqualValues(t, store.PopularityStart, gs.Orders)

	r = ask(t, a, "add Lobster Thermidor", "u1", creds)
	assert.Contains(t, r.Text, "couldn't find")
}

func TestDisambiguationListsExactlyTheCandidates(t *testing.T) {
	db := seeded()
	a := newAgent(t, Config{}, Deps{Menu: db})

	for _, q := range []string{"chicken", "ice cream", "noodle"} {
		matches := store.RankMatches(q, store.SeedMenu(), store.DefaultTopK)
		if !store.NeedsDisambiguation(matches) {
			continue
		}
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Item.Name
		}
		d := a.itemDetail(context.Background(), a.log, intent.ItemDetail{Query: q})
		assert.Equal(t, "Did you mean one of these: "+strings.Join(names, ", ")+"? Please reply with the exact name.", d.Text, q)
	}

	r := ask(t, a, "how much is chicken", "", orderservice.Credentials{})
	assert.True(t, strings.HasPrefix(r.Text, "Did you mean one of these: "), r.Text)
}

func TestItemDetail(t *testing.T) {
	db := seeded()
	a := newAgent(t, Config{}, Deps{Menu: db})

	r := ask(t, a, "how much is the Greek salad?", "", orderservice.Credentials{})
	assert.Equal(t, intent.KindItemDetail, r.Intent)
	assert.Equal(t, "Greek salad (salad) is $12. Tomato, cucumber, olives and feta with oregano dressing.", r.Text)
}

func TestOrdersNeedLogin(t *testing.T) {
	db := seeded()
	a := newAgent(t, Config{}, Deps{Menu: db, Orders: db})

	r := ask(t, a, "show my recent orders", "", orderservice.Credentials{})
	assert.Equal(t, intent.KindOrderHistory, r.Intent)
	assert.Equal(t, loginPrompt, r.Text)
	assert.Zero(t, db.OrderQueries())

	r = ask(t, a, "why did my payment fail", "", orderservice.Credentials{})
	assert.Equal(t, loginPrompt, r.Text)
	assert.Zero(t, db.OrderQueries())
}

func TestOrderHistory(t *testing.T) {
	db := seeded()
	db.AddOrder(bson.M{"_id": "ord-1", "userId": "u1", "date": time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC),
		"items": bson.A{bson.M{"name": "Cup Cake", "quantity": 2}}, "amount": 28})
	db.AddOrder(bson.M{"_id": "ord-2", "userId": "u1", "date": time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
		"items": bson.A{bson.M{"name": "Veg Noodles", "quantity": 1}, bson.M{"name": "Greek salad", "quantity": 1}}, "amount": 24})
	db.AddOrder(bson.M{"_id": "ord-3", "userId": "someone-else", "amount": 99})
	a := newAgent(t, Config{}, Deps{Menu: db, Orders: db})

	r := ask(t, a, "show my recent orders", "u1", orderservice.Credentials{})
	assert.Equal(t, "Your recent orders:\n- Feb 3, 2025: 1 x Veg Noodles, 1 x Greek salad ($24)\n- Jan 2, 2025: 2 x Cup Cake ($28)", r.Text)

	r = ask(t, a, "order history please", "nobody", orderservice.Credentials{})
	assert.Equal(t, "I couldn't find any past orders on your account.", r.Text)
}

func TestPaymentStatus(t *testing.T) {
	db := seeded()
	db.AddOrder(bson.M{"userId": "ok", "date": time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC), "amount": 36,
		"paymentInfo": bson.M{"status": "succeeded"}})
	db.AddOrder(bson.M{"userId": "stale", "paid": true, "amount": 12,
		"paymentInfo": bson.M{"errorCode": "card_declined"}})
	db.AddOrder(bson.M{"userId": "failed", "amount": 12,
		"paymentInfo": bson.M{"status": "failed", "errorCode": "card_declined", "declineCode": "expired_card"}})
	db.AddOrder(bson.M{"userId": "vague", "amount": 12, "paymentInfo": bson.M{"status": "failed"}})
	db.AddOrder(bson.M{"userId": "pending", "amount": 12, "paymentInfo": bson.M{"status": "processing"}})
	a := newAgent(t, Config{}, Deps{Menu: db, Orders: db})

	r := ask(t, a, "why did my payment fail", "ok", orderservice.Credentials{})
	assert.Equal(t, intent.KindPaymentStatus, r.Intent)
	assert.Equal(t, "Good news: your last payment did not fail. Your last payment was successful ($36 on Mar 4, 2025).", r.Text)

	r = ask(t, a, "was my last payment successful?", "ok", orderservice.Credentials{})
	assert.Equal(t, "Your last payment was successful ($36 on Mar 4, 2025).", r.Text)

	r = ask(t, a, "did my last payment go through?", "stale", orderservice.Credentials{})
	assert.Equal(t, "Your last payment was successful ($12).", r.Text)

	r = ask(t, a, "did my last payment go through?", "failed", orderservice.Credentials{})
	assert.True(t, strings.HasPrefix(r.Text, "Your last payment didn't go through. expired_card: "), r.Text)

	r = ask(t, a, "did my last payment go through?", "vague", orderservice.Credentials{})
	assert.Equal(t, paymentFailedMsg, r.Text)

	r = ask(t, a, "did my last payment go through?", "pending", orderservice.Credentials{})
	assert.Equal(t, paymentPending, r.Text)
}

func TestClearVersusShowCart(t *testing.T) {
	db := seeded()
	cart := &fakeCart{lines: []orderservice.CartLine{{ItemID: "item-1", Name: "Greek salad", Qty: 2, Price: 12}}}
	a := newAgent(t, Config{}, Deps{Menu: db, Cart: cart})

	r := ask(t, a, "what's in my basket?", "u1", creds)
	assert.Equal(t, intent.KindShowCart, r.Intent)
	assert.Equal(t, "Your cart: 2 x Greek salad. Total: $24.", r.Text)

	r = ask(t, a, "clear my cart", "u1", creds)
	assert.Equal(t, intent.KindClearCart, r.Intent)
	assert.Equal(t, "Your cart is now empty.", r.Text)

	r = ask(t, a, "show my cart", "u1", creds)
	assert.Equal(t, emptyCart, r.Text)
}

func TestRemoveTooMany(t *testing.T) {
	for qty := 2; qty <= 5; qty++ {
		t.Run(fmt.Sprint(qty), func(t *testing.T) {
			cart := &fakeCart{lines: []orderservice.CartLine{{ItemID: "item-1", Name: "Greek salad", Qty: 1, Price: 12}}}
			a := newAgent(t, Config{}, Deps{Menu: seeded(), Cart: cart})

			r := ask(t, a, fmt.Sprintf("remove %d x Greek salad from my cart", qty), "u1", creds)
			assert.Equal(t, intent.KindRemoveItems, r.Intent)
			assert.Contains(t, r.Text, "too many to remove")
			lines, _, removes, _ := cart.snapshot()
			assert.Empty(t, removes)
			require.Len(t, lines, 1)
			assert.Equal(t, 1, lines[0].Qty)
		})
	}
}

func TestRemoveRepeatedLineCountsTogether(t *testing.T) {
	cart := &fakeCart{lines: []orderservice.CartLine{{ItemID: "item-17", Name: "Cup Cake", Qty: 3, Price: 14}}}
	a := newAgent(t, Config{}, Deps{Menu: seeded(), Cart: cart})

	r := ask(t, a, "remove 2 x Cup Cake and 2 x Cup Cake", "u1", creds)
	assert.Equal(t, "That's too many to remove: your cart has 3 x Cup Cake and you asked to remove 4. Nothing was changed.", r.Text)
	lines, _, removes, _ := cart.snapshot()
	assert.Empty(t, removes)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Qty)

	r = ask(t, a, "remove 1 x Cup Cake and 2 x Cup Cake", "u1", creds)
	assert.Equal(t, "Removed from your cart: 3 x Cup Cake.", r.Text)
	_, _, removes, _ = cart.snapshot()
	assert.Equal(t, []store.Bump{{Name: "Cup Cake", Qty: 3}}, removes)
}

func TestRemoveItems(t *testing.T) {
	cart := &fakeCart{lines: []orderservice.CartLine{
		{ItemID: "item-1", Name: "Greek salad", Qty: 2, Price: 12},
		{ItemID: "item-17", Name: "Cup Cake", Qty: 1, Price: 14},
	}}
	a := newAgent(t, Config{}, Deps{Menu: seeded(), Cart: cart})

	r := ask(t, a, "remove Greek salad", "u1", creds)
	assert.Equal(t, "Removed from your cart: 1 x Greek salad.", r.Text)

	r = ask(t, a, "remove 1 x cupcake and 1 x Greek salad", "u1", creds)
	assert.Equal(t, "Removed from your cart: 1 x Cup Cake, 1 x Greek salad.", r.Text)

	r = ask(t, a, "remove Vegan Sandwich", "u1", creds)
	assert.Equal(t, emptyCart+" There's nothing to remove.", r.Text)
}

func TestCartPreconditions(t *testing.T) {
	db := seeded()

	a := newAgent(t, Config{}, Deps{Menu: db})
	assert.Equal(t, cartOffline, ask(t, a, "show my cart", "u1", creds).Text)

	cart := &fakeCart{requireAuth: true}
	a = newAgent(t, Config{}, Deps{Menu: db, Cart: cart})
	for _, msg := range []string{"show my cart", "clear my cart", "add Cup Cake", "remove Cup Cake", "checkout"} {
		assert.Equal(t, cartLogin, ask(t, a, msg, "u1", orderservice.Credentials{}).Text, msg)
	}
	_, _, _, calls := cart.snapshot()
	assert.Zero(t, calls)
}

func TestCheckoutAndConfirm(t *testing.T) {
	cart := &fakeCart{result: orderservice.CheckoutResult{OrderID: "ord-77", PaymentURL: "https://pay.example/s/1"}}
	a := newAgent(t, Config{}, Deps{Menu: seeded(), Cart: cart})

	r := ask(t, a, "checkout", "u1", creds)
	assert.Equal(t, checkoutEmpty, r.Text)

	cart.lines = []orderservice.CartLine{{ItemID: "item-1", Name: "Greek salad", Qty: 2, Price: 12}}
	r = ask(t, a, "checkout, address: 12 Baker Street; phone: +44 7700 900123", "u1", creds)
	assert.Equal(t, intent.KindCheckout, r.Intent)
	assert.Equal(t, "Your order ord-77 has been placed (2 x Greek salad, total $24). Complete your payment here: https://pay.example/s/1", r.Text)
	require.NotNil(t, cart.checkoutReq)
	assert.Equal(t, "12 Baker Street", cart.checkoutReq.Address)
	assert.Equal(t, "+44 7700 900123", cart.checkoutReq.Contact)
	assert.Equal(t, 24.0, cart.checkoutReq.Amount)

	r = ask(t, a, "I have paid, please confirm pi_3AbC9", "u1", creds)
	assert.Equal(t, "Your payment is confirmed for order ord-9. Estimated delivery: 30 minutes.", r.Text)
	assert.Equal(t, "pi_3AbC9", cart.confirmed)

	r = ask(t, a, "please confirm my payment", "u1", creds)
	assert.Equal(t, confirmHint, r.Text)
}

func TestCheckoutWithClientSecret(t *testing.T) {
	cart := &fakeCart{
		lines:  []orderservice.CartLine{{ItemID: "item-1", Name: "Greek salad", Qty: 1, Price: 12}},
		result: orderservice.CheckoutResult{OrderID: "ord-1", ClientSecret: "pi_123_secret_abc", Message: "Order placed"},
	}
	a := newAgent(t, Config{}, Deps{Menu: seeded(), Cart: cart})

	r := ask(t, a, "checkout", "u1", creds)
	assert.Equal(t, "Your order ord-1 has been placed (1 x Greek salad, total $12). "+payInApp, r.Text)
	assert.NotContains(t, r.Text, "secret")
}

func TestPopularity(t *testing.T) {
	db := seeded()
	db.AddOrder(bson.M{"userId": "a", "items": bson.A{bson.M{"name": "Cup Cake", "quantity": 3}, bson.M{"name": "Veg Noodles", "quantity": 2}}})
	db.AddOrder(bson.M{"userId": "b", "items": bson.A{bson.M{"name": "Greek salad", "quantity": 1}}})
	a := newAgent(t, Config{}, Deps{Menu: db, Orders: db})

	r := ask(t, a, "top sellers?", "", orderservice.Credentials{})
	assert.Equal(t, intent.KindPopularity, r.Intent)
	assert.Equal(t, "Top items customers are ordering: Cup Cake, Veg Noodles, Greek salad.", r.Text)

	r = ask(t, a, "what's popular in desserts", "", orderservice.Credentials{})
	assert.Equal(t, "Our most-ordered dessert right now: Fruit Ice Cream, Jar Ice Cream, Ripple Ice Cream.", r.Text)
}

func TestRewrite(t *testing.T) {
	draft := "Our salad options include: Greek salad, Veg salad, Clover Salad, Chicken Salad."
	cases := []struct {
		name  string
		model *fakeLLM
		want  string
	}{
		{"grounded", &fakeLLM{reply: "We have Greek salad, Veg salad, Clover Salad and Chicken Salad for you."}, "We have Greek salad, Veg salad, Clover Salad and Chicken Salad for you."},
		{"invented dish", &fakeLLM{reply: "Try our Greek salad and Truffle Lobster salad!"}, draft},
		{"invented price", &fakeLLM{reply: "Greek salad is only $5 today."}, draft},
		{"bare invented name", &fakeLLM{reply: "We have Greek salad and our famous Lobster Bisque."}, draft},
		{"invented pairing", &fakeLLM{reply: "Greek salad pairs well with Beef Wellington."}, draft},
		{"invented drink", &fakeLLM{reply: "Enjoy a Clover Salad or a Mango Lassi."}, draft},
		{"model error", &fakeLLM{err: errors.New("boom")}, draft},
		{"empty", &fakeLLM{reply: "  "}, draft},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newAgent(t, Config{ForceRewrite: true}, Deps{Menu: seeded(), LLM: tc.model})
			r := ask(t, a, "tell me about your salads", "", orderservice.Credentials{})
			assert.Equal(t, tc.want, r.Text)
			for _, invented := range []string{"Lobster", "Wellington", "Lassi"} {
				assert.NotContains(t, r.Text, invented)
			}
			assert.Equal(t, 1, tc.model.calls())
		})
	}
}

func TestRewriteOffOrNotGrounded(t *testing.T) {
	model := &fakeLLM{reply: "Something else entirely."}

	a := newAgent(t, Config{}, Deps{Menu: seeded(), LLM: model})
	r := ask(t, a, "tell me about your salads", "", orderservice.Credentials{})
	assert.True(t, strings.HasPrefix(r.Text, "Our salad options include: "))

	a = newAgent(t, Config{ForceRewrite: true}, Deps{Menu: seeded(), LLM: model})
	r = ask(t, a, "card_declined", "", orderservice.Credentials{})
	assert.True(t, strings.HasSuffix(r.Text, knowledge.NextSteps))
	assert.Zero(t, model.calls())
}

func TestCheckGrounding(t *testing.T) {
	var vocab []string
	for _, it := range store.SeedMenu() {
		vocab = append(vocab, it.Name)
	}
	d := Draft{Text: "Greek salad (salad) is $12. Tomato, cucumber, olives and feta."}

	for _, ok := range []string{
		"Greek salad costs $12.",
		"Try our fresh Greek salad, or some ice cream.",
		"We love sandwiches!",
		"Chicken Sandwich and Veg Noodles are both great.",
		"Grab a Jar Ice Cream for dessert.",
		"Do you deliver on Sundays? Yes, every day.",
		"I'm sure you'll like the Clover Salad on a Friday.",
		"Tomato Pasta is back: Cheese Pasta too!",
	} {
		assert.NoError(t, CheckGrounding(ok, d, vocab), ok)
	}
	for _, bad := range []string{
		"Greek salad is $10.",
		"Our Lobster Bisque soup is amazing.",
		"Try the Mango Cheese Pasta.",
		"Spicy Tuna rolls are back.",
		"Pair it with Beef Wellington.",
		"Our famous Lobster Bisque is back.",
		"Try a Mango Lassi.",
		"Greek salad, then Tiramisu.",
	} {
		assert.ErrorIs(t, CheckGrounding(bad, d, vocab), ErrUngrounded, bad)
	}
}

func TestOpenEndedContext(t *testing.T) {
	db := seeded()
	db.AddOrder(bson.M{"_id": "ord-1", "userId": "u1", "date": time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)})
	model := &fakeLLM{reply: "Yes, we deliver every day of the week."}
	mem := &fakeMemory{hits: []string{"user asked about " + strings.Repeat("z", 200)}}
	a := newAgent(t, Config{}, Deps{Menu: db, Orders: db, LLM: model, Memory: mem})

	r := ask(t, a, "do you deliver on sundays?", "u1", orderservice.Credentials{})
	assert.Equal(t, intent.KindOpenEnded, r.Intent)
	assert.Equal(t, "Yes, we deliver every day of the week.", r.Text)

	require.Equal(t, 1, model.calls())
	assert.Equal(t, SystemPrompt, model.system[0])
	prompt := model.user[0]
	assert.True(t, strings.HasPrefix(prompt, "Database context:\nRelevant past information:\n- user asked about "), prompt)
	assert.Contains(t, prompt, "\nPopular dishes: ")
	assert.Contains(t, prompt, "\nUser recent orders: ord-1\n")
	assert.Contains(t, prompt, "\nSandwich options: Chicken Sandwich, Vegan Sandwich, Grilled Sandwich, Bread Sandwich\n")
	assert.Contains(t, prompt, "\nVeg options: Garlic Mushroom, Fried Cauliflower, Mix Veg Pulao, Rice Zucchini\n")
	assert.True(t, strings.HasSuffix(prompt, "\n\nCustomer: do you deliver on sundays?\nSupport Agent:"), prompt)
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "- ") {
			assert.LessOrEqual(t, len(line), 2+memoryLineLen)
		}
	}
}

func TestOpenEndedFallbacks(t *testing.T) {
	db := seeded()

	a := newAgent(t, Config{}, Deps{Menu: db, Orders: db})
	r := ask(t, a, "do you deliver on sundays?", "", orderservice.Credentials{})
	assert.True(t, strings.HasPrefix(r.Text, "I’m temporarily offline. Popular dishes: "), r.Text)

	a = newAgent(t, Config{}, Deps{Menu: db, LLM: &fakeLLM{err: errors.New("upstream 500")}})
	r = ask(t, a, "do you deliver on sundays?", "", orderservice.Credentials{})
	assert.True(t, strings.HasPrefix(r.Text, "I’m having trouble reaching the assistant. Popular dishes: "), r.Text)

	a = newAgent(t, Config{}, Deps{Menu: db, LLM: &fakeLLM{reply: "You should try our Spicy Lobster Pasta!"}})
	r = ask(t, a, "do you deliver on sundays?", "", orderservice.Credentials{})
	assert.NotContains(t, r.Text, "Lobster")
	assert.True(t, strings.HasPrefix(r.Text, "I’m having trouble reaching the assistant."), r.Text)

	a = newAgent(t, Config{}, Deps{Menu: db, LLM: &fakeLLM{reply: "Our chef recommends the Beef Wellington."}})
	r = ask(t, a, "do you deliver on sundays?", "", orderservice.Credentials{})
	assert.NotContains(t, r.Text, "Wellington")
	assert.True(t, strings.HasPrefix(r.Text, "I’m having trouble reaching the assistant."), r.Text)

	a = newAgent(t, Config{}, Deps{LLM: &fakeLLM{err: errors.New("down")}})
	r = ask(t, a, "hello?", "", orderservice.Credentials{})
	assert.Equal(t, "I’m having trouble reaching the assistant right now. Please try again in a moment.", r.Text)

	a = newAgent(t, Config{}, Deps{})
	_, err := a.Handle(context.Background(), Turn{Message: "hello?"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryIsBestEffort(t *testing.T) {
	mem := &fakeMemory{}
	a := newAgent(t, Config{}, Deps{Menu: seeded(), Memory: mem})

	r := ask(t, a, "what desserts do you have", "u1", orderservice.Credentials{})
	a.Wait()
	got := mem.entries("u1")
	require.Len(t, got, 2)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "what desserts do you have", got[0].Text)
	assert.Equal(t, "assistant", got[1].Role)
	assert.Equal(t, r.Text, got[1].Text)

	ask(t, a, "what desserts do you have", "", orderservice.Credentials{})
	a.Wait()
	assert.Len(t, mem.entries(""), 0)

	failing := &fakeMemory{appendErr: errors.New("redis down")}
	a = newAgent(t, Config{}, Deps{Menu: seeded(), Memory: failing})
	r2 := ask(t, a, "what desserts do you have", "u1", orderservice.Credentials{})
	assert.Equal(t, r.Text, r2.Text)
	assert.True(t, a.MemoryEnabled())
}

func TestAgentInfo(t *testing.T) {
	a := newAgent(t, Config{}, Deps{Memory: memory.Noop{}})
	assert.False(t, a.MemoryEnabled())
	assert.Equal(t, "", a.ModelName())
	assert.Equal(t, 5, a.cfg.MaxPopular)
	assert.Equal(t, 3*time.Second, a.cfg.DBTimeout)
}
