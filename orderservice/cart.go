package orderservice

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tomato-app/tomato-support/store"
)

// NameResolver maps remote item ids onto menu items in one batched call.
type NameResolver interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]store.MenuItem, error)
}

// CartLine is one normalized cart entry.
type CartLine struct {
	ItemID string
	Name   string
	Qty    int
	Price  float64
}

// Label is the display name, falling back to the id.
func (l CartLine) Label() string {
	if l.Name != "" {
		return l.Name
	}
	return "item " + l.ItemID
}

// Cart is the normalized remote cart.
type Cart struct {
	Lines []CartLine
}

func (c Cart) Empty() bool { return len(c.Lines) == 0 }

// Line finds the line for name, case-insensitively.
func (c Cart) Line(name string) (CartLine, bool) {
	for _, l := range c.Lines {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return CartLine{}, false
}

// Total sums price times quantity over lines with a known price.
func (c Cart) Total() float64 {
	var t float64
	for _, l := range c.Lines {
		t += l.Price * float64(l.Qty)
	}
	return t
}

// Summary renders "2 x Greek salad, 1 x Cup Cake".
func (c Cart) Summary() string {
	parts := make([]string, len(c.Lines))
	for i, l := range c.Lines {
		parts[i] = fmt.Sprintf("%d x %s", l.Qty, l.Label())
	}
	return strings.Join(parts, ", ")
}

var (
	lineArrayKeys = []string{"items", "cartItems", "lines", "products"}
	wrapperKeys   = []string{"cart", "data", "result"}
	idMapKeys     = []string{"cartData", "cart_data"}
	lineIDKeys    = []string{"itemId", "item_id", "foodId", "productId", "_id", "id"}
	lineNameKeys  = []string{"name", "itemName", "title"}
	lineQtyKeys   = []string{"quantity", "qty", "count"}
	linePriceKeys = []string{"price", "unitPrice", "unit_price"}
	nestedKeys    = []string{"item", "food", "product"}
)

// cartMetaKeys are numeric fields that sit beside id maps without being ids.
var cartMetaKeys = map[string]bool{
	"count": true, "total": true, "subtotal": true, "amount": true, "quantity": true,
	"qty": true, "status": true, "value": true, "tax": true, "discount": true,
	"deliveryFee": true, "delivery_fee": true, "totalItems": true, "total_items": true,
	"itemCount": true, "item_count": true, "page": true, "limit": true,
}

// ParseCart extracts lines from any known cart shape. Entries that only
// carry an id are returned in unresolved with their quantity.
func ParseCart(body map[string]interface{}) (lines []CartLine, unresolved map[string]int) {
	unresolved = map[string]int{}
	lines = parseContainer(body, 0, unresolved)
	return lines, unresolved
}

func parseContainer(v interface{}, depth int, unresolved map[string]int) []CartLine {
	if depth > 2 {
		return nil
	}
	switch t := v.(type) {
	case []interface{}:
		return parseLines(t)
	case map[string]interface{}:
		for _, k := range lineArrayKeys {
			if arr, ok := t[k].([]interface{}); ok {
				return parseLines(arr)
			}
		}
		for _, k := range idMapKeys {
			if m, ok := t[k].(map[string]interface{}); ok {
				collectIDMap(m, unresolved)
				return nil
			}
		}
		for _, k := range wrapperKeys {
			if inner, ok := t[k]; ok {
				if lines := parseContainer(inner, depth+1, unresolved); len(lines) > 0 || len(unresolved) > 0 {
					return lines
				}
			}
		}
		if isIDMap(t) {
			collectIDMap(t, unresolved)
		}
	}
	return nil
}

func parseLines(arr []interface{}) []CartLine {
	var out []CartLine
	for _, raw := range arr {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		l := CartLine{
			ItemID: stringField(m, lineIDKeys...),
			Name:   stringField(m, lineNameKeys...),
			Qty:    1,
			Price:  numberField(m, linePriceKeys...),
		}
		for _, k := range nestedKeys {
			inner, ok := m[k].(map[string]interface{})
			if !ok {
				continue
			}
			if l.Name == "" {
				l.Name = stringField(inner, lineNameKeys...)
			}
			if l.ItemID == "" {
				l.ItemID = stringField(inner, lineIDKeys...)
			}
			if l.Price == 0 {
				l.Price = numberField(inner, linePriceKeys...)
			}
		}
		for _, k := range lineQtyKeys {
			if _, present := m[k]; present {
				l.Qty = int(numberField(m, k))
				break
			}
		}
		if l.Qty <= 0 || (l.Name == "" && l.ItemID == "") {
			continue
		}
		out = append(out, l)
	}
	return out
}

// isIDMap reports whether m is a bare id to quantity map: a success flag
// aside, every value is numeric and some key is not cart metadata.
func isIDMap(m map[string]interface{}) bool {
	ids := 0
	for k, v := range m {
		if _, flag := v.(bool); flag && k == "success" {
			continue
		}
		if _, ok := toNumber(v); !ok {
			return false
		}
		if !cartMetaKeys[k] {
			ids++
		}
	}
	return ids > 0
}

func collectIDMap(m map[string]interface{}, into map[string]int) {
	for id, v := range m {
		if cartMetaKeys[id] {
			continue
		}
		if n, ok := toNumber(v); ok && int(n) > 0 {
			into[id] = int(n)
		}
	}
}

func numberField(m map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		if n, ok := toNumber(m[k]); ok {
			return n
		}
	}
	return 0
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// normalize turns a response body into a Cart, resolving id-only entries
// through the menu in a single lookup.
func (c *Client) normalize(ctx context.Context, body map[string]interface{}) Cart {
	lines, unresolved := ParseCart(body)

	// lines that carry only an id join the batch
	var needName []int
	for i, l := range lines {
		if l.Name == "" && l.ItemID != "" {
			needName = append(needName, i)
		}
	}
	if len(unresolved) > 0 || len(needName) > 0 {
		ids := make([]string, 0, len(unresolved)+len(needName))
		for id := range unresolved {
			ids = append(ids, id)
		}
		for _, i := range needName {
			ids = append(ids, lines[i].ItemID)
		}
		sort.Strings(ids)

		var found map[string]store.MenuItem
		if c.resolver != nil {
			var err error
			if found, err = c.resolver.FindByIDs(ctx, ids); err != nil {
				c.log.Error("resolve cart item ids", err)
			}
		}
		for _, i := range needName {
			if it, ok := found[lines[i].ItemID]; ok {
				lines[i].Name = it.Name
				if lines[i].Price == 0 {
					lines[i].Price = it.Price
				}
			}
		}
		for id, qty := range unresolved {
			l := CartLine{ItemID: id, Qty: qty}
			if it, ok := found[id]; ok {
				l.Name, l.Price = it.Name, it.Price
			}
			lines = append(lines, l)
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Label() < lines[j].Label() })
	return Cart{Lines: lines}
}
