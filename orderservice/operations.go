package orderservice

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tomato-app/tomato-support/store"
)

// CheckoutRequest carries the optional details parsed from the message.
type CheckoutRequest struct {
	Address string
	Contact string
	Method  string
	Lines   []CartLine
	Amount  float64
}

// CheckoutResult is what the remote returned for a placed order.
type CheckoutResult struct {
	OrderID      string
	PaymentURL   string
	ClientSecret string
	Message      string
}

// Confirmation is the remote's answer to a payment confirmation.
type Confirmation struct {
	OrderID string
	ETA     string
	Message string
}

// ClearStrategy names the rung of the clear ladder that emptied the cart.
type ClearStrategy string

const (
	ClearedByEndpoint ClearStrategy = "clear endpoint"
	ClearedByDelete   ClearStrategy = "delete"
	ClearedByRemoval  ClearStrategy = "line removal"
)

func itemPayload(userID string, item store.MenuItem, qty int) map[string]interface{} {
	if qty < 1 {
		qty = 1
	}
	p := map[string]interface{}{
		"itemName": item.Name,
		"name":     item.Name,
		"quantity": qty,
		"qty":      qty,
	}
	if item.ID != "" {
		p["itemId"] = item.ID
	}
	if userID != "" {
		p["userId"] = userID
	}
	return p
}

// AddToCart adds qty of item. A quantity below one is sent as one.
func (c *Client) AddToCart(ctx context.Context, creds Credentials, userID string, item store.MenuItem, qty int) error {
	if err := c.authorize(creds); err != nil {
		return err
	}
	_, err := c.probe(ctx, "add", http.MethodPost, c.cfg.Routes.Add, itemPayload(userID, item, qty), creds, userID)
	return err
}

// RemoveFromCart removes qty of item. Callers check the quantity against a
// fresh GetCart first.
func (c *Client) RemoveFromCart(ctx context.Context, creds Credentials, userID string, item store.MenuItem, qty int) error {
	if err := c.authorize(creds); err != nil {
		return err
	}
	_, err := c.probe(ctx, "remove", http.MethodPost, c.cfg.Routes.Remove, itemPayload(userID, item, qty), creds, userID)
	return err
}

// GetCart reads the cart with the GET candidates, then the POST-read ones.
func (c *Client) GetCart(ctx context.Context, creds Credentials, userID string) (Cart, error) {
	if err := c.authorize(creds); err != nil {
		return Cart{}, err
	}
	res, err := c.probe(ctx, "get cart", http.MethodGet, c.cfg.Routes.Get, nil, creds, userID)
	var first *ProbeError
	if errors.As(err, &first) {
		payload := map[string]interface{}{}
		if userID != "" {
			payload["userId"] = userID
		}
		res, err = c.probe(ctx, "get cart", http.MethodPost, c.cfg.Routes.GetPost, payload, creds, userID)
		var second *ProbeError
		if errors.As(err, &second) {
			attempts := append(append([]Attempt{}, first.Attempts...), second.Attempts...)
			err = &ProbeError{Op: "get cart", Attempts: attempts}
		}
	}
	if err != nil {
		return Cart{}, err
	}
	return c.normalize(ctx, res.Body), nil
}

// ClearCart empties the cart: explicit clear endpoints, then DELETE
// variants, then removing each line and re-reading the cart.
func (c *Client) ClearCart(ctx context.Context, creds Credentials, userID string) (ClearStrategy, error) {
	if err := c.authorize(creds); err != nil {
		return "", err
	}
	payload := map[string]interface{}{}
	if userID != "" {
		payload["userId"] = userID
	}
	if _, err := c.probe(ctx, "clear", http.MethodPost, c.cfg.Routes.Clear, payload, creds, userID); err == nil {
		return ClearedByEndpoint, nil
	} else if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if _, err := c.probe(ctx, "clear", http.MethodDelete, c.cfg.Routes.ClearDelete, nil, creds, userID); err == nil {
		return ClearedByDelete, nil
	} else if ctx.Err() != nil {
		return "", ctx.Err()
	}

	cart, err := c.GetCart(ctx, creds, userID)
	if err != nil {
		return "", err
	}
	for _, l := range cart.Lines {
		_ = c.RemoveFromCart(ctx, creds, userID, store.MenuItem{ID: l.ItemID, Name: l.Name}, l.Qty)
	}
	if cart, err = c.GetCart(ctx, creds, userID); err != nil {
		return "", err
	}
	// some remotes ignore quantity and remove one unit per call
	for _, l := range cart.Lines {
		for i := 0; i < l.Qty; i++ {
			if err := c.RemoveFromCart(ctx, creds, userID, store.MenuItem{ID: l.ItemID, Name: l.Name}, 1); err != nil {
				break
			}
		}
	}
	if cart, err = c.GetCart(ctx, creds, userID); err != nil {
		return "", err
	}
	if !cart.Empty() {
		return "", ErrCartNotEmpty
	}
	return ClearedByRemoval, nil
}

// Checkout places the order.
func (c *Client) Checkout(ctx context.Context, creds Credentials, userID string, req CheckoutRequest) (CheckoutResult, error) {
	if err := c.authorize(creds); err != nil {
		return CheckoutResult{}, err
	}
	items := make([]map[string]interface{}, 0, len(req.Lines))
	for _, l := range req.Lines {
		items = append(items, map[string]interface{}{"_id": l.ItemID, "name": l.Name, "quantity": l.Qty, "price": l.Price})
	}
	payload := map[string]interface{}{"items": items}
	if userID != "" {
		payload["userId"] = userID
	}
	if req.Amount > 0 {
		payload["amount"] = req.Amount
	}
	if req.Address != "" {
		payload["address"] = req.Address
	}
	if req.Contact != "" {
		payload["phone"] = req.Contact
	}
	if req.Method != "" {
		payload["paymentMethod"] = req.Method
	}
	res, err := c.probe(ctx, "checkout", http.MethodPost, c.cfg.Routes.Checkout, payload, creds, userID)
	if err != nil {
		return CheckoutResult{}, err
	}
	body := res.Body
	order, _ := body["order"].(map[string]interface{})
	out := CheckoutResult{
		OrderID:      stringField(body, "orderId", "order_id", "id", "_id"),
		PaymentURL:   stringField(body, "session_url", "url", "paymentUrl", "checkoutUrl"),
		ClientSecret: stringField(body, "clientSecret", "client_secret"),
		Message:      stringField(body, "message"),
	}
	if out.OrderID == "" && order != nil {
		out.OrderID = stringField(order, "_id", "id", "orderId")
	}
	return out, nil
}

// Confirm tells the remote that payment reference ref completed.
func (c *Client) Confirm(ctx context.Context, creds Credentials, userID, ref string) (Confirmation, error) {
	if err := c.authorize(creds); err != nil {
		return Confirmation{}, err
	}
	payload := map[string]interface{}{"success": "true"}
	if userID != "" {
		payload["userId"] = userID
	}
	switch {
	case strings.HasPrefix(ref, "pi_"):
		payload["paymentIntentId"] = ref
	case strings.HasPrefix(ref, "cs_"):
		payload["session_id"] = ref
	case ref != "":
		payload["orderId"] = ref
	}
	res, err := c.probe(ctx, "confirm", http.MethodPost, c.cfg.Routes.Confirm, payload, creds, userID)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{
		OrderID: stringField(res.Body, "orderId", "order_id", "id"),
		ETA:     stringField(res.Body, "eta", "estimatedDelivery", "deliveryTime"),
		Message: stringField(res.Body, "message"),
	}, nil
}
