package support

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomato-app/tomato-support/intent"
	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/orderservice"
	"github.com/tomato-app/tomato-support/resilience"
	"github.com/tomato-app/tomato-support/store"
)

const (
	cartOffline   = "Cart features are unavailable right now because the order service isn't configured."
	cartLogin     = "Please log in so I can manage your cart."
	cartBusy      = "The order service is having trouble right now. Please try again in a minute."
	menuOffline   = "I can't look up the menu right now. Please try again shortly."
	addHint       = "Tell me what you'd like to add, for example: add 2 x Greek salad."
	removeHint    = "Tell me what you'd like to remove, for example: remove 1 x Cup Cake."
	confirmHint   = "Please share your payment reference (it starts with pi_ or cs_) so I can confirm it."
	emptyCart     = "Your cart is empty."
	stubbornCart  = "I tried to clear your cart but some items are still there. Please remove them from the cart page."
	checkoutEmpty = "Your cart is empty, so there's nothing to check out yet."
	payInApp      = "Please finish the payment in the Tomato app to complete your order."
)

// cartBlocked returns the refusal for a cart branch that cannot run, before
// any network call.
func (a *Agent) cartBlocked(turn Turn) (string, bool) {
	if a.cart == nil {
		return cartOffline, true
	}
	if a.cart.RequiresAuth() && !turn.Credentials.Present() {
		return cartLogin, true
	}
	return "", false
}

// cartFailure turns a cart call error into reply text. what completes
// "I couldn't ...".
func cartFailure(log *logger.Logger, what string, err error) Draft {
	var remote *orderservice.RemoteError
	switch {
	case errors.Is(err, orderservice.ErrAuthRequired):
		return plain(cartLogin)
	case errors.Is(err, resilience.ErrCircuitOpen):
		log.Warnf("order service circuit open while trying to %s", what)
		return plain(cartBusy)
	case errors.As(err, &remote):
		log.Warnf("order service rejected %s: %s", remote.Op, remote.Message)
		return plain(fmt.Sprintf("I couldn't %s: %s", what, remote.Message))
	}
	log.Error("order service call failed", err)
	return plain(fmt.Sprintf("I couldn't %s right now. Please try again shortly.", what))
}

func (a *Agent) showCart(ctx context.Context, log *logger.Logger, turn Turn) Draft {
	if msg, blocked := a.cartBlocked(turn); blocked {
		return plain(msg)
	}
	cart, err := a.cart.GetCart(ctx, turn.Credentials, turn.UserID)
	if err != nil {
		return cartFailure(log, "load your cart", err)
	}
	if cart.Empty() {
		return plain(emptyCart)
	}
	msg := "Your cart: " + cart.Summary() + "."
	if total := cart.Total(); total > 0 {
		msg += " Total: " + money(total) + "."
	}
	return plain(msg)
}

func (a *Agent) clearCart(ctx context.Context, log *logger.Logger, turn Turn) Draft {
	if msg, blocked := a.cartBlocked(turn); blocked {
		return plain(msg)
	}
	how, err := a.cart.ClearCart(ctx, turn.Credentials, turn.UserID)
	if errors.Is(err, orderservice.ErrCartNotEmpty) {
		return plain(stubbornCart)
	}
	if err != nil {
		return cartFailure(log, "clear your cart", err)
	}
	log.WithField("strategy", string(how)).Debug("cart cleared")
	return plain("Your cart is now empty.")
}

func (a *Agent) addItems(ctx context.Context, log *logger.Logger, turn Turn, in intent.AddItems) Draft {
	if len(in.Items) == 0 {
		return plain(addHint)
	}
	if msg, blocked := a.cartBlocked(turn); blocked {
		return plain(msg)
	}
	if a.menu == nil {
		return plain(menuOffline)
	}

	items := make([]store.MenuItem, len(in.Items))
	for i, req := range in.Items {
		item, d, ok := a.resolve(ctx, log, req.Name)
		if !ok {
			return d
		}
		items[i] = item
	}

	var added []string
	var bumps []store.Bump
	var failure error
	for i, item := range items {
		qty := in.Items[i].Qty
		if err := a.cart.AddToCart(ctx, turn.Credentials, turn.UserID, item, qty); err != nil {
			failure = err
			break
		}
		added = append(added, fmt.Sprintf("%d x %s", qty, item.Name))
		bumps = append(bumps, store.Bump{Name: item.Name, Qty: qty})
	}
	if len(bumps) > 0 {
		dbctx, cancel := a.dbContext(ctx)
		if err := a.menu.BumpPopularity(dbctx, bumps); err != nil {
			log.Error("popularity bump failed", err)
		}
		cancel()
	}
	if failure != nil {
		d := cartFailure(log, "add that to your cart", failure)
		if len(added) > 0 {
			d.Text = "Added to your cart: " + strings.Join(added, ", ") + ". " + d.Text
		}
		return d
	}
	return plain("Added to your cart: " + strings.Join(added, ", ") + ".")
}

// resolve maps a requested name onto one menu item. When it cannot, the
// returned draft is the reply: a not-found notice or a disambiguation
// question.
func (a *Agent) resolve(ctx context.Context, log *logger.Logger, name string) (store.MenuItem, Draft, bool) {
	ctx, cancel := a.dbContext(ctx)
	defer cancel()
	matches, err := a.menu.Search(ctx, name, store.DefaultTopK)
	if err != nil {
		log.Error("menu search failed", err)
		return store.MenuItem{}, plain(menuOffline), false
	}
	if len(matches) == 0 {
		return store.MenuItem{}, plain(fmt.Sprintf("I couldn't find %q on our menu. Nothing was changed.", name)), false
	}
	if store.NeedsDisambiguation(matches) {
		return store.MenuItem{}, disambiguate(matches), false
	}
	return matches[0].Item, Draft{}, true
}

func disambiguate(matches []store.Match) Draft {
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Item.Name
	}
	return Draft{
		Text:  "Did you mean one of these: " + strings.Join(names, ", ") + "? Please reply with the exact name.",
		Names: names,
	}
}

func (a *Agent) removeItems(ctx context.Context, log *logger.Logger, turn Turn, in intent.RemoveItems) Draft {
	if len(in.Items) == 0 {
		return plain(removeHint)
	}
	if msg, blocked := a.cartBlocked(turn); blocked {
		return plain(msg)
	}
	cart, err := a.cart.GetCart(ctx, turn.Credentials, turn.UserID)
	if err != nil {
		return cartFailure(log, "load your cart", err)
	}
	if cart.Empty() {
		return plain(emptyCart + " There's nothing to remove.")
	}

	// requests naming the same line are merged before the quantity check
	var (
		lines []orderservice.CartLine
		want  []int
	)
	at := map[string]int{}
	for _, req := range in.Items {
		line, d, ok := cartLineFor(cart, req.Name)
		if !ok {
			return d
		}
		key := line.ItemID + "\x00" + line.Label()
		i, seen := at[key]
		if !seen {
			i = len(lines)
			at[key] = i
			lines = append(lines, line)
			want = append(want, 0)
		}
		want[i] += req.Qty
	}
	for i, line := range lines {
		if want[i] > line.Qty {
			return plain(fmt.Sprintf("That's too many to remove: your cart has %d x %s and you asked to remove %d. Nothing was changed.",
				line.Qty, line.Label(), want[i]))
		}
	}

	var removed []string
	for i, line := range lines {
		qty := want[i]
		item := store.MenuItem{ID: line.ItemID, Name: line.Name}
		if err := a.cart.RemoveFromCart(ctx, turn.Credentials, turn.UserID, item, qty); err != nil {
			d := cartFailure(log, "remove that from your cart", err)
			if len(removed) > 0 {
				d.Text = "Removed from your cart: " + strings.Join(removed, ", ") + ". " + d.Text
			}
			return d
		}
		removed = append(removed, fmt.Sprintf("%d x %s", qty, line.Label()))
	}
	return plain("Removed from your cart: " + strings.Join(removed, ", ") + ".")
}

// cartLineFor finds the line a removal request names, exactly or by fuzzy
// match over the cart's own lines.
func cartLineFor(cart orderservice.Cart, name string) (orderservice.CartLine, Draft, bool) {
	if l, ok := cart.Line(name); ok {
		return l, Draft{}, true
	}
	catalog := make([]store.MenuItem, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		catalog = append(catalog, store.MenuItem{ID: l.ItemID, Name: l.Label()})
	}
	matches := store.RankMatches(name, catalog, store.DefaultTopK)
	switch {
	case len(matches) == 0:
		return orderservice.CartLine{}, plain(fmt.Sprintf("%q isn't in your cart. Nothing was changed.", name)), false
	case store.NeedsDisambiguation(matches):
		return orderservice.CartLine{}, disambiguate(matches), false
	}
	for _, l := range cart.Lines {
		if l.Label() == matches[0].Item.Name {
			return l, Draft{}, true
		}
	}
	return orderservice.CartLine{}, plain(fmt.Sprintf("%q isn't in your cart. Nothing was changed.", name)), false
}

func (a *Agent) checkout(ctx context.Context, log *logger.Logger, turn Turn, in intent.Checkout) Draft {
	if msg, blocked := a.cartBlocked(turn); blocked {
		return plain(msg)
	}
	cart, err := a.cart.GetCart(ctx, turn.Credentials, turn.UserID)
	if err != nil {
		return cartFailure(log, "load your cart", err)
	}
	if cart.Empty() {
		return plain(checkoutEmpty)
	}
	res, err := a.cart.Checkout(ctx, turn.Credentials, turn.UserID, orderservice.CheckoutRequest{
		Address: in.Address,
		Contact: in.Contact,
		Method:  in.Method,
		Lines:   cart.Lines,
		Amount:  cart.Total(),
	})
	if err != nil {
		return cartFailure(log, "place your order", err)
	}

	var b strings.Builder
	b.WriteString("Your order")
	if res.OrderID != "" {
		b.WriteString(" " + res.OrderID)
	}
	b.WriteString(" has been placed (" + cart.Summary())
	if total := cart.Total(); total > 0 {
		b.WriteString(", total " + money(total))
	}
	b.WriteString(").")
	switch {
	case res.PaymentURL != "":
		b.WriteString(" Complete your payment here: " + res.PaymentURL)
	case res.ClientSecret != "":
		// the secret belongs to the payment form, never the chat
		b.WriteString(" " + payInApp)
	case res.Message != "":
		b.WriteString(" " + res.Message)
	}
	return plain(b.String())
}

func (a *Agent) confirmPayment(ctx context.Context, log *logger.Logger, turn Turn, in intent.ConfirmPayment) Draft {
	if in.Reference == "" {
		return plain(confirmHint)
	}
	if msg, blocked := a.cartBlocked(turn); blocked {
		return plain(msg)
	}
	c, err := a.cart.Confirm(ctx, turn.Credentials, turn.UserID, in.Reference)
	if err != nil {
		return cartFailure(log, "confirm that payment", err)
	}
	msg := "Your payment is confirmed"
	if c.OrderID != "" {
		msg += " for order " + c.OrderID
	}
	msg += "."
	if c.ETA != "" {
		msg += " Estimated delivery: " + c.ETA + "."
	} else if c.Message != "" {
		msg += " " + c.Message
	}
	return plain(msg)
}
