package support

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tomato-app/tomato-support/intent"
	"github.com/tomato-app/tomato-support/knowledge"
	"github.com/tomato-app/tomato-support/logger"
	"github.com/tomato-app/tomato-support/store"
)

const (
	loginPrompt      = "Please log in so I can look up your orders and payments."
	ordersDown       = "I can't reach your order records right now. Please try again in a moment."
	paymentFailedMsg = "Your last payment didn't go through. Please try another card or contact your bank."
	paymentPending   = "Your last payment is still being processed. If it hasn't settled in a few minutes, please check with your bank."
	dateLayout       = "Jan 2, 2006"
)

func (a *Agent) paymentError(in intent.PaymentError) Draft {
	return plain(knowledge.Explain(in.Text))
}

func (a *Agent) paymentStatus(ctx context.Context, log *logger.Logger, turn Turn, in intent.PaymentStatus) Draft {
	if turn.UserID == "" {
		return plain(loginPrompt)
	}
	if a.orders == nil {
		return plain(ordersDown)
	}
	ctx, cancel := a.dbContext(ctx)
	defer cancel()
	o, err := a.orders.LatestOrder(ctx, turn.UserID)
	if err != nil {
		log.Error("latest order lookup failed", err)
		return plain(ordersDown)
	}
	if o == nil {
		return plain("I couldn't find any orders on your account yet.")
	}

	switch {
	case store.PaymentSucceededFor(*o):
		msg := "Your last payment was successful" + paymentDetail(*o) + "."
		if in.PresumedFailure {
			msg = "Good news: your last payment did not fail. " + msg
		}
		return plain(msg)
	case paymentFailed(*o):
		p := o.Payment
		if p != nil {
			if expl, ok := knowledge.ExplainCodes(p.ErrorCode, p.DeclineCode); ok {
				return plain("Your last payment didn't go through. " + expl)
			}
		}
		return plain(paymentFailedMsg)
	}
	return plain(paymentPending)
}

// paymentFailed is only consulted once no success signal was found.
func paymentFailed(o store.OrderRecord) bool {
	if p := o.Payment; p != nil {
		if p.Status == store.PaymentFailed || p.ErrorCode != "" || p.DeclineCode != "" {
			return true
		}
	}
	return store.NormalizePaymentStatus(o.Status) == store.PaymentFailed
}

func paymentDetail(o store.OrderRecord) string {
	switch {
	case o.Total > 0 && o.HasTimestamp:
		return fmt.Sprintf(" (%s on %s)", money(o.Total), o.PlacedAt.Format(dateLayout))
	case o.Total > 0:
		return fmt.Sprintf(" (%s)", money(o.Total))
	case o.HasTimestamp:
		return " (on " + o.PlacedAt.Format(dateLayout) + ")"
	}
	return ""
}

func (a *Agent) orderHistory(ctx context.Context, log *logger.Logger, turn Turn) Draft {
	if turn.UserID == "" {
		return plain(loginPrompt)
	}
	if a.orders == nil {
		return plain(ordersDown)
	}
	ctx, cancel := a.dbContext(ctx)
	defer cancel()
	orders, err := a.orders.RecentOrders(ctx, turn.UserID, a.cfg.MaxRecent)
	if err != nil {
		log.Error("recent orders lookup failed", err)
		return plain(ordersDown)
	}
	if len(orders) == 0 {
		return plain("I couldn't find any past orders on your account.")
	}
	var b strings.Builder
	b.WriteString("Your recent orders:")
	for _, o := range orders {
		b.WriteString("\n- ")
		b.WriteString(orderLine(o))
	}
	return plain(b.String())
}

func orderLine(o store.OrderRecord) string {
	when := "Undated order"
	if o.HasTimestamp {
		when = o.PlacedAt.Format(dateLayout)
	}
	items := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, fmt.Sprintf("%d x %s", it.Qty, it.Name))
	}
	line := when + ": "
	if len(items) == 0 {
		line += "no item details"
	} else {
		line += strings.Join(items, ", ")
	}
	if o.Total > 0 {
		line += " (" + money(o.Total) + ")"
	}
	return line
}

// money renders whole amounts without cents.
func money(v float64) string {
	if v == float64(int64(v)) {
		return "$" + strconv.FormatInt(int64(v), 10)
	}
	return fmt.Sprintf("$%.2f", v)
}
