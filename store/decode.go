package store

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TimestampFields are the order fields that may carry the placement time, in
// precedence order.
var TimestampFields = []string{"date", "createdAt", "created_at", "order_date", "timestamp"}

var (
	idFields      = []string{"_id", "orderId", "order_id"}
	totalFields   = []string{"amount", "total", "totalAmount"}
	statusFields  = []string{"status", "orderStatus"}
	paidFields    = []string{"payment", "paid", "isPaid"}
	paymentFields = []string{"paymentInfo", "payment", "payment_info"}
	itemNameKeys  = []string{"name", "title", "itemName"}
	qtyKeys       = []string{"quantity", "qty"}
)

var completedStatuses = []string{"delivered", "completed", "complete", "fulfilled", "out for delivery"}

// DecodeOrder maps a raw order document onto an OrderRecord.
func DecodeOrder(doc bson.M) OrderRecord {
	var o OrderRecord
	for _, f := range idFields {
		if s := asString(doc[f]); s != "" {
			o.ID = s
			break
		}
	}
	o.UserID = ownerOf(doc)

	if items, ok := asSlice(doc["items"]); ok {
		for _, raw := range items {
			line, ok := asMap(raw)
			if !ok {
				continue
			}
			name := firstString(line, itemNameKeys...)
			if name == "" {
				continue
			}
			qty := 1
			for _, k := range qtyKeys {
				if n, ok := asFloat(line[k]); ok {
					qty = int(n)
					break
				}
			}
			if qty < 1 {
				qty = 1
			}
			o.Items = append(o.Items, OrderLine{Name: name, Qty: qty})
		}
	}

	for _, f := range totalFields {
		if n, ok := asFloat(doc[f]); ok {
			o.Total = n
			break
		}
	}
	o.PlacedAt, o.HasTimestamp = OrderTimestamp(doc)
	o.Status = firstString(doc, statusFields...)

	for _, f := range paidFields {
		if b, ok := doc[f].(bool); ok {
			o.Paid = &b
			break
		}
	}
	for _, f := range paymentFields {
		if m, ok := asMap(doc[f]); ok {
			o.Payment = decodePayment(m)
			break
		}
	}

	// stale provider codes sometimes live on the order itself
	if ec, dc := firstString(doc, "errorCode", "error_code"), firstString(doc, "declineCode", "decline_code"); ec != "" || dc != "" {
		if o.Payment == nil {
			o.Payment = &PaymentRecord{Status: PaymentUnknown}
		}
		if o.Payment.ErrorCode == "" {
			o.Payment.ErrorCode = ec
		}
		if o.Payment.DeclineCode == "" {
			o.Payment.DeclineCode = dc
		}
	}
	return o
}

func decodePayment(m bson.M) *PaymentRecord {
	p := &PaymentRecord{
		Status:      NormalizePaymentStatus(firstString(m, "status", "state")),
		ErrorCode:   firstString(m, "errorCode", "error_code", "code"),
		DeclineCode: firstString(m, "declineCode", "decline_code"),
		Message:     firstString(m, "message", "errorMessage", "error_message", "failureMessage"),
		IntentID:    firstString(m, "paymentIntentId", "payment_intent", "intentId"),
		ChargeID:    firstString(m, "chargeId", "charge_id"),
	}
	if errObj, ok := asMap(m["error"]); ok {
		if p.ErrorCode == "" {
			p.ErrorCode = firstString(errObj, "code", "type")
		}
		if p.DeclineCode == "" {
			p.DeclineCode = firstString(errObj, "decline_code", "declineCode")
		}
		if p.Message == "" {
			p.Message = firstString(errObj, "message")
		}
	}
	return p
}

// NormalizePaymentStatus maps provider status strings onto PaymentStatus.
func NormalizePaymentStatus(s string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "succeeded", "success", "paid", "complete", "completed":
		return PaymentSucceeded
	case "failed", "failure", "requires_payment_method", "canceled", "cancelled", "declined":
		return PaymentFailed
	default:
		return PaymentUnknown
	}
}

// PaymentSucceededFor reports whether any success signal is present on the
// order. A success signal overrides stale error fields.
func PaymentSucceededFor(o OrderRecord) bool {
	if o.Paid != nil && *o.Paid {
		return true
	}
	status := strings.ToLower(o.Status)
	for _, s := range completedStatuses {
		if status == s {
			return true
		}
	}
	return o.Payment != nil && o.Payment.Status == PaymentSucceeded
}

// OrderTimestamp returns the first parseable timestamp field of doc.
func OrderTimestamp(doc bson.M) (time.Time, bool) {
	for _, f := range TimestampFields {
		if t, ok := asTime(doc[f]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func ownerOf(doc bson.M) string {
	for _, f := range []string{"userId", "user_id"} {
		if s := asString(doc[f]); s != "" {
			return s
		}
	}
	if u, ok := asMap(doc["user"]); ok {
		return firstString(u, "_id", "id")
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC(), true
	case time.Time:
		return t.UTC(), true
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC(), true
	case string:
		s := strings.TrimSpace(t)
		if i := strings.Index(s, " ("); i > 0 {
			s = s[:i]
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return epoch(n), true
		}
	default:
		if n, ok := asFloat(v); ok {
			return epoch(n), true
		}
	}
	return time.Time{}, false
}

// epoch treats large values as milliseconds.
func epoch(n float64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC()
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func asMap(v interface{}) (bson.M, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]interface{}:
		return bson.M(m), true
	case bson.D:
		return m.Map(), true
	}
	return nil, false
}

func asSlice(v interface{}) ([]interface{}, bool) {
	switch a := v.(type) {
	case bson.A:
		return a, true
	case []interface{}:
		return a, true
	case []bson.M:
		out := make([]interface{}, len(a))
		for i := range a {
			out[i] = a[i]
		}
		return out, true
	}
	return nil, false
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case primitive.ObjectID:
		return s.Hex()
	case int32, int64, int, float64:
		return fmt.Sprint(s)
	}
	return ""
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func firstString(m bson.M, keys ...string) string {
	for _, k := range keys {
		if s := asString(m[k]); s != "" {
			return s
		}
	}
	return ""
}
