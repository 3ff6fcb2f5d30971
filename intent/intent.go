// Package intent classifies a chat message into exactly one handling branch.
//
// Intents are a closed set of variant types. Classification walks an ordered
// rule table and the first rule that matches wins, so priority lives in the
// table rather than in control flow.
package intent

// Kind names an intent variant.
type Kind int

const (
	KindOpenEnded Kind = iota
	KindPaymentError
	KindPaymentStatus
	KindOrderHistory
	KindClearCart
	KindShowCart
	KindCheckout
	KindConfirmPayment
	KindRemoveItems
	KindAddItems
	KindPopularity
	KindItemDetail
	KindCategoryListing
)

var kindNames = map[Kind]string{
	KindOpenEnded:       "open_ended",
	KindPaymentError:    "payment_error",
	KindPaymentStatus:   "payment_status",
	KindOrderHistory:    "order_history",
	KindClearCart:       "clear_cart",
	KindShowCart:        "show_cart",
	KindCheckout:        "checkout",
	KindConfirmPayment:  "confirm_payment",
	KindRemoveItems:     "remove_items",
	KindAddItems:        "add_items",
	KindPopularity:      "popularity",
	KindItemDetail:      "item_detail",
	KindCategoryListing: "category_listing",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Intent is implemented only by the variants in this package.
type Intent interface {
	Kind() Kind
	isIntent()
}

// ItemRequest is one parsed "name x qty" segment. Qty is at least 1.
type ItemRequest struct {
	Name string
	Qty  int
}

// PaymentError is a pasted provider error blob.
type PaymentError struct{ Text string }

// PaymentStatus asks about the user's own latest payment. PresumedFailure is
// set when the question takes a failure for granted.
type PaymentStatus struct{ PresumedFailure bool }

type OrderHistory struct{}

type ClearCart struct{}

type ShowCart struct{}

// Checkout carries the optional hints found in the message.
type Checkout struct {
	Address string
	Contact string
	Method  string
}

// ConfirmPayment carries a payment reference (pi_..., cs_...) when one was given.
type ConfirmPayment struct{ Reference string }

type AddItems struct{ Items []ItemRequest }

type RemoveItems struct{ Items []ItemRequest }

// Popularity optionally scoped to a category.
type Popularity struct{ Category string }

// ItemDetail holds the item phrase with question filler removed.
type ItemDetail struct{ Query string }

type CategoryListing struct{ Category string }

type OpenEnded struct{ Text string }

func (PaymentError) Kind() Kind    { return KindPaymentError }
func (PaymentStatus) Kind() Kind   { return KindPaymentStatus }
func (OrderHistory) Kind() Kind    { return KindOrderHistory }
func (ClearCart) Kind() Kind       { return KindClearCart }
func (ShowCart) Kind() Kind        { return KindShowCart }
func (Checkout) Kind() Kind        { return KindCheckout }
func (ConfirmPayment) Kind() Kind  { return KindConfirmPayment }
func (AddItems) Kind() Kind        { return KindAddItems }
func (RemoveItems) Kind() Kind     { return KindRemoveItems }
func (Popularity) Kind() Kind      { return KindPopularity }
func (ItemDetail) Kind() Kind      { return KindItemDetail }
func (CategoryListing) Kind() Kind { return KindCategoryListing }
func (OpenEnded) Kind() Kind       { return KindOpenEnded }

func (PaymentError) isIntent()    {}
func (PaymentStatus) isIntent()   {}
func (OrderHistory) isIntent()    {}
func (ClearCart) isIntent()       {}
func (ShowCart) isIntent()        {}
func (Checkout) isIntent()        {}
func (ConfirmPayment) isIntent()  {}
func (AddItems) isIntent()        {}
func (RemoveItems) isIntent()     {}
func (Popularity) isIntent()      {}
func (ItemDetail) isIntent()      {}
func (CategoryListing) isIntent() {}
func (OpenEnded) isIntent()       {}
