package knowledge

// Taxonomy names one of the four fixed payment vocabularies.
type Taxonomy string

const (
	ErrorType    Taxonomy = "error_type"
	ErrorCode    Taxonomy = "error_code"
	DeclineCode  Taxonomy = "decline_code"
	IntentStatus Taxonomy = "intent_status"
)

// Entry is one immutable knowledge-base record.
type Entry struct {
	Taxonomy    Taxonomy
	Key         string
	Explanation string
}

var errorTypes = map[string]string{
	"api_error":             "The payment provider had a temporary problem on its side. Nothing is wrong with your card.",
	"card_error":            "The card could not be charged. This is usually a decline from your bank or a problem with the card details.",
	"idempotency_error":     "The same payment request was sent twice with different details, so the second one was rejected.",
	"invalid_request_error": "The payment request was missing or had invalid information, so it was not processed.",
	"rate_limit_error":      "Too many payment attempts were made in a short time. Please wait a minute before trying again.",
	"authentication_error":  "The checkout could not authenticate with the payment provider. This is on our side, not your card.",
}

var errorCodes = map[string]string{
	"card_declined":                         "Your bank declined the card.",
	"expired_card":                          "The card has expired. Please use a card with a valid expiry date.",
	"incorrect_cvc":                         "The security code (CVC) was incorrect.",
	"invalid_cvc":                           "The security code (CVC) is not valid for this card.",
	"incorrect_number":                      "The card number was incorrect.",
	"invalid_number":                        "The card number is not a valid card number.",
	"invalid_expiry_month":                  "The card's expiry month is invalid.",
	"invalid_expiry_year":                   "The card's expiry year is invalid.",
	"processing_error":                      "An error occurred while processing the card. Trying again in a few minutes usually works.",
	"authentication_required":               "Your bank requires extra verification (such as 3D Secure) for this payment.",
	"payment_intent_authentication_failure": "The extra verification step (3D Secure) was not completed, so the payment was not taken.",
	"amount_too_small":                      "The order total is below the minimum amount that can be charged.",
	"amount_too_large":                      "The order total is above the maximum amount allowed for this card.",
	"card_not_supported":                    "This card type does not support this kind of purchase.",
	"currency_not_supported":                "The card does not support the payment currency.",
	"rate_limit":                            "Too many payment attempts were made in a short time. Please wait before retrying.",
}

var declineCodes = map[string]string{
	"insufficient_funds":              "Your bank declined the payment because the account has insufficient funds.",
	"generic_decline":                 "Your bank declined the payment without giving a specific reason.",
	"do_not_honor":                    "Your bank declined the payment (do not honor). Only the bank can tell you the exact reason.",
	"lost_card":                       "The card was reported lost, so the bank blocked the payment.",
	"stolen_card":                     "The card was reported stolen, so the bank blocked the payment.",
	"fraudulent":                      "The payment was flagged as potentially fraudulent and blocked.",
	"expired_card":                    "The bank declined the payment because the card has expired.",
	"incorrect_cvc":                   "The bank declined the payment because the security code (CVC) was wrong.",
	"card_velocity_exceeded":          "The card has reached its spending or transaction limit for now.",
	"pickup_card":                     "The bank asked that this card not be used, for example because it was reported lost or stolen.",
	"try_again_later":                 "The bank could not process the payment right now. Trying again later may work.",
	"transaction_not_allowed":         "The bank does not allow this type of transaction on the card.",
	"withdrawal_count_limit_exceeded": "The card has exceeded its allowed number of transactions.",
	"authentication_required":         "The bank requires extra verification (such as 3D Secure) before approving the payment.",
}

var intentStatuses = map[string]string{
	"requires_payment_method": "The payment still needs a working payment method. The last attempt failed or no card was added.",
	"requires_confirmation":   "The payment was created but not confirmed yet.",
	"requires_action":         "The payment is waiting for you to complete an extra step, such as 3D Secure verification.",
	"processing":              "The payment is still being processed.",
	"requires_capture":        "The payment was authorized and is waiting to be captured.",
	"canceled":                "The payment was canceled and you were not charged.",
	"succeeded":               "The payment went through successfully.",
}

func table(t Taxonomy) map[string]string {
	switch t {
	case ErrorType:
		return errorTypes
	case ErrorCode:
		return errorCodes
	case DeclineCode:
		return declineCodes
	case IntentStatus:
		return intentStatuses
	}
	return nil
}

// Lookup returns the entry for key in taxonomy t.
func Lookup(t Taxonomy, key string) (Entry, bool) {
	expl, ok := table(t)[key]
	if !ok {
		return Entry{}, false
	}
	return Entry{Taxonomy: t, Key: key, Explanation: expl}, true
}

// Keys lists every key of taxonomy t.
func Keys(t Taxonomy) []string {
	m := table(t)
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
