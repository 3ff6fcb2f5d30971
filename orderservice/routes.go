package orderservice

// Routes lists the candidate paths per operation, tried in order.
type Routes struct {
	Add         []string `yaml:"add" json:"add"`
	Remove      []string `yaml:"remove" json:"remove"`
	Get         []string `yaml:"get" json:"get"`
	GetPost     []string `yaml:"get_post" json:"get_post"`
	Clear       []string `yaml:"clear" json:"clear"`
	ClearDelete []string `yaml:"clear_delete" json:"clear_delete"`
	Checkout    []string `yaml:"checkout" json:"checkout"`
	Confirm     []string `yaml:"confirm" json:"confirm"`
}

// DefaultRoutes are the layouts the remote is known to have shipped.
func DefaultRoutes() Routes {
	return Routes{
		Add:         []string{"/api/cart/add", "/cart/add", "/api/cart/items"},
		Remove:      []string{"/api/cart/remove", "/cart/remove", "/api/cart/items/remove"},
		Get:         []string{"/api/cart", "/api/cart/get", "/cart"},
		GetPost:     []string{"/api/cart/get", "/cart/get"},
		Clear:       []string{"/api/cart/clear", "/api/cart/reset", "/api/cart/empty"},
		ClearDelete: []string{"/api/cart", "/api/cart/clear"},
		Checkout:    []string{"/api/order/place", "/api/orders/checkout", "/api/checkout"},
		Confirm:     []string{"/api/order/verify", "/api/orders/confirm", "/api/payment/confirm"},
	}
}

// withDefaults fills every empty candidate list from DefaultRoutes.
func (r Routes) withDefaults() Routes {
	d := DefaultRoutes()
	fill := func(dst *[]string, def []string) {
		if len(*dst) == 0 {
			*dst = def
		}
	}
	fill(&r.Add, d.Add)
	fill(&r.Remove, d.Remove)
	fill(&r.Get, d.Get)
	fill(&r.GetPost, d.GetPost)
	fill(&r.Clear, d.Clear)
	fill(&r.ClearDelete, d.ClearDelete)
	fill(&r.Checkout, d.Checkout)
	fill(&r.Confirm, d.Confirm)
	return r
}
