package store

import "strings"

// Categories is the fixed set of menu categories.
var Categories = []string{"salad", "rolls", "desserts", "sandwich", "cake", "veg", "pasta", "noodles"}

// BootstrapThreshold is the menu size below which the seed menu is upserted.
const (
	BootstrapThreshold = 10
	PopularityStart    = 50
)

// CategoryLabel is the singular display label of a canonical category.
func CategoryLabel(category string) string {
	c := strings.ToLower(category)
	if c == "rolls" || c == "desserts" || c == "noodles" {
		return strings.TrimSuffix(c, "s")
	}
	return c
}

// SeedMenu returns a fresh copy of the default menu.
func SeedMenu() []MenuItem {
	out := make([]MenuItem, len(seedMenu))
	copy(out, seedMenu)
	for i := range out {
		out[i].Orders = PopularityStart
	}
	return out
}

var seedMenu = []MenuItem{
	{Name: "Greek salad", Category: "salad", Price: 12, Description: "Tomato, cucumber, olives and feta with oregano dressing"},
	{Name: "Veg salad", Category: "salad", Price: 18, Description: "Seasonal garden vegetables with lemon vinaigrette"},
	{Name: "Clover Salad", Category: "salad", Price: 16, Description: "Mixed greens with sprouts and house dressing"},
	{Name: "Chicken Salad", Category: "salad", Price: 24, Description: "Grilled chicken over crisp lettuce"},
	{Name: "Lasagna Rolls", Category: "rolls", Price: 14, Description: "Baked pasta rolls with ricotta and marinara"},
	{Name: "Peri Peri Rolls", Category: "rolls", Price: 12, Description: "Spicy peri peri filling in a soft wrap"},
	{Name: "Chicken Rolls", Category: "rolls", Price: 20, Description: "Tender chicken wrapped with onions and sauce"},
	{Name: "Veg Rolls", Category: "rolls", Price: 15, Description: "Spiced vegetables in a toasted wrap"},
	{Name: "Ripple Ice Cream", Category: "desserts", Price: 14, Description: "Vanilla ice cream with a chocolate ripple"},
	{Name: "Fruit Ice Cream", Category: "desserts", Price: 22, Description: "Ice cream loaded with fresh fruit"},
	{Name: "Jar Ice Cream", Category: "desserts", Price: 10, Description: "Layered ice cream served in a jar"},
	{Name: "Vanilla Ice Cream", Category: "desserts", Price: 12, Description: "Classic vanilla ice cream"},
	{Name: "Chicken Sandwich", Category: "sandwich", Price: 12, Description: "Grilled chicken with lettuce and mayo"},
	{Name: "Vegan Sandwich", Category: "sandwich", Price: 18, Description: "Plant based filling on multigrain bread"},
	{Name: "Grilled Sandwich", Category: "sandwich", Price: 16, Description: "Toasted sandwich with cheese and vegetables"},
	{Name: "Bread Sandwich", Category: "sandwich", Price: 24, Description: "Stacked sandwich on fresh bread"},
	{Name: "Cup Cake", Category: "cake", Price: 14, Description: "Soft cupcake with buttercream frosting"},
	{Name: "Vegan Cake", Category: "cake", Price: 12, Description: "Egg free chocolate cake"},
	{Name: "Butterscotch Cake", Category: "cake", Price: 20, Description: "Butterscotch sponge with caramel crunch"},
	{Name: "Sliced Cake", Category: "cake", Price: 15, Description: "A slice of the cake of the day"},
	{Name: "Garlic Mushroom", Category: "veg", Price: 14, Description: "Mushrooms sauteed with garlic butter"},
	{Name: "Fried Cauliflower", Category: "veg", Price: 22, Description: "Crispy fried cauliflower florets"},
	{Name: "Mix Veg Pulao", Category: "veg", Price: 10, Description: "Fragrant rice cooked with mixed vegetables"},
	{Name: "Rice Zucchini", Category: "veg", Price: 12, Description: "Rice with sauteed zucchini"},
	{Name: "Cheese Pasta", Category: "pasta", Price: 12, Description: "Pasta in a rich cheese sauce"},
	{Name: "Tomato Pasta", Category: "pasta", Price: 18, Description: "Pasta in a slow cooked tomato sauce"},
	{Name: "Creamy Pasta", Category: "pasta", Price: 16, Description: "Pasta in a creamy white sauce"},
	{Name: "Chicken Pasta", Category: "pasta", Price: 24, Description: "Pasta with grilled chicken"},
	{Name: "Butter Noodles", Category: "noodles", Price: 14, Description: "Noodles tossed in butter and herbs"},
	{Name: "Veg Noodles", Category: "noodles", Price: 12, Description: "Stir fried noodles with vegetables"},
	{Name: "Somen Noodles", Category: "noodles", Price: 20, Description: "Thin wheat noodles with dipping sauce"},
	{Name: "Cooked Noodles", Category: "noodles", Price: 15, Description: "House style cooked noodles"},
}
