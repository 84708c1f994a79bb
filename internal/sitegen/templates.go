package sitegen

// Template is a visual theme plus the service keywords that select it.
type Template struct {
	Name       string
	Keywords   []string
	Tagline    string
	Accent     string
	Background string
	Text       string
	Font       string
}

// genericTemplate is used when no services are given or nothing matches.
var genericTemplate = Template{
	Name:       "generic",
	Tagline:    "Local, reliable, and ready to help.",
	Accent:     "#2563eb",
	Background: "#f8fafc",
	Text:       "#0f172a",
	Font:       "'Inter', system-ui, sans-serif",
}

// defaultTemplates is ordered; earlier entries win score ties.
var defaultTemplates = []Template{
	{
		Name:       "trades",
		Keywords:   []string{"plumb", "hvac", "electric", "roof", "contractor", "handyman", "repair", "construction", "landscap", "paint", "carpent", "remodel", "clean"},
		Tagline:    "Licensed pros who show up on time.",
		Accent:     "#ea580c",
		Background: "#fff7ed",
		Text:       "#1c1917",
		Font:       "'Roboto Slab', Georgia, serif",
	},
	{
		Name:       "food",
		Keywords:   []string{"restaurant", "cafe", "coffee", "bakery", "cater", "food", "pizza", "taco", "bar", "grill", "kitchen", "truck", "dessert"},
		Tagline:    "Made fresh. Served with love.",
		Accent:     "#b91c1c",
		Background: "#fffbeb",
		Text:       "#292524",
		Font:       "'Playfair Display', Georgia, serif",
	},
	{
		Name:       "beauty",
		Keywords:   []string{"salon", "spa", "hair", "nail", "barber", "beauty", "lash", "brow", "makeup", "wax", "massage", "skin"},
		Tagline:    "Look good. Feel better.",
		Accent:     "#db2777",
		Background: "#fdf2f8",
		Text:       "#3b0764",
		Font:       "'Poppins', system-ui, sans-serif",
	},
	{
		Name:       "fitness",
		Keywords:   []string{"gym", "fitness", "yoga", "pilates", "trainer", "training", "crossfit", "martial", "boxing", "dance", "coach"},
		Tagline:    "Stronger every session.",
		Accent:     "#16a34a",
		Background: "#f0fdf4",
		Text:       "#052e16",
		Font:       "'Montserrat', system-ui, sans-serif",
	},
	{
		Name:       "professional",
		Keywords:   []string{"law", "legal", "account", "tax", "consult", "insurance", "real estate", "realtor", "financ", "bookkeep", "marketing", "design"},
		Tagline:    "Expert help you can trust.",
		Accent:     "#1e3a8a",
		Background: "#f1f5f9",
		Text:       "#0f172a",
		Font:       "'Source Serif Pro', Georgia, serif",
	},
}
