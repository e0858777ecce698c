package optimizer

import "strings"

// DefaultCategory is used when no keyword set matches the product name.
const DefaultCategory = "default"

// DefaultCategories returns the built-in category keyword sets.
// Injected at construction so the sets can be overridden from config.
func DefaultCategories() map[string][]string {
	return map[string][]string{
		"electronics": {
			"laptop", "phone", "tablet", "headphone", "earbud", "camera",
			"monitor", "keyboard", "mouse", "speaker", "charger", "tv",
		},
		"fashion": {
			"dress", "shirt", "jeans", "jacket", "shoe", "sneaker",
			"boot", "bag", "handbag", "watch", "sunglasses",
		},
		"beauty": {
			"serum", "moisturizer", "lipstick", "mascara", "foundation",
			"skincare", "shampoo", "perfume", "cleanser",
		},
		"home": {
			"sofa", "lamp", "rug", "pillow", "blender", "cookware",
			"mattress", "desk", "chair", "vacuum",
		},
	}
}

// Categorize derives a commission category from a free-text product name
// by keyword matching. Returns DefaultCategory when nothing matches.
func (o *Optimizer) Categorize(productName string) string {
	name := strings.ToLower(productName)
	if name == "" {
		return DefaultCategory
	}

	for _, category := range o.categoryOrder {
		for _, keyword := range o.categories[category] {
			if strings.Contains(name, keyword) {
				return category
			}
		}
	}
	return DefaultCategory
}
