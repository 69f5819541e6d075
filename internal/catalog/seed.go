package catalog

// SeedProducts is the bundled fallback catalog used when both the remote
// document and the cache snapshot are unavailable. Read never fails; in the
// worst case customers browse these three products.
func SeedProducts() []Product {
	return []Product{
		{
			ID:                 "almarky-aurora-lamp",
			Name:               "Aurora Crystal Table Lamp",
			OriginalPrice:      4500,
			DiscountPercentage: 20,
			Price:              3600,
			Currency:           "PKR",
			Category:           "Home Decor",
			Description:        "Touch-controlled crystal lamp with three warmth levels, built for Pakistani voltage.",
			Images:             []string{"https://res.cloudinary.com/almarky/image/upload/v1/seed/aurora-lamp.jpg"},
			InStock:            true,
			Features:           []string{"Touch dimmer", "USB-C charging port", "12 month warranty"},
			Colors:             []string{"#d4af37", "#c0c0c0"},
			DeliveryCharge:     150,
		},
		{
			ID:                 "almarky-breeze-fan",
			Name:               "Breeze Rechargeable Fan",
			OriginalPrice:      6000,
			DiscountPercentage: 15,
			Price:              5100,
			Currency:           "PKR",
			Category:           "Appliances",
			Description:        "Foldable rechargeable fan with 8 hour battery backup for load-shedding hours.",
			Images:             []string{"https://res.cloudinary.com/almarky/image/upload/v1/seed/breeze-fan.jpg"},
			InStock:            true,
			Features:           []string{"8h battery backup", "Foldable design", "3 speed settings"},
			DeliveryCharge:     200,
		},
		{
			ID:                 "almarky-sahar-kettle",
			Name:               "Sahar Electric Kettle 1.8L",
			OriginalPrice:      3200,
			DiscountPercentage: 0,
			Price:              3200,
			Currency:           "PKR",
			Category:           "Kitchen",
			Description:        "Stainless steel kettle with auto shut-off and boil-dry protection.",
			Images:             []string{"https://res.cloudinary.com/almarky/image/upload/v1/seed/sahar-kettle.jpg"},
			InStock:            true,
			Features:           []string{"Auto shut-off", "Boil-dry protection", "1.8L capacity"},
			Colors:             []string{"#1a1a1a", "#ffffff"},
			DeliveryCharge:     150,
		},
	}
}
