package catalog

import "testing"

func TestComputePrice(t *testing.T) {
	cases := []struct {
		name     string
		original int64
		discount int
		want     int64
	}{
		{"no discount", 3200, 0, 3200},
		{"twenty percent", 4500, 20, 3600},
		{"rounds half up", 999, 15, 849},
		{"full discount", 1000, 100, 0},
		{"negative discount ignored", 1000, -5, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputePrice(tc.original, tc.discount); got != tc.want {
				t.Fatalf("ComputePrice(%d, %d) = %d, want %d", tc.original, tc.discount, got, tc.want)
			}
		})
	}
}

func TestNormalizeRecomputesStalePrice(t *testing.T) {
	p := Product{
		ID:                 "p1",
		Name:               "Lamp",
		Price:              9999, // stale, hand-edited
		OriginalPrice:      4500,
		DiscountPercentage: 20,
	}
	p.Normalize()
	if p.Price != 3600 {
		t.Fatalf("expected recomputed price 3600, got %d", p.Price)
	}
	if p.Currency != "PKR" {
		t.Fatalf("expected default currency PKR, got %q", p.Currency)
	}
	if p.Images == nil || p.Features == nil {
		t.Fatal("expected non-nil slices after normalize")
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	valid := Product{ID: "p1", Name: "Lamp", OriginalPrice: 1000}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid product rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Product)
	}{
		{"missing id", func(p *Product) { p.ID = " " }},
		{"missing name", func(p *Product) { p.Name = "" }},
		{"zero original price", func(p *Product) { p.OriginalPrice = 0 }},
		{"discount over 100", func(p *Product) { p.DiscountPercentage = 101 }},
		{"negative delivery charge", func(p *Product) { p.DeliveryCharge = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSeedProductsPricesConsistent(t *testing.T) {
	seeds := SeedProducts()
	if len(seeds) != 3 {
		t.Fatalf("expected 3 seed products, got %d", len(seeds))
	}
	for _, p := range seeds {
		if err := p.Validate(); err != nil {
			t.Fatalf("seed %s invalid: %v", p.ID, err)
		}
		if got := ComputePrice(p.OriginalPrice, p.DiscountPercentage); got != p.Price {
			t.Fatalf("seed %s price %d does not match computed %d", p.ID, p.Price, got)
		}
	}
}
