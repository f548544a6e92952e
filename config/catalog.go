package config

import "fmt"

// KitchenSeed declares one kitchen and the item types it can produce.
type KitchenSeed struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Capacity  int      `json:"capacity"`
	Disabled  bool     `json:"disabled"`
	ItemTypes []string `json:"item_types"`
}

// StockSeed declares the tracked stock for one item type. Current defaults to
// the capacity ceiling; Class selects a threshold override.
type StockSeed struct {
	ItemType string  `json:"item_type"`
	Capacity float64 `json:"capacity"`
	Current  float64 `json:"current"`
	Unit     string  `json:"unit"`
	Class    string  `json:"class"`
}

// CatalogConfig carries the static kitchen and stock data loaded into the
// record store at startup. Kitchens are rarely mutated; dynamic onboarding at
// runtime is not supported.
type CatalogConfig struct {
	Kitchens []KitchenSeed `json:"kitchens"`
	Stock    []StockSeed   `json:"stock"`
}

// Validate checks identifiers and capacities.
func (c CatalogConfig) Validate() error {
	seen := map[string]bool{}
	for _, k := range c.Kitchens {
		if k.ID == "" {
			return fmt.Errorf("catalog: kitchen with empty id")
		}
		if seen[k.ID] {
			return fmt.Errorf("catalog: duplicate kitchen %s", k.ID)
		}
		seen[k.ID] = true
	}
	for _, s := range c.Stock {
		if s.ItemType == "" {
			return fmt.Errorf("catalog: stock entry with empty item type")
		}
		if s.Capacity <= 0 {
			return fmt.Errorf("catalog: stock %s: capacity must be positive", s.ItemType)
		}
		if s.Current < 0 || s.Current > s.Capacity {
			return fmt.Errorf("catalog: stock %s: current outside [0, capacity]", s.ItemType)
		}
	}
	return nil
}
