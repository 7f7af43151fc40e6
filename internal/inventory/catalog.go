package inventory

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCatalog returns the demo catalog: four products in each of five
// categories. The slice is freshly allocated on every call.
func DefaultCatalog() []StoreItem {
	return []StoreItem{
		{Product: "Milk", Category: "dairy", Price: 40, Quantity: 100},
		{Product: "Cheese", Category: "dairy", Price: 120, Quantity: 50},
		{Product: "Yogurt", Category: "dairy", Price: 50, Quantity: 80},
		{Product: "Butter", Category: "dairy", Price: 80, Quantity: 60},

		{Product: "Apple", Category: "fruit", Price: 100, Quantity: 200},
		{Product: "Banana", Category: "fruit", Price: 40, Quantity: 300},
		{Product: "Orange", Category: "fruit", Price: 80, Quantity: 180},
		{Product: "Mango", Category: "fruit", Price: 150, Quantity: 120},

		{Product: "Cola", Category: "drinks", Price: 60, Quantity: 90},
		{Product: "Orange Juice", Category: "drinks", Price: 90, Quantity: 70},
		{Product: "Mineral Water", Category: "drinks", Price: 20, Quantity: 500},
		{Product: "Energy Drink", Category: "drinks", Price: 120, Quantity: 40},

		{Product: "Potato Chips", Category: "snacks", Price: 30, Quantity: 150},
		{Product: "Chocolate Bar", Category: "snacks", Price: 50, Quantity: 200},
		{Product: "Cookies", Category: "snacks", Price: 70, Quantity: 100},
		{Product: "Popcorn", Category: "snacks", Price: 40, Quantity: 130},

		{Product: "Rice", Category: "grains", Price: 60, Quantity: 400},
		{Product: "Wheat Flour", Category: "grains", Price: 55, Quantity: 350},
		{Product: "Oats", Category: "grains", Price: 90, Quantity: 200},
		{Product: "Barley", Category: "grains", Price: 75, Quantity: 160},
	}
}

// CatalogFile is the YAML layout of a custom store catalog.
//
// Example:
//
//	items:
//	  - product: Milk
//	    category: dairy
//	    price: 40
//	    quantity: 100
type CatalogFile struct {
	Items []StoreItem `yaml:"items"`
}

// LoadCatalogFile reads and validates a catalog YAML file from disk.
func LoadCatalogFile(path string) ([]StoreItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("inventory: open catalog %q: %w", path, err)
	}
	defer f.Close()

	items, err := LoadCatalogFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("inventory: load catalog %q: %w", path, err)
	}
	return items, nil
}

// LoadCatalogFromReader parses and validates catalog YAML from r.
func LoadCatalogFromReader(r io.Reader) ([]StoreItem, error) {
	var cf CatalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("inventory: decode catalog yaml: %w", err)
	}
	if err := ValidateCatalog(cf.Items); err != nil {
		return nil, err
	}
	return cf.Items, nil
}

// ValidateCatalog checks every item and reports all problems at once.
func ValidateCatalog(items []StoreItem) error {
	if len(items) == 0 {
		return errors.New("inventory: catalog has no items")
	}
	var errs []error
	seen := make(map[string]int, len(items))
	for i, it := range items {
		name := strings.TrimSpace(it.Product)
		if name == "" {
			errs = append(errs, fmt.Errorf("items[%d]: product name is required", i))
			continue
		}
		key := strings.ToLower(name)
		if j, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("items[%d]: product %q duplicates items[%d]", i, it.Product, j))
		}
		seen[key] = i
		if it.Quantity < 0 {
			errs = append(errs, fmt.Errorf("items[%d]: quantity %d must be >= 0", i, it.Quantity))
		}
		if it.Price < 0 || math.IsNaN(it.Price) || math.IsInf(it.Price, 0) {
			errs = append(errs, fmt.Errorf("items[%d]: price %v must be a finite value >= 0", i, it.Price))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("inventory: invalid catalog: %w", errors.Join(errs...))
	}
	return nil
}
