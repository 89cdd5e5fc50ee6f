// Package catalog loads the product catalog from YAML and serves search
// and stock queries for the commerce capability providers.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Product is one catalog entry.
type Product struct {
	// Name is the display name of the product.
	Name string `yaml:"name"`
	// Brand is the product brand.
	Brand string `yaml:"brand,omitempty"`
	// PriceKobo is the unit price in kobo (₦1 = 100 kobo).
	PriceKobo int64 `yaml:"price_kobo"`
	// Stock is the units currently available.
	Stock int `yaml:"stock"`
	// Keywords are extra search terms beyond name and brand.
	Keywords []string `yaml:"keywords,omitempty"`
	// Description is a short product blurb.
	Description string `yaml:"description,omitempty"`
}

// PriceNaira renders the unit price as a naira string.
func (p Product) PriceNaira() string {
	return FormatNaira(p.PriceKobo)
}

// FormatNaira renders a kobo amount as ₦ with thousands separators.
func FormatNaira(kobo int64) string {
	naira := kobo / 100
	s := fmt.Sprintf("%d", naira)
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return "₦" + strings.Join(parts, ",")
}

type catalogFile struct {
	Products []Product `yaml:"products"`
}

// Catalog is a thread-safe view of the product list. Reload replaces the
// whole snapshot, so readers never see a partially-applied file.
type Catalog struct {
	mu       sync.RWMutex
	path     string
	products []Product
}

// Load reads the catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromProducts builds an in-memory catalog, used by tests and the demo CLI.
func FromProducts(products []Product) *Catalog {
	return &Catalog{products: products}
}

// Reload re-reads the backing file and swaps in the new product list.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	c.mu.Lock()
	c.products = file.Products
	c.mu.Unlock()
	return nil
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}

// Search returns products matching the query by name, brand, or keyword
// substring, best matches first. The query is tokenized; a product matches
// if every token matches at least one field.
func (c *Catalog) Search(query string) []Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return nil
	}

	type scored struct {
		product Product
		score   int
	}
	var matches []scored
	for _, p := range c.products {
		haystack := strings.ToLower(p.Name + " " + p.Brand + " " + strings.Join(p.Keywords, " ") + " " + p.Description)
		name := strings.ToLower(p.Name)
		score := 0
		all := true
		for _, tok := range tokens {
			switch {
			case strings.Contains(name, tok):
				score += 2
			case strings.Contains(haystack, tok):
				score++
			default:
				all = false
			}
			if !all {
				break
			}
		}
		if all {
			matches = append(matches, scored{p, score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	result := make([]Product, 0, len(matches))
	for _, m := range matches {
		result = append(result, m.product)
	}
	return result
}

// Lookup returns the product with the exact (case-insensitive) name.
func (c *Catalog) Lookup(name string) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.products {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Product{}, false
}
