package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrProductNotFound is returned when the catalog has no product with the requested id.
var ErrProductNotFound = errors.New("product not found")

// Source supplies read-only product records.
type Source interface {
	Product(ctx context.Context, id string) (Product, error)
}

// StaticSource serves a fixed product list, typically exported from the CMS.
type StaticSource struct {
	byID  map[string]Product
	order []string
}

// NewStaticSource indexes products by id. Later duplicates replace earlier ones.
func NewStaticSource(products []Product) *StaticSource {
	s := &StaticSource{byID: make(map[string]Product, len(products))}
	for _, p := range products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			continue
		}
		if _, exists := s.byID[id]; !exists {
			s.order = append(s.order, id)
		}
		s.byID[id] = p.Clone()
	}
	return s
}

// LoadFile reads a JSON array of products.
func LoadFile(path string) (*StaticSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var products []Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return NewStaticSource(products), nil
}

// Product implements Source.
func (s *StaticSource) Product(_ context.Context, id string) (Product, error) {
	if s == nil {
		return Product{}, ErrProductNotFound
	}
	p, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p.Clone(), nil
}

// List returns products in file order, paginated. page starts at 1.
func (s *StaticSource) List(page, perPage int) ([]Product, int) {
	if s == nil {
		return nil, 0
	}
	total := len(s.order)
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = max(total, 1)
	}
	// Compare page counts before multiplying so huge pages cannot overflow.
	if page-1 >= (total+perPage-1)/perPage {
		return []Product{}, total
	}
	start := (page - 1) * perPage
	end := total
	if perPage < total-start {
		end = start + perPage
	}
	out := make([]Product, 0, end-start)
	for _, id := range s.order[start:end] {
		out = append(out, s.byID[id].Clone())
	}
	return out, total
}
