package brands

import (
	"context"
	"errors"
	"sync"

	"github.com/azure/brand-mentions-bot/internal/models"
)

// ErrBrandNotFound is returned when no brand has the requested ID
var ErrBrandNotFound = errors.New("brand not found")

// Provider is the read-only view of brand configuration
type Provider interface {
	GetBrand(ctx context.Context, id string) (*models.Brand, error)
	ListBrands(ctx context.Context) ([]*models.Brand, error)
}

// catalog is an ordered, replaceable set of brands shared by the providers
type catalog struct {
	mu      sync.RWMutex
	byID    map[string]*models.Brand
	ordered []*models.Brand
}

func (c *catalog) replace(brands []models.Brand) {
	byID := make(map[string]*models.Brand, len(brands))
	ordered := make([]*models.Brand, 0, len(brands))
	for i := range brands {
		b := brands[i]
		byID[b.ID] = &b
		ordered = append(ordered, &b)
	}

	c.mu.Lock()
	c.byID = byID
	c.ordered = ordered
	c.mu.Unlock()
}

func (c *catalog) get(id string) (*models.Brand, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.byID[id]
	if !ok {
		return nil, ErrBrandNotFound
	}
	return cloneBrand(b), nil
}

func (c *catalog) list() []*models.Brand {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.Brand, 0, len(c.ordered))
	for _, b := range c.ordered {
		out = append(out, cloneBrand(b))
	}
	return out
}

// StaticProvider serves a fixed set of brands
type StaticProvider struct {
	catalog
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider creates a provider over brands, in the given order
func NewStaticProvider(brands ...models.Brand) *StaticProvider {
	p := &StaticProvider{}
	p.replace(brands)
	return p
}

func (p *StaticProvider) GetBrand(_ context.Context, id string) (*models.Brand, error) {
	return p.get(id)
}

func (p *StaticProvider) ListBrands(_ context.Context) ([]*models.Brand, error) {
	return p.list(), nil
}

func cloneBrand(b *models.Brand) *models.Brand {
	c := *b
	c.Keywords = append([]models.Keyword(nil), b.Keywords...)
	c.Channels.Email.Recipients = append([]string(nil), b.Channels.Email.Recipients...)
	return &c
}
