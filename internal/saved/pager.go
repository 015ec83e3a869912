package saved

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/weatherdeck/weatherdeck/internal/api"
	"github.com/weatherdeck/weatherdeck/internal/models"
)

// Pager is paginated CRUD over the user's saved-city list. The server owns
// ordering and pagination: the client holds exactly one page at a time, and
// every mutation refreshes page 1 rather than guessing where the item landed.
type Pager struct {
	client *api.Client
	logger *zap.Logger
	limit  int

	mu         sync.Mutex
	page       int
	totalPages int
	items      []models.City

	// onRemoved, when set, fires with the removed city's ID so the
	// composition root can clear a matching dashboard selection.
	onRemoved func(id string)
}

// NewPager creates a Pager starting at page 1. limit <= 0 defaults to 10.
func NewPager(client *api.Client, logger *zap.Logger, limit int) *Pager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = 10
	}
	return &Pager{
		client:     client,
		logger:     logger,
		limit:      limit,
		page:       1,
		totalPages: 1,
	}
}

// OnRemoved registers the removal hook. Call once during wiring.
func (p *Pager) OnRemoved(fn func(id string)) {
	p.mu.Lock()
	p.onRemoved = fn
	p.mu.Unlock()
}

// Refresh re-fetches the current page from the server.
func (p *Pager) Refresh(ctx context.Context) error {
	p.mu.Lock()
	page := p.page
	p.mu.Unlock()
	return p.fetch(ctx, page)
}

// Items returns the current page's cities.
func (p *Pager) Items() []models.City {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.items
}

// Page returns the current page number and the last known total.
func (p *Pager) Page() (page, totalPages int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page, p.totalPages
}

// SetPage navigates to page n. Requests outside [1, totalPages] are clamped
// to a no-op, not an error.
func (p *Pager) SetPage(ctx context.Context, n int) error {
	p.mu.Lock()
	if n < 1 || n > p.totalPages || n == p.page {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.fetch(ctx, n)
}

// Next advances one page, clamped at the last page.
func (p *Pager) Next(ctx context.Context) error {
	page, _ := p.Page()
	return p.SetPage(ctx, page+1)
}

// Prev goes back one page, clamped at page 1.
func (p *Pager) Prev(ctx context.Context) error {
	page, _ := p.Page()
	return p.SetPage(ctx, page-1)
}

// Add persists city and resets the view to a fresh page 1. The new item's
// position is server-determined, so no optimistic local insert.
func (p *Pager) Add(ctx context.Context, city models.City) error {
	if err := p.client.AddSavedCity(ctx, city); err != nil {
		return fmt.Errorf("save city: %w", err)
	}
	p.logger.Info("city saved", zap.String("name", city.Name))
	return p.fetch(ctx, 1)
}

// Remove deletes the saved city by ID, resets to page 1, and fires the
// removal hook so a matching selection can be cleared.
func (p *Pager) Remove(ctx context.Context, id string) error {
	if err := p.client.RemoveSavedCity(ctx, id); err != nil {
		return fmt.Errorf("remove city: %w", err)
	}
	p.logger.Info("city removed", zap.String("id", id))

	p.mu.Lock()
	hook := p.onRemoved
	p.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return p.fetch(ctx, 1)
}

// fetch loads page n and commits items, page, and totalPages together.
func (p *Pager) fetch(ctx context.Context, n int) error {
	items, total, err := p.client.SavedCities(ctx, n, p.limit)
	if err != nil {
		return fmt.Errorf("load saved cities page %d: %w", n, err)
	}
	totalPages := (total + p.limit - 1) / p.limit
	if totalPages < 1 {
		totalPages = 1
	}

	p.mu.Lock()
	p.page = n
	p.totalPages = totalPages
	p.items = items
	p.mu.Unlock()
	return nil
}
