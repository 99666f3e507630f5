package dashboard

import (
	"context"
	"sort"
	"sync"

	"github.com/croire045-rgb/collecte-plateform/internal/listing"
)

// Board holds one list controller per tab of a role dashboard.
type Board struct {
	role        *Role
	controllers map[string]*listing.Controller

	mu     sync.Mutex
	active string
}

// NewBoard builds the controllers of role. view returns the renderer of each tab.
func NewBoard(role *Role, f listing.Fetcher, view func(*Tab) listing.Renderer, opts ...listing.ControllerOption) *Board {
	b := &Board{role: role, controllers: make(map[string]*listing.Controller, len(role.Tabs))}
	for _, tab := range role.Tabs {
		b.controllers[tab.ID] = listing.NewController(f, tab.Source(), view(tab), opts...)
	}
	return b
}

// Role returns the dashboard description.
func (b *Board) Role() *Role {
	return b.role
}

// Switch makes tabID the active tab and reloads its list.
func (b *Board) Switch(ctx context.Context, tabID string) error {
	c, err := b.Controller(tabID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.active = tabID
	b.mu.Unlock()
	return c.Reload(ctx)
}

// Active returns the active tab id, or "" before the first Switch.
func (b *Board) Active() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Controller returns the controller of tabID.
func (b *Board) Controller(tabID string) (*listing.Controller, error) {
	if _, err := b.role.Tab(tabID); err != nil {
		return nil, err
	}
	return b.controllers[tabID], nil
}

// Close stops pending searches of every tab.
func (b *Board) Close() {
	for _, c := range b.controllers {
		c.Close()
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
