// Package catalog holds the item metadata the tracker needs to value and
// display drops. It is loaded from the remote item table and refreshed
// wholesale; between refreshes it is read-mostly.
package catalog

import (
	"sort"
	"strings"
	"sync"
)

// Item is the static metadata for one game item.
type Item struct {
	GameID         int64  `json:"gameId"`
	Name           string `json:"name"`
	NameEN         string `json:"nameEn,omitempty"`
	NameRU         string `json:"nameRu,omitempty"`
	NameCN         string `json:"nameCn,omitempty"`
	Category       string `json:"category"`
	IconURL        string `json:"iconUrl,omitempty"`
	IsBaseCurrency bool   `json:"isBaseCurrency"`
}

const (
	browseLimit = 30
	searchLimit = 50
)

type Catalog struct {
	mu     sync.RWMutex
	items  map[int64]Item
	baseID int64 // 0 while no base-currency item is known
}

func New() *Catalog {
	return &Catalog{items: make(map[int64]Item)}
}

// Replace swaps in a freshly fetched item table. The lowest-ID item flagged
// as base currency wins if the table carries more than one.
func (c *Catalog) Replace(items []Item) {
	next := make(map[int64]Item, len(items))
	var baseID int64
	for _, it := range items {
		next[it.GameID] = it
		if it.IsBaseCurrency && (baseID == 0 || it.GameID < baseID) {
			baseID = it.GameID
		}
	}

	c.mu.Lock()
	c.items = next
	c.baseID = baseID
	c.mu.Unlock()
}

func (c *Catalog) Get(gameID int64) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[gameID]
	return it, ok
}

func (c *Catalog) Has(gameID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[gameID]
	return ok
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// BaseCurrencyID reports the item whose price is definitionally 1.0.
func (c *Catalog) BaseCurrencyID() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseID, c.baseID != 0
}

func (c *Catalog) IsBaseCurrency(gameID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseID != 0 && gameID == c.baseID
}

// Search finds items whose name (any language) contains the query,
// case-insensitively. An empty query browses the first items instead.
// Results are name-sorted so the UI list is stable between calls.
func (c *Catalog) Search(query string) []Item {
	c.mu.RLock()
	all := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		all = append(all, it)
	}
	c.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].GameID < all[j].GameID
	})

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		if len(all) > browseLimit {
			all = all[:browseLimit]
		}
		return all
	}

	matches := make([]Item, 0, searchLimit)
	for _, it := range all {
		if strings.Contains(strings.ToLower(it.Name), q) ||
			strings.Contains(strings.ToLower(it.NameEN), q) ||
			strings.Contains(strings.ToLower(it.NameRU), q) {
			matches = append(matches, it)
			if len(matches) == searchLimit {
				break
			}
		}
	}
	return matches
}
