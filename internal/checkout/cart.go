package checkout

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const CartKey = "farmcare-cart"

var (
	ErrInsufficientStock = errors.New("not enough stock")
	ErrItemNotFound      = errors.New("item not in cart")
)

type Item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
	Seller   string  `json:"seller"`
	Quantity int     `json:"quantity"`
	// Stock is the available quantity; zero means unlimited.
	Stock int `json:"stock,omitempty"`
}

// Store persists the cart between runs.
type Store interface {
	GetJSON(key string, v interface{}) (bool, error)
	SetJSON(key string, v interface{}) error
}

type Cart struct {
	store  Store
	logger *zap.Logger

	mu    sync.Mutex
	items []Item
}

// NewCart restores the saved cart. An unreadable saved cart starts empty.
func NewCart(store Store, logger *zap.Logger) *Cart {
	c := &Cart{store: store, logger: logger, items: []Item{}}
	if _, err := store.GetJSON(CartKey, &c.items); err != nil {
		logger.Warn("Could not restore cart", zap.Error(err))
		c.items = []Item{}
	}
	if c.items == nil {
		c.items = []Item{}
	}
	return c
}

// Add puts qty of item in the cart, merging with an existing line. It fails
// with ErrInsufficientStock if the new quantity would exceed the stock.
func (c *Cart) Add(item Item, qty int) error {
	if qty < 1 {
		qty = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(item.ID)
	current := 0
	if idx >= 0 {
		current = c.items[idx].Quantity
	}
	newQty := current + qty

	if item.Stock > 0 && newQty > item.Stock {
		return fmt.Errorf("%w: only %d units available", ErrInsufficientStock, item.Stock)
	}

	if idx >= 0 {
		c.items[idx].Quantity = newQty
	} else {
		item.Quantity = qty
		c.items = append(c.items, item)
	}
	return c.save()
}

func (c *Cart) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return nil
	}
	c.items = append(c.items[:idx], c.items[idx+1:]...)
	return c.save()
}

// UpdateQuantity sets a line's quantity. Anything below one removes it.
func (c *Cart) UpdateQuantity(id string, qty int) error {
	if qty < 1 {
		return c.Remove(id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return ErrItemNotFound
	}
	if stock := c.items[idx].Stock; stock > 0 && qty > stock {
		return fmt.Errorf("%w: only %d units available", ErrInsufficientStock, stock)
	}

	c.items[idx].Quantity = qty
	return c.save()
}

func (c *Cart) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = []Item{}
	return c.save()
}

func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item{}, c.items...)
}

func (c *Cart) Quantity(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.indexOf(id); idx >= 0 {
		return c.items[idx].Quantity
	}
	return 0
}

func (c *Cart) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, it := range c.items {
		total += it.Quantity
	}
	return total
}

func (c *Cart) TotalPrice() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	for _, it := range c.items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

func (c *Cart) indexOf(id string) int {
	for i, it := range c.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// save is called with c.mu held.
func (c *Cart) save() error {
	if err := c.store.SetJSON(CartKey, c.items); err != nil {
		c.logger.Warn("Could not save cart", zap.Error(err))
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}
