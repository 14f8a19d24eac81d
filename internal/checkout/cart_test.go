package checkout

import (
	"errors"
	"testing"

	"github.com/kdimtricp/pestscan/internal/prefs"
	"go.uber.org/zap"
)

func TestCart_AddMergesAndPersists(t *testing.T) {
	store := prefs.NewMemory()
	cart := NewCart(store, zap.NewNop())

	item := Item{ID: "neem-oil", Name: "Neem Oil", Price: 3500, Seller: "AgroHub", Stock: 5}
	if err := cart.Add(item, 2); err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}
	if err := cart.Add(item, 1); err != nil {
		t.Fatalf("Failed to add item again: %v", err)
	}

	if got := cart.Quantity("neem-oil"); got != 3 {
		t.Errorf("Expected quantity 3, got %d", got)
	}
	if got := len(cart.Items()); got != 1 {
		t.Errorf("Expected one cart line, got %d", got)
	}

	restored := NewCart(store, zap.NewNop())
	if got := restored.Quantity("neem-oil"); got != 3 {
		t.Errorf("Expected restored quantity 3, got %d", got)
	}
}

func TestCart_AddRejectsOverStock(t *testing.T) {
	cart := NewCart(prefs.NewMemory(), zap.NewNop())
	item := Item{ID: "trap", Price: 1000, Stock: 2}

	if err := cart.Add(item, 2); err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}
	err := cart.Add(item, 1)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}
	if got := cart.Quantity("trap"); got != 2 {
		t.Errorf("Expected quantity to stay at 2, got %d", got)
	}
}

func TestCart_AddDefaultsToOne(t *testing.T) {
	cart := NewCart(prefs.NewMemory(), zap.NewNop())
	if err := cart.Add(Item{ID: "a", Price: 10}, 0); err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}
	if got := cart.Quantity("a"); got != 1 {
		t.Errorf("Expected quantity 1, got %d", got)
	}
}

func TestCart_UpdateQuantity(t *testing.T) {
	tests := []struct {
		name    string
		qty     int
		wantQty int
		wantErr error
	}{
		{"increase within stock", 4, 4, nil},
		{"over stock", 6, 1, ErrInsufficientStock},
		{"zero removes", 0, 0, nil},
		{"negative removes", -1, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart := NewCart(prefs.NewMemory(), zap.NewNop())
			if err := cart.Add(Item{ID: "a", Price: 10, Stock: 5}, 1); err != nil {
				t.Fatalf("Failed to add item: %v", err)
			}

			err := cart.UpdateQuantity("a", tt.qty)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if got := cart.Quantity("a"); got != tt.wantQty {
				t.Errorf("Expected quantity %d, got %d", tt.wantQty, got)
			}
		})
	}
}

func TestCart_UpdateQuantityUnknownItem(t *testing.T) {
	cart := NewCart(prefs.NewMemory(), zap.NewNop())
	if err := cart.UpdateQuantity("missing", 2); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("Expected ErrItemNotFound, got %v", err)
	}
}

func TestCart_Totals(t *testing.T) {
	cart := NewCart(prefs.NewMemory(), zap.NewNop())
	_ = cart.Add(Item{ID: "a", Price: 1500}, 2)
	_ = cart.Add(Item{ID: "b", Price: 250.5}, 4)

	if got := cart.TotalItems(); got != 6 {
		t.Errorf("Expected 6 items, got %d", got)
	}
	if got := cart.TotalPrice(); got != 4002 {
		t.Errorf("Expected total 4002, got %v", got)
	}

	if err := cart.Remove("a"); err != nil {
		t.Fatalf("Failed to remove item: %v", err)
	}
	if got := cart.TotalItems(); got != 4 {
		t.Errorf("Expected 4 items after remove, got %d", got)
	}

	if err := cart.Clear(); err != nil {
		t.Fatalf("Failed to clear cart: %v", err)
	}
	if got := cart.TotalPrice(); got != 0 {
		t.Errorf("Expected empty cart total 0, got %v", got)
	}
}

func TestCart_CorruptSavedCartStartsEmpty(t *testing.T) {
	store := prefs.NewMemory()
	if err := store.Set(CartKey, "{not json"); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	cart := NewCart(store, zap.NewNop())
	if got := len(cart.Items()); got != 0 {
		t.Errorf("Expected empty cart, got %d items", got)
	}
}
