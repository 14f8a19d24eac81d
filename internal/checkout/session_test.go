package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kdimtricp/pestscan/internal/prefs"
	"go.uber.org/zap"
)

var validDelivery = Delivery{
	FullName: "Ada Obi",
	Phone:    "+2348012345678",
	Address:  "12 Market Road",
	City:     "Ibadan",
	State:    "Oyo",
}

var validCard = Payment{
	Method:     PayCard,
	CardNumber: "4242 4242 4242 4242",
	CardExpiry: "08/29",
	CardCVV:    "123",
	CardName:   "Ada Obi",
}

func newTestSession(t *testing.T, opts ...SessionOption) (*Session, *Cart) {
	t.Helper()
	cart := NewCart(prefs.NewMemory(), zap.NewNop())
	opts = append([]SessionOption{WithProcessingDelay(0)}, opts...)
	return NewSession(cart, zap.NewNop(), opts...), cart
}

func TestValidateDelivery(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Delivery)
		want   string
	}{
		{"valid", func(d *Delivery) {}, ""},
		{"missing name", func(d *Delivery) { d.FullName = "  " }, "Please enter your full name"},
		{"missing phone", func(d *Delivery) { d.Phone = "" }, "Please enter your phone number"},
		{"missing address", func(d *Delivery) { d.Address = "" }, "Please enter your delivery address"},
		{"missing city", func(d *Delivery) { d.City = "" }, "Please enter your city"},
		{"missing state", func(d *Delivery) { d.State = "" }, "Please enter your state"},
		{"first failure wins", func(d *Delivery) { d.Phone = ""; d.State = "" }, "Please enter your phone number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDelivery
			tt.mutate(&d)
			err := ValidateDelivery(d)
			if tt.want == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Message != tt.want {
				t.Errorf("Expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidatePayment(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Payment)
		want   string
	}{
		{"valid card", func(p *Payment) {}, ""},
		{"short card number", func(p *Payment) { p.CardNumber = "4242 4242" }, "Please enter a valid 16-digit card number"},
		{"letters in number", func(p *Payment) { p.CardNumber = "4242 4242 4242 424a" }, "Please enter a valid 16-digit card number"},
		{"bad expiry", func(p *Payment) { p.CardExpiry = "8/29" }, "Please enter card expiry in MM/YY format"},
		{"bad cvv", func(p *Payment) { p.CardCVV = "12" }, "Please enter a valid CVV"},
		{"four digit cvv", func(p *Payment) { p.CardCVV = "1234" }, ""},
		{"missing holder", func(p *Payment) { p.CardName = "" }, "Please enter cardholder name"},
		{"bank transfer skips card", func(p *Payment) { *p = Payment{Method: PayBankTransfer} }, ""},
		{"pay on delivery skips card", func(p *Payment) { *p = Payment{Method: PayOnDelivery} }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validCard
			tt.mutate(&p)
			err := ValidatePayment(p)
			if tt.want == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.want {
				t.Errorf("Expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSession_EmptyCartBlocksFirstStep(t *testing.T) {
	s, _ := newTestSession(t)

	step, err := s.Next()
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("Expected ErrEmptyCart, got %v", err)
	}
	if step != StepCart {
		t.Errorf("Expected to stay on cart step, got %s", step)
	}
}

func TestSession_FullFlow(t *testing.T) {
	placed := time.UnixMilli(1700000000000)
	s, cart := newTestSession(t, WithSessionClock(func() time.Time { return placed }))

	if err := cart.Add(Item{ID: "neem", Name: "Neem Oil", Price: 3500}, 2); err != nil {
		t.Fatalf("Failed to add item: %v", err)
	}

	if step, err := s.Next(); err != nil || step != StepDelivery {
		t.Fatalf("Expected delivery step, got %s (%v)", step, err)
	}

	if _, err := s.Next(); err == nil {
		t.Fatalf("Expected delivery validation error")
	}
	s.SetDelivery(validDelivery)
	if step, err := s.Next(); err != nil || step != StepPayment {
		t.Fatalf("Expected payment step, got %s (%v)", step, err)
	}

	if _, err := s.PlaceOrder(context.Background()); !errors.Is(err, ErrNotConfirmable) {
		t.Fatalf("Expected ErrNotConfirmable, got %v", err)
	}

	if err := s.SetPayment(validCard); err != nil {
		t.Fatalf("Failed to set payment: %v", err)
	}
	if step, err := s.Next(); err != nil || step != StepConfirmation {
		t.Fatalf("Expected confirmation step, got %s (%v)", step, err)
	}

	state := s.State()
	if state.Total != 9500 {
		t.Errorf("Expected total 9500, got %v", state.Total)
	}
	if state.Progress != 100 {
		t.Errorf("Expected progress 100, got %v", state.Progress)
	}
	if state.Payment.CardCVV != "" {
		t.Errorf("Expected CVV to be hidden from state")
	}

	order, err := s.PlaceOrder(context.Background())
	if err != nil {
		t.Fatalf("Failed to place order: %v", err)
	}

	if want := "FC-LOYW3V28"; order.Number != want {
		t.Errorf("Expected order number %s, got %s", want, order.Number)
	}
	if order.Subtotal != 7000 || order.DeliveryFee != 2500 || order.Total != 9500 {
		t.Errorf("Unexpected totals: %+v", order)
	}
	if order.Delivery.Country != "NG" {
		t.Errorf("Expected default country NG, got %q", order.Delivery.Country)
	}
	if order.Payment.CardNumber != "************4242" {
		t.Errorf("Expected masked card number, got %q", order.Payment.CardNumber)
	}
	if got := order.Payment.Label(); got != "Card ending in 4242" {
		t.Errorf("Expected card label, got %q", got)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 2 {
		t.Errorf("Expected order to snapshot the cart, got %+v", order.Items)
	}
	if cart.TotalItems() != 0 {
		t.Errorf("Expected cart to be cleared after order")
	}
}

func TestSession_PlaceOrderHonoursContext(t *testing.T) {
	s, cart := newTestSession(t, WithProcessingDelay(time.Hour))
	_ = cart.Add(Item{ID: "a", Price: 10}, 1)
	s.SetDelivery(validDelivery)
	_ = s.SetPayment(Payment{Method: PayOnDelivery})
	for i := 0; i < 3; i++ {
		if _, err := s.Next(); err != nil {
			t.Fatalf("Failed to advance: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.PlaceOrder(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if cart.TotalItems() != 1 {
		t.Errorf("Expected cart to survive a cancelled order")
	}
	if s.State().Processing {
		t.Errorf("Expected processing flag to be cleared")
	}
}

func TestSession_Back(t *testing.T) {
	s, cart := newTestSession(t)
	_ = cart.Add(Item{ID: "a", Price: 10}, 1)

	if step := s.Back(); step != StepCart {
		t.Errorf("Expected to stay on cart, got %s", step)
	}
	_, _ = s.Next()
	if step := s.Back(); step != StepCart {
		t.Errorf("Expected to return to cart, got %s", step)
	}
}

func TestSession_SetPaymentRejectsUnknownMethod(t *testing.T) {
	s, _ := newTestSession(t)
	var verr *ValidationError
	if err := s.SetPayment(Payment{Method: "crypto"}); !errors.As(err, &verr) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestPaymentLabel(t *testing.T) {
	tests := []struct {
		p    Payment
		want string
	}{
		{Payment{Method: PayCard, CardNumber: "1111 2222 3333 4444"}, "Card ending in 4444"},
		{Payment{Method: PayBankTransfer}, "Bank Transfer"},
		{Payment{Method: PayOnDelivery}, "Pay on Delivery"},
	}
	for _, tt := range tests {
		if got := tt.p.Label(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}
