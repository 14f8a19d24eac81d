package checkout

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DeliveryFee = 2500

type Step string

const (
	StepCart         Step = "cart"
	StepDelivery     Step = "delivery"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
)

var steps = []Step{StepCart, StepDelivery, StepPayment, StepConfirmation}

type PaymentMethod string

const (
	PayCard         PaymentMethod = "card"
	PayBankTransfer PaymentMethod = "bank_transfer"
	PayOnDelivery   PaymentMethod = "pay_on_delivery"
)

var (
	ErrEmptyCart      = errors.New("Your cart is empty")
	ErrNotConfirmable = errors.New("order can only be placed from the confirmation step")
	ErrProcessing     = errors.New("order is already being processed")
)

// ValidationError is a form field the user has to fix.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type Delivery struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Notes      string `json:"notes"`
}

type Payment struct {
	Method     PaymentMethod `json:"method"`
	CardNumber string        `json:"card_number,omitempty"`
	CardExpiry string        `json:"card_expiry,omitempty"`
	CardCVV    string        `json:"card_cvv,omitempty"`
	CardName   string        `json:"card_name,omitempty"`
}

// Label is how the payment is shown on a receipt.
func (p Payment) Label() string {
	switch p.Method {
	case PayCard:
		digits := strings.Join(strings.Fields(p.CardNumber), "")
		if len(digits) > 4 {
			digits = digits[len(digits)-4:]
		}
		return "Card ending in " + digits
	case PayBankTransfer:
		return "Bank Transfer"
	}
	return "Pay on Delivery"
}

// masked keeps the last four card digits and drops the CVV.
func (p Payment) masked() Payment {
	out := p
	out.CardCVV = ""
	digits := strings.Join(strings.Fields(p.CardNumber), "")
	if len(digits) > 4 {
		out.CardNumber = strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
	}
	return out
}

type Order struct {
	Number      string    `json:"order_number"`
	PlacedAt    time.Time `json:"placed_at"`
	Items       []Item    `json:"items"`
	Delivery    Delivery  `json:"delivery"`
	Payment     Payment   `json:"payment"`
	Subtotal    float64   `json:"subtotal"`
	DeliveryFee float64   `json:"delivery_fee"`
	Total       float64   `json:"total"`
}

type State struct {
	Step        Step     `json:"step"`
	StepIndex   int      `json:"step_index"`
	Progress    float64  `json:"progress"`
	Items       []Item   `json:"items"`
	Delivery    Delivery `json:"delivery"`
	Payment     Payment  `json:"payment"`
	Subtotal    float64  `json:"subtotal"`
	DeliveryFee float64  `json:"delivery_fee"`
	Total       float64  `json:"total"`
	Processing  bool     `json:"processing"`
	Order       *Order   `json:"order,omitempty"`
}

type SessionOption func(*Session)

// WithProcessingDelay sets how long the simulated payment takes.
func WithProcessingDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.processingDelay = d }
}

func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// Session is a linear checkout wizard over a cart.
type Session struct {
	cart   *Cart
	logger *zap.Logger

	processingDelay time.Duration
	now             func() time.Time

	mu         sync.Mutex
	step       int
	delivery   Delivery
	payment    Payment
	processing bool
	order      *Order
}

func NewSession(cart *Cart, logger *zap.Logger, opts ...SessionOption) *Session {
	s := &Session{
		cart:            cart,
		logger:          logger,
		processingDelay: 2 * time.Second,
		now:             time.Now,
		delivery:        Delivery{Country: "NG"},
		payment:         Payment{Method: PayCard},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	subtotal := s.cart.TotalPrice()
	return State{
		Step:        steps[s.step],
		StepIndex:   s.step,
		Progress:    float64(s.step+1) / float64(len(steps)) * 100,
		Items:       s.cart.Items(),
		Delivery:    s.delivery,
		Payment:     s.payment.masked(),
		Subtotal:    subtotal,
		DeliveryFee: DeliveryFee,
		Total:       subtotal + DeliveryFee,
		Processing:  s.processing,
		Order:       s.order,
	}
}

func (s *Session) SetDelivery(d Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Country == "" {
		d.Country = "NG"
	}
	s.delivery = d
}

func (s *Session) SetPayment(p Payment) error {
	switch p.Method {
	case PayCard, PayBankTransfer, PayOnDelivery:
	case "":
		p.Method = PayCard
	default:
		return &ValidationError{Field: "method", Message: fmt.Sprintf("Unknown payment method %q", p.Method)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.payment = p
	return nil
}

// Next validates the current step and advances. It does nothing on the last
// step.
func (s *Session) Next() (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch steps[s.step] {
	case StepCart:
		if len(s.cart.Items()) == 0 {
			err = ErrEmptyCart
		}
	case StepDelivery:
		err = ValidateDelivery(s.delivery)
	case StepPayment:
		err = ValidatePayment(s.payment)
	}
	if err != nil {
		return steps[s.step], err
	}

	if s.step < len(steps)-1 {
		s.step++
	}
	return steps[s.step], nil
}

func (s *Session) Back() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step > 0 && !s.processing {
		s.step--
	}
	return steps[s.step]
}

// PlaceOrder simulates payment, snapshots the order and empties the cart.
func (s *Session) PlaceOrder(ctx context.Context) (*Order, error) {
	s.mu.Lock()
	if steps[s.step] != StepConfirmation {
		s.mu.Unlock()
		return nil, ErrNotConfirmable
	}
	if s.processing {
		s.mu.Unlock()
		return nil, ErrProcessing
	}
	if len(s.cart.Items()) == 0 {
		s.mu.Unlock()
		return nil, ErrEmptyCart
	}
	s.processing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()

	timer := time.NewTimer(s.processingDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placedAt := s.now()
	subtotal := s.cart.TotalPrice()
	order := &Order{
		Number:      OrderNumber(placedAt),
		PlacedAt:    placedAt,
		Items:       s.cart.Items(),
		Delivery:    s.delivery,
		Payment:     s.payment.masked(),
		Subtotal:    subtotal,
		DeliveryFee: DeliveryFee,
		Total:       subtotal + DeliveryFee,
	}

	if err := s.cart.Clear(); err != nil {
		return nil, err
	}
	s.order = order

	s.logger.Info("Order placed",
		zap.String("order_number", order.Number),
		zap.Int("items", len(order.Items)),
		zap.Float64("total", order.Total))
	return order, nil
}

// OrderNumber is "FC-" followed by the millisecond timestamp in upper-case
// base 36.
func OrderNumber(t time.Time) string {
	return "FC-" + strings.ToUpper(strconv.FormatInt(t.UnixMilli(), 36))
}

var (
	cardNumberRe = regexp.MustCompile(`^\d{16}$`)
	cardExpiryRe = regexp.MustCompile(`^\d{2}/\d{2}$`)
	cardCVVRe    = regexp.MustCompile(`^\d{3,4}$`)
)

func ValidateDelivery(d Delivery) error {
	checks := []struct {
		field, value, message string
	}{
		{"full_name", d.FullName, "Please enter your full name"},
		{"phone", d.Phone, "Please enter your phone number"},
		{"address", d.Address, "Please enter your delivery address"},
		{"city", d.City, "Please enter your city"},
		{"state", d.State, "Please enter your state"},
	}
	for _, c := range checks {
		if strings.TrimSpace(c.value) == "" {
			return &ValidationError{Field: c.field, Message: c.message}
		}
	}
	return nil
}

// ValidatePayment only checks card details; other methods need none.
func ValidatePayment(p Payment) error {
	if p.Method != PayCard {
		return nil
	}
	if !cardNumberRe.MatchString(strings.Join(strings.Fields(p.CardNumber), "")) {
		return &ValidationError{Field: "card_number", Message: "Please enter a valid 16-digit card number"}
	}
	if !cardExpiryRe.MatchString(p.CardExpiry) {
		return &ValidationError{Field: "card_expiry", Message: "Please enter card expiry in MM/YY format"}
	}
	if !cardCVVRe.MatchString(p.CardCVV) {
		return &ValidationError{Field: "card_cvv", Message: "Please enter a valid CVV"}
	}
	if strings.TrimSpace(p.CardName) == "" {
		return &ValidationError{Field: "card_name", Message: "Please enter cardholder name"}
	}
	return nil
}
