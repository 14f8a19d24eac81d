package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/pestscan/internal/checkout"
)

type cartResponse struct {
	Items      []checkout.Item `json:"items"`
	TotalItems int             `json:"total_items"`
	TotalPrice float64         `json:"total_price"`
}

func (app *App) CartHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, cartResponse{
		Items:      app.Cart.Items(),
		TotalItems: app.Cart.TotalItems(),
		TotalPrice: app.Cart.TotalPrice(),
	})
}

func (app *App) AddCartItemHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		checkout.Item
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if req.ID == "" {
		badRequest(w, "Item id is required")
		return
	}

	if err := app.Cart.Add(req.Item, req.Quantity); err != nil {
		app.writeError(w, err)
		return
	}
	app.CartHandler(w, r)
}

func (app *App) UpdateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	if err := app.Cart.UpdateQuantity(chi.URLParam(r, "id"), req.Quantity); err != nil {
		app.writeError(w, err)
		return
	}
	app.CartHandler(w, r)
}

func (app *App) RemoveCartItemHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.Cart.Remove(chi.URLParam(r, "id")); err != nil {
		app.writeError(w, err)
		return
	}
	app.CartHandler(w, r)
}

func (app *App) CheckoutStateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Checkout.State())
}

func (app *App) CheckoutNextHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := app.Checkout.Next(); err != nil {
		app.writeError(w, err)
		return
	}
	app.CheckoutStateHandler(w, r)
}

func (app *App) CheckoutBackHandler(w http.ResponseWriter, r *http.Request) {
	app.Checkout.Back()
	app.CheckoutStateHandler(w, r)
}

func (app *App) CheckoutDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	var d checkout.Delivery
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	app.Checkout.SetDelivery(d)
	app.CheckoutStateHandler(w, r)
}

func (app *App) CheckoutPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var p checkout.Payment
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if err := app.Checkout.SetPayment(p); err != nil {
		app.writeError(w, err)
		return
	}
	app.CheckoutStateHandler(w, r)
}

func (app *App) PlaceOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := app.Checkout.PlaceOrder(r.Context())
	if err != nil {
		app.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}
