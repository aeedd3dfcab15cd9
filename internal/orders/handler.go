// Package orders implements the staff dashboard over placed orders.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-orders/internal/domain"
)

type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, f Filter) ([]domain.Order, error)
	UpdateState(ctx context.Context, id string, state domain.State) (bool, error)
	Update(ctx context.Context, order *domain.Order, replaceItems bool) error
}

type ProductLookup interface {
	GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, event domain.OrderEvent)
}

type Handler struct {
	store    Store
	products ProductLookup
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(store Store, products ProductLookup, notifier Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		products: products,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{
		Status:        q.Get("status"),
		PaymentStatus: q.Get("payment_status"),
		Search:        q.Get("search"),
	}
	if f.Status != "" && f.Status != "late" && !domain.Status(f.Status).Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	if f.PaymentStatus != "" && !domain.PaymentStatus(f.PaymentStatus).Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid payment_status filter")
		return
	}

	orders, err := h.store.List(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	now := h.now()
	views := make([]domain.OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, orders[i].View(now))
	}

	h.logger.Info("orders listed", "count", len(views))
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, order.View(h.now()))
}

type itemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type customerRequest struct {
	Name    string `json:"customer_name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	TaxID   string `json:"tax_id"`
	Email   string `json:"email"`
}

func (c customerRequest) customer() (domain.Customer, error) {
	cust := domain.Customer{
		Name:    strings.TrimSpace(c.Name),
		Phone:   strings.TrimSpace(c.Phone),
		Address: strings.TrimSpace(c.Address),
		TaxID:   strings.TrimSpace(c.TaxID),
		Email:   strings.TrimSpace(c.Email),
	}
	if cust.Name == "" || cust.Phone == "" || cust.Address == "" {
		return cust, errors.New("customer_name, phone and address are required")
	}
	return cust, nil
}

type createOrderRequest struct {
	customerRequest
	Status        domain.Status        `json:"status"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Items         []itemRequest        `json:"items"`
}

// HandleCreate records an order taken by staff. It skips the gateway, so the
// order is placed immediately.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	customer, err := req.customer()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentMethodCash
	}

	items, err := h.resolveItems(r.Context(), req.Items)
	if err != nil {
		h.writeItemsError(w, err)
		return
	}

	now := h.now()
	order, err := domain.NewOrder(customer, req.PaymentMethod, nil, items, now)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order.Stage = domain.StagePlaced
	if req.Status != "" {
		if order.State, err = domain.Transition(order.State, domain.SetStatus(req.Status)); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.store.Create(r.Context(), order); err != nil {
		h.logger.Error("failed to create order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.notifier.Dispatch(r.Context(), domain.NewOrderEvent(domain.EventOrderUpdate, order, now))

	h.logger.Info("order created", "order_id", order.ID, "source", "dashboard")
	h.writeJSON(w, http.StatusCreated, order.View(now))
}

type updateOrderRequest struct {
	customerRequest
	Status domain.Status  `json:"status"`
	Items  *[]itemRequest `json:"items"`
}

// HandleUpdate edits basic info and status. Items are replaced only while
// the order is unpaid.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}

	now := h.now()
	if !order.CanEditBasicInfo() {
		h.writeConflict(w, order, now, domain.ErrFinalized)
		return
	}

	customer, err := req.customerRequest.customer()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	next := order.State
	if req.Status != "" {
		next, err = domain.Transition(order.State, domain.SetStatus(req.Status))
		if err != nil {
			h.writeConflict(w, order, now, err)
			return
		}
	}

	replaceItems := req.Items != nil
	if replaceItems {
		if !order.CanEditItems() {
			h.writeConflict(w, order, now, errors.New("items of a paid order cannot be edited"))
			return
		}
		items, err := h.resolveItems(r.Context(), *req.Items)
		if err != nil {
			h.writeItemsError(w, err)
			return
		}
		order.Items = items
	}

	order.Customer = customer
	order.State = next
	if err := h.store.Update(r.Context(), order, replaceItems); err != nil {
		h.logger.Error("failed to update order", "error", err, "order_id", order.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.notifier.Dispatch(r.Context(), domain.NewOrderEvent(domain.EventOrderUpdate, order, now))

	h.logger.Info("order updated", "order_id", order.ID, "state", order.State.String(), "items_replaced", replaceItems)
	h.writeJSON(w, http.StatusOK, order.View(now))
}

func (h *Handler) HandleToggleStatus(w http.ResponseWriter, r *http.Request) {
	h.applyAction(w, r, domain.Action{Kind: domain.ActionToggleStatus})
}

func (h *Handler) HandleTogglePayment(w http.ResponseWriter, r *http.Request) {
	h.applyAction(w, r, domain.Action{Kind: domain.ActionTogglePayment})
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.applyAction(w, r, domain.Action{Kind: domain.ActionCancel})
}

func (h *Handler) HandleCancelPayment(w http.ResponseWriter, r *http.Request) {
	h.applyAction(w, r, domain.Action{Kind: domain.ActionCancelPayment})
}

func (h *Handler) applyAction(w http.ResponseWriter, r *http.Request, action domain.Action) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}

	now := h.now()
	next, err := domain.Transition(order.State, action)
	if err != nil {
		h.logger.Info("order action rejected", "order_id", order.ID, "action", action.Kind, "state", order.State.String())
		h.writeConflict(w, order, now, err)
		return
	}

	found, err := h.store.UpdateState(r.Context(), order.ID, next)
	if err != nil {
		h.logger.Error("failed to update order state", "error", err, "order_id", order.ID, "action", action.Kind)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	order.State = next
	h.notifier.Dispatch(r.Context(), domain.NewOrderEvent(domain.EventOrderUpdate, order, now))

	h.logger.Info("order action applied", "order_id", order.ID, "action", action.Kind, "state", next.String())
	h.writeJSON(w, http.StatusOK, order.View(now))
}

func (h *Handler) loadOrder(w http.ResponseWriter, r *http.Request) (*domain.Order, bool) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return nil, false
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}

	// orders still inside checkout are not visible to staff
	if order == nil || order.Stage != domain.StagePlaced {
		h.writeError(w, http.StatusNotFound, "order not found")
		return nil, false
	}

	return order, true
}

var errNoItems = errors.New("at least one item with quantity greater than zero is required")

type unknownProductsError struct {
	ids []string
}

func (e *unknownProductsError) Error() string {
	return "unknown products: " + strings.Join(e.ids, ", ")
}

// resolveItems drops lines with a non-positive quantity and attaches current
// product names and prices.
func (h *Handler) resolveItems(ctx context.Context, reqs []itemRequest) ([]domain.OrderItem, error) {
	quantities := make(map[string]int)
	var ids []string
	for _, req := range reqs {
		if req.ProductID == "" || req.Quantity <= 0 {
			continue
		}
		if _, seen := quantities[req.ProductID]; !seen {
			ids = append(ids, req.ProductID)
		}
		quantities[req.ProductID] += req.Quantity
	}
	if len(ids) == 0 {
		return nil, errNoItems
	}

	products, err := h.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]domain.OrderItem, 0, len(ids))
	var unknown []string
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		items = append(items, domain.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    quantities[id],
			Price:       p.Price,
		})
	}
	if len(unknown) > 0 {
		return nil, &unknownProductsError{ids: unknown}
	}

	return items, nil
}

func (h *Handler) writeItemsError(w http.ResponseWriter, err error) {
	var unknown *unknownProductsError
	switch {
	case errors.Is(err, errNoItems), errors.As(err, &unknown):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("failed to resolve order items", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type conflictResponse struct {
	Error string           `json:"error"`
	Order domain.OrderView `json:"order"`
}

// writeConflict reports a refused change along with the unchanged order.
func (h *Handler) writeConflict(w http.ResponseWriter, order *domain.Order, now time.Time, err error) {
	h.writeJSON(w, http.StatusConflict, conflictResponse{Error: err.Error(), Order: order.View(now)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

type MetricsSource interface {
	RecentSummaries(ctx context.Context, since time.Time) ([]OrderSummary, error)
	EffectiveTotals(ctx context.Context) (int, decimal.Decimal, error)
	LateCount(ctx context.Context) (int, error)
	ProductCounts(ctx context.Context) (ProductCounts, error)
}

// MetricsHandler serves the dashboard summary figures.
type MetricsHandler struct {
	source MetricsSource
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

func NewMetricsHandler(source MetricsSource, loc *time.Location, logger *slog.Logger) *MetricsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &MetricsHandler{source: source, loc: loc, logger: logger, now: time.Now}
}

func (h *MetricsHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	respond := func(status int, data any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.Error("failed to encode response", "error", err)
		}
	}
	fail := func(what string, err error) {
		h.logger.Error("failed to compute metrics", "step", what, "error", err)
		respond(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}

	since := startOfDay(now.In(h.loc)).AddDate(0, 0, -30)
	recent, err := h.source.RecentSummaries(ctx, since)
	if err != nil {
		fail("recent", err)
		return
	}
	sales, revenue, err := h.source.EffectiveTotals(ctx)
	if err != nil {
		fail("effective", err)
		return
	}
	late, err := h.source.LateCount(ctx)
	if err != nil {
		fail("late", err)
		return
	}
	products, err := h.source.ProductCounts(ctx)
	if err != nil {
		fail("products", err)
		return
	}

	respond(http.StatusOK, ComputeMetrics(recent, sales, revenue, late, products, now, h.loc))
}
