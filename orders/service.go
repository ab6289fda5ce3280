// Package orders creates dine-in orders and moves them through their
// lifecycle. Totals come from package pricing; order numbers are
// YYYYMMDD-NNN per restaurant and day, kept unique by a database index
// and a retry when two creations race for the same number.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/config"
	"github.com/tobylas-w/ThaiTable-sub000/events"
	"github.com/tobylas-w/ThaiTable-sub000/logger"
	"github.com/tobylas-w/ThaiTable-sub000/metrics"
	"github.com/tobylas-w/ThaiTable-sub000/models"
	"github.com/tobylas-w/ThaiTable-sub000/pricing"
	"github.com/tobylas-w/ThaiTable-sub000/promptpay"
	"github.com/tobylas-w/ThaiTable-sub000/statemachine"
)

type Options struct {
	Rates  pricing.Rates
	Events events.Publisher
	Logger *slog.Logger
}

type Service struct {
	db     *gorm.DB
	rates  pricing.Rates
	events events.Publisher
	log    *slog.Logger
	retry  RetryConfig

	now func() time.Time
}

func NewService(db *gorm.DB, opts Options) *Service {
	if opts.Rates == (pricing.Rates{}) {
		opts.Rates = pricing.DefaultRates()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		db:     db,
		rates:  opts.Rates,
		events: opts.Events,
		log:    opts.Logger,
		retry:  DefaultRetryConfig(),
		now:    time.Now,
	}
}

// RatesFrom converts the configured default percentages.
func RatesFrom(cfg *config.Config) pricing.Rates {
	return pricing.Rates{
		ServiceChargePct: decimal.NewFromFloat(cfg.DefaultServiceChargePct),
		TaxRate:          decimal.NewFromFloat(cfg.DefaultTaxRate),
	}
}

type ItemInput struct {
	MenuID   uint
	Quantity int
	Notes    string
}

type CreateInput struct {
	RestaurantID     uint
	TableID          *uint
	CustomerName     string
	CustomerPhone    string
	Notes            string
	PaymentMethod    models.PaymentMethod
	ServiceChargePct *decimal.Decimal
	TaxRate          *decimal.Decimal
	Items            []ItemInput
	CreatedBy        uint
}

// Create prices the items from the restaurant's menu and stores the order,
// its items and its first history row in one transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Order, error) {
	order, err := s.create(ctx, in)
	metrics.RecordOrderOperation("create", err == nil)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("order created",
		"order_id", order.ID, "order_number", order.OrderNumber,
		"restaurant_id", order.RestaurantID, "total", order.Total.StringFixed(2))
	s.publish(ctx, events.OrderCreated, order, "")
	return order, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, apperr.Validation(pricing.ErrNoItems.Error())
	}
	rates := s.rates
	if in.ServiceChargePct != nil {
		rates.ServiceChargePct = *in.ServiceChargePct
	}
	if in.TaxRate != nil {
		rates.TaxRate = *in.TaxRate
	}
	if err := rates.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = models.PaymentCash
	}
	if !in.PaymentMethod.Valid() {
		return nil, apperr.Validationf("invalid payment method %q", in.PaymentMethod)
	}

	db := s.db.WithContext(ctx)
	menus, err := s.loadMenus(db, in.RestaurantID, in.Items)
	if err != nil {
		return nil, err
	}
	if in.TableID != nil {
		var n int64
		if err := db.Model(&models.Table{}).Where("id = ? AND restaurant_id = ?", *in.TableID, in.RestaurantID).Count(&n).Error; err != nil {
			return nil, apperr.Database(err, "failed to load table")
		}
		if n == 0 {
			return nil, apperr.Validationf("table %d not found", *in.TableID)
		}
	}

	lines := make([]pricing.Line, len(in.Items))
	for i, it := range in.Items {
		lines[i] = pricing.Line{UnitPrice: menus[it.MenuID].Price, Quantity: it.Quantity}
	}
	b, err := pricing.Compute(lines, rates)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}

	var createdBy *uint
	if in.CreatedBy != 0 {
		createdBy = &in.CreatedBy
	}

	var order *models.Order
	err = Retry(ctx, s.retry, func(attempt int) error {
		if attempt > 1 {
			metrics.RecordOrderNumberRetry()
		}
		now := s.now()
		order = &models.Order{
			RestaurantID:     in.RestaurantID,
			TableID:          in.TableID,
			UserID:           createdBy,
			CustomerName:     in.CustomerName,
			CustomerPhone:    in.CustomerPhone,
			Subtotal:         b.Subtotal,
			ServiceCharge:    b.ServiceCharge,
			Tax:              b.Tax,
			Total:            b.Total,
			ServiceChargePct: rates.ServiceChargePct,
			TaxRate:          rates.TaxRate,
			PaymentMethod:    in.PaymentMethod,
			PaymentStatus:    models.PaymentPending,
			Status:           models.StatusPending,
			Notes:            in.Notes,
			CreatedAt:        now,
			StatusHistory: []models.OrderStatusHistory{
				{ToStatus: models.StatusPending, ChangedBy: createdBy, Note: "order created"},
			},
		}
		for i, it := range in.Items {
			m := menus[it.MenuID]
			order.Items = append(order.Items, models.OrderItem{
				MenuID:     m.ID,
				Name:       m.NameTH,
				Quantity:   it.Quantity,
				UnitPrice:  m.Price,
				TotalPrice: b.LineTotals[i],
				Notes:      it.Notes,
			})
		}

		return db.Transaction(func(tx *gorm.DB) error {
			number, err := nextOrderNumber(tx, in.RestaurantID, now)
			if err != nil {
				return err
			}
			order.OrderNumber = number
			return tx.Omit("Restaurant", "Table").Create(order).Error
		})
	}, config.IsUniqueViolation)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, ErrRetriesExhausted):
		return nil, apperr.Conflict("ORDER_NUMBER_CONFLICT", "could not assign an order number, please retry")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, apperr.Internal(err)
	default:
		return nil, apperr.Database(err, "failed to create order")
	}
}

// loadMenus returns the restaurant's menu rows referenced by items, keyed by id.
func (s *Service) loadMenus(db *gorm.DB, restaurantID uint, items []ItemInput) (map[uint]models.Menu, error) {
	ids := make([]uint, 0, len(items))
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, apperr.Validationf("item %d: %s", i+1, pricing.ErrInvalidQuantity)
		}
		ids = append(ids, it.MenuID)
	}

	var rows []models.Menu
	if err := db.Where("restaurant_id = ? AND id IN ?", restaurantID, ids).Find(&rows).Error; err != nil {
		return nil, apperr.Database(err, "failed to load menu")
	}
	menus := make(map[uint]models.Menu, len(rows))
	for _, m := range rows {
		menus[m.ID] = m
	}
	for i, it := range items {
		m, ok := menus[it.MenuID]
		if !ok {
			return nil, apperr.Validationf("item %d: menu item %d not found", i+1, it.MenuID)
		}
		if !m.IsAvailable {
			return nil, apperr.Validationf("item %d: %s is not available", i+1, m.NameTH)
		}
	}
	return menus, nil
}

// nextOrderNumber counts the restaurant's orders numbered for now's day.
// The result can collide under concurrency; the unique index catches that.
func nextOrderNumber(tx *gorm.DB, restaurantID uint, now time.Time) (string, error) {
	day := now.Format("20060102")
	var n int64
	err := tx.Model(&models.Order{}).
		Where("restaurant_id = ? AND order_number LIKE ?", restaurantID, day+"-%").
		Count(&n).Error
	if err != nil {
		return "", err
	}
	return FormatOrderNumber(now, int(n)+1), nil
}

// FormatOrderNumber renders YYYYMMDD-NNN.
func FormatOrderNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%03d", day.Format("20060102"), seq)
}

// Get returns an order with items and history. An order belonging to
// another restaurant is forbidden rather than hidden.
func (s *Service) Get(ctx context.Context, restaurantID, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Table").
		First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order not found")
		}
		return nil, apperr.Database(err, "failed to load order")
	}
	if order.RestaurantID != restaurantID {
		return nil, apperr.Forbidden("order belongs to another restaurant")
	}
	return &order, nil
}

// UpdateStatus moves an order to status. Moving to PAID also settles the
// payment. The stored status is untouched on any error.
func (s *Service) UpdateStatus(ctx context.Context, restaurantID, orderID uint, status models.OrderStatus, actor uint, note string) (*models.Order, error) {
	if !statemachine.IsValid(status) {
		metrics.RecordOrderOperation("update_status", false)
		return nil, apperr.New(apperr.KindValidation, "INVALID_STATUS", fmt.Sprintf("invalid status %q", status))
	}

	var (
		order *models.Order
		prev  models.OrderStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.lockOrder(tx, restaurantID, orderID)
		if err != nil {
			return err
		}
		prev = order.Status
		if err := statemachine.CanTransition(prev, status); err != nil {
			return apperr.New(apperr.KindConflict, "INVALID_TRANSITION", err.Error()).WithDetails(map[string]any{
				"current_status":    prev,
				"requested":         status,
				"valid_next_states": statemachine.ValidTransitionsFrom(prev),
			})
		}

		now := s.now()
		updates := map[string]any{"status": status, "updated_at": now}
		if status == models.StatusPaid {
			updates["payment_status"] = models.PaymentPaid
			if order.PaidAt == nil {
				updates["paid_at"] = now
			}
		}
		res := tx.Model(&models.Order{}).Where("id = ? AND status = ?", order.ID, prev).Updates(updates)
		if res.Error != nil {
			return apperr.Database(res.Error, "failed to update order")
		}
		if res.RowsAffected != 1 {
			return apperr.Conflict("CONCURRENT_UPDATE", "order was changed by someone else, please retry")
		}

		var changedBy *uint
		if actor != 0 {
			changedBy = &actor
		}
		history := models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: prev,
			ToStatus:   status,
			ChangedBy:  changedBy,
			Note:       note,
		}
		if err := tx.Create(&history).Error; err != nil {
			return apperr.Database(err, "failed to record status history")
		}

		order.Status = status
		if status == models.StatusPaid {
			order.PaymentStatus = models.PaymentPaid
			if order.PaidAt == nil {
				order.PaidAt = &now
			}
		}
		order.UpdatedAt = now
		return nil
	})
	metrics.RecordOrderOperation("update_status", err == nil)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("order status changed",
		"order_id", order.ID, "from", prev, "to", status, "changed_by", actor)
	s.publish(ctx, events.OrderStatusChanged, order, prev)
	return order, nil
}

// UpdatePayment sets the payment status and, optionally, the method.
func (s *Service) UpdatePayment(ctx context.Context, restaurantID, orderID uint, status models.PaymentStatus, method models.PaymentMethod) (*models.Order, error) {
	if !status.Valid() {
		return nil, apperr.New(apperr.KindValidation, "INVALID_PAYMENT_STATUS", fmt.Sprintf("invalid payment status %q", status))
	}
	if method != "" && !method.Valid() {
		return nil, apperr.Validationf("invalid payment method %q", method)
	}

	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.lockOrder(tx, restaurantID, orderID)
		if err != nil {
			return err
		}

		now := s.now()
		updates := map[string]any{"payment_status": status, "updated_at": now}
		if method != "" {
			updates["payment_method"] = method
			order.PaymentMethod = method
		}
		if status == models.PaymentPaid && order.PaidAt == nil {
			updates["paid_at"] = now
			order.PaidAt = &now
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return apperr.Database(err, "failed to update payment")
		}
		order.PaymentStatus = status
		order.UpdatedAt = now
		return nil
	})
	metrics.RecordOrderOperation("update_payment", err == nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderPaymentUpdated, order, "")
	return order, nil
}

func (s *Service) lockOrder(tx *gorm.DB, restaurantID, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := tx.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order not found")
		}
		return nil, apperr.Database(err, "failed to load order")
	}
	if order.RestaurantID != restaurantID {
		return nil, apperr.Forbidden("order belongs to another restaurant")
	}
	return &order, nil
}

// ListFilter narrows List. Zero values mean no filter.
type ListFilter struct {
	Status models.OrderStatus
	Day    time.Time
	Limit  int
	Offset int
}

func (s *Service) List(ctx context.Context, restaurantID uint, f ListFilter) ([]models.Order, error) {
	if f.Status != "" && !statemachine.IsValid(f.Status) {
		return nil, apperr.Validationf("invalid status %q", f.Status)
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}

	q := s.db.WithContext(ctx).Preload("Items").Where("restaurant_id = ?", restaurantID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.Day.IsZero() {
		q = q.Where("order_number LIKE ?", f.Day.Format("20060102")+"-%")
	}

	var out []models.Order
	if err := q.Order("created_at desc").Order("id desc").Limit(f.Limit).Offset(f.Offset).Find(&out).Error; err != nil {
		return nil, apperr.Database(err, "failed to list orders")
	}
	return out, nil
}

// Dashboard summarises one day of a restaurant's orders.
type Dashboard struct {
	Date         string                     `json:"date"`
	TotalOrders  int                        `json:"total_orders"`
	ByStatus     map[models.OrderStatus]int `json:"by_status"`
	PaidOrders   int                        `json:"paid_orders"`
	PaidRevenue  decimal.Decimal            `json:"-"`
	OpenOrders   int                        `json:"open_orders"`
	AverageOrder decimal.Decimal            `json:"-"`
}

func (s *Service) Dashboard(ctx context.Context, restaurantID uint, day time.Time) (*Dashboard, error) {
	if day.IsZero() {
		day = s.now()
	}
	var rows []models.Order
	err := s.db.WithContext(ctx).
		Select("id", "status", "payment_status", "total").
		Where("restaurant_id = ? AND order_number LIKE ?", restaurantID, day.Format("20060102")+"-%").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Database(err, "failed to load dashboard")
	}

	d := &Dashboard{
		Date:     day.Format("2006-01-02"),
		ByStatus: map[models.OrderStatus]int{},
	}
	for _, o := range rows {
		d.TotalOrders++
		d.ByStatus[o.Status]++
		if o.PaymentStatus == models.PaymentPaid {
			d.PaidOrders++
			d.PaidRevenue = d.PaidRevenue.Add(o.Total)
		}
		if o.Status != models.StatusPaid && o.Status != models.StatusCancelled {
			d.OpenOrders++
		}
	}
	if d.PaidOrders > 0 {
		d.AverageOrder = d.PaidRevenue.Div(decimal.NewFromInt(int64(d.PaidOrders))).Round(2)
	}
	return d, nil
}

// PromptPayPayload returns the QR payload for the order's total, paid to
// the restaurant's PromptPay id.
func (s *Service) PromptPayPayload(ctx context.Context, restaurantID, orderID uint) (string, *models.Order, error) {
	order, err := s.Get(ctx, restaurantID, orderID)
	if err != nil {
		return "", nil, err
	}
	var r models.Restaurant
	if err := s.db.WithContext(ctx).First(&r, order.RestaurantID).Error; err != nil {
		return "", nil, apperr.Database(err, "failed to load restaurant")
	}
	if r.PromptPayID == "" {
		return "", nil, apperr.Validation("restaurant has no PromptPay id configured")
	}
	payload, err := promptpay.Payload(r.PromptPayID, order.Total)
	if err != nil {
		return "", nil, apperr.Validation(err.Error())
	}
	return payload, order, nil
}

// publish sends ev after commit. Delivery failures never fail the request.
func (s *Service) publish(ctx context.Context, typ string, o *models.Order, prev models.OrderStatus) {
	ev := events.OrderEvent{
		Type:           typ,
		OrderID:        o.ID,
		RestaurantID:   o.RestaurantID,
		OrderNumber:    o.OrderNumber,
		Status:         string(o.Status),
		PreviousStatus: string(prev),
		PaymentStatus:  string(o.PaymentStatus),
		Total:          o.Total.StringFixed(2),
		OccurredAt:     s.now(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.FromContext(ctx).Warn("order event not published", "type", typ, "order_id", o.ID, "error", err)
	}
}
