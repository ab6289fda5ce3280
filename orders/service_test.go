package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/events"
	"github.com/tobylas-w/ThaiTable-sub000/logger"
	"github.com/tobylas-w/ThaiTable-sub000/models"
	"github.com/tobylas-w/ThaiTable-sub000/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (r *recorder) Publish(_ context.Context, ev events.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

var day = time.Date(2026, 1, 15, 12, 30, 0, 0, time.Local)

type fixture struct {
	svc        *Service
	db         *gorm.DB
	events     *recorder
	restaurant *models.Restaurant
	user       *models.User
	padThai    *models.Menu
	thaiTea    *models.Menu
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	rec := &recorder{}
	svc := NewService(db, Options{Events: rec, Logger: logger.Discard()})
	svc.now = func() time.Time { return day }
	svc.retry = fastRetry()

	r := testutil.CreateRestaurant(t, db, "ครัวไทย")
	return &fixture{
		svc:        svc,
		db:         db,
		events:     rec,
		restaurant: r,
		user:       testutil.CreateUser(t, db, r.ID, "staff@example.com", models.RoleStaff),
		padThai:    testutil.CreateMenu(t, db, r.ID, "ผัดไทย", "180.00"),
		thaiTea:    testutil.CreateMenu(t, db, r.ID, "ชาไทย", "45.00"),
	}
}

func (f *fixture) create(t *testing.T) *models.Order {
	t.Helper()
	o, err := f.svc.Create(context.Background(), CreateInput{
		RestaurantID: f.restaurant.ID,
		Items:        []ItemInput{{MenuID: f.padThai.ID, Quantity: 1}, {MenuID: f.thaiTea.ID, Quantity: 1}},
		CreatedBy:    f.user.ID,
	})
	require.NoError(t, err)
	return o
}

func TestCreateComputesTotalsAndNumber(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)

	assert.Equal(t, "20260115-001", o.OrderNumber)
	assert.Equal(t, "225.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "22.50", o.ServiceCharge.StringFixed(2))
	assert.Equal(t, "15.75", o.Tax.StringFixed(2))
	assert.Equal(t, "263.25", o.Total.StringFixed(2))
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Equal(t, models.PaymentPending, o.PaymentStatus)
	assert.Equal(t, models.PaymentCash, o.PaymentMethod)

	var stored models.Order
	require.NoError(t, f.db.Preload("Items").Preload("StatusHistory").First(&stored, o.ID).Error)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "ผัดไทย", stored.Items[0].Name)
	assert.True(t, stored.Total.Equal(stored.Subtotal.Add(stored.ServiceCharge).Add(stored.Tax)))
	require.Len(t, stored.StatusHistory, 1)
	assert.Equal(t, models.StatusPending, stored.StatusHistory[0].ToStatus)

	assert.Equal(t, []string{events.OrderCreated}, f.events.types())
}

func TestCreateSnapshotsMenuPrice(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)

	require.NoError(t, f.db.Model(f.padThai).Update("price", decimal.NewFromInt(999)).Error)
	var items []models.OrderItem
	require.NoError(t, f.db.Where("order_id = ?", o.ID).Order("id").Find(&items).Error)
	assert.Equal(t, "180.00", items[0].UnitPrice.StringFixed(2))
}

func TestCreateCustomRates(t *testing.T) {
	f := newFixture(t)
	zero := decimal.Zero
	sc := decimal.NewFromInt(5)
	o, err := f.svc.Create(context.Background(), CreateInput{
		RestaurantID:     f.restaurant.ID,
		Items:            []ItemInput{{MenuID: f.thaiTea.ID, Quantity: 2}},
		ServiceChargePct: &sc,
		TaxRate:          &zero,
		PaymentMethod:    models.PaymentPromptPay,
	})
	require.NoError(t, err)
	assert.Equal(t, "90.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "4.50", o.ServiceCharge.StringFixed(2))
	assert.Equal(t, "0.00", o.Tax.StringFixed(2))
	assert.Equal(t, "94.50", o.Total.StringFixed(2))
	assert.Nil(t, o.UserID)
}

func TestOrderNumbersAreScopedToRestaurantAndDay(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "20260115-001", f.create(t).OrderNumber)
	assert.Equal(t, "20260115-002", f.create(t).OrderNumber)

	other := testutil.CreateRestaurant(t, f.db, "ร้านอื่น")
	menu := testutil.CreateMenu(t, f.db, other.ID, "ข้าวผัด", "60")
	o, err := f.svc.Create(context.Background(), CreateInput{
		RestaurantID: other.ID,
		Items:        []ItemInput{{MenuID: menu.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "20260115-001", o.OrderNumber)

	f.svc.now = func() time.Time { return day.Add(24 * time.Hour) }
	assert.Equal(t, "20260116-001", f.create(t).OrderNumber)
}

func TestConcurrentCreatesGetDistinctNumbers(t *testing.T) {
	f := newFixture(t)
	const n = 10

	var wg sync.WaitGroup
	numbers := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := f.svc.Create(context.Background(), CreateInput{
				RestaurantID: f.restaurant.ID,
				Items:        []ItemInput{{MenuID: f.thaiTea.ID, Quantity: 1}},
			})
			if err != nil {
				errs <- err
				return
			}
			numbers <- o.OrderNumber
		}()
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Errorf("create failed: %v", err)
	}
	seen := map[string]bool{}
	for num := range numbers {
		assert.False(t, seen[num], "duplicate order number %s", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen[fmt.Sprintf("20260115-%03d", n)])
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	// a stray row holding the number the counter will pick next
	stray := models.Order{
		RestaurantID: f.restaurant.ID, OrderNumber: "20260115-002",
		Subtotal: decimal.Zero, ServiceCharge: decimal.Zero, Tax: decimal.Zero, Total: decimal.Zero,
		ServiceChargePct: decimal.Zero, TaxRate: decimal.Zero,
	}
	require.NoError(t, f.db.Omit("Restaurant", "Table").Create(&stray).Error)

	_, err := f.svc.Create(context.Background(), CreateInput{
		RestaurantID: f.restaurant.ID,
		Items:        []ItemInput{{MenuID: f.thaiTea.ID, Quantity: 1}},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, "ORDER_NUMBER_CONFLICT", apperr.From(err).Code)

	var count int64
	f.db.Model(&models.OrderItem{}).Count(&count)
	assert.Zero(t, count, "failed attempts must not leave items behind")
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	other := testutil.CreateRestaurant(t, f.db, "ร้านอื่น")
	foreignMenu := testutil.CreateMenu(t, f.db, other.ID, "ข้าวผัด", "60")
	foreignTable := testutil.CreateTable(t, f.db, other.ID, "A1")
	require.NoError(t, f.db.Model(f.thaiTea).Update("is_available", false).Error)
	tooHigh := decimal.NewFromInt(21)
	ctx := context.Background()

	cases := map[string]CreateInput{
		"no items":       {RestaurantID: f.restaurant.ID},
		"zero quantity":  {RestaurantID: f.restaurant.ID, Items: []ItemInput{{MenuID: f.padThai.ID, Quantity: 0}}},
		"unavailable":    {RestaurantID: f.restaurant.ID, Items: []ItemInput{{MenuID: f.thaiTea.ID, Quantity: 1}}},
		"foreign menu":   {RestaurantID: f.restaurant.ID, Items: []ItemInput{{MenuID: foreignMenu.ID, Quantity: 1}}},
		"foreign table":  {RestaurantID: f.restaurant.ID, TableID: &foreignTable.ID, Items: []ItemInput{{MenuID: f.padThai.ID, Quantity: 1}}},
		"rate too high":  {RestaurantID: f.restaurant.ID, TaxRate: &tooHigh, Items: []ItemInput{{MenuID: f.padThai.ID, Quantity: 1}}},
		"payment method": {RestaurantID: f.restaurant.ID, PaymentMethod: "BITCOIN", Items: []ItemInput{{MenuID: f.padThai.ID, Quantity: 1}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, in)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation), "got %v", err)
		})
	}

	_, err := f.svc.Create(ctx, CreateInput{RestaurantID: f.restaurant.ID})
	assert.Equal(t, "order must have at least one item", apperr.From(err).Message)

	var count int64
	f.db.Model(&models.Order{}).Count(&count)
	assert.Zero(t, count)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)

	_, err := f.svc.UpdateStatus(context.Background(), f.restaurant.ID, o.ID, "DELIVERED", f.user.ID, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	var stored models.Order
	require.NoError(t, f.db.First(&stored, o.ID).Error)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestCancelAfterReadyIsRejected(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)
	ctx := context.Background()

	for _, s := range []models.OrderStatus{models.StatusConfirmed, models.StatusCooking, models.StatusReady} {
		_, err := f.svc.UpdateStatus(ctx, f.restaurant.ID, o.ID, s, f.user.ID, "")
		require.NoError(t, err)
	}
	_, err := f.svc.UpdateStatus(ctx, f.restaurant.ID, o.ID, models.StatusCancelled, f.user.ID, "guest left")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, "INVALID_TRANSITION", apperr.From(err).Code)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, o.ID).Error)
	assert.Equal(t, models.StatusReady, stored.Status)

	var history int64
	f.db.Model(&models.OrderStatusHistory{}).Where("order_id = ?", o.ID).Count(&history)
	assert.EqualValues(t, 4, history)
}

func TestCancelWhileCooking(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)
	_, err := f.svc.UpdateStatus(context.Background(), f.restaurant.ID, o.ID, models.StatusCooking, f.user.ID, "")
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(context.Background(), f.restaurant.ID, o.ID, models.StatusCancelled, f.user.ID, "out of noodles")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestPaidSettlesPayment(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)

	got, err := f.svc.UpdateStatus(context.Background(), f.restaurant.ID, o.ID, models.StatusPaid, f.user.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	require.NotNil(t, got.PaidAt)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, o.ID).Error)
	assert.Equal(t, models.StatusPaid, stored.Status)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	assert.NotNil(t, stored.PaidAt)

	assert.Equal(t, []string{events.OrderCreated, events.OrderStatusChanged}, f.events.types())
	assert.Equal(t, "PENDING", f.events.events[1].PreviousStatus)
}

func TestOrdersAreTenantScoped(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)
	other := testutil.CreateRestaurant(t, f.db, "ร้านอื่น")
	ctx := context.Background()

	_, err := f.svc.Get(ctx, other.ID, o.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
	_, err = f.svc.UpdateStatus(ctx, other.ID, o.ID, models.StatusConfirmed, 0, "")
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))
	_, err = f.svc.UpdatePayment(ctx, other.ID, o.ID, models.PaymentPaid, "")
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	_, err = f.svc.Get(ctx, f.restaurant.ID, o.ID+100)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	got, err := f.svc.Get(ctx, f.restaurant.ID, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
	assert.Len(t, got.StatusHistory, 1)
}

func TestUpdatePayment(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)
	ctx := context.Background()

	_, err := f.svc.UpdatePayment(ctx, f.restaurant.ID, o.ID, "SETTLED", "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	got, err := f.svc.UpdatePayment(ctx, f.restaurant.ID, o.ID, models.PaymentPaid, models.PaymentCard)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCard, got.PaymentMethod)
	assert.NotNil(t, got.PaidAt)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, o.ID).Error)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, models.StatusPending, stored.Status, "payment does not move the kitchen status")
}

func TestListAndDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t)
	f.create(t)
	_, err := f.svc.UpdateStatus(ctx, f.restaurant.ID, a.ID, models.StatusPaid, f.user.ID, "")
	require.NoError(t, err)

	all, err := f.svc.List(ctx, f.restaurant.ID, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	paid, err := f.svc.List(ctx, f.restaurant.ID, ListFilter{Status: models.StatusPaid, Day: day})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, a.ID, paid[0].ID)

	_, err = f.svc.List(ctx, f.restaurant.ID, ListFilter{Status: "nope"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	d, err := f.svc.Dashboard(ctx, f.restaurant.ID, day)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-15", d.Date)
	assert.Equal(t, 2, d.TotalOrders)
	assert.Equal(t, 1, d.PaidOrders)
	assert.Equal(t, 1, d.OpenOrders)
	assert.Equal(t, 1, d.ByStatus[models.StatusPending])
	assert.Equal(t, "263.25", d.PaidRevenue.StringFixed(2))
}

func TestPromptPayPayload(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)

	payload, got, err := f.svc.PromptPayPayload(context.Background(), f.restaurant.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Contains(t, payload, "5406263.25")

	require.NoError(t, f.db.Model(f.restaurant).Update("prompt_pay_id", "").Error)
	_, _, err = f.svc.PromptPayPayload(context.Background(), f.restaurant.ID, o.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
