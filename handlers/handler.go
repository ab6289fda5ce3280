// Package handlers holds the gin handlers. Handlers bind and validate the
// request, call a service and render a view; failures are attached with
// c.Error and rendered by middleware.ErrorHandler.
package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/auth"
	"github.com/tobylas-w/ThaiTable-sub000/models"
	"github.com/tobylas-w/ThaiTable-sub000/orders"
	"github.com/tobylas-w/ThaiTable-sub000/storage"
)

// Handler carries the dependencies shared by every endpoint.
type Handler struct {
	DB     *gorm.DB
	Auth   *auth.Service
	Orders *orders.Service
	Images storage.ImageStore
}

func New(db *gorm.DB, authSvc *auth.Service, orderSvc *orders.Service, images storage.ImageStore) *Handler {
	return &Handler{DB: db, Auth: authSvc, Orders: orderSvc, Images: images}
}

// fail attaches err for the error middleware.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func idParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validationf("invalid %s", name)
	}
	return uint(id), nil
}

// restaurantParam is safe to call behind middleware.RequireRestaurantParam.
func restaurantParam(c *gin.Context) uint {
	id, _ := strconv.ParseUint(c.Param("restaurantId"), 10, 64)
	return uint(id)
}

func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, apperr.Validation("date must be YYYY-MM-DD")
	}
	return d, nil
}

// ── Views ────────────────────────────────────────────────────────────────────

type userView struct {
	ID              uint            `json:"id"`
	Email           string          `json:"email"`
	Role            models.UserRole `json:"role"`
	RestaurantID    uint            `json:"restaurant_id"`
	NameTH          string          `json:"name_th"`
	NameEN          string          `json:"name_en"`
	IsEmailVerified bool            `json:"is_email_verified"`
	LastLoginAt     *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func newUserView(u *models.User) userView {
	return userView{
		ID:              u.ID,
		Email:           u.Email,
		Role:            u.Role,
		RestaurantID:    u.RestaurantID,
		NameTH:          u.NameTH,
		NameEN:          u.NameEN,
		IsEmailVerified: u.IsEmailVerified,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
	}
}

type menuView struct {
	ID          uint      `json:"id"`
	CategoryID  *uint     `json:"category_id"`
	NameTH      string    `json:"name_th"`
	NameEN      string    `json:"name_en"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	ImageURL    string    `json:"image_url,omitempty"`
	IsAvailable bool      `json:"is_available"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newMenuView(m *models.Menu) menuView {
	return menuView{
		ID:          m.ID,
		CategoryID:  m.CategoryID,
		NameTH:      m.NameTH,
		NameEN:      m.NameEN,
		Description: m.Description,
		Price:       m.Price.StringFixed(2),
		ImageURL:    m.ImageURL,
		IsAvailable: m.IsAvailable,
		UpdatedAt:   m.UpdatedAt,
	}
}

type orderItemView struct {
	ID         uint   `json:"id"`
	MenuID     uint   `json:"menu_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
	TotalPrice string `json:"total_price"`
	Notes      string `json:"notes,omitempty"`
}

type orderView struct {
	ID               uint                        `json:"id"`
	RestaurantID     uint                        `json:"restaurant_id"`
	TableID          *uint                       `json:"table_id"`
	TableNumber      string                      `json:"table_number,omitempty"`
	OrderNumber      string                      `json:"order_number"`
	CustomerName     string                      `json:"customer_name,omitempty"`
	CustomerPhone    string                      `json:"customer_phone,omitempty"`
	Status           models.OrderStatus          `json:"status"`
	PaymentStatus    models.PaymentStatus        `json:"payment_status"`
	PaymentMethod    models.PaymentMethod        `json:"payment_method"`
	Subtotal         string                      `json:"subtotal"`
	ServiceChargePct string                      `json:"service_charge_percentage"`
	ServiceCharge    string                      `json:"service_charge"`
	TaxRate          string                      `json:"tax_rate"`
	Tax              string                      `json:"tax"`
	Total            string                      `json:"total"`
	Notes            string                      `json:"notes,omitempty"`
	PaidAt           *time.Time                  `json:"paid_at,omitempty"`
	Items            []orderItemView             `json:"items"`
	StatusHistory    []models.OrderStatusHistory `json:"status_history,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

func newOrderView(o *models.Order) orderView {
	v := orderView{
		ID:               o.ID,
		RestaurantID:     o.RestaurantID,
		TableID:          o.TableID,
		OrderNumber:      o.OrderNumber,
		CustomerName:     o.CustomerName,
		CustomerPhone:    o.CustomerPhone,
		Status:           o.Status,
		PaymentStatus:    o.PaymentStatus,
		PaymentMethod:    o.PaymentMethod,
		Subtotal:         o.Subtotal.StringFixed(2),
		ServiceChargePct: o.ServiceChargePct.StringFixed(2),
		ServiceCharge:    o.ServiceCharge.StringFixed(2),
		TaxRate:          o.TaxRate.StringFixed(2),
		Tax:              o.Tax.StringFixed(2),
		Total:            o.Total.StringFixed(2),
		Notes:            o.Notes,
		PaidAt:           o.PaidAt,
		Items:            make([]orderItemView, 0, len(o.Items)),
		StatusHistory:    o.StatusHistory,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	if o.Table != nil {
		v.TableNumber = o.Table.Number
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, orderItemView{
			ID:         it.ID,
			MenuID:     it.MenuID,
			Name:       it.Name,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice.StringFixed(2),
			TotalPrice: it.TotalPrice.StringFixed(2),
			Notes:      it.Notes,
		})
	}
	return v
}
