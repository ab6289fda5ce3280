package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/auth"
	"github.com/tobylas-w/ThaiTable-sub000/models"
	"github.com/tobylas-w/ThaiTable-sub000/promptpay"
)

// onePaisa is used to validate a PromptPay id by building a throwaway payload.
var onePaisa = decimal.New(1, -2)

// ── Restaurant Management ────────────────────────────────────────────────────

type CreateRestaurantRequest struct {
	NameTH      string `json:"name_th" binding:"required"`
	NameEN      string `json:"name_en"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	PromptPayID string `json:"promptpay_id"`
	TaxID       string `json:"tax_id"`
	Owner       struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8,max=72"`
		NameTH   string `json:"name_th" binding:"required"`
		NameEN   string `json:"name_en"`
	} `json:"owner"`
}

// CreateRestaurant onboards a restaurant together with its owner account
func (h *Handler) CreateRestaurant(c *gin.Context) {
	var req CreateRestaurantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if req.PromptPayID != "" {
		if _, err := promptpay.Payload(req.PromptPayID, onePaisa); err != nil {
			fail(c, apperr.Validation("promptpay_id must be a phone number, tax id or e-wallet id"))
			return
		}
	}
	restaurant, session, err := h.Auth.RegisterRestaurant(c.Request.Context(), auth.RestaurantSignupInput{
		NameTH:      req.NameTH,
		NameEN:      req.NameEN,
		Address:     req.Address,
		Phone:       req.Phone,
		PromptPayID: req.PromptPayID,
		TaxID:       req.TaxID,
		Owner: auth.RegisterInput{
			Email:    req.Owner.Email,
			Password: req.Owner.Password,
			NameTH:   req.Owner.NameTH,
			NameEN:   req.Owner.NameEN,
		},
	})
	if err != nil {
		fail(c, err)
		return
	}
	body := sessionBody("Restaurant created", session)
	body["restaurant"] = restaurant
	c.JSON(http.StatusCreated, body)
}

func (h *Handler) GetRestaurant(c *gin.Context) {
	restaurant, err := h.loadRestaurant(c)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "restaurant": restaurant})
}

type UpdateRestaurantRequest struct {
	NameTH      *string `json:"name_th" binding:"omitempty,min=1"`
	NameEN      *string `json:"name_en"`
	Address     *string `json:"address"`
	Phone       *string `json:"phone"`
	PromptPayID *string `json:"promptpay_id"`
	TaxID       *string `json:"tax_id"`
	IsActive    *bool   `json:"is_active"`
}

// UpdateRestaurant changes only the fields present in the body.
func (h *Handler) UpdateRestaurant(c *gin.Context) {
	restaurant, err := h.loadRestaurant(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req UpdateRestaurantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	update := map[string]any{}
	setIf(update, "name_th", req.NameTH)
	setIf(update, "name_en", req.NameEN)
	setIf(update, "address", req.Address)
	setIf(update, "phone", req.Phone)
	setIf(update, "tax_id", req.TaxID)
	setIf(update, "is_active", req.IsActive)
	if req.PromptPayID != nil {
		if *req.PromptPayID != "" {
			if _, err := promptpay.Payload(*req.PromptPayID, onePaisa); err != nil {
				fail(c, apperr.Validation("promptpay_id must be a phone number, tax id or e-wallet id"))
				return
			}
		}
		update["prompt_pay_id"] = *req.PromptPayID
	}
	if len(update) > 0 {
		if err := h.DB.WithContext(c.Request.Context()).Model(restaurant).Updates(update).Error; err != nil {
			fail(c, apperr.Database(err, "failed to update restaurant"))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Restaurant updated", "restaurant": restaurant})
}

// Dashboard summarises the day given by ?date=YYYY-MM-DD (default today)
func (h *Handler) Dashboard(c *gin.Context) {
	day, err := parseDay(c.Query("date"))
	if err != nil {
		fail(c, err)
		return
	}
	d, err := h.Orders.Dashboard(c.Request.Context(), restaurantParam(c), day)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"date":          d.Date,
		"total_orders":  d.TotalOrders,
		"by_status":     d.ByStatus,
		"open_orders":   d.OpenOrders,
		"paid_orders":   d.PaidOrders,
		"paid_revenue":  d.PaidRevenue.StringFixed(2),
		"average_order": d.AverageOrder.StringFixed(2),
	})
}

func (h *Handler) loadRestaurant(c *gin.Context) (*models.Restaurant, error) {
	var r models.Restaurant
	if err := h.DB.WithContext(c.Request.Context()).First(&r, restaurantParam(c)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("restaurant not found")
		}
		return nil, apperr.Database(err, "failed to load restaurant")
	}
	return &r, nil
}

func setIf[T any](m map[string]any, column string, v *T) {
	if v != nil {
		m[column] = *v
	}
}
