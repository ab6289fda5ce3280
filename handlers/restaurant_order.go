package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/middleware"
	"github.com/tobylas-w/ThaiTable-sub000/models"
	"github.com/tobylas-w/ThaiTable-sub000/orders"
	"github.com/tobylas-w/ThaiTable-sub000/statemachine"
)

// PlaceOrderRequest leaves an empty order_items list to the order service,
// which rejects it with its own message.
type PlaceOrderRequest struct {
	RestaurantID     uint                 `json:"restaurant_id" binding:"required"`
	UserID           *uint                `json:"user_id"`
	TableID          *uint                `json:"table_id"`
	CustomerName     string               `json:"customer_name" binding:"max=255"`
	CustomerPhone    string               `json:"customer_phone" binding:"max=32"`
	Notes            string               `json:"notes"`
	PaymentMethod    models.PaymentMethod `json:"payment_method" binding:"omitempty,oneof=CASH CARD PROMPTPAY TRANSFER"`
	ServiceChargePct *decimal.Decimal     `json:"service_charge_percentage"`
	TaxRate          *decimal.Decimal     `json:"tax_rate"`
	OrderItems       []struct {
		MenuID   uint   `json:"menu_id" binding:"required"`
		Quantity int    `json:"quantity" binding:"required,min=1"`
		Notes    string `json:"notes"`
	} `json:"order_items" binding:"dive"`
}

// PlaceOrder creates an order for the caller's own restaurant
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	id := middleware.CurrentIdentity(c)
	if !id.CanAccessRestaurant(req.RestaurantID) {
		fail(c, apperr.Forbidden("you do not have access to this restaurant"))
		return
	}
	// user_id is optional; when sent it must name the caller
	if req.UserID != nil && *req.UserID != id.UserID() {
		fail(c, apperr.Forbidden("user_id does not match the authenticated user"))
		return
	}

	in := orders.CreateInput{
		RestaurantID:     req.RestaurantID,
		TableID:          req.TableID,
		CustomerName:     req.CustomerName,
		CustomerPhone:    req.CustomerPhone,
		Notes:            req.Notes,
		PaymentMethod:    req.PaymentMethod,
		ServiceChargePct: req.ServiceChargePct,
		TaxRate:          req.TaxRate,
		CreatedBy:        id.UserID(),
	}
	for _, it := range req.OrderItems {
		in.Items = append(in.Items, orders.ItemInput{MenuID: it.MenuID, Quantity: it.Quantity, Notes: it.Notes})
	}
	order, err := h.Orders.Create(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Order created", "order": newOrderView(order)})
}

// GetOrderDetail returns an order with items and status history
func (h *Handler) GetOrderDetail(c *gin.Context) {
	orderID, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	order, err := h.Orders.Get(c.Request.Context(), callerRestaurant(c), orderID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"order":             newOrderView(order),
		"valid_next_states": validNext(order.Status),
	})
}

// GetRestaurantOrders lists a restaurant's orders, newest first
func (h *Handler) GetRestaurantOrders(c *gin.Context) {
	day, err := parseDay(c.Query("date"))
	if err != nil {
		fail(c, err)
		return
	}
	var page struct {
		Limit  int `form:"limit" binding:"min=0,max=200"`
		Offset int `form:"offset" binding:"min=0"`
	}
	if err := c.ShouldBindQuery(&page); err != nil {
		fail(c, err)
		return
	}
	list, err := h.Orders.List(c.Request.Context(), restaurantParam(c), orders.ListFilter{
		Status: models.OrderStatus(c.Query("status")),
		Day:    day,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		fail(c, err)
		return
	}

	// Group counts by status for the page shown
	summary := map[models.OrderStatus]int{}
	views := make([]orderView, len(list))
	for i := range list {
		summary[list[i].Status]++
		views[i] = newOrderView(&list[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"order_summary": summary,
		"count":         len(views),
		"orders":        views,
	})
}

type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Note   string             `json:"note"`
}

// UpdateOrderStatus moves an order through its lifecycle
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	orderID, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	id := middleware.CurrentIdentity(c)
	order, err := h.Orders.UpdateStatus(c.Request.Context(), callerRestaurant(c), orderID, req.Status, id.UserID(), req.Note)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"message":           "Order status updated",
		"order":             newOrderView(order),
		"valid_next_states": validNext(order.Status),
	})
}

type UpdatePaymentRequest struct {
	PaymentStatus models.PaymentStatus `json:"payment_status" binding:"required"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
}

func (h *Handler) UpdatePayment(c *gin.Context) {
	orderID, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	var req UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	order, err := h.Orders.UpdatePayment(c.Request.Context(), callerRestaurant(c), orderID, req.PaymentStatus, req.PaymentMethod)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment updated", "order": newOrderView(order)})
}

// PromptPayQR returns the PromptPay payload a QR code is rendered from
func (h *Handler) PromptPayQR(c *gin.Context) {
	orderID, err := idParam(c, "id")
	if err != nil {
		fail(c, err)
		return
	}
	payload, order, err := h.Orders.PromptPayPayload(c.Request.Context(), callerRestaurant(c), orderID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"payload":      payload,
		"amount":       order.Total.StringFixed(2),
		"order_number": order.OrderNumber,
	})
}

func callerRestaurant(c *gin.Context) uint {
	user, ok := middleware.CurrentIdentity(c).User()
	if !ok {
		return 0
	}
	return user.RestaurantID
}

func validNext(s models.OrderStatus) []models.OrderStatus {
	next := statemachine.ValidTransitionsFrom(s)
	if next == nil {
		return []models.OrderStatus{}
	}
	return next
}
