package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/middleware"
	"github.com/tobylas-w/ThaiTable-sub000/models"
	"github.com/tobylas-w/ThaiTable-sub000/statemachine"
)

// PublicMenu returns a restaurant's menu for diners. Anonymous callers and
// staff of other restaurants see available items only; the restaurant's
// own staff see everything.
func (h *Handler) PublicMenu(c *gin.Context) {
	restaurantID, err := idParam(c, "restaurantId")
	if err != nil {
		fail(c, err)
		return
	}
	var restaurant models.Restaurant
	err = h.DB.WithContext(c.Request.Context()).
		Where("id = ? AND is_active = ?", restaurantID, true).
		First(&restaurant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, apperr.NotFound("restaurant not found"))
		return
	}
	if err != nil {
		fail(c, apperr.Database(err, "failed to load restaurant"))
		return
	}

	ownStaff := middleware.CurrentIdentity(c).CanAccessRestaurant(restaurantID)
	items, err := h.menuItems(c, restaurantID, !ownStaff)
	if err != nil {
		fail(c, err)
		return
	}
	var cats []models.MenuCategory
	q := h.DB.WithContext(c.Request.Context()).Where("restaurant_id = ?", restaurantID)
	if !ownStaff {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Order("sort_order").Order("id").Find(&cats).Error; err != nil {
		fail(c, apperr.Database(err, "failed to load categories"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"restaurant": gin.H{
			"id":      restaurant.ID,
			"name_th": restaurant.NameTH,
			"name_en": restaurant.NameEN,
			"address": restaurant.Address,
			"phone":   restaurant.Phone,
		},
		"categories": cats,
		"count":      len(items),
		"menu":       items,
	})
}

// GetStateMachineInfo returns the order lifecycle for informational purposes
func (h *Handler) GetStateMachineInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"transitions":     statemachine.GetAllTransitions(),
		"terminal_states": statemachine.TerminalStates(),
		"note":            "Any other move between known states is accepted. Cancellation is allowed only before the food is READY.",
	})
}
