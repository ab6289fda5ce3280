package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/config"
	"github.com/tobylas-w/ThaiTable-sub000/models"
)

type TableRequest struct {
	Number string `json:"number" binding:"required,max=32"`
	Seats  int    `json:"seats" binding:"min=0"`
}

type TableStatusRequest struct {
	Status models.TableStatus `json:"status" binding:"required,oneof=AVAILABLE OCCUPIED RESERVED CLEANING"`
}

func (h *Handler) ListTables(c *gin.Context) {
	q := h.DB.WithContext(c.Request.Context()).Where("restaurant_id = ?", restaurantParam(c))
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var tables []models.Table
	if err := q.Order("number").Find(&tables).Error; err != nil {
		fail(c, apperr.Database(err, "failed to list tables"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(tables), "tables": tables})
}

func (h *Handler) CreateTable(c *gin.Context) {
	var req TableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	table := models.Table{
		RestaurantID: restaurantParam(c),
		Number:       req.Number,
		Seats:        req.Seats,
		Status:       models.TableAvailable,
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(&table).Error; err != nil {
		fail(c, tableWriteError(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Table created", "table": table})
}

func (h *Handler) UpdateTable(c *gin.Context) {
	table, err := h.loadTable(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req TableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	err = h.DB.WithContext(c.Request.Context()).Model(table).
		Updates(map[string]any{"number": req.Number, "seats": req.Seats}).Error
	if err != nil {
		fail(c, tableWriteError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Table updated", "table": table})
}

// UpdateTableStatus moves a table between floor states
func (h *Handler) UpdateTableStatus(c *gin.Context) {
	table, err := h.loadTable(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req TableStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if err := h.DB.WithContext(c.Request.Context()).Model(table).Update("status", req.Status).Error; err != nil {
		fail(c, apperr.Database(err, "failed to update table"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Table status updated", "table": table})
}

// DeleteTable refuses tables that still have orders attached.
func (h *Handler) DeleteTable(c *gin.Context) {
	table, err := h.loadTable(c)
	if err != nil {
		fail(c, err)
		return
	}
	db := h.DB.WithContext(c.Request.Context())
	var n int64
	if err := db.Model(&models.Order{}).Where("table_id = ?", table.ID).Count(&n).Error; err != nil {
		fail(c, apperr.Database(err, "failed to check table orders"))
		return
	}
	if n > 0 {
		fail(c, apperr.Conflict("TABLE_IN_USE", "table has orders and cannot be deleted"))
		return
	}
	if err := db.Delete(table).Error; err != nil {
		fail(c, apperr.Database(err, "failed to delete table"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Table deleted"})
}

func (h *Handler) loadTable(c *gin.Context) (*models.Table, error) {
	id, err := idParam(c, "id")
	if err != nil {
		return nil, err
	}
	var t models.Table
	err = h.DB.WithContext(c.Request.Context()).
		Where("id = ? AND restaurant_id = ?", id, restaurantParam(c)).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("table not found")
	}
	if err != nil {
		return nil, apperr.Database(err, "failed to load table")
	}
	return &t, nil
}

func tableWriteError(err error) error {
	if config.IsUniqueViolation(err) {
		return apperr.Conflict("TABLE_EXISTS", "a table with this number already exists")
	}
	return apperr.Database(err, "failed to save table")
}
