package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/logger"
	"github.com/tobylas-w/ThaiTable-sub000/models"
)

// MaxImageSize bounds menu image uploads.
const MaxImageSize = 5 << 20

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ── Categories ───────────────────────────────────────────────────────────────

type CategoryRequest struct {
	NameTH    string `json:"name_th" binding:"required"`
	NameEN    string `json:"name_en"`
	SortOrder int    `json:"sort_order"`
	IsActive  *bool  `json:"is_active"`
}

func (h *Handler) ListCategories(c *gin.Context) {
	var cats []models.MenuCategory
	err := h.DB.WithContext(c.Request.Context()).
		Where("restaurant_id = ?", restaurantParam(c)).
		Order("sort_order").Order("id").
		Find(&cats).Error
	if err != nil {
		fail(c, apperr.Database(err, "failed to list categories"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(cats), "categories": cats})
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	cat := models.MenuCategory{
		RestaurantID: restaurantParam(c),
		NameTH:       req.NameTH,
		NameEN:       req.NameEN,
		SortOrder:    req.SortOrder,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(&cat).Error; err != nil {
		fail(c, apperr.Database(err, "failed to create category"))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Category created", "category": cat})
}

func (h *Handler) UpdateCategory(c *gin.Context) {
	cat, err := h.loadCategory(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	update := map[string]any{"name_th": req.NameTH, "name_en": req.NameEN, "sort_order": req.SortOrder}
	setIf(update, "is_active", req.IsActive)
	if err := h.DB.WithContext(c.Request.Context()).Model(cat).Updates(update).Error; err != nil {
		fail(c, apperr.Database(err, "failed to update category"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Category updated", "category": cat})
}

// DeleteCategory detaches the category's menu items before removing it.
func (h *Handler) DeleteCategory(c *gin.Context) {
	cat, err := h.loadCategory(c)
	if err != nil {
		fail(c, err)
		return
	}
	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Menu{}).Where("category_id = ?", cat.ID).Update("category_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(cat).Error
	})
	if err != nil {
		fail(c, apperr.Database(err, "failed to delete category"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Category deleted"})
}

func (h *Handler) loadCategory(c *gin.Context) (*models.MenuCategory, error) {
	id, err := idParam(c, "id")
	if err != nil {
		return nil, err
	}
	var cat models.MenuCategory
	err = h.DB.WithContext(c.Request.Context()).
		Where("id = ? AND restaurant_id = ?", id, restaurantParam(c)).
		First(&cat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("category not found")
	}
	if err != nil {
		return nil, apperr.Database(err, "failed to load category")
	}
	return &cat, nil
}

// ── Menu Management ─────────────────────────────────────────────────────────

type MenuRequest struct {
	CategoryID  *uint           `json:"category_id"`
	NameTH      string          `json:"name_th" binding:"required"`
	NameEN      string          `json:"name_en"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable *bool           `json:"is_available"`
}

func (h *Handler) validateMenu(c *gin.Context, req *MenuRequest) error {
	if !req.Price.IsPositive() {
		return apperr.New(apperr.KindValidation, "INVALID_INPUT", "price must be greater than 0")
	}
	if req.Price.Exponent() < -2 {
		return apperr.Validation("price must have at most 2 decimal places")
	}
	if req.CategoryID != nil {
		var n int64
		err := h.DB.WithContext(c.Request.Context()).Model(&models.MenuCategory{}).
			Where("id = ? AND restaurant_id = ?", *req.CategoryID, restaurantParam(c)).
			Count(&n).Error
		if err != nil {
			return apperr.Database(err, "failed to check category")
		}
		if n == 0 {
			return apperr.Validationf("category %d does not exist", *req.CategoryID)
		}
	}
	return nil
}

// ListMenu returns every menu item of the restaurant, available or not
func (h *Handler) ListMenu(c *gin.Context) {
	items, err := h.menuItems(c, restaurantParam(c), false)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(items), "menu": items})
}

// AddMenuItem adds a new item to the restaurant's menu
func (h *Handler) AddMenuItem(c *gin.Context) {
	var req MenuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if err := h.validateMenu(c, &req); err != nil {
		fail(c, err)
		return
	}
	item := models.Menu{
		RestaurantID: restaurantParam(c),
		CategoryID:   req.CategoryID,
		NameTH:       req.NameTH,
		NameEN:       req.NameEN,
		Description:  req.Description,
		Price:        req.Price,
		IsAvailable:  req.IsAvailable == nil || *req.IsAvailable,
	}
	if err := h.DB.WithContext(c.Request.Context()).Create(&item).Error; err != nil {
		fail(c, apperr.Database(err, "failed to add menu item"))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Menu item added", "item": newMenuView(&item)})
}

// UpdateMenuItem replaces a menu item's editable fields. Past orders keep
// their price snapshot.
func (h *Handler) UpdateMenuItem(c *gin.Context) {
	item, err := h.loadMenu(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req MenuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if err := h.validateMenu(c, &req); err != nil {
		fail(c, err)
		return
	}
	update := map[string]any{
		"category_id": req.CategoryID,
		"name_th":     req.NameTH,
		"name_en":     req.NameEN,
		"description": req.Description,
		"price":       req.Price,
	}
	setIf(update, "is_available", req.IsAvailable)
	if err := h.DB.WithContext(c.Request.Context()).Model(item).Updates(update).Error; err != nil {
		fail(c, apperr.Database(err, "failed to update menu item"))
		return
	}
	item.CategoryID = req.CategoryID
	item.NameTH, item.NameEN, item.Description = req.NameTH, req.NameEN, req.Description
	item.Price = req.Price
	if req.IsAvailable != nil {
		item.IsAvailable = *req.IsAvailable
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Menu item updated", "item": newMenuView(item)})
}

// DeleteMenuItem removes a menu item and its image
func (h *Handler) DeleteMenuItem(c *gin.Context) {
	item, err := h.loadMenu(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.DB.WithContext(c.Request.Context()).Delete(item).Error; err != nil {
		fail(c, apperr.Database(err, "failed to delete menu item"))
		return
	}
	h.deleteImage(c, item.ImageKey)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Menu item deleted"})
}

// UploadMenuImage stores the multipart "image" file and points the menu
// item at it. The previous image is removed afterwards.
func (h *Handler) UploadMenuImage(c *gin.Context) {
	item, err := h.loadMenu(c)
	if err != nil {
		fail(c, err)
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, apperr.Validation("image file is required"))
		return
	}
	if fh.Size > MaxImageSize {
		fail(c, apperr.Validationf("image must be at most %d MB", MaxImageSize>>20))
		return
	}
	contentType := strings.ToLower(fh.Header.Get("Content-Type"))
	ext, ok := imageTypes[contentType]
	if !ok {
		fail(c, apperr.Validation("image must be JPEG, PNG or WebP"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	defer f.Close()

	key := path.Join("restaurants", fmt.Sprint(item.RestaurantID), "menu",
		fmt.Sprintf("%d-%s%s", item.ID, uuid.NewString(), ext))
	url, err := h.Images.Put(c.Request.Context(), key, f, contentType)
	if err != nil {
		fail(c, apperr.Internal(fmt.Errorf("store image: %w", err)))
		return
	}

	oldKey := item.ImageKey
	err = h.DB.WithContext(c.Request.Context()).Model(item).
		Updates(map[string]any{"image_url": url, "image_key": key}).Error
	if err != nil {
		h.deleteImage(c, key)
		fail(c, apperr.Database(err, "failed to save image"))
		return
	}
	item.ImageURL, item.ImageKey = url, key
	h.deleteImage(c, oldKey)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Image uploaded", "item": newMenuView(item)})
}

func (h *Handler) deleteImage(c *gin.Context, key string) {
	if key == "" {
		return
	}
	if err := h.Images.Delete(c.Request.Context(), key); err != nil {
		logger.FromContext(c.Request.Context()).Warn("failed to delete menu image", "key", key, "error", err)
	}
}

func (h *Handler) loadMenu(c *gin.Context) (*models.Menu, error) {
	id, err := idParam(c, "id")
	if err != nil {
		return nil, err
	}
	var m models.Menu
	err = h.DB.WithContext(c.Request.Context()).
		Where("id = ? AND restaurant_id = ?", id, restaurantParam(c)).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("menu item not found")
	}
	if err != nil {
		return nil, apperr.Database(err, "failed to load menu item")
	}
	return &m, nil
}

func (h *Handler) menuItems(c *gin.Context, restaurantID uint, availableOnly bool) ([]menuView, error) {
	q := h.DB.WithContext(c.Request.Context()).Where("restaurant_id = ?", restaurantID)
	if availableOnly {
		q = q.Where("is_available = ?", true)
	}
	// optional category filter
	if cat := c.Query("category_id"); cat != "" {
		q = q.Where("category_id = ?", cat)
	}
	var items []models.Menu
	if err := q.Order("category_id").Order("id").Find(&items).Error; err != nil {
		return nil, apperr.Database(err, "failed to load menu")
	}
	out := make([]menuView, len(items))
	for i := range items {
		out[i] = newMenuView(&items[i])
	}
	return out, nil
}
