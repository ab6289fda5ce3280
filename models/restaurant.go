package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Restaurant struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	NameTH      string    `json:"name_th" gorm:"not null"`
	NameEN      string    `json:"name_en"`
	Address     string    `json:"address"`
	Phone       string    `json:"phone"`
	PromptPayID string    `json:"promptpay_id"`
	TaxID       string    `json:"tax_id"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableStatus is the floor state of a dining table.
type TableStatus string

const (
	TableAvailable TableStatus = "AVAILABLE"
	TableOccupied  TableStatus = "OCCUPIED"
	TableReserved  TableStatus = "RESERVED"
	TableCleaning  TableStatus = "CLEANING"
)

func (s TableStatus) Valid() bool {
	switch s {
	case TableAvailable, TableOccupied, TableReserved, TableCleaning:
		return true
	}
	return false
}

type Table struct {
	ID           uint        `json:"id" gorm:"primaryKey"`
	RestaurantID uint        `json:"restaurant_id" gorm:"not null;uniqueIndex:idx_restaurant_table_number"`
	Number       string      `json:"number" gorm:"size:32;not null;uniqueIndex:idx_restaurant_table_number"`
	Seats        int         `json:"seats"`
	Status       TableStatus `json:"status" gorm:"size:16;not null;default:'AVAILABLE'"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type MenuCategory struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	RestaurantID uint      `json:"restaurant_id" gorm:"index;not null"`
	NameTH       string    `json:"name_th" gorm:"not null"`
	NameEN       string    `json:"name_en"`
	SortOrder    int       `json:"sort_order"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Menu struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	RestaurantID uint            `json:"restaurant_id" gorm:"index;not null"`
	CategoryID   *uint           `json:"category_id" gorm:"index"`
	Category     *MenuCategory   `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	NameTH       string          `json:"name_th" gorm:"not null"`
	NameEN       string          `json:"name_en"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	ImageURL     string          `json:"image_url"`
	ImageKey     string          `json:"-"`
	IsAvailable  bool            `json:"is_available"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
