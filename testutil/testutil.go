// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tobylas-w/ThaiTable-sub000/config"
	"github.com/tobylas-w/ThaiTable-sub000/models"
)

const (
	AccessSecret  = "test-access-secret-0123456789abcdef"
	RefreshSecret = "test-refresh-secret-0123456789abcdef"
	Password      = "s3cret-pass"
)

var dbSeq atomic.Int64

// NewDB returns a migrated, isolated in-memory SQLite database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.AutoMigrate(db))
	return db
}

// Config returns a valid configuration for tests.
func Config() *config.Config {
	cfg := config.Default()
	cfg.Env = "test"
	cfg.AccessTokenSecret = AccessSecret
	cfg.RefreshTokenSecret = RefreshSecret
	return cfg
}

func CreateRestaurant(t testing.TB, db *gorm.DB, name string) *models.Restaurant {
	t.Helper()
	r := &models.Restaurant{NameTH: name, NameEN: name, IsActive: true, PromptPayID: "0812345678"}
	require.NoError(t, db.Create(r).Error)
	return r
}

// CreateUser inserts a verified user whose password is Password.
func CreateUser(t testing.TB, db *gorm.DB, restaurantID uint, email string, role models.UserRole) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{
		Email:           email,
		PasswordHash:    string(hash),
		Role:            role,
		RestaurantID:    restaurantID,
		NameEN:          email,
		IsEmailVerified: true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func CreateMenu(t testing.TB, db *gorm.DB, restaurantID uint, name, price string) *models.Menu {
	t.Helper()
	m := &models.Menu{
		RestaurantID: restaurantID,
		NameTH:       name,
		NameEN:       name,
		Price:        decimal.RequireFromString(price),
		IsAvailable:  true,
	}
	require.NoError(t, db.Create(m).Error)
	return m
}

func CreateTable(t testing.TB, db *gorm.DB, restaurantID uint, number string) *models.Table {
	t.Helper()
	tbl := &models.Table{RestaurantID: restaurantID, Number: number, Seats: 4, Status: models.TableAvailable}
	require.NoError(t, db.Create(tbl).Error)
	return tbl
}
