package models

import "time"

// PasswordResetToken is a single-use capability to set a new password.
type PasswordResetToken struct {
	ID        uint       `gorm:"primaryKey"`
	Token     string     `gorm:"uniqueIndex;size:128;not null"`
	UserID    uint       `gorm:"index;not null"`
	ExpiresAt time.Time  `gorm:"index;not null"`
	Used      bool       `gorm:"not null;default:false"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsValid reports whether the token can still be redeemed at now.
func (t PasswordResetToken) IsValid(now time.Time) bool {
	return !t.Used && t.ExpiresAt.After(now)
}

// EmailVerificationToken is a single-use capability to confirm an email address.
type EmailVerificationToken struct {
	ID        uint       `gorm:"primaryKey"`
	Token     string     `gorm:"uniqueIndex;size:128;not null"`
	UserID    uint       `gorm:"index;not null"`
	ExpiresAt time.Time  `gorm:"index;not null"`
	Used      bool       `gorm:"not null;default:false"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (t EmailVerificationToken) IsValid(now time.Time) bool {
	return !t.Used && t.ExpiresAt.After(now)
}

// RefreshTokenBlacklist holds revoked refresh tokens until their own expiry.
type RefreshTokenBlacklist struct {
	ID        uint      `gorm:"primaryKey"`
	Token     string    `gorm:"uniqueIndex;size:512;not null"`
	UserID    uint      `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

func (RefreshTokenBlacklist) TableName() string { return "refresh_token_blacklist" }
