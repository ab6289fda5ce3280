// Package auth implements identity and session lifecycle: credentials,
// access and refresh tokens, refresh-token revocation, password reset and
// email verification.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/config"
	"github.com/tobylas-w/ThaiTable-sub000/logger"
	mailer "github.com/tobylas-w/ThaiTable-sub000/mail"
	"github.com/tobylas-w/ThaiTable-sub000/metrics"
	"github.com/tobylas-w/ThaiTable-sub000/models"
)

// ForgotPasswordMessage and ResendVerificationMessage are returned whether
// or not the account exists.
const (
	ForgotPasswordMessage     = "If an account with that email exists, a password reset link has been sent"
	ResendVerificationMessage = "If an account with that email exists and is not verified, a verification link has been sent"
)

// Password length bounds for registration and password reset. bcrypt
// refuses to hash more than 72 bytes.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// usedTokenRetention is how long a consumed reset/verification token is kept.
const usedTokenRetention = 24 * time.Hour

var (
	errInvalidCredentials = apperr.Unauthenticated("INVALID_CREDENTIALS", "invalid email or password")
	errUserNotFound       = apperr.Unauthenticated("USER_NOT_FOUND", "user not found")
	errTokenRevoked       = apperr.Unauthenticated("TOKEN_REVOKED", "token has been revoked")
)

type Options struct {
	ResetTokenTTL        time.Duration
	VerificationTokenTTL time.Duration
	FrontendURL          string
	Logger               *slog.Logger
}

// Service owns users, sessions and the persisted token tables.
type Service struct {
	db     *gorm.DB
	tokens *TokenManager
	mail   mailer.Mailer
	log    *slog.Logger

	resetTTL    time.Duration
	verifyTTL   time.Duration
	frontendURL string

	now func() time.Time
}

func NewService(db *gorm.DB, tokens *TokenManager, m mailer.Mailer, opts Options) *Service {
	if opts.ResetTokenTTL <= 0 {
		opts.ResetTokenTTL = time.Hour
	}
	if opts.VerificationTokenTTL <= 0 {
		opts.VerificationTokenTTL = 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		db:          db,
		tokens:      tokens,
		mail:        m,
		log:         opts.Logger,
		resetTTL:    opts.ResetTokenTTL,
		verifyTTL:   opts.VerificationTokenTTL,
		frontendURL: strings.TrimRight(opts.FrontendURL, "/"),
		now:         time.Now,
	}
}

// Tokens exposes the token manager (the middleware verifies with it).
func (s *Service) Tokens() *TokenManager { return s.tokens }

// Session is the result of a successful register or login.
type Session struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type RegisterInput struct {
	Email        string
	Password     string
	NameTH       string
	NameEN       string
	Role         models.UserRole
	RestaurantID uint
}

// Register creates a user in an existing restaurant and sends a
// verification email. Role defaults to STAFF.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = models.RoleStaff
	}
	if !in.Role.Valid() {
		return nil, apperr.Validationf("invalid role %q", in.Role)
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var restaurant models.Restaurant
	if err := db.First(&restaurant, in.RestaurantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("restaurant not found")
		}
		return nil, apperr.Database(err, "failed to load restaurant")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         in.Role,
		RestaurantID: restaurant.ID,
		NameTH:       in.NameTH,
		NameEN:       in.NameEN,
	}
	if err := s.createUser(db, user); err != nil {
		metrics.RecordAuthEvent("register", false)
		return nil, err
	}
	metrics.RecordAuthEvent("register", true)

	if err := s.SendVerification(ctx, user); err != nil {
		logger.FromContext(ctx).Error("verification email failed", "user_id", user.ID, "error", err)
	}
	return s.newSession(user)
}

type RestaurantSignupInput struct {
	NameTH      string
	NameEN      string
	Address     string
	Phone       string
	PromptPayID string
	TaxID       string
	Owner       RegisterInput
}

// RegisterRestaurant creates a restaurant together with its OWNER account.
func (s *Service) RegisterRestaurant(ctx context.Context, in RestaurantSignupInput) (*models.Restaurant, *Session, error) {
	email, err := normalizeEmail(in.Owner.Email)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(in.NameTH) == "" {
		return nil, nil, apperr.Validation("restaurant name_th is required")
	}
	if err := checkPassword(in.Owner.Password); err != nil {
		return nil, nil, err
	}
	hash, err := HashPassword(in.Owner.Password)
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}

	restaurant := &models.Restaurant{
		NameTH:      in.NameTH,
		NameEN:      in.NameEN,
		Address:     in.Address,
		Phone:       in.Phone,
		PromptPayID: in.PromptPayID,
		TaxID:       in.TaxID,
		IsActive:    true,
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleOwner,
		NameTH:       in.Owner.NameTH,
		NameEN:       in.Owner.NameEN,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(restaurant).Error; err != nil {
			return apperr.Database(err, "failed to create restaurant")
		}
		user.RestaurantID = restaurant.ID
		return s.createUser(tx, user)
	})
	if err != nil {
		metrics.RecordAuthEvent("register_restaurant", false)
		return nil, nil, err
	}
	metrics.RecordAuthEvent("register_restaurant", true)

	if err := s.SendVerification(ctx, user); err != nil {
		logger.FromContext(ctx).Error("verification email failed", "user_id", user.ID, "error", err)
	}
	session, err := s.newSession(user)
	if err != nil {
		return nil, nil, err
	}
	return restaurant, session, nil
}

func (s *Service) createUser(db *gorm.DB, user *models.User) error {
	var n int64
	if err := db.Model(&models.User{}).Where("email = ?", user.Email).Count(&n).Error; err != nil {
		return apperr.Database(err, "failed to check email")
	}
	if n > 0 {
		return apperr.Conflict("EMAIL_EXISTS", "email already registered")
	}
	if err := db.Create(user).Error; err != nil {
		if config.IsUniqueViolation(err) {
			return apperr.Conflict("EMAIL_EXISTS", "email already registered")
		}
		return apperr.Database(err, "failed to create user")
	}
	return nil
}

// Login checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Database(err, "failed to load user")
	}
	if err != nil || !CheckPassword(user.PasswordHash, password) {
		metrics.RecordAuthEvent("login", false)
		return nil, errInvalidCredentials
	}

	now := s.now()
	if err := db.Model(&user).UpdateColumn("last_login_at", now).Error; err != nil {
		logger.FromContext(ctx).Warn("failed to record last login", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}
	metrics.RecordAuthEvent("login", true)
	return s.newSession(&user)
}

// Authenticate resolves an access token to a freshly loaded user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, tokenError(err)
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errUserNotFound
		}
		return nil, apperr.Database(err, "failed to load user")
	}
	return &user, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// blacklisted so it cannot be replayed; of two concurrent refreshes with
// the same token only one wins.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		metrics.RecordAuthEvent("refresh", false)
		return nil, tokenError(err)
	}

	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errUserNotFound
		}
		return nil, apperr.Database(err, "failed to load user")
	}

	var revoked int64
	if err := db.Model(&models.RefreshTokenBlacklist{}).Where("token = ?", refreshToken).Count(&revoked).Error; err != nil {
		return nil, apperr.Database(err, "failed to check token")
	}
	if revoked > 0 {
		metrics.RecordAuthEvent("refresh", false)
		return nil, errTokenRevoked
	}

	entry := models.RefreshTokenBlacklist{
		Token:     refreshToken,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := db.Create(&entry).Error; err != nil {
		if config.IsUniqueViolation(err) {
			metrics.RecordAuthEvent("refresh", false)
			return nil, errTokenRevoked
		}
		return nil, apperr.Database(err, "failed to rotate token")
	}

	session, err := s.newSession(&user)
	if err != nil {
		return nil, err
	}
	metrics.RecordAuthEvent("refresh", true)
	return &TokenPair{AccessToken: session.AccessToken, RefreshToken: session.RefreshToken}, nil
}

// Logout revokes refreshToken until its own expiry. Tokens that cannot be
// decoded, belong to someone else or are already revoked are ignored.
func (s *Service) Logout(ctx context.Context, userID uint, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	log := logger.FromContext(ctx)
	claims, err := s.tokens.DecodeRefreshToken(refreshToken)
	if err != nil {
		log.Debug("logout with undecodable refresh token", "user_id", userID)
		return nil
	}
	if userID != 0 && claims.UserID != userID {
		log.Warn("logout with another user's refresh token", "user_id", userID, "token_user_id", claims.UserID)
		return nil
	}

	entry := models.RefreshTokenBlacklist{
		Token:     refreshToken,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error
	if err != nil && !config.IsUniqueViolation(err) {
		return apperr.Database(err, "failed to revoke token")
	}
	metrics.RecordAuthEvent("logout", true)
	return nil
}

// ForgotPassword issues a reset token and mails it when the account exists.
// It never reports whether it did; failures are only logged.
func (s *Service) ForgotPassword(ctx context.Context, email string) {
	if err := s.issueResetToken(ctx, email); err != nil {
		logger.FromContext(ctx).Error("password reset request failed", "error", err)
	}
}

func (s *Service) issueResetToken(ctx context.Context, email string) error {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	token, err := randomToken()
	if err != nil {
		return err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND used = ?", user.ID, false).Delete(&models.PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.PasswordResetToken{
			Token:     token,
			UserID:    user.ID,
			ExpiresAt: s.now().Add(s.resetTTL),
		}).Error
	})
	if err != nil {
		return err
	}

	body, err := render(resetEmail, emailData{
		Name: displayName(&user),
		Link: s.frontendURL + "/reset-password?token=" + token,
		TTL:  s.resetTTL.String(),
	})
	if err != nil {
		return err
	}
	return s.mail.Send(ctx, mailer.Message{To: user.Email, Subject: "Reset your ThaiTable password", HTML: body})
}

var errInvalidResetToken = apperr.New(apperr.KindValidation, "INVALID_TOKEN", "invalid or expired reset token")

// ResetPassword redeems a reset token. The password change and the
// token's used flag commit together; a token redeems at most once.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return apperr.Internal(err)
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.PasswordResetToken
		if err := tx.Where("token = ?", token).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errInvalidResetToken
			}
			return apperr.Database(err, "failed to load reset token")
		}
		if !t.IsValid(now) {
			return errInvalidResetToken
		}

		res := tx.Model(&models.PasswordResetToken{}).
			Where("id = ? AND used = ?", t.ID, false).
			Updates(map[string]any{"used": true, "used_at": now})
		if res.Error != nil {
			return apperr.Database(res.Error, "failed to consume reset token")
		}
		if res.RowsAffected != 1 {
			return errInvalidResetToken
		}

		res = tx.Model(&models.User{}).Where("id = ?", t.UserID).Update("password_hash", hash)
		if res.Error != nil {
			return apperr.Database(res.Error, "failed to update password")
		}
		if res.RowsAffected != 1 {
			return errInvalidResetToken
		}
		return nil
	})
	metrics.RecordAuthEvent("reset_password", err == nil)
	return err
}

// SendVerification replaces the user's pending verification token and
// mails a link to confirm the address.
func (s *Service) SendVerification(ctx context.Context, user *models.User) error {
	token, err := randomToken()
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND used = ?", user.ID, false).Delete(&models.EmailVerificationToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.EmailVerificationToken{
			Token:     token,
			UserID:    user.ID,
			ExpiresAt: s.now().Add(s.verifyTTL),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	body, err := render(verifyEmail, emailData{
		Name: displayName(user),
		Link: s.frontendURL + "/verify-email?token=" + token,
		TTL:  s.verifyTTL.String(),
	})
	if err != nil {
		return err
	}
	return s.mail.Send(ctx, mailer.Message{To: user.Email, Subject: "Verify your ThaiTable email", HTML: body})
}

// ResendVerification behaves like ForgotPassword: same outcome for every email.
func (s *Service) ResendVerification(ctx context.Context, email string) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return
	case err != nil:
		logger.FromContext(ctx).Error("resend verification lookup failed", "error", err)
		return
	case user.IsEmailVerified:
		return
	}
	if err := s.SendVerification(ctx, &user); err != nil {
		logger.FromContext(ctx).Error("resend verification failed", "user_id", user.ID, "error", err)
	}
}

var errInvalidVerificationToken = apperr.New(apperr.KindValidation, "INVALID_TOKEN", "invalid or expired verification token")

// VerifyEmail redeems a verification token and marks the user verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.EmailVerificationToken
		if err := tx.Where("token = ?", token).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errInvalidVerificationToken
			}
			return apperr.Database(err, "failed to load verification token")
		}
		if !t.IsValid(now) {
			return errInvalidVerificationToken
		}

		res := tx.Model(&models.EmailVerificationToken{}).
			Where("id = ? AND used = ?", t.ID, false).
			Updates(map[string]any{"used": true, "used_at": now})
		if res.Error != nil {
			return apperr.Database(res.Error, "failed to consume verification token")
		}
		if res.RowsAffected != 1 {
			return errInvalidVerificationToken
		}

		err := tx.Model(&models.User{}).Where("id = ?", t.UserID).
			Updates(map[string]any{"is_email_verified": true, "email_verified_at": now}).Error
		if err != nil {
			return apperr.Database(err, "failed to verify email")
		}
		return nil
	})
	metrics.RecordAuthEvent("verify_email", err == nil)
	return err
}

// CleanupResult counts rows removed by PurgeExpiredTokens.
type CleanupResult struct {
	ResetTokens        int64
	VerificationTokens int64
	BlacklistEntries   int64
}

// PurgeExpiredTokens deletes reset and verification tokens that expired or
// were used more than a day ago, and blacklist entries past their expiry.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (CleanupResult, error) {
	now := s.now()
	usedBefore := now.Add(-usedTokenRetention)
	db := s.db.WithContext(ctx)

	var out CleanupResult
	res := db.Where("expires_at < ? OR (used = ? AND used_at < ?)", now, true, usedBefore).Delete(&models.PasswordResetToken{})
	if res.Error != nil {
		return out, fmt.Errorf("purge reset tokens: %w", res.Error)
	}
	out.ResetTokens = res.RowsAffected

	res = db.Where("expires_at < ? OR (used = ? AND used_at < ?)", now, true, usedBefore).Delete(&models.EmailVerificationToken{})
	if res.Error != nil {
		return out, fmt.Errorf("purge verification tokens: %w", res.Error)
	}
	out.VerificationTokens = res.RowsAffected

	res = db.Where("expires_at < ?", now).Delete(&models.RefreshTokenBlacklist{})
	if res.Error != nil {
		return out, fmt.Errorf("purge blacklist: %w", res.Error)
	}
	out.BlacklistEntries = res.RowsAffected
	return out, nil
}

// RunCleanup purges stale tokens every interval until ctx is cancelled.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.PurgeExpiredTokens(ctx)
			if err != nil {
				s.log.Error("token cleanup failed", "error", err)
				continue
			}
			s.log.Info("token cleanup",
				"reset_tokens", res.ResetTokens,
				"verification_tokens", res.VerificationTokens,
				"blacklist_entries", res.BlacklistEntries)
		}
	}
}

func (s *Service) newSession(user *models.User) (*Session, error) {
	access, err := s.tokens.GenerateAccessToken(user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

func tokenError(err error) error {
	if errors.Is(err, ErrTokenExpired) {
		return apperr.Unauthenticated("TOKEN_EXPIRED", "token expired")
	}
	return apperr.Unauthenticated("INVALID_TOKEN", "invalid token")
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("invalid email address")
	}
	return email, nil
}

func checkPassword(p string) error {
	if len(p) < MinPasswordLength {
		return apperr.Validationf("password must be at least %d characters", MinPasswordLength)
	}
	if len(p) > MaxPasswordLength {
		return apperr.Validationf("password must be at most %d bytes", MaxPasswordLength)
	}
	return nil
}

// randomToken returns 32 random bytes, hex encoded.
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func displayName(u *models.User) string {
	if u.NameEN != "" {
		return u.NameEN
	}
	if u.NameTH != "" {
		return u.NameTH
	}
	return u.Email
}
