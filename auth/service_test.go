package auth

import (
	"context"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/logger"
	mailer "github.com/tobylas-w/ThaiTable-sub000/mail"
	"github.com/tobylas-w/ThaiTable-sub000/models"
	"github.com/tobylas-w/ThaiTable-sub000/testutil"
)

func TestMain(m *testing.M) {
	HashCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type outbox struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (o *outbox) Send(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

var linkToken = regexp.MustCompile(`token=([0-9a-f]{64})`)

// lastToken extracts the token from the most recent email.
func (o *outbox) lastToken(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs)
	m := linkToken.FindStringSubmatch(o.msgs[len(o.msgs)-1].HTML)
	require.Len(t, m, 2)
	return m[1]
}

type fixture struct {
	svc        *Service
	db         *gorm.DB
	mail       *outbox
	restaurant *models.Restaurant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	box := &outbox{}
	svc := NewService(db, newTokenManager(t), box, Options{
		FrontendURL: "https://pos.example.com/",
		Logger:      logger.Discard(),
	})
	return &fixture{svc: svc, db: db, mail: box, restaurant: testutil.CreateRestaurant(t, db, "ครัวไทย")}
}

func testUser(id, restaurantID uint, role models.UserRole) *models.User {
	return &models.User{ID: id, RestaurantID: restaurantID, Role: role}
}

func errCode(err error) string { return apperr.From(err).Code }

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.svc.Register(ctx, RegisterInput{
		Email:        "  Somchai@Example.com ",
		Password:     "longenough",
		NameTH:       "สมชาย",
		RestaurantID: f.restaurant.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "somchai@example.com", s.User.Email)
	assert.Equal(t, models.RoleStaff, s.User.Role)
	assert.False(t, s.User.IsEmailVerified)
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)

	assert.Equal(t, 1, f.mail.count())
	var pending int64
	f.db.Model(&models.EmailVerificationToken{}).Where("user_id = ?", s.User.ID).Count(&pending)
	assert.EqualValues(t, 1, pending)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "somchai@example.com", Password: "longenough", RestaurantID: f.restaurant.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "longenough", RestaurantID: 999})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = f.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "short", RestaurantID: f.restaurant.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.Register(ctx, RegisterInput{Email: "not-an-email", Password: "longenough", RestaurantID: f.restaurant.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.Register(ctx, RegisterInput{Email: "a@example.com", Password: "longenough", Role: "CHEF", RestaurantID: f.restaurant.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestPasswordLengthIsBoundedByBcrypt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := map[string]string{
		"ascii over 72 bytes": strings.Repeat("a", 80),
		"thai over 72 bytes":  strings.Repeat("ก", 30),
		"one byte over":       strings.Repeat("x", MaxPasswordLength+1),
	}
	for name, pw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, RegisterInput{Email: "long@example.com", Password: pw, NameTH: "ยาว", RestaurantID: f.restaurant.ID})
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation))
			assert.Equal(t, "password must be at most 72 bytes", apperr.From(err).Message)
		})
	}

	err := f.svc.ResetPassword(ctx, "whatever", strings.Repeat("a", 73))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Equal(t, "password must be at most 72 bytes", apperr.From(err).Message)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "edge@example.com", Password: strings.Repeat("a", MaxPasswordLength), NameTH: "พอดี", RestaurantID: f.restaurant.ID})
	assert.NoError(t, err)
}

func TestRegisterRestaurantCreatesOwner(t *testing.T) {
	f := newFixture(t)

	r, s, err := f.svc.RegisterRestaurant(context.Background(), RestaurantSignupInput{
		NameTH:      "ส้มตำป้าแดง",
		NameEN:      "Aunt Daeng Som Tam",
		PromptPayID: "0812345678",
		Owner:       RegisterInput{Email: "daeng@example.com", Password: "longenough", NameTH: "แดง"},
	})
	require.NoError(t, err)
	assert.True(t, r.IsActive)
	assert.Equal(t, models.RoleOwner, s.User.Role)
	assert.Equal(t, r.ID, s.User.RestaurantID)

	_, _, err = f.svc.RegisterRestaurant(context.Background(), RestaurantSignupInput{
		NameTH: "อีกร้าน",
		Owner:  RegisterInput{Email: "daeng@example.com", Password: "longenough"},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	var restaurants int64
	f.db.Model(&models.Restaurant{}).Count(&restaurants)
	assert.EqualValues(t, 2, restaurants, "failed signup must not leave a restaurant behind")
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	u := testutil.CreateUser(t, f.db, f.restaurant.ID, "staff@example.com", models.RoleStaff)

	s, err := f.svc.Login(context.Background(), "STAFF@example.com", testutil.Password)
	require.NoError(t, err)
	assert.Equal(t, u.ID, s.User.ID)
	require.NotNil(t, s.User.LastLoginAt)

	_, wrongPassword := f.svc.Login(context.Background(), "staff@example.com", "nope-nope")
	_, unknownEmail := f.svc.Login(context.Background(), "ghost@example.com", testutil.Password)
	require.Error(t, wrongPassword)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, "INVALID_CREDENTIALS", errCode(wrongPassword))
	assert.True(t, apperr.IsKind(unknownEmail, apperr.KindAuthentication))
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	u := testutil.CreateUser(t, f.db, f.restaurant.ID, "staff@example.com", models.RoleStaff)
	tok, err := f.svc.Tokens().GenerateAccessToken(u.ID)
	require.NoError(t, err)

	got, err := f.svc.Authenticate(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = f.svc.Authenticate(context.Background(), tok+"x")
	assert.Equal(t, "INVALID_TOKEN", errCode(err))

	f.svc.tokens.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, err = f.svc.Authenticate(context.Background(), tok)
	assert.Equal(t, "TOKEN_EXPIRED", errCode(err))
	f.svc.tokens.now = time.Now

	require.NoError(t, f.db.Delete(&models.User{}, u.ID).Error)
	_, err = f.svc.Authenticate(context.Background(), tok)
	assert.Equal(t, "USER_NOT_FOUND", errCode(err))
}

func TestRefreshRotatesAndRevokes(t *testing.T) {
	f := newFixture(t)
	testutil.CreateUser(t, f.db, f.restaurant.ID, "staff@example.com", models.RoleStaff)
	s, err := f.svc.Login(context.Background(), "staff@example.com", testutil.Password)
	require.NoError(t, err)

	pair, err := f.svc.Refresh(context.Background(), s.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, s.RefreshToken, pair.RefreshToken)

	_, err = f.svc.Refresh(context.Background(), s.RefreshToken)
	assert.Equal(t, "TOKEN_REVOKED", errCode(err))

	_, err = f.svc.Refresh(context.Background(), pair.AccessToken)
	assert.Equal(t, "INVALID_TOKEN", errCode(err))
}

func TestLogoutBlacklistsRefreshToken(t *testing.T) {
	f := newFixture(t)
	u := testutil.CreateUser(t, f.db, f.restaurant.ID, "staff@example.com", models.RoleStaff)
	s, err := f.svc.Login(context.Background(), "staff@example.com", testutil.Password)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), u.ID, s.RefreshToken))
	require.NoError(t, f.svc.Logout(context.Background(), u.ID, s.RefreshToken), "duplicate logout is not an error")
	require.NoError(t, f.svc.Logout(context.Background(), u.ID, "garbage"))
	require.NoError(t, f.svc.Logout(context.Background(), u.ID, ""))

	var entry models.RefreshTokenBlacklist
	require.NoError(t, f.db.Where("token = ?", s.RefreshToken).First(&entry).Error)
	claims, err := f.svc.Tokens().DecodeRefreshToken(s.RefreshToken)
	require.NoError(t, err)
	assert.WithinDuration(t, claims.ExpiresAt.Time, entry.ExpiresAt, time.Second)

	_, err = f.svc.Refresh(context.Background(), s.RefreshToken)
	assert.Equal(t, "TOKEN_REVOKED", errCode(err))
}

func TestForgotPasswordOnlyActsForExistingAccounts(t *testing.T) {
	f := newFixture(t)
	u := testutil.CreateUser(t, f.db, f.restaurant.ID, "staff@example.com", models.RoleStaff)
	ctx := context.Background()

	f.svc.ForgotPassword(ctx, "ghost@example.com")
	assert.Zero(t, f.mail.count())

	f.svc.ForgotPassword(ctx, "staff@example.com")
	first := f.mail.lastToken(t)
	f.svc.ForgotPassword(ctx, "staff@example.com")
	second := f.mail.lastToken(t)
	assert.NotEqual(t, first, second)

	var tokens []models.PasswordResetToken
	require.NoError(t, f.db.Where("user_id = ?", u.ID).Find(&tokens).Error)
	require.Len(t, tokens, 1, "issuing a new token removes the previous unused one")
	assert.Equal(t, second, tokens[0].Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tokens[0].ExpiresAt, time.Minute)
}

func TestResetPasswordIsSingleUse(t *testing.T) {
	f := newFixture(t)
	testutil.CreateUser(t, f.db, f.restaurant.ID, "staff@example.com", models.RoleStaff)
	ctx := context.Background()

	f.svc.ForgotPassword(ctx, "staff@example.com")
	token := f.mail.lastToken(t)

	require.NoError(t, f.svc.ResetPassword(ctx, token, "brand-new-pass"))
	err := f.svc.ResetPassword(ctx, token, "another-pass")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Contains(t, apperr.From(err).Message, "invalid or expired")

	_, err = f.svc.Login(ctx, "staff@example.com", "brand-new-pass")
	assert.NoError(t, err)
	_, err = f.svc.Login(ctx, "staff@example.com", testutil.Password)
	assert.Error(t, err)
}

func TestResetPasswordConcurrentRedemption(t *testing.T) {
	f := newFixture(t)
	testutil.CreateUser(t, f.db, f.restaurant.ID, "staff@example.com", models.RoleStaff)
	f.svc.ForgotPassword(context.Background(), "staff@example.com")
	token := f.mail.lastToken(t)

	const n = 5
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.ResetPassword(context.Background(), token, "brand-new-pass")
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}

func TestResetPasswordRejectsExpiredToken(t *testing.T) {
	f := newFixture(t)
	testutil.CreateUser(t, f.db, f.restaurant.ID, "staff@example.com", models.RoleStaff)
	f.svc.ForgotPassword(context.Background(), "staff@example.com")
	token := f.mail.lastToken(t)

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	err := f.svc.ResetPassword(context.Background(), token, "brand-new-pass")
	assert.Equal(t, "INVALID_TOKEN", errCode(err))

	err = f.svc.ResetPassword(context.Background(), "does-not-exist", "brand-new-pass")
	assert.Equal(t, "INVALID_TOKEN", errCode(err))
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.svc.Register(ctx, RegisterInput{Email: "new@example.com", Password: "longenough", RestaurantID: f.restaurant.ID})
	require.NoError(t, err)
	token := f.mail.lastToken(t)

	require.NoError(t, f.svc.VerifyEmail(ctx, token))
	var u models.User
	require.NoError(t, f.db.First(&u, s.User.ID).Error)
	assert.True(t, u.IsEmailVerified)
	assert.NotNil(t, u.EmailVerifiedAt)

	assert.Equal(t, "INVALID_TOKEN", errCode(f.svc.VerifyEmail(ctx, token)))

	before := f.mail.count()
	f.svc.ResendVerification(ctx, "new@example.com")
	f.svc.ResendVerification(ctx, "ghost@example.com")
	assert.Equal(t, before, f.mail.count(), "verified and unknown accounts get no mail")
}

func TestPurgeExpiredTokens(t *testing.T) {
	f := newFixture(t)
	u := testutil.CreateUser(t, f.db, f.restaurant.ID, "staff@example.com", models.RoleStaff)
	now := time.Now()
	longAgo := now.Add(-25 * time.Hour)
	recently := now.Add(-time.Hour)

	require.NoError(t, f.db.Create([]models.PasswordResetToken{
		{Token: "expired", UserID: u.ID, ExpiresAt: now.Add(-time.Minute)},
		{Token: "used-long-ago", UserID: u.ID, ExpiresAt: now.Add(time.Hour), Used: true, UsedAt: &longAgo},
		{Token: "used-recently", UserID: u.ID, ExpiresAt: now.Add(time.Hour), Used: true, UsedAt: &recently},
		{Token: "live", UserID: u.ID, ExpiresAt: now.Add(time.Hour)},
	}).Error)
	require.NoError(t, f.db.Create([]models.EmailVerificationToken{
		{Token: "expired", UserID: u.ID, ExpiresAt: now.Add(-time.Minute)},
		{Token: "live", UserID: u.ID, ExpiresAt: now.Add(time.Hour)},
	}).Error)
	require.NoError(t, f.db.Create([]models.RefreshTokenBlacklist{
		{Token: "old", UserID: u.ID, ExpiresAt: now.Add(-time.Minute)},
		{Token: "current", UserID: u.ID, ExpiresAt: now.Add(time.Hour)},
	}).Error)

	res, err := f.svc.PurgeExpiredTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{ResetTokens: 2, VerificationTokens: 1, BlacklistEntries: 1}, res)

	var left []string
	f.db.Model(&models.PasswordResetToken{}).Order("token").Pluck("token", &left)
	assert.Equal(t, []string{"live", "used-recently"}, left)
}

func TestRunCleanupStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunCleanup(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}
