package authcore

import (
	"context"
	"encoding/base32"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type fakeUserRepo struct {
	mu       sync.Mutex
	byEmail  map[string]*User
	byID     map[int64]*User
	nextID   int64
	failFind error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byEmail: make(map[string]*User),
		byID:    make(map[int64]*User),
	}
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failFind != nil {
		return nil, r.failFind
	}

	user, ok := r.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	copy := *user
	return &copy, nil
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id int64) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copy := *user
	return &copy, nil
}

func (r *fakeUserRepo) Create(ctx context.Context, u CreateUser) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[u.Email]; ok {
		return nil, ErrEmailAlreadyExists
	}

	r.nextID++
	user := &User{
		ID:           r.nextID,
		Email:        u.Email,
		Name:         u.Name,
		Phone:        u.Phone,
		Avatar:       u.Avatar,
		PasswordHash: u.PasswordHash,
		RoleID:       u.RoleID,
		RoleName:     "CLIENT",
	}
	r.byEmail[user.Email] = user
	r.byID[user.ID] = user

	copy := *user
	return &copy, nil
}

func (r *fakeUserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func (r *fakeUserRepo) UpdateTOTPSecret(ctx context.Context, id int64, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	user.TOTPSecret = secret
	return nil
}

func (r *fakeUserRepo) seed(t *testing.T, email, password string) *User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}

	user, err := r.Create(context.Background(), CreateUser{
		Email:        email,
		Name:         "Test User",
		PasswordHash: string(hash),
		RoleID:       clientRoleID,
	})
	if err != nil {
		t.Fatalf("seed user failed: %v", err)
	}
	return user
}

func (r *fakeUserRepo) setTOTPSecret(t *testing.T, id int64, secret string) {
	t.Helper()
	if err := r.UpdateTOTPSecret(context.Background(), id, secret); err != nil {
		t.Fatalf("set totp secret failed: %v", err)
	}
}

const clientRoleID = int64(3)

type fakeRoleRepo struct {
	mu    sync.Mutex
	roles map[int64]*RolePermissions
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{
		roles: map[int64]*RolePermissions{
			clientRoleID: {
				ID:     clientRoleID,
				Name:   "CLIENT",
				Active: true,
				Permissions: []Permission{
					{Path: "/orders", Method: "GET"},
					{Path: "/orders", Method: "POST"},
				},
			},
		},
	}
}

func (r *fakeRoleRepo) ClientRoleID(ctx context.Context) (int64, error) {
	return clientRoleID, nil
}

func (r *fakeRoleRepo) FindActiveWithPermissions(ctx context.Context, roleID int64) (*RolePermissions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[roleID]
	if !ok {
		return nil, ErrRoleNotFound
	}
	copy := *role
	return &copy, nil
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []string
	fail  error
	codes map[string]string
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{codes: make(map[string]string)}
}

func (m *fakeMailer) SendOTP(ctx context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, email)
	m.codes[email] = code
	return m.fail
}

func (m *fakeMailer) lastCode(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type testDeps struct {
	users  *fakeUserRepo
	roles  *fakeRoleRepo
	mailer *fakeMailer
}

func newTestEngine(t *testing.T) (*Engine, *testDeps) {
	t.Helper()

	_, client := newTestRedis(t)

	deps := &testDeps{
		users:  newFakeUserRepo(),
		roles:  newFakeRoleRepo(),
		mailer: newFakeMailer(),
	}

	engine, err := New().
		WithConfig(Config{
			Token: TokenConfig{
				AccessSecret:  []byte("access-secret-for-tests"),
				RefreshSecret: []byte("refresh-secret-for-tests"),
				AccessTTL:     time.Minute,
				RefreshTTL:    time.Hour,
			},
			Password: PasswordConfig{Cost: bcrypt.MinCost},
			Metrics:  MetricsConfig{Enabled: true},
		}).
		WithRedis(client).
		WithUserRepository(deps.users).
		WithRoleRepository(deps.roles).
		WithEmailSender(deps.mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, deps
}

func seedVerificationCode(t *testing.T, e *Engine, email string, typ VerificationType, code string) {
	t.Helper()

	err := e.codes.Upsert(context.Background(), VerificationCode{
		Email:     email,
		Type:      typ,
		Code:      code,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}, 5*time.Minute)
	if err != nil {
		t.Fatalf("seed verification code failed: %v", err)
	}
}

// seedTOTP stores a fresh secret on the user and returns a generator for
// currently valid authenticator codes.
func seedTOTP(t *testing.T, deps *testDeps, userID int64) func() string {
	t.Helper()

	raw := []byte("12345678901234567890")
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	deps.users.setTOTPSecret(t, userID, encoded)

	return func() string {
		code, err := hotpCode(raw, time.Now().Unix()/30, 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode failed: %v", err)
		}
		return code
	}
}

func TestRegister(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	seedVerificationCode(t, engine, "new@example.com", VerificationRegister, "482913")

	user, err := engine.Register(ctx, RegisterInput{
		Email:    "new@example.com",
		Name:     "New User",
		Password: "s3cret-pass",
		Code:     "482913",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.ID == 0 || user.RoleID != clientRoleID {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "s3cret-pass" || user.PasswordHash == "" {
		t.Fatal("expected password to be stored hashed")
	}

	// The code is single-use.
	err = engine.codes.Validate(ctx, "new@example.com", VerificationRegister, "482913")
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected register code consumed, got %v", err)
	}

	if engine.metrics.Value(MetricRegisterSuccess) != 1 {
		t.Fatal("expected register success counter")
	}
}

func TestRegisterRejectsBadCode(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	seedVerificationCode(t, engine, "new@example.com", VerificationRegister, "482913")

	if _, err := engine.Register(ctx, RegisterInput{
		Email:    "new@example.com",
		Password: "pw",
		Code:     "000000",
	}); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}

	if _, err := engine.Register(ctx, RegisterInput{
		Email:    "other@example.com",
		Password: "pw",
		Code:     "482913",
	}); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP for wrong email, got %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	deps.users.seed(t, "taken@example.com", "pw")
	seedVerificationCode(t, engine, "taken@example.com", VerificationRegister, "482913")

	if _, err := engine.Register(ctx, RegisterInput{
		Email:    "taken@example.com",
		Password: "pw",
		Code:     "482913",
	}); !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}
}

func TestLoginSuccess(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.9"), "Mozilla/5.0")

	user := deps.users.seed(t, "user@example.com", "s3cret-pass")

	pair, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}

	claims, err := engine.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if claims.UserID != user.ID || claims.RoleID != clientRoleID || claims.RoleName != "CLIENT" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.DeviceID == 0 {
		t.Fatal("expected a registered device id in the claims")
	}

	device, err := engine.devices.Find(ctx, claims.DeviceID)
	if err != nil {
		t.Fatalf("device lookup failed: %v", err)
	}
	if device.UserID != user.ID || device.IP != "203.0.113.9" || device.UserAgent != "Mozilla/5.0" || !device.Active {
		t.Fatalf("unexpected device: %+v", device)
	}
}

func TestLoginFailures(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	deps.users.seed(t, "user@example.com", "s3cret-pass")

	if _, err := engine.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "pw"}); !errors.Is(err, ErrEmailNotFound) {
		t.Fatalf("expected ErrEmailNotFound, got %v", err)
	}
	if _, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "wrong"}); !errors.Is(err, ErrPasswordIncorrect) {
		t.Fatalf("expected ErrPasswordIncorrect, got %v", err)
	}
	if engine.metrics.Value(MetricLoginFailure) != 2 {
		t.Fatalf("expected two login failures, got %d", engine.metrics.Value(MetricLoginFailure))
	}
}

func TestLoginWith2FA(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	user := deps.users.seed(t, "user@example.com", "s3cret-pass")
	totpCode := seedTOTP(t, deps, user.ID)

	// No second factor at all.
	if _, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "s3cret-pass"}); !errors.Is(err, ErrTOTPNotSupplied) {
		t.Fatalf("expected ErrTOTPNotSupplied, got %v", err)
	}

	// Malformed authenticator code.
	if _, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "s3cret-pass", TOTPCode: "123"}); !errors.Is(err, ErrInvalidTOTP) {
		t.Fatalf("expected ErrInvalidTOTP, got %v", err)
	}

	// Valid authenticator code.
	if _, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "s3cret-pass", TOTPCode: totpCode()}); err != nil {
		t.Fatalf("Login with TOTP failed: %v", err)
	}

	// Valid emailed LOGIN code, consumed on success.
	seedVerificationCode(t, engine, "user@example.com", VerificationLogin, "654321")
	if _, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "s3cret-pass", Code: "654321"}); err != nil {
		t.Fatalf("Login with email code failed: %v", err)
	}
	err := engine.codes.Validate(ctx, "user@example.com", VerificationLogin, "654321")
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected login code consumed, got %v", err)
	}

	if engine.metrics.Value(MetricLogin2FARequired) == 0 {
		t.Fatal("expected 2FA-required counter")
	}
}

func TestLoginAcceptsAdjacentWindowTOTPCodes(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	user := deps.users.seed(t, "user@example.com", "s3cret-pass")
	raw := []byte("12345678901234567890")
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	deps.users.setTOTPSecret(t, user.ID, encoded)

	// Clock drift of one step either side must still authenticate.
	for _, offset := range []int64{-1, 1} {
		code, err := hotpCode(raw, time.Now().Unix()/30+offset, 6, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode failed: %v", err)
		}
		if _, err := engine.Login(ctx, LoginInput{
			Email:    "user@example.com",
			Password: "s3cret-pass",
			TOTPCode: code,
		}); err != nil {
			t.Fatalf("login with code at offset %d failed: %v", offset, err)
		}
	}
}

func TestRefreshRotationAndReplay(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	deps.users.seed(t, "user@example.com", "s3cret-pass")
	pair, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	rotated, err := engine.RefreshToken(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("expected a fresh refresh token")
	}

	// The spent token is dead; only the rotated one works.
	if _, err := engine.RefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshTokenAlreadyUsed) {
		t.Fatalf("expected ErrRefreshTokenAlreadyUsed on replay, got %v", err)
	}
	if _, err := engine.RefreshToken(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("rotated token should refresh: %v", err)
	}

	if engine.metrics.Value(MetricRefreshReplayDetected) != 1 {
		t.Fatalf("expected one replay detection, got %d", engine.metrics.Value(MetricRefreshReplayDetected))
	}
}

func TestConcurrentRefreshHasOneWinner(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	deps.users.seed(t, "user@example.com", "s3cret-pass")
	pair, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.RefreshToken(ctx, pair.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
			continue
		}
		if !errors.Is(err, ErrRefreshTokenAlreadyUsed) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	engine, _ := newTestEngine(t)

	if _, err := engine.RefreshToken(context.Background(), "not-a-token"); err == nil {
		t.Fatal("expected error for garbage refresh token")
	}
}

func TestLogoutDeactivatesDevice(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	deps.users.seed(t, "user@example.com", "s3cret-pass")
	pair, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	claims, err := engine.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}

	if err := engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	device, err := engine.devices.Find(ctx, claims.DeviceID)
	if err != nil {
		t.Fatalf("device lookup failed: %v", err)
	}
	if device.Active {
		t.Fatal("expected device inactive after logout")
	}

	if err := engine.Logout(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshTokenAlreadyUsed) {
		t.Fatalf("expected ErrRefreshTokenAlreadyUsed on double logout, got %v", err)
	}
	if _, err := engine.RefreshToken(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshTokenAlreadyUsed) {
		t.Fatalf("expected refresh after logout rejected, got %v", err)
	}
}

func TestSendOTP(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	deps.users.seed(t, "user@example.com", "pw")

	// REGISTER codes go to addresses without an account.
	if err := engine.SendOTP(ctx, "user@example.com", VerificationRegister); !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}
	// Everything else requires one.
	if err := engine.SendOTP(ctx, "nobody@example.com", VerificationForgotPassword); !errors.Is(err, ErrEmailNotFound) {
		t.Fatalf("expected ErrEmailNotFound, got %v", err)
	}

	if err := engine.SendOTP(ctx, "new@example.com", VerificationRegister); err != nil {
		t.Fatalf("SendOTP failed: %v", err)
	}
	code := deps.mailer.lastCode("new@example.com")
	if len(code) != 6 || !isNumericString(code) {
		t.Fatalf("expected 6-digit code, got %q", code)
	}
	if err := engine.codes.Validate(ctx, "new@example.com", VerificationRegister, code); err != nil {
		t.Fatalf("expected sent code to validate: %v", err)
	}
}

func TestSendOTPPropagatesRepositoryErrors(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	boom := errors.New("users db down")
	deps.users.failFind = boom

	// An outage is not "no account": no code may be minted for either class.
	if err := engine.SendOTP(ctx, "new@example.com", VerificationRegister); !errors.Is(err, boom) {
		t.Fatalf("expected repository error surfaced, got %v", err)
	}
	if err := engine.SendOTP(ctx, "user@example.com", VerificationForgotPassword); !errors.Is(err, boom) {
		t.Fatalf("expected repository error surfaced, got %v", err)
	}
	if len(deps.mailer.sent) != 0 {
		t.Fatalf("expected no delivery attempts, got %d", len(deps.mailer.sent))
	}
}

func TestSendOTPDeliveryFailureKeepsCode(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	deps.mailer.fail = errors.New("smtp down")

	err := engine.SendOTP(ctx, "new@example.com", VerificationRegister)
	if !errors.Is(err, ErrFailedToSendOTP) {
		t.Fatalf("expected ErrFailedToSendOTP, got %v", err)
	}

	// The stored code survives the delivery failure.
	code := deps.mailer.lastCode("new@example.com")
	if err := engine.codes.Validate(ctx, "new@example.com", VerificationRegister, code); err != nil {
		t.Fatalf("expected stored code still valid: %v", err)
	}
}

func TestForgotPassword(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	deps.users.seed(t, "user@example.com", "old-pass")
	seedVerificationCode(t, engine, "user@example.com", VerificationForgotPassword, "482913")

	// Account existence is checked before the code.
	if err := engine.ForgotPassword(ctx, ForgotPasswordInput{
		Email:       "nobody@example.com",
		Code:        "482913",
		NewPassword: "new-pass",
	}); !errors.Is(err, ErrEmailNotFound) {
		t.Fatalf("expected ErrEmailNotFound, got %v", err)
	}

	if err := engine.ForgotPassword(ctx, ForgotPasswordInput{
		Email:       "user@example.com",
		Code:        "000000",
		NewPassword: "new-pass",
	}); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}

	if err := engine.ForgotPassword(ctx, ForgotPasswordInput{
		Email:       "user@example.com",
		Code:        "482913",
		NewPassword: "new-pass",
	}); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}

	if _, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "old-pass"}); !errors.Is(err, ErrPasswordIncorrect) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "new-pass"}); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}
}

func TestSetup2FAAndDisable2FA(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	user := deps.users.seed(t, "user@example.com", "pw")

	setup, err := engine.Setup2FA(ctx, user.ID)
	if err != nil {
		t.Fatalf("Setup2FA failed: %v", err)
	}
	if setup.Secret == "" || !strings.HasPrefix(setup.URI, "otpauth://totp/") {
		t.Fatalf("unexpected setup material: %+v", setup)
	}

	if _, err := engine.Setup2FA(ctx, user.ID); !errors.Is(err, ErrTOTPAlreadyEnabled) {
		t.Fatalf("expected ErrTOTPAlreadyEnabled, got %v", err)
	}

	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(setup.Secret)
	if err != nil {
		t.Fatalf("secret is not base32: %v", err)
	}
	code, err := hotpCode(raw, time.Now().Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}

	if err := engine.Disable2FA(ctx, Disable2FAInput{UserID: user.ID, TOTPCode: code}); err != nil {
		t.Fatalf("Disable2FA failed: %v", err)
	}

	stored, err := deps.users.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if stored.TOTPEnabled() {
		t.Fatal("expected TOTP secret cleared")
	}

	if err := engine.Disable2FA(ctx, Disable2FAInput{UserID: user.ID, TOTPCode: code}); !errors.Is(err, ErrTOTPNotEnabled) {
		t.Fatalf("expected ErrTOTPNotEnabled, got %v", err)
	}
}

func TestDisable2FAWithEmailCode(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	user := deps.users.seed(t, "user@example.com", "pw")
	seedTOTP(t, deps, user.ID)
	seedVerificationCode(t, engine, "user@example.com", VerificationDisable2FA, "482913")

	if err := engine.Disable2FA(ctx, Disable2FAInput{UserID: user.ID}); !errors.Is(err, ErrTOTPNotSupplied) {
		t.Fatalf("expected ErrTOTPNotSupplied, got %v", err)
	}

	if err := engine.Disable2FA(ctx, Disable2FAInput{UserID: user.ID, Code: "482913"}); err != nil {
		t.Fatalf("Disable2FA with email code failed: %v", err)
	}

	err := engine.codes.Validate(ctx, "user@example.com", VerificationDisable2FA, "482913")
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected disable code consumed, got %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	user := deps.users.seed(t, "user@example.com", "pw")
	pair, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	claims, err := engine.Authorize(ctx, pair.AccessToken, "/orders", "GET")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := engine.Authorize(ctx, pair.AccessToken, "/admin/users", "DELETE"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := engine.Authorize(ctx, "garbage", "/orders", "GET"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken, got %v", err)
	}

	if engine.metrics.Value(MetricRoleCacheLookup) != 2 {
		t.Fatalf("expected two cache lookups, got %d", engine.metrics.Value(MetricRoleCacheLookup))
	}
	if engine.metrics.Value(MetricRoleCacheMiss) != 1 {
		t.Fatalf("expected one cache miss, got %d", engine.metrics.Value(MetricRoleCacheMiss))
	}
	if engine.metrics.Value(MetricAuthorizeAllowed) != 1 || engine.metrics.Value(MetricAuthorizeDenied) != 2 {
		t.Fatalf("unexpected authorize counters: allowed=%d denied=%d",
			engine.metrics.Value(MetricAuthorizeAllowed), engine.metrics.Value(MetricAuthorizeDenied))
	}
}

func TestAuthorizeUnknownRoleDenied(t *testing.T) {
	engine, deps := newTestEngine(t)
	ctx := context.Background()

	user := deps.users.seed(t, "user@example.com", "pw")
	deps.users.mu.Lock()
	deps.users.byID[user.ID].RoleID = 99
	deps.users.mu.Unlock()

	pair, err := engine.Login(ctx, LoginInput{Email: "user@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := engine.Authorize(ctx, pair.AccessToken, "/orders", "GET"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for unknown role, got %v", err)
	}
}

func TestBuilderValidation(t *testing.T) {
	_, client := newTestRedis(t)

	base := func() *Builder {
		return New().
			WithConfig(Config{
				Token: TokenConfig{
					AccessSecret:  []byte("a-secret"),
					RefreshSecret: []byte("r-secret"),
					AccessTTL:     time.Minute,
					RefreshTTL:    time.Hour,
				},
				Password: PasswordConfig{Cost: bcrypt.MinCost},
			}).
			WithRedis(client).
			WithUserRepository(newFakeUserRepo()).
			WithRoleRepository(newFakeRoleRepo()).
			WithEmailSender(newFakeMailer())
	}

	engine, err := base().Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := New().Build(); err == nil {
		t.Fatal("expected error without dependencies")
	}

	b := base()
	if _, err := b.WithConfig(Config{
		Token: TokenConfig{
			AccessSecret:  []byte("same"),
			RefreshSecret: []byte("same"),
			AccessTTL:     time.Minute,
			RefreshTTL:    time.Hour,
		},
	}).Build(); err == nil {
		t.Fatal("expected error for identical secrets")
	}

	used := base()
	if _, err := used.Build(); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := used.Build(); err == nil {
		t.Fatal("expected error on second Build")
	}
}
