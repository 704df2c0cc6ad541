package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"identity-service/internal/client"
	"identity-service/internal/config"
	"identity-service/internal/handler"
	"identity-service/internal/hashing"
	"identity-service/internal/models"
	"identity-service/internal/repository/postgres"
	redisrepo "identity-service/internal/repository/redis"
	"identity-service/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Minimal in-memory stores backing a real AuthService behind the router.

type memUsers struct {
	byEmail map[string]*models.User
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := m.byEmail[email]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, postgres.ErrNotFound
}

func (m *memUsers) FindByEmailAndRoles(ctx context.Context, email string, roles []models.Role) (*models.User, error) {
	u, err := m.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return u, nil
	}
	for _, r := range roles {
		if u.Role == r {
			return u, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (m *memUsers) Create(_ context.Context, user *models.User) error {
	if _, ok := m.byEmail[user.Email]; ok {
		return postgres.ErrDuplicateEmail
	}
	user.ID = uuid.New()
	m.byEmail[user.Email] = user
	return nil
}

func (m *memUsers) CreateClientUser(ctx context.Context, user *models.User) error {
	return m.Create(ctx, user)
}

func (m *memUsers) UpdateProfile(_ context.Context, id uuid.UUID, _ postgres.UserProfileUpdate) error {
	for _, u := range m.byEmail {
		if u.ID == id {
			return nil
		}
	}
	return postgres.ErrNotFound
}

type memTokens struct {
	byToken map[string]*models.PasswordResetToken
}

func (m *memTokens) FindActive(_ context.Context, token string) (*models.PasswordResetToken, error) {
	t, ok := m.byToken[token]
	if !ok || t.Used || !t.ExpiresAt.After(time.Now()) {
		return nil, postgres.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *memTokens) Consume(_ context.Context, tokenID, _ uuid.UUID, _ string) error {
	for _, t := range m.byToken {
		if t.ID == tokenID && !t.Used {
			t.Used = true
			return nil
		}
	}
	return postgres.ErrNotFound
}

type memOTPs struct {
	records map[uuid.UUID]*models.OTPVerification
}

func (m *memOTPs) FindPending(_ context.Context, email, phone string) (*models.OTPVerification, error) {
	for _, r := range m.records {
		if r.Email == email && r.Phone == phone && r.OTPExpiresAt.After(time.Now()) {
			copied := *r
			return &copied, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (m *memOTPs) IncrementAttempts(_ context.Context, id uuid.UUID) (int, error) {
	r, ok := m.records[id]
	if !ok {
		return 0, postgres.ErrNotFound
	}
	r.Attempts++
	return r.Attempts, nil
}

func (m *memOTPs) MarkVerified(_ context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return postgres.ErrNotFound
	}
	return nil
}

func (m *memOTPs) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.records, id)
	return nil
}

type serverEnv struct {
	users  *memUsers
	tokens *memTokens
	otps   *memOTPs
	hasher *hashing.Hasher
	server *httptest.Server
}

func newServer(t *testing.T, limiter *redisrepo.RateLimitCache) *serverEnv {
	t.Helper()

	cfg := &config.Config{
		Auth: config.AuthConfig{PasswordMinLength: 8},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	}
	users := &memUsers{byEmail: make(map[string]*models.User)}
	tokens := &memTokens{byToken: make(map[string]*models.PasswordResetToken)}
	otps := &memOTPs{records: make(map[uuid.UUID]*models.OTPVerification)}
	hasher := hashing.NewHasher(cfg)

	logger := zap.NewNop()
	svc := service.NewAuthService(users, tokens, otps, hasher, nil, cfg, logger)
	router := handler.NewRouter(handler.NewAuthHandler(svc, limiter, logger), logger)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &serverEnv{users: users, tokens: tokens, otps: otps, hasher: hasher, server: server}
}

func (e *serverEnv) addUser(t *testing.T, user *models.User, password string) *models.User {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)
	user.ID = uuid.New()
	user.PasswordHash = hash
	e.users.byEmail[user.Email] = user
	return user
}

func (e *serverEnv) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestUnifiedLogin_HTTP(t *testing.T) {
	env := newServer(t, nil)
	env.addUser(t, &models.User{
		Email:     "a@x.com",
		FirstName: "Ana",
		LastName:  "Silva",
		Role:      models.RoleClient,
	}, "secret1!")

	resp, body := env.post(t, "/api/v1/auth/login", map[string]string{
		"email":    "a@x.com",
		"password": "secret1!",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "a@x.com", body["email"])
	assert.Equal(t, "Ana Silva", body["name"])
	assert.Equal(t, "client", body["userType"])
	assert.Equal(t, "client", body["role"])
	assert.Equal(t, false, body["requiresPasswordChange"])
	assert.NotEmpty(t, body["userId"])
}

func TestUnifiedLogin_HTTP_StaffUserType(t *testing.T) {
	env := newServer(t, nil)
	env.addUser(t, &models.User{Email: "o@x.com", Role: models.RoleOwner}, "secret1!")

	resp, body := env.post(t, "/api/v1/auth/login", map[string]string{
		"email":    "o@x.com",
		"password": "secret1!",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "staff", body["userType"])
}

func TestStaffLogin_HTTP_RejectsClient(t *testing.T) {
	env := newServer(t, nil)
	env.addUser(t, &models.User{Email: "c@x.com", Role: models.RoleClient}, "secret1!")

	resp, body := env.post(t, "/api/v1/auth/staff/login", map[string]string{
		"email":    "c@x.com",
		"password": "secret1!",
	})

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestStaffLogin_HTTP_OmitsUserType(t *testing.T) {
	env := newServer(t, nil)
	env.addUser(t, &models.User{Email: "o@x.com", Role: models.RoleOwner}, "secret1!")

	resp, body := env.post(t, "/api/v1/auth/staff/login", map[string]string{
		"email":    "o@x.com",
		"password": "secret1!",
	})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, present := body["userType"]
	assert.False(t, present)
}

func TestLogin_HTTP_InvalidBody(t *testing.T) {
	env := newServer(t, nil)

	resp, err := http.Post(env.server.URL+"/api/v1/auth/login", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResetPassword_HTTP(t *testing.T) {
	env := newServer(t, nil)
	userID := uuid.New()
	env.tokens.byToken["tok-1"] = &models.PasswordResetToken{
		ID:        uuid.New(),
		Token:     "tok-1",
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	resp, body := env.post(t, "/api/v1/auth/password/reset", map[string]string{
		"token":       "tok-1",
		"newPassword": "fresh-secret",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["message"])

	// Second use of the same token is a 400.
	resp, body = env.post(t, "/api/v1/auth/password/reset", map[string]string{
		"token":       "tok-1",
		"newPassword": "another-secret",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestRegisterStaff_HTTP(t *testing.T) {
	env := newServer(t, nil)
	env.addUser(t, &models.User{Email: "admin@x.com", Role: models.RoleAdmin}, "admin-secret")

	req := map[string]string{
		"email":         "advisor@x.com",
		"name":          "Rita Gomes",
		"password":      "advisor-secret",
		"role":          "property_advisor",
		"adminEmail":    "admin@x.com",
		"adminPassword": "admin-secret",
	}

	resp, body := env.post(t, "/api/v1/auth/staff/register", req)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "advisor@x.com", body["email"])
	assert.Equal(t, "Rita Gomes", body["name"])
	assert.Equal(t, "property_advisor", body["role"])

	// Same email again conflicts.
	resp, _ = env.post(t, "/api/v1/auth/staff/register", req)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Wrong admin secret is a 401.
	req["email"] = "other@x.com"
	req["adminPassword"] = "wrong"
	resp, _ = env.post(t, "/api/v1/auth/staff/register", req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestVerifyOTP_HTTP(t *testing.T) {
	env := newServer(t, nil)
	recID := uuid.New()
	env.otps.records[recID] = &models.OTPVerification{
		ID:           recID,
		Email:        "new@x.com",
		Phone:        "912345678",
		EmailOTP:     "482913",
		OTPExpiresAt: time.Now().Add(10 * time.Minute),
		FirstName:    "Nuno",
		Password:     "staged-secret",
	}

	// Wrong code reports the remaining budget.
	resp, body := env.post(t, "/api/v1/auth/otp/verify", map[string]string{
		"email":    "new@x.com",
		"phone":    "912345678",
		"emailOTP": "000000",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid verification code", body["error"])
	assert.Equal(t, float64(models.MaxOTPAttempts-1), body["attemptsRemaining"])

	// Correct code promotes and consumes.
	resp, body = env.post(t, "/api/v1/auth/otp/verify", map[string]string{
		"email":    "new@x.com",
		"phone":    "912345678",
		"emailOTP": "482913",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "new@x.com", body["email"])
	assert.NotEmpty(t, body["userId"])

	// Replay finds no pending record.
	resp, _ = env.post(t, "/api/v1/auth/otp/verify", map[string]string{
		"email":    "new@x.com",
		"phone":    "912345678",
		"emailOTP": "482913",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVerifyOTP_HTTP_AttemptsExceeded(t *testing.T) {
	env := newServer(t, nil)
	recID := uuid.New()
	env.otps.records[recID] = &models.OTPVerification{
		ID:           recID,
		Email:        "new@x.com",
		Phone:        "912345678",
		EmailOTP:     "482913",
		Attempts:     models.MaxOTPAttempts,
		OTPExpiresAt: time.Now().Add(10 * time.Minute),
	}

	resp, _ := env.post(t, "/api/v1/auth/otp/verify", map[string]string{
		"email":    "new@x.com",
		"phone":    "912345678",
		"emailOTP": "482913",
	})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRouter_Preflight(t *testing.T) {
	env := newServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/api/v1/auth/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, Apikey")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	env := newServer(t, nil)

	resp, err := http.Get(env.server.URL + "/api/v1/auth/login")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestRouter_NotFound(t *testing.T) {
	env := newServer(t, nil)

	resp, err := http.Get(env.server.URL + "/api/v1/auth/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_Health(t *testing.T) {
	env := newServer(t, nil)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin_HTTP_Throttled(t *testing.T) {
	mr := miniredis.RunT(t)

	rc := &client.RedisClient{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { rc.Close() })
	limiter := redisrepo.NewRateLimitCache(rc, time.Minute, 2)

	env := newServer(t, limiter)
	env.addUser(t, &models.User{Email: "a@x.com", Role: models.RoleClient}, "secret1!")

	// Pin the caller identity so the fixed-window key stays stable across
	// requests regardless of connection reuse.
	send := func() (*http.Response, map[string]any) {
		payload, err := json.Marshal(map[string]string{"email": "a@x.com", "password": "secret1!"})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/auth/login", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Real-IP", "198.51.100.7")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })

		var decoded map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
		return resp, decoded
	}

	for i := 0; i < 2; i++ {
		resp, _ := send()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := send()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Too many requests", body["error"])
}
