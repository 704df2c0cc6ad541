package service_test

import (
	"context"
	"sync"
	"time"

	"identity-service/internal/config"
	"identity-service/internal/events"
	"identity-service/internal/hashing"
	"identity-service/internal/models"
	"identity-service/internal/repository/postgres"
	"identity-service/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// In-memory fakes implementing the store contracts. Stateful on purpose:
// the single-use and attempt-counter properties need writes to stick.

type fakeUsers struct {
	mu       sync.Mutex
	byEmail  map[string]*models.User
	created  []*models.User
	profiles int
	updates  []postgres.UserProfileUpdate
	failWith error
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byEmail: make(map[string]*models.User)}
	for _, u := range users {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		f.byEmail[u.Email] = u
	}
	return f
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	if u, ok := f.byEmail[email]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, postgres.ErrNotFound
}

func (f *fakeUsers) FindByEmailAndRoles(ctx context.Context, email string, roles []models.Role) (*models.User, error) {
	u, err := f.FindByEmail(ctx, email)
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

func (f *fakeUsers) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[user.Email]; ok {
		return postgres.ErrDuplicateEmail
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now().UTC()
	f.byEmail[user.Email] = user
	f.created = append(f.created, user)
	return nil
}

func (f *fakeUsers) CreateClientUser(ctx context.Context, user *models.User) error {
	if err := f.Create(ctx, user); err != nil {
		return err
	}
	f.mu.Lock()
	f.profiles++
	f.mu.Unlock()
	return nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id uuid.UUID, upd postgres.UserProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byEmail {
		if u.ID == id {
			f.updates = append(f.updates, upd)
			return nil
		}
	}
	return postgres.ErrNotFound
}

type fakeTokens struct {
	mu       sync.Mutex
	byToken  map[string]*models.PasswordResetToken
	consumed []string // password hashes written on consume
}

func newFakeTokens(tokens ...*models.PasswordResetToken) *fakeTokens {
	f := &fakeTokens{byToken: make(map[string]*models.PasswordResetToken)}
	for _, t := range tokens {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		f.byToken[t.Token] = t
	}
	return f
}

func (f *fakeTokens) FindActive(_ context.Context, token string) (*models.PasswordResetToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byToken[token]
	if !ok || t.Used || !t.ExpiresAt.After(time.Now()) {
		return nil, postgres.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (f *fakeTokens) Consume(_ context.Context, tokenID, userID uuid.UUID, newPasswordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.byToken {
		if t.ID == tokenID {
			if t.Used {
				return postgres.ErrNotFound
			}
			t.Used = true
			f.consumed = append(f.consumed, newPasswordHash)
			return nil
		}
	}
	return postgres.ErrNotFound
}

type fakeOTPs struct {
	mu      sync.Mutex
	records map[string]*models.OTPVerification
}

func otpKey(email, phone string) string { return email + "|" + phone }

func newFakeOTPs(records ...*models.OTPVerification) *fakeOTPs {
	f := &fakeOTPs{records: make(map[string]*models.OTPVerification)}
	for _, r := range records {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		f.records[otpKey(r.Email, r.Phone)] = r
	}
	return f
}

func (f *fakeOTPs) FindPending(_ context.Context, email, phone string) (*models.OTPVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[otpKey(email, phone)]
	if !ok || !r.OTPExpiresAt.After(time.Now()) {
		return nil, postgres.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeOTPs) IncrementAttempts(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			r.Attempts++
			return r.Attempts, nil
		}
	}
	return 0, postgres.ErrNotFound
}

func (f *fakeOTPs) MarkVerified(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			r.EmailVerified = true
			r.PhoneVerified = true
			return nil
		}
	}
	return postgres.ErrNotFound
}

func (f *fakeOTPs) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, r := range f.records {
		if r.ID == id {
			delete(f.records, k)
			return nil
		}
	}
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.AuthEvent
}

func (f *fakePublisher) Publish(_ context.Context, event models.AuthEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.events))
	for i, e := range f.events {
		types[i] = e.EventType
	}
	return types
}

var _ postgres.UserRepository = (*fakeUsers)(nil)
var _ postgres.ResetTokenRepository = (*fakeTokens)(nil)
var _ postgres.OTPRepository = (*fakeOTPs)(nil)
var _ events.Publisher = (*fakePublisher)(nil)

type testEnv struct {
	users     *fakeUsers
	tokens    *fakeTokens
	otps      *fakeOTPs
	publisher *fakePublisher
	hasher    *hashing.Hasher
	svc       *service.AuthService
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{PasswordMinLength: 8},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	}
}

func newTestEnv(users *fakeUsers, tokens *fakeTokens, otps *fakeOTPs) *testEnv {
	if users == nil {
		users = newFakeUsers()
	}
	if tokens == nil {
		tokens = newFakeTokens()
	}
	if otps == nil {
		otps = newFakeOTPs()
	}
	cfg := testConfig()
	hasher := hashing.NewHasher(cfg)
	publisher := &fakePublisher{}
	svc := service.NewAuthService(users, tokens, otps, hasher, publisher, cfg, zap.NewNop())
	return &testEnv{
		users:     users,
		tokens:    tokens,
		otps:      otps,
		publisher: publisher,
		hasher:    hasher,
		svc:       svc,
	}
}

func mustHash(h *hashing.Hasher, secret string) string {
	hash, err := h.Hash(secret)
	if err != nil {
		panic(err)
	}
	return hash
}
