package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"

	"github.com/ImAdityaa12/storex-backend/internal/store"
)

type fakeQueries struct {
	mu      sync.Mutex
	byID    map[string]store.User
	byEmail map[string]store.User
	byName  map[string]store.User
}

func newFakeQueries() *fakeQueries {
	return &fakeQueries{
		byID:    make(map[string]store.User),
		byEmail: make(map[string]store.User),
		byName:  make(map[string]store.User),
	}
}

func (f *fakeQueries) put(u store.User) {
	f.byID[store.UUIDString(u.ID)] = u
	f.byEmail[u.Email] = u
	f.byName[u.Username] = u
}

func (f *fakeQueries) CreateUser(_ context.Context, arg store.CreateUserParams) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[arg.Email]; ok {
		return store.User{}, duplicateErr("users_email_key")
	}
	if _, ok := f.byName[arg.Username]; ok {
		return store.User{}, duplicateErr("users_username_key")
	}
	id := uuid.New()
	u := store.User{
		ID:           pgtype.UUID{Bytes: id, Valid: true},
		Name:         arg.Name,
		Username:     arg.Username,
		Email:        arg.Email,
		Phone:        arg.Phone,
		PasswordHash: arg.PasswordHash,
		Role:         arg.Role,
		CreatedAt:    pgtype.Timestamptz{Time: time.Now(), Valid: true},
		UpdatedAt:    pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	f.put(u)
	return u, nil
}

func (f *fakeQueries) GetUserByID(_ context.Context, id pgtype.UUID) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[store.UUIDString(id)]
	if !ok {
		return store.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (f *fakeQueries) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return store.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (f *fakeQueries) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byName[strings.ToLower(username)]
	if !ok {
		return store.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (f *fakeQueries) UpdateUserPassword(_ context.Context, id pgtype.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[store.UUIDString(id)]
	if !ok {
		return pgx.ErrNoRows
	}
	u.PasswordHash = passwordHash
	f.put(u)
	return nil
}

func (f *fakeQueries) UpdateUserProfile(_ context.Context, arg store.UpdateUserProfileParams) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[store.UUIDString(arg.ID)]
	if !ok {
		return store.User{}, pgx.ErrNoRows
	}
	u.Name = arg.Name
	u.Phone = arg.Phone
	if arg.ImageURL.Valid {
		u.ImageURL = arg.ImageURL
	}
	f.put(u)
	return u, nil
}

func (f *fakeQueries) ListUsers(_ context.Context, limit, offset int32) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.User
	for _, u := range f.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeQueries) CountUsers(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.byID)), nil
}

func (f *fakeQueries) UpdateUserRole(_ context.Context, id pgtype.UUID, role string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[store.UUIDString(id)]
	if !ok {
		return store.User{}, pgx.ErrNoRows
	}
	u.Role = role
	f.put(u)
	return u, nil
}

// duplicateErr mimics a unique constraint violation from postgres.
func duplicateErr(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

type capturedMail struct {
	To   string
	Code string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []capturedMail
}

func (m *fakeMailer) SendPasswordResetCode(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, capturedMail{To: to, Code: code})
	return nil
}

func (m *fakeMailer) last() (capturedMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return capturedMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

type testEnv struct {
	svc     *Service
	queries *fakeQueries
	mailer  *fakeMailer
	redis   *miniredis.Miniredis
}

func newTestService(t *testing.T) testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	queries := newFakeQueries()
	mailer := &fakeMailer{}
	svc, err := NewService(Config{
		Queries:         queries,
		Sessions:        SessionStore{R: client, TTL: time.Hour},
		Codes:           OTPStore{R: client, TTL: 10 * time.Minute, MaxAttempts: 3},
		Mailer:          mailer,
		Secret:          "super-secret-key",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return testEnv{svc: svc, queries: queries, mailer: mailer, redis: mr}
}

func mustRegister(t *testing.T, svc *Service, email string) User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Test User",
		Username: strings.Split(email, "@")[0],
		Email:    email,
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return u
}
