package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/ImAdityaa12/storex-backend/internal/common"
	"github.com/ImAdityaa12/storex-backend/internal/obs"
	"github.com/ImAdityaa12/storex-backend/internal/store"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour

	otpPurposeReset = "password-reset"

	// RoleUser and RoleAdmin are the two roles the API distinguishes.
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Queries is the slice of the store the auth service needs.
type Queries interface {
	CreateUser(ctx context.Context, arg store.CreateUserParams) (store.User, error)
	GetUserByID(ctx context.Context, id pgtype.UUID) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	UpdateUserPassword(ctx context.Context, id pgtype.UUID, passwordHash string) error
	UpdateUserProfile(ctx context.Context, arg store.UpdateUserProfileParams) (store.User, error)
	ListUsers(ctx context.Context, limit, offset int32) ([]store.User, error)
	CountUsers(ctx context.Context) (int64, error)
	UpdateUserRole(ctx context.Context, id pgtype.UUID, role string) (store.User, error)
}

// Sessions abstracts the refresh session store.
type Sessions interface {
	Create(ctx context.Context, userID, token string) error
	Consume(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

// CodeStore abstracts the one-time code store.
type CodeStore interface {
	Issue(ctx context.Context, purpose, subject string) (string, error)
	Verify(ctx context.Context, purpose, subject, code string) error
}

// ResetMailer delivers password reset codes.
type ResetMailer interface {
	SendPasswordResetCode(ctx context.Context, to, code string) error
}

// Service coordinates registration, login, token issuance and password
// recovery.
type Service struct {
	queries    Queries
	sessions   Sessions
	codes      CodeStore
	mailer     ResetMailer
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	signer     jwa.SignatureAlgorithm
	validator  TokenValidator
	issuer     string
	audience   string
	clockSkew  time.Duration
}

// Config configures the auth service.
type Config struct {
	Queries         Queries
	Sessions        Sessions
	Codes           CodeStore
	Mailer          ResetMailer
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
	Audience        string
	ClockSkew       time.Duration
}

// User represents a safe subset of the user model returned to clients.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoginResult bundles token material returned after a successful login.
type LoginResult struct {
	User          User      `json:"user"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// RefreshResult represents the outcome of a refresh operation.
type RefreshResult struct {
	AccessToken   string    `json:"access_token"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshToken  string    `json:"refresh_token"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

// RegisterInput carries the fields for a new account.
type RegisterInput struct {
	Name     string
	Username string
	Email    string
	Phone    string
	Password string
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("auth: queries is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "storex-backend"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "storex-frontend"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		queries:    cfg.Queries,
		sessions:   cfg.Sessions,
		codes:      cfg.Codes,
		mailer:     cfg.Mailer,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		signer:     jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:    issuer,
		audience:  audience,
		clockSkew: clockSkew,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Register creates a new user with the supplied credentials.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return User{}, common.NewAppError(common.CodeValidation, "name is required", http.StatusBadRequest, nil)
	}
	username := strings.TrimSpace(strings.ToLower(input.Username))
	if username == "" {
		return User{}, common.NewAppError(common.CodeValidation, "username is required", http.StatusBadRequest, nil)
	}
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" {
		return User{}, common.NewAppError(common.CodeValidation, "email is required", http.StatusBadRequest, nil)
	}
	if len(input.Password) < 8 {
		return User{}, common.NewAppError(common.CodeValidation, "password must be at least 8 characters", http.StatusBadRequest, nil)
	}

	hash, err := argon2id.CreateHash(input.Password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.queries.CreateUser(ctx, store.CreateUserParams{
		Name:         name,
		Username:     username,
		Email:        email,
		Phone:        store.ToText(strings.TrimSpace(input.Phone)),
		PasswordHash: hash,
		Role:         RoleUser,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "username") {
				return User{}, common.NewAppError("USERNAME_ALREADY_USED", "username is already taken", http.StatusConflict, err)
			}
			return User{}, common.NewAppError("EMAIL_ALREADY_USED", "email is already registered", http.StatusConflict, err)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}

	return convertUser(created), nil
}

// Login verifies credentials and issues a new JWT/refresh token pair.
// The identifier may be an email address or a username.
func (s *Service) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	id := strings.TrimSpace(strings.ToLower(identifier))
	if id == "" || password == "" {
		return LoginResult{}, common.NewAppError("INVALID_CREDENTIALS", "invalid credentials", http.StatusUnauthorized, nil)
	}

	var (
		dbUser store.User
		err    error
	)
	if strings.Contains(id, "@") {
		dbUser, err = s.queries.GetUserByEmail(ctx, id)
	} else {
		dbUser, err = s.queries.GetUserByUsername(ctx, id)
	}
	if err != nil {
		return LoginResult{}, common.NewAppError("INVALID_CREDENTIALS", "invalid credentials", http.StatusUnauthorized, nil)
	}

	ok, err := argon2id.ComparePasswordAndHash(password, dbUser.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, common.NewAppError("INVALID_CREDENTIALS", "invalid credentials", http.StatusUnauthorized, nil)
	}

	return s.issueTokens(ctx, dbUser)
}

func (s *Service) issueTokens(ctx context.Context, dbUser store.User) (LoginResult, error) {
	userID := store.UUIDString(dbUser.ID)
	if userID == "" {
		return LoginResult{}, errors.New("auth: invalid user identifier")
	}

	accessToken, accessExpiry, err := s.signAccessToken(userID, dbUser.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := generateToken(48)
	if err != nil {
		return LoginResult{}, fmt.Errorf("generate refresh token: %w", err)
	}
	refreshExpiry := s.now().Add(s.refreshTTL)
	if s.sessions != nil {
		if err := s.sessions.Create(ctx, userID, refreshToken); err != nil {
			return LoginResult{}, fmt.Errorf("store session: %w", err)
		}
	}

	return LoginResult{
		User:          convertUser(dbUser),
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Logout revokes the refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	token := strings.TrimSpace(refreshToken)
	if token == "" || s.sessions == nil {
		return nil
	}
	return s.sessions.Delete(ctx, token)
}

// Refresh rotates a refresh token, issuing a fresh token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	token := strings.TrimSpace(refreshToken)
	if token == "" || s.sessions == nil {
		return RefreshResult{}, common.NewAppError(common.CodeUnauthorized, "invalid refresh token", http.StatusUnauthorized, nil)
	}

	userID, err := s.sessions.Consume(ctx, token)
	if err != nil {
		return RefreshResult{}, common.NewAppError(common.CodeUnauthorized, "invalid refresh token", http.StatusUnauthorized, err)
	}

	uid, err := store.ToUUID(userID)
	if err != nil {
		return RefreshResult{}, common.NewAppError(common.CodeUnauthorized, "invalid refresh token", http.StatusUnauthorized, err)
	}
	dbUser, err := s.queries.GetUserByID(ctx, uid)
	if err != nil {
		return RefreshResult{}, common.NewAppError(common.CodeUnauthorized, "invalid refresh token", http.StatusUnauthorized, err)
	}

	accessToken, accessExpiry, err := s.signAccessToken(userID, dbUser.Role)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("sign access token: %w", err)
	}

	newRefresh, err := generateToken(48)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("generate refresh token: %w", err)
	}
	refreshExpiry := s.now().Add(s.refreshTTL)
	if err := s.sessions.Create(ctx, userID, newRefresh); err != nil {
		return RefreshResult{}, fmt.Errorf("store session: %w", err)
	}

	return RefreshResult{
		AccessToken:   accessToken,
		AccessExpiry:  accessExpiry,
		RefreshToken:  newRefresh,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Me fetches the current authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, common.NewAppError(common.CodeUnauthorized, "unauthorized", http.StatusUnauthorized, nil)
	}
	id, err := store.ToUUID(userID)
	if err != nil {
		return User{}, common.NewAppError(common.CodeUnauthorized, "unauthorized", http.StatusUnauthorized, nil)
	}
	dbUser, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		return User{}, common.NewAppError(common.CodeUnauthorized, "unauthorized", http.StatusUnauthorized, nil)
	}
	return convertUser(dbUser), nil
}

// UpdateProfileInput carries the editable profile fields.
type UpdateProfileInput struct {
	Name     string
	Phone    string
	ImageURL string
}

// UpdateProfile edits the caller's display name, phone and avatar.
func (s *Service) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (User, error) {
	id, err := store.ToUUID(userID)
	if err != nil {
		return User{}, common.NewAppError(common.CodeUnauthorized, "unauthorized", http.StatusUnauthorized, nil)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return User{}, common.NewAppError(common.CodeValidation, "name is required", http.StatusBadRequest, nil)
	}
	updated, err := s.queries.UpdateUserProfile(ctx, store.UpdateUserProfileParams{
		ID:       id,
		Name:     name,
		Phone:    store.ToText(strings.TrimSpace(input.Phone)),
		ImageURL: store.ToText(strings.TrimSpace(input.ImageURL)),
	})
	if err != nil {
		return User{}, fmt.Errorf("update profile: %w", err)
	}
	return convertUser(updated), nil
}

// ListUsers pages through every account. Admin only.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	offset := int32((page - 1) * perPage)
	rows, err := s.queries.ListUsers(ctx, int32(perPage), offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	total, err := s.queries.CountUsers(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	out := make([]User, 0, len(rows))
	for _, u := range rows {
		out = append(out, convertUser(u))
	}
	return out, total, nil
}

// UpdateRole promotes or demotes an account. Every refresh session the
// subject holds is revoked so the old role cannot outlive its access
// token.
func (s *Service) UpdateRole(ctx context.Context, userID, role string) (User, error) {
	role = strings.TrimSpace(role)
	if role != RoleUser && role != RoleAdmin {
		return User{}, common.NewAppError(common.CodeValidation, "role must be user or admin", http.StatusBadRequest, nil)
	}
	userID = strings.TrimSpace(userID)
	id, err := store.ToUUID(userID)
	if err != nil {
		return User{}, common.NewAppError("USER_NOT_FOUND", "user not found", http.StatusNotFound, err)
	}
	updated, err := s.queries.UpdateUserRole(ctx, id, role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, common.NewAppError("USER_NOT_FOUND", "user not found", http.StatusNotFound, err)
		}
		return User{}, fmt.Errorf("update role: %w", err)
	}
	if s.sessions != nil {
		if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
			return User{}, fmt.Errorf("revoke sessions: %w", err)
		}
	}
	return convertUser(updated), nil
}

// Forgot issues a password reset code and mails it to the account owner.
// The response never discloses whether the email exists.
func (s *Service) Forgot(ctx context.Context, email string) error {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" || s.codes == nil {
		return nil
	}

	user, err := s.queries.GetUserByEmail(ctx, normalized)
	if err != nil {
		return nil
	}

	code, err := s.codes.Issue(ctx, otpPurposeReset, normalized)
	if err != nil {
		return fmt.Errorf("issue reset code: %w", err)
	}
	if obs.OTPIssuedTotal != nil {
		obs.OTPIssuedTotal.Inc()
	}

	if s.mailer == nil {
		return nil
	}
	if err := s.mailer.SendPasswordResetCode(ctx, user.Email, code); err != nil {
		return fmt.Errorf("send reset code: %w", err)
	}
	return nil
}

// Reset verifies the emailed code and updates the user's password. A
// successful reset revokes every refresh session the user holds.
func (s *Service) Reset(ctx context.Context, email, code, newPassword string) error {
	normalized := strings.TrimSpace(strings.ToLower(email))
	if normalized == "" || strings.TrimSpace(code) == "" {
		return common.NewAppError("INVALID_CODE", "invalid or expired code", http.StatusBadRequest, nil)
	}
	if len(newPassword) < 8 {
		return common.NewAppError("WEAK_PASSWORD", "password must be at least 8 characters", http.StatusBadRequest, nil)
	}
	if s.codes == nil {
		return errors.New("auth: code store not configured")
	}

	if err := s.codes.Verify(ctx, otpPurposeReset, normalized, strings.TrimSpace(code)); err != nil {
		if obs.OTPVerifyTotal != nil {
			obs.OTPVerifyTotal.WithLabelValues(verifyResult(err)).Inc()
		}
		switch {
		case errors.Is(err, ErrTooManyAttempts):
			return common.NewAppError("TOO_MANY_ATTEMPTS", "too many attempts, request a new code", http.StatusTooManyRequests, err)
		case errors.Is(err, ErrCodeExpired), errors.Is(err, ErrCodeMismatch):
			return common.NewAppError("INVALID_CODE", "invalid or expired code", http.StatusBadRequest, err)
		default:
			return fmt.Errorf("verify code: %w", err)
		}
	}
	if obs.OTPVerifyTotal != nil {
		obs.OTPVerifyTotal.WithLabelValues("ok").Inc()
	}

	user, err := s.queries.GetUserByEmail(ctx, normalized)
	if err != nil {
		return common.NewAppError("INVALID_CODE", "invalid or expired code", http.StatusBadRequest, err)
	}

	hash, err := argon2id.CreateHash(newPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.queries.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if s.sessions != nil {
		if err := s.sessions.DeleteAllForUser(ctx, store.UUIDString(user.ID)); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
	}
	return nil
}

func verifyResult(err error) string {
	switch {
	case errors.Is(err, ErrTooManyAttempts):
		return "locked"
	case errors.Is(err, ErrCodeExpired):
		return "expired"
	default:
		return "mismatch"
	}
}

// ParseAccessToken validates an access token and returns subject and role.
func (s *Service) ParseAccessToken(token string) (string, string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", "", common.NewAppError(common.CodeUnauthorized, "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return "", "", common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return "", "", common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return "", "", common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", "", common.NewAppError(common.CodeUnauthorized, "invalid token", http.StatusUnauthorized, err)
	}
	role := ""
	if v, ok := parsed.Get("role"); ok {
		role, _ = v.(string)
	}
	return parsed.Subject(), role, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", fmt.Errorf("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func (s *Service) signAccessToken(userID, role string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim("role", role)
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func generateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func convertUser(u store.User) User {
	return User{
		ID:        store.UUIDString(u.ID),
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		Phone:     store.TextString(u.Phone),
		ImageURL:  store.TextString(u.ImageURL),
		Role:      u.Role,
		CreatedAt: store.TimestampTime(u.CreatedAt),
		UpdatedAt: store.TimestampTime(u.UpdatedAt),
	}
}
