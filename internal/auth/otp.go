package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/ImAdityaa12/storex-backend/internal/common"
)

// OTP verification failure modes. Callers map these onto API errors.
var (
	ErrCodeExpired     = errors.New("auth: code expired or not issued")
	ErrCodeMismatch    = errors.New("auth: code mismatch")
	ErrTooManyAttempts = errors.New("auth: too many attempts")
)

const otpDigits = 6

// OTPStore keeps one-time codes in Redis, keyed by purpose and subject.
// Codes expire with the key TTL and every verification attempt is counted
// atomically, so a code dies after MaxAttempts wrong guesses even when
// guesses race each other.
type OTPStore struct {
	R           *redis.Client
	TTL         time.Duration
	MaxAttempts int
}

func (s OTPStore) codeKey(purpose, subject string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, common.Sha256Hex(subject))
}

func (s OTPStore) attemptsKey(purpose, subject string) string {
	return fmt.Sprintf("otp:%s:%s:attempts", purpose, common.Sha256Hex(subject))
}

// Issue generates a fresh numeric code for the subject, replacing any
// outstanding one and resetting the attempt counter.
func (s OTPStore) Issue(ctx context.Context, purpose, subject string) (string, error) {
	if s.R == nil {
		return "", errors.New("auth: otp store not configured")
	}
	code, err := generateNumericCode(otpDigits)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	pipe := s.R.TxPipeline()
	pipe.Set(ctx, s.codeKey(purpose, subject), common.Sha256Hex(code), ttl)
	pipe.Del(ctx, s.attemptsKey(purpose, subject))
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	return code, nil
}

// Verify checks the supplied code and consumes it on success. The attempt
// counter is bumped before the comparison; once it passes MaxAttempts the
// code is burned regardless of what the caller sends next.
func (s OTPStore) Verify(ctx context.Context, purpose, subject, code string) error {
	if s.R == nil {
		return errors.New("auth: otp store not configured")
	}
	codeKey := s.codeKey(purpose, subject)
	attemptsKey := s.attemptsKey(purpose, subject)

	stored, err := s.R.Get(ctx, codeKey).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCodeExpired
	}
	if err != nil {
		return fmt.Errorf("load code: %w", err)
	}

	attempts, err := s.R.Incr(ctx, attemptsKey).Result()
	if err != nil {
		return fmt.Errorf("count attempt: %w", err)
	}
	if attempts == 1 {
		ttl := s.TTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		_ = s.R.Expire(ctx, attemptsKey, ttl).Err()
	}
	max := int64(s.MaxAttempts)
	if max <= 0 {
		max = 3
	}
	if attempts > max {
		_ = s.R.Del(ctx, codeKey, attemptsKey).Err()
		return ErrTooManyAttempts
	}

	if !common.ConstantTimeEquals(stored, common.Sha256Hex(code)) {
		return ErrCodeMismatch
	}

	// single use
	_ = s.R.Del(ctx, codeKey, attemptsKey).Err()
	return nil
}

func generateNumericCode(digits int) (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < digits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
