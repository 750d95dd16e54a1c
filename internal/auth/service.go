package auth

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"sitescan/internal/redis"
)

var (
	ErrTokenRequired = eris.New("auth: token required")
	ErrInvalidToken  = eris.New("auth: invalid token")
	ErrTokenExpired  = eris.New("auth: token expired")
	ErrTokenRevoked  = eris.New("auth: token revoked")
)

const revokedKeyPrefix = "sitescan:revoked:"

// Claims are carried by every session token.
type Claims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// Service issues, validates, and revokes HS256 session tokens.
type Service struct {
	secret     []byte
	tokenTTL   time.Duration
	headerName string
	redis      *redis.Client
	local      *denylist
	now        func() time.Time
}

// NewService constructs an auth service. The redis client may be nil, in
// which case revocations are kept in process memory only.
func NewService(secret string, ttl time.Duration, rdb *redis.Client) (*Service, error) {
	if secret == "" {
		return nil, eris.New("auth: jwt secret must be configured")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		secret:     []byte(secret),
		tokenTTL:   ttl,
		headerName: "Authorization",
		redis:      rdb,
		local:      &denylist{entries: map[string]time.Time{}},
		now:        time.Now,
	}, nil
}

// IssueToken signs a new token for the user.
func (s *Service) IssueToken(_ context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", eris.New("auth: invalid user id")
	}
	now := s.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", eris.Wrap(err, "auth: sign token")
	}
	return signed, nil
}

// ValidateToken verifies signature, expiry and revocation.
func (s *Service) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.isRevoked(ctx, claims.ID)
	if err != nil {
		return nil, eris.Wrap(err, "auth: check revocation")
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// RevokeToken denies the token until it would have expired anyway.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil
		}
		return err
	}
	until := claims.ExpiresAt.Time
	if s.redis != nil {
		ttl := until.Sub(s.now())
		if ttl <= 0 {
			return nil
		}
		if err := s.redis.Set(ctx, revokedKeyPrefix+claims.ID, "1", ttl); err != nil {
			return eris.Wrap(err, "auth: store revocation")
		}
		return nil
	}
	s.local.add(claims.ID, until, s.now())
	return nil
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

func (s *Service) parse(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if claims.UserID <= 0 || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) isRevoked(ctx context.Context, jti string) (bool, error) {
	if s.redis != nil {
		return s.redis.Exists(ctx, revokedKeyPrefix+jti)
	}
	return s.local.has(jti, s.now()), nil
}

// denylist holds revoked token ids until their expiry.
type denylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func (d *denylist) add(jti string, until, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, exp := range d.entries {
		if !exp.After(now) {
			delete(d.entries, id)
		}
	}
	d.entries[jti] = until
}

func (d *denylist) has(jti string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.entries[jti]
	return ok && exp.After(now)
}
