// Package session issues and verifies the signed bearer tokens handed out
// at login.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/nexus360/internal/apperror"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const issuer = "nexus360"

var Module = fx.Module("session",
	fx.Provide(NewManager),
)

var (
	ErrInvalidToken  = apperror.Auth("invalid_token")
	ErrMissingSecret = errors.New("session: AUTH_JWT_SECRET is required in production")
)

// Claims identify the tenant, the user, and the role at issue time.
type Claims struct {
	OrgID  snowflake.ID `json:"org_id"`
	UserID snowflake.ID `json:"user_id"`
	Role   string       `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

type Params struct {
	fx.In

	Config config.Config
	Clock  clock.Clock
	Log    *zap.Logger
}

// NewManager signs with AUTH_JWT_SECRET. Outside production an empty secret
// is replaced by a random one, so tokens do not survive a restart.
func NewManager(p Params) (*Manager, error) {
	secret := []byte(p.Config.AuthJWTSecret)
	if len(secret) == 0 {
		if p.Config.IsProduction() {
			return nil, ErrMissingSecret
		}
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		secret = []byte(hex.EncodeToString(raw))
		p.Log.Named("session").Warn("AUTH_JWT_SECRET not set, using an ephemeral signing key")
	}
	return New(secret, p.Config.AuthTokenTTL, p.Clock), nil
}

func New(secret []byte, ttl time.Duration, clk clock.Clock) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{secret: secret, ttl: ttl, clock: clk}
}

func (m *Manager) Issue(orgID, userID snowflake.ID, role string) (string, time.Time, error) {
	now := m.clock.Now()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		OrgID:  orgID,
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (m *Manager) Parse(raw string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.OrgID == 0 || claims.UserID == 0 {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
