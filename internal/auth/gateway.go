// ABOUTME: Auth gateway interface and local passcode implementation.
// ABOUTME: Issues one-time codes (bcrypt-hashed, TTL-bound) and mints JWT credentials.

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/solace-app/solace-core/internal/store"
)

// Auth errors
var (
	ErrMalformedIdentity = errors.New("malformed identity")
	ErrInvalidCode       = errors.New("invalid or expired code")
	ErrDeliveryRejected  = errors.New("passcode delivery rejected")
	ErrNoCredential      = errors.New("no stored credential")
)

// Credential is an authenticated session token for an identity.
type Credential struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the credential is past its expiry.
func (c *Credential) Expired() bool {
	return time.Now().After(c.ExpiresAt)
}

// Gateway defines the passcode exchange consumed by the Manager.
type Gateway interface {
	RequestCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) (*Credential, error)
}

// Deliverer sends a one-time code to an identity out-of-band.
// The transport (email, SMS) is outside this package.
type Deliverer func(ctx context.Context, email, code string) error

// GatewayStore defines what the local gateway needs from storage.
type GatewayStore interface {
	store.PasscodeStore
	EnsureIdentity(ctx context.Context, identity *store.Identity) error
}

// LocalGateway implements Gateway against local storage: codes are
// stored bcrypt-hashed with a TTL and consumed on first successful
// verification, which also mints an HS256 JWT credential.
type LocalGateway struct {
	store      GatewayStore
	deliver    Deliverer
	secret     []byte
	codeLength int
	codeTTL    time.Duration
	credTTL    time.Duration
	logger     *slog.Logger
}

// LocalGatewayConfig carries LocalGateway construction parameters.
type LocalGatewayConfig struct {
	Secret        []byte
	CodeLength    int
	CodeTTL       time.Duration
	CredentialTTL time.Duration
}

// NewLocalGateway creates a gateway issuing codes through deliver.
func NewLocalGateway(s GatewayStore, deliver Deliverer, cfg LocalGatewayConfig) *LocalGateway {
	return &LocalGateway{
		store:      s,
		deliver:    deliver,
		secret:     cfg.Secret,
		codeLength: cfg.CodeLength,
		codeTTL:    cfg.CodeTTL,
		credTTL:    cfg.CredentialTTL,
		logger:     slog.Default().With("component", "auth-gateway"),
	}
}

// RequestCode generates a fresh one-time code for email, stores its hash,
// and hands the clear code to the deliverer. A new request replaces any
// outstanding code for the identity.
func (g *LocalGateway) RequestCode(ctx context.Context, email string) error {
	code, err := generateCode(g.codeLength)
	if err != nil {
		return fmt.Errorf("generating code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing code: %w", err)
	}

	if err := g.store.SavePasscode(ctx, &store.Passcode{
		Email:     email,
		CodeHash:  string(hash),
		ExpiresAt: time.Now().Add(g.codeTTL),
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("storing passcode: %w", err)
	}

	if err := g.deliver(ctx, email, code); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryRejected, err)
	}

	g.logger.Debug("passcode issued", "email", email)
	return nil
}

// VerifyCode exchanges a one-time code for a credential. The code is
// single-use: it is consumed on success. The identity is upserted as
// verified, creating it on first verification.
func (g *LocalGateway) VerifyCode(ctx context.Context, email, code string) (*Credential, error) {
	pc, err := g.store.GetPasscode(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("loading passcode: %w", err)
	}

	if time.Now().After(pc.ExpiresAt) {
		return nil, ErrInvalidCode
	}

	if err := bcrypt.CompareHashAndPassword([]byte(pc.CodeHash), []byte(code)); err != nil {
		return nil, ErrInvalidCode
	}

	if err := g.store.ConsumePasscode(ctx, email); err != nil {
		return nil, fmt.Errorf("consuming passcode: %w", err)
	}

	if err := g.store.EnsureIdentity(ctx, &store.Identity{
		Email:    email,
		Verified: true,
	}); err != nil {
		return nil, fmt.Errorf("ensuring identity: %w", err)
	}

	cred, err := g.mintCredential(email)
	if err != nil {
		return nil, fmt.Errorf("minting credential: %w", err)
	}

	g.logger.Info("identity verified", "email", email)
	return cred, nil
}

// mintCredential creates an HS256 JWT with the identity in the "sub" claim.
func (g *LocalGateway) mintCredential(email string) (*Credential, error) {
	now := time.Now()
	expiresAt := now.Add(g.credTTL)

	claims := jwt.MapClaims{
		"sub": email,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return nil, err
	}

	return &Credential{
		Email:     email,
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyToken validates a credential token and returns the identity it
// was issued to. Used by anything that trusts stored credentials.
func (g *LocalGateway) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCode
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCode
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrInvalidCode
	}
	return sub, nil
}

// generateCode returns a numeric one-time code of the given length.
func generateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
