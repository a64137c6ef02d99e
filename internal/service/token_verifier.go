package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

const (
	firebaseIssuerPrefix = "https://securetoken.google.com/"
	firebaseJWKSURL      = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

// Identity is who an external identity token says the caller is. Roles are
// always resolved from the users table.
type Identity struct {
	EPF   string
	Email string
	Name  string
}

// IdentityVerifier validates an external identity token.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, rawToken string) (*Identity, error)
}

// FirebaseVerifier checks Firebase ID tokens against Google's signing keys.
type FirebaseVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewFirebaseVerifier builds a verifier for the given Firebase project. Keys
// are fetched lazily and cached by go-oidc.
func NewFirebaseVerifier(ctx context.Context, projectID string) (*FirebaseVerifier, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("firebase project id is required")
	}
	return newFirebaseVerifier(projectID, oidc.NewRemoteKeySet(ctx, firebaseJWKSURL)), nil
}

func newFirebaseVerifier(projectID string, keys oidc.KeySet) *FirebaseVerifier {
	cfg := &oidc.Config{ClientID: projectID}
	return &FirebaseVerifier{verifier: oidc.NewVerifier(firebaseIssuerPrefix+projectID, keys, cfg)}
}

type firebaseClaims struct {
	EPF   string `json:"epf"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// VerifyIdentity validates signature, issuer, audience and expiry. The EPF is
// taken from the custom epf claim, falling back to the email local part.
func (v *FirebaseVerifier) VerifyIdentity(ctx context.Context, rawToken string) (*Identity, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid identity token")
	}
	var claims firebaseClaims
	if err := token.Claims(&claims); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid identity token claims")
	}
	epf := strings.TrimSpace(claims.EPF)
	if epf == "" {
		if at := strings.IndexByte(claims.Email, '@'); at > 0 {
			epf = claims.Email[:at]
		}
	}
	if epf == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "identity token carries no epf")
	}
	return &Identity{EPF: epf, Email: claims.Email, Name: claims.Name}, nil
}

// LocalTokens issues and validates HS256 access tokens for the local provider.
type LocalTokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewLocalTokens constructs the issuer.
func NewLocalTokens(secret string, ttl time.Duration, issuer string) *LocalTokens {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &LocalTokens{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// TTL reports how long issued tokens stay valid.
func (t *LocalTokens) TTL() time.Duration { return t.ttl }

// Issue signs an access token for the user.
func (t *LocalTokens) Issue(user *models.User) (string, time.Time, error) {
	issuedAt := t.now().UTC()
	expiresAt := issuedAt.Add(t.ttl)
	claims := &models.JWTClaims{
		UserID: user.EPF,
		Role:   user.Role,
		Email:  user.Email,
		Name:   user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   user.EPF,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse validates a token and returns its claims.
func (t *LocalTokens) Parse(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// VerifyIdentity lets local tokens stand in for identity tokens on /auth/verify.
func (t *LocalTokens) VerifyIdentity(_ context.Context, rawToken string) (*Identity, error) {
	claims, err := t.Parse(rawToken)
	if err != nil {
		return nil, err
	}
	return &Identity{EPF: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
}
