package service

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	appErrors "github.com/s22001503-hash/ouslpms-monorepo/pkg/errors"
)

const testProject = "ousl-print"

type firebaseSigner struct {
	key *rsa.PrivateKey
}

func newFirebaseSigner(t *testing.T) *firebaseSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &firebaseSigner{key: key}
}

func (s *firebaseSigner) verifier() *FirebaseVerifier {
	return newFirebaseVerifier(testProject, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&s.key.PublicKey}})
}

func (s *firebaseSigner) token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	now := time.Now()
	base := jwt.MapClaims{
		"iss": firebaseIssuerPrefix + testProject,
		"aud": testProject,
		"sub": "firebase-uid",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, base).SignedString(s.key)
	require.NoError(t, err)
	return signed
}

func TestFirebaseVerifierReadsEPFClaim(t *testing.T) {
	signer := newFirebaseSigner(t)
	identity, err := signer.verifier().VerifyIdentity(context.Background(), signer.token(t, jwt.MapClaims{
		"epf":   "1002",
		"email": "nimal@ou.ac.lk",
		"name":  "Nimal",
	}))
	require.NoError(t, err)
	assert.Equal(t, &Identity{EPF: "1002", Email: "nimal@ou.ac.lk", Name: "Nimal"}, identity)
}

func TestFirebaseVerifierFallsBackToEmail(t *testing.T) {
	signer := newFirebaseSigner(t)
	identity, err := signer.verifier().VerifyIdentity(context.Background(), signer.token(t, jwt.MapClaims{"email": "5001@ou.ac.lk"}))
	require.NoError(t, err)
	assert.Equal(t, "5001", identity.EPF)

	_, err = signer.verifier().VerifyIdentity(context.Background(), signer.token(t, jwt.MapClaims{}))
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestFirebaseVerifierRejectsForeignTokens(t *testing.T) {
	signer := newFirebaseSigner(t)
	ctx := context.Background()

	cases := map[string]string{
		"wrong audience": signer.token(t, jwt.MapClaims{"epf": "1002", "aud": "another-project"}),
		"wrong issuer":   signer.token(t, jwt.MapClaims{"epf": "1002", "iss": "https://accounts.example.com"}),
		"expired":        signer.token(t, jwt.MapClaims{"epf": "1002", "exp": time.Now().Add(-time.Hour).Unix()}),
		"other key":      newFirebaseSigner(t).token(t, jwt.MapClaims{"epf": "1002"}),
		"garbage":        "not-a-token",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := signer.verifier().VerifyIdentity(ctx, raw)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}

func TestLocalTokensRoundTrip(t *testing.T) {
	tokens := NewLocalTokens("secret", time.Hour, "printctl")
	user := &models.User{EPF: "5001", Role: models.RoleAdmin, Email: "admin@ou.ac.lk", Name: "Admin"}

	signed, expiresAt, err := tokens.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "5001", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "printctl", claims.Issuer)

	_, err = NewLocalTokens("other", time.Hour, "printctl").Parse(signed)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = tokens.Parse(signed)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
