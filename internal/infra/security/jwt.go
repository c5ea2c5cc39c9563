package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken    = errors.New("token: invalid")
	ErrMissingSubject  = errors.New("token: subject claim missing")
	ErrSecretNotLoaded = errors.New("token: signing secret not configured")
)

// HMACVerifier validates HS256 bearer tokens issued by the platform's identity service.
// A verifier without a secret rejects every token unless it was built by NewInsecureVerifier.
type HMACVerifier struct {
	secret   []byte
	issuer   string
	leeway   time.Duration
	insecure bool
}

func NewHMACVerifier(secret, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}
}

// NewInsecureVerifier reads the subject without checking the signature. Local use only.
func NewInsecureVerifier() *HMACVerifier {
	return &HMACVerifier{insecure: true}
}

func (v *HMACVerifier) Verifies() bool {
	return !v.insecure && len(v.secret) > 0
}

// Subject returns the "sub" claim of a valid token.
func (v *HMACVerifier) Subject(tokenStr string) (string, error) {
	claims := jwt.RegisteredClaims{}
	if v.insecure {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return subjectOf(claims)
	}
	if len(v.secret) == 0 {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, ErrSecretNotLoaded)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return subjectOf(claims)
}

// Issue signs a token for subject. The messenger never issues tokens in production;
// this exists for fixtures and tests.
func (v *HMACVerifier) Issue(subject string, ttl time.Duration, now time.Time) (string, error) {
	if !v.Verifies() {
		return "", ErrSecretNotLoaded
	}
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func subjectOf(claims jwt.RegisteredClaims) (string, error) {
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}
