// Package authjwt verifies bearer tokens against the identity contract in
// section 6 of the platform spec: every protected request carries a token
// that resolves to {user_id, email, status, user_type, access_api_docs}.
// Token issuance itself is an external collaborator's job; this package only
// consumes and validates tokens, consolidating what was previously
// duplicated verification logic behind one Verifier.
package authjwt

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/pkg/cache"
)

// Claims is the JWT payload shape issued (by an external IdP in production,
// or Issuer below for local/dev use) and consumed here.
type Claims struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Status        string `json:"status"`
	UserType      string `json:"user_type"`
	AccessAPIDocs bool   `json:"access_api_docs"`
	jwt.RegisteredClaims
}

// LocalUserLookup resolves whether email belongs to a known local user, used
// when RequireLocalUser is set.
type LocalUserLookup func(ctx context.Context, email string) (exists bool, whitelisted bool)

// Options configures a Verifier.
type Options struct {
	// RequireLocalUser rejects tokens for emails LocalUserLookup doesn't
	// recognize as an existing local user.
	RequireLocalUser bool
	// AutoCreateIfWhitelisted lets RequireLocalUser pass for an email
	// LocalUserLookup reports as whitelisted even without an existing
	// local user record; the caller is responsible for provisioning one.
	AutoCreateIfWhitelisted bool
	Lookup                  LocalUserLookup
}

// Verifier validates bearer tokens, consulting Tokens as a read-through
// cache so repeat requests avoid re-parsing and re-validating the JWT.
type Verifier struct {
	secret []byte
	cache  cache.Tokens
	opts   Options
}

// NewVerifier creates a Verifier. secret is the HMAC key used to validate
// token signatures; tokens is the read-through cache.
func NewVerifier(secret []byte, tokens cache.Tokens, opts Options) *Verifier {
	return &Verifier{secret: secret, cache: tokens, opts: opts}
}

// Verify parses and validates rawToken, returning the identity it carries.
// A missing token is the caller's responsibility to detect before calling
// Verify (see spec.md §6's distinct "Token not found" 400 versus a rejected
// token's 401/403).
func (v *Verifier) Verify(ctx context.Context, rawToken string) (cache.VerifiedIdentity, error) {
	if identity, ok := v.cache.Get(ctx, rawToken); ok {
		return v.authorize(ctx, identity)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Method)
		}
		return v.secret, nil
	})
	if err != nil {
		return cache.VerifiedIdentity{}, domain.Wrap(domain.CodeAuthUnauthenticated, err, "invalid token")
	}

	identity := cache.VerifiedIdentity{
		UserID:        claims.UserID,
		Email:         claims.Email,
		Status:        claims.Status,
		UserType:      claims.UserType,
		AccessAPIDocs: claims.AccessAPIDocs,
	}
	v.cache.Set(ctx, rawToken, identity)
	return v.authorize(ctx, identity)
}

func (v *Verifier) authorize(ctx context.Context, identity cache.VerifiedIdentity) (cache.VerifiedIdentity, error) {
	if identity.Status != "active" {
		return cache.VerifiedIdentity{}, domain.New(domain.CodeAuthForbidden, "user %s is %s", identity.UserID, identity.Status)
	}
	if v.opts.RequireLocalUser && v.opts.Lookup != nil {
		exists, whitelisted := v.opts.Lookup(ctx, identity.Email)
		if !exists && !(v.opts.AutoCreateIfWhitelisted && whitelisted) {
			return cache.VerifiedIdentity{}, domain.New(domain.CodeAuthForbidden, "no local user for %s", identity.Email)
		}
	}
	return identity, nil
}

// Issuer mints tokens for local/dev use, standing in for the external
// identity provider spec.md treats as out of scope.
type Issuer struct {
	secret  []byte
	idTTL   time.Duration
	refresh time.Duration
}

// NewIssuer creates an Issuer with the given signing secret.
func NewIssuer(secret []byte) *Issuer {
	return &Issuer{secret: secret, idTTL: 15 * time.Minute, refresh: 7 * 24 * time.Hour}
}

// IssuedTokens is the {id_token, refresh_token, user_id, expires_in} shape
// returned from sign-in and refresh.
type IssuedTokens struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Issue mints a fresh id token and refresh token for identity.
func (iss *Issuer) Issue(identity cache.VerifiedIdentity) (IssuedTokens, error) {
	now := time.Now()
	id, err := iss.sign(identity, now.Add(iss.idTTL))
	if err != nil {
		return IssuedTokens{}, err
	}
	refresh, err := iss.sign(identity, now.Add(iss.refresh))
	if err != nil {
		return IssuedTokens{}, err
	}
	return IssuedTokens{
		IDToken:      id,
		RefreshToken: refresh,
		UserID:       identity.UserID,
		ExpiresIn:    int64(iss.idTTL.Seconds()),
	}, nil
}

func (iss *Issuer) sign(identity cache.VerifiedIdentity, expiresAt time.Time) (string, error) {
	claims := Claims{
		UserID:        identity.UserID,
		Email:         identity.Email,
		Status:        identity.Status,
		UserType:      identity.UserType,
		AccessAPIDocs: identity.AccessAPIDocs,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(iss.secret)
}

// Refresh validates refreshToken and mints a new token pair for its
// identity, rejecting expired or tampered refresh tokens.
func (iss *Issuer) Refresh(refreshToken string) (IssuedTokens, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(refreshToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Method)
		}
		return iss.secret, nil
	})
	if err != nil {
		return IssuedTokens{}, domain.Wrap(domain.CodeAuthUnauthenticated, err, "invalid refresh token")
	}
	identity := cache.VerifiedIdentity{
		UserID: claims.UserID, Email: claims.Email, Status: claims.Status,
		UserType: claims.UserType, AccessAPIDocs: claims.AccessAPIDocs,
	}
	return iss.Issue(identity)
}
