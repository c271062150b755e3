// Package oidc accepts ID tokens from an external OpenID Connect issuer and
// maps them onto local alumni accounts.
package oidc

import (
	"context"
	"fmt"

	"github.com/alumni-network/alumni-backend-system/internal/models"
	"github.com/alumni-network/alumni-backend-system/pkg/logger"
	"github.com/alumni-network/alumni-backend-system/pkg/middleware"
	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	issuer   string
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the issuer and creates a verifier for clientID
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{issuer: issuer, verifier: verifier}, nil
}

// Verify checks signature, audience and expiry of a raw ID token
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// UserUpserter provisions local accounts from federated claims.
type UserUpserter interface {
	UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error)
}

// Bridge verifies upstream tokens and replaces their claims with the claims
// of the matching local user, creating that user on first sight.
type Bridge struct {
	upstream middleware.Verifier
	users    UserUpserter
}

func NewBridge(upstream middleware.Verifier, users UserUpserter) *Bridge {
	return &Bridge{upstream: upstream, users: users}
}

func (b *Bridge) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	tok, err := b.upstream.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode upstream claims: %w", err)
	}
	u, err := b.users.UpsertFromClaims(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("provision federated user: %w", err)
	}
	logger.With("user", u.ID, "sub", u.Sub).Debugf("federated login")
	return localToken{
		"sub":   u.ID,
		"email": u.Email,
		"role":  u.Role,
	}, nil
}

type localToken map[string]interface{}

func (t localToken) Claims(v interface{}) error {
	m, ok := v.(*map[string]interface{})
	if !ok {
		return fmt.Errorf("unsupported claims target %T", v)
	}
	*m = map[string]interface{}(t)
	return nil
}
