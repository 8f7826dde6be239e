package websocket

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/rs/zerolog/log"
)

// ErrInvalidToken is returned when JWT validation fails
var ErrInvalidToken = errors.New("invalid token")

// ErrChannelNotFound is returned when the token subject has no ledger profile
var ErrChannelNotFound = errors.New("channel not found")

// ChannelLookup resolves the hub channel for an Auth0 subject
type ChannelLookup interface {
	GetChannelByAuth0ID(ctx context.Context, auth0ID string) (channel int32, err error)
}

// TokenValidator checks a raw JWT and returns its validated claims
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (interface{}, error)
}

// CustomClaims contains the custom claims from Auth0 JWT
type CustomClaims struct{}

// Validate implements validator.CustomClaims
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// Auth0JWTValidator authenticates feed connections and picks their channel
type Auth0JWTValidator struct {
	validator     TokenValidator
	channelLookup ChannelLookup
}

// NewAuth0JWTValidator creates a validator backed by the tenant's JWKS
func NewAuth0JWTValidator(domain, audience string, channelLookup ChannelLookup) (*Auth0JWTValidator, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, err
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return NewAuth0JWTValidatorWithValidator(jwtValidator, channelLookup), nil
}

// NewAuth0JWTValidatorWithValidator wires an existing token validator
func NewAuth0JWTValidatorWithValidator(v TokenValidator, channelLookup ChannelLookup) *Auth0JWTValidator {
	return &Auth0JWTValidator{validator: v, channelLookup: channelLookup}
}

// ValidateToken validates a JWT and returns the channel its subject listens on:
// AdminChannel for admins, the agent ID for agents
func (v *Auth0JWTValidator) ValidateToken(ctx context.Context, token string) (channel int32, err error) {
	claims, err := v.validator.ValidateToken(ctx, token)
	if err != nil {
		return 0, ErrInvalidToken
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok || validatedClaims.RegisteredClaims.Subject == "" {
		return 0, ErrInvalidToken
	}
	subject := validatedClaims.RegisteredClaims.Subject

	ch, err := v.channelLookup.GetChannelByAuth0ID(ctx, subject)
	if err != nil {
		log.Debug().Err(err).Str("auth0_id", subject).Msg("No feed channel for subject")
		return 0, ErrChannelNotFound
	}

	return ch, nil
}
