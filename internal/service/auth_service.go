package service

import (
	"context"
	"errors"

	"github.com/microfin/ledger-backend/internal/domain"
	"github.com/microfin/ledger-backend/internal/websocket"
	"github.com/rs/zerolog/log"
)

// Ensure AuthService can back websocket token validation
var _ websocket.ChannelLookup = (*AuthService)(nil)

// AuthService resolves authenticated identities into ledger principals
type AuthService struct {
	userRepo  domain.UserRepository
	agentRepo domain.AgentRepository
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo domain.UserRepository, agentRepo domain.AgentRepository) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		agentRepo: agentRepo,
	}
}

// ResolvePrincipal maps an Auth0 subject to a principal. An AGENT user without an
// agent profile resolves to a principal with no AgentID, which can reach no borrower.
func (s *AuthService) ResolvePrincipal(ctx context.Context, auth0ID string) (*domain.Principal, error) {
	user, err := s.userRepo.GetByAuth0ID(ctx, auth0ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Error().Err(err).Str("auth0_id", auth0ID).Msg("Failed to get user")
		}
		return nil, err
	}
	if !user.Role.Valid() {
		log.Warn().Str("user_id", user.ID.String()).Str("role", string(user.Role)).Msg("User has unknown role")
		return nil, domain.ErrForbidden
	}

	principal := &domain.Principal{UserID: user.ID, Role: user.Role}
	if user.Role != domain.RoleAgent {
		return principal, nil
	}

	agent, err := s.agentRepo.GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			log.Warn().Str("user_id", user.ID.String()).Msg("Agent user has no agent profile")
			return principal, nil
		}
		return nil, err
	}
	principal.AgentID = &agent.ID
	return principal, nil
}

// GetChannelByAuth0ID returns the websocket channel for a subject: the admin
// channel for admins, the agent ID for agents
func (s *AuthService) GetChannelByAuth0ID(ctx context.Context, auth0ID string) (int32, error) {
	principal, err := s.ResolvePrincipal(ctx, auth0ID)
	if err != nil {
		return 0, err
	}
	if principal.IsAdmin() {
		return websocket.AdminChannel, nil
	}
	if principal.AgentID == nil {
		return 0, domain.ErrAgentNotFound
	}
	return *principal.AgentID, nil
}
