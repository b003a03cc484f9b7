package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/solarvest/platform/internal/auth"
	"github.com/solarvest/platform/internal/model"
)

// APIKeyStore is the persistence for machine credentials.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, tenantID, id string) error
}

// AuthCache evicts cached key lookups.
type AuthCache interface {
	DeleteAuthContextByKeyID(ctx context.Context, keyID string) error
}

// APIKeyService issues and revokes API keys.
type APIKeyService struct {
	base
	keys  APIKeyStore
	cache AuthCache
	env   string
}

// NewAPIKeyService creates keys for env ("live" or "test").
func NewAPIKeyService(keys APIKeyStore, cache AuthCache, env string, opts Options) *APIKeyService {
	return &APIKeyService{base: newBase("apikey", opts), keys: keys, cache: cache, env: env}
}

// Create mints a key. The plaintext is returned once and never stored.
func (s *APIKeyService) Create(ctx context.Context, tenantID, userID string, req model.APIKeyCreateRequest) (*model.APIKeyCreateResponse, error) {
	var v model.ValidationErrors
	for _, scope := range req.Scopes {
		if !slices.Contains(model.ValidScopes, scope) {
			v.Add("scopes", "invalid scope: "+scope)
		}
	}
	v.MaxLen("name", req.Name, 100)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{model.ScopeRead}
	}

	generated, err := auth.GenerateAPIKey(s.env)
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}

	key := &model.APIKey{
		ID:            model.NewID(),
		TenantID:      tenantID,
		UserID:        userID,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        req.Scopes,
		RateLimitTier: model.TierStandard,
		Name:          req.Name,
		CreatedAt:     s.now(),
	}
	if err := s.keys.CreateAPIKey(ctx, key); err != nil {
		return nil, translate(err, ErrAPIKeyNotFound)
	}
	s.metrics.IncRecordCreated("api_key")
	s.logger.Info("api_key_created", "tenant_id", tenantID, "key_id", key.ID, "prefix", key.KeyPrefix)

	return &model.APIKeyCreateResponse{
		ID:            key.ID,
		Key:           generated.Plaintext,
		Name:          key.Name,
		KeyPrefix:     key.KeyPrefix,
		Scopes:        key.Scopes,
		RateLimitTier: key.RateLimitTier,
		CreatedAt:     key.CreatedAt,
	}, nil
}

func (s *APIKeyService) List(ctx context.Context, tenantID string) ([]model.APIKeyResponse, error) {
	keys, err := s.keys.ListAPIKeys(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	out := make([]model.APIKeyResponse, len(keys))
	for i, k := range keys {
		out[i] = k.ToResponse()
	}
	return out, nil
}

// Revoke disables a key and evicts it from the auth cache.
func (s *APIKeyService) Revoke(ctx context.Context, tenantID, id string) error {
	if err := s.keys.RevokeAPIKey(ctx, tenantID, id); err != nil {
		return translate(err, ErrAPIKeyNotFound)
	}
	if s.cache != nil {
		if err := s.cache.DeleteAuthContextByKeyID(ctx, id); err != nil {
			s.logger.Warn("auth_cache_evict_failed", "key_id", id, "error", err)
		}
	}
	s.metrics.IncRecordDeleted("api_key")
	s.logger.Info("api_key_revoked", "tenant_id", tenantID, "key_id", id)
	return nil
}
