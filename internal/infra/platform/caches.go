package platform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/cache"
)

const (
	cacheActorIDs    = "actor_ids"
	cacheDefinitions = "actor_definitions"
	cacheUsers       = "users_by_token"
)

// Caches are the read-through metadata caches in front of the platform API.
// Actor ids never expire (immutable once resolved); definitions expire on an
// hour scale; token-to-user mappings are keyed by a one-way hash of the
// token, never the raw token, so an inspected cache cannot leak secrets.
type Caches struct {
	api         API
	actorIDs    *cache.Cache[string]
	definitions *cache.Cache[*ActorDefinition]
	users       *cache.Cache[string]
	metrics     domain.Metrics
	logger      *zap.Logger
}

// NewCaches builds the cache set over the given API.
func NewCaches(api API, metrics domain.Metrics, logger *zap.Logger) *Caches {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caches{
		api:         api,
		actorIDs:    cache.New[string](0, 0),
		definitions: cache.New[*ActorDefinition](domain.DefaultDefinitionCacheTTL, domain.DefaultDefinitionCacheCapacity),
		users:       cache.New[string](domain.DefaultUserCacheTTL, domain.DefaultUserCacheCapacity),
		metrics:     metrics,
		logger:      logger.Named("metadata_cache"),
	}
}

// ActorID resolves a short or full actor identifier to the canonical id.
// Only publicly visible actors are cached across sessions.
func (c *Caches) ActorID(ctx context.Context, token, identifier string) (string, error) {
	if id, ok := c.actorIDs.Get(identifier); ok {
		c.observe(cacheActorIDs, true)
		return id, nil
	}
	c.observe(cacheActorIDs, false)

	return c.actorIDs.GetOrFetch(ctx, identifier, func(ctx context.Context) (string, bool, error) {
		actor, err := c.api.GetActor(ctx, token, identifier)
		if err != nil {
			return "", false, err
		}
		return actor.ID, actor.Public, nil
	})
}

// Definition resolves an actor definition, cached for public actors.
func (c *Caches) Definition(ctx context.Context, token, actorID string) (*ActorDefinition, error) {
	if def, ok := c.definitions.Get(actorID); ok {
		c.observe(cacheDefinitions, true)
		return def, nil
	}
	c.observe(cacheDefinitions, false)

	return c.definitions.GetOrFetch(ctx, actorID, func(ctx context.Context) (*ActorDefinition, bool, error) {
		def, err := c.api.GetActorDefinition(ctx, token, actorID)
		if err != nil {
			return nil, false, err
		}
		c.logger.Debug("actor definition fetched", zap.String("actor", def.Actor.FullName()))
		return def, def.Actor.Public, nil
	})
}

// UserID resolves the token owner's user id.
func (c *Caches) UserID(ctx context.Context, token string) (string, error) {
	key := hashToken(token)
	if id, ok := c.users.Get(key); ok {
		c.observe(cacheUsers, true)
		return id, nil
	}
	c.observe(cacheUsers, false)

	return c.users.GetOrFetch(ctx, key, func(ctx context.Context) (string, bool, error) {
		user, err := c.api.GetCurrentUser(ctx, token)
		if err != nil {
			return "", false, err
		}
		return user.ID, true, nil
	})
}

func (c *Caches) observe(name string, hit bool) {
	if c.metrics != nil {
		c.metrics.ObserveCacheLookup(name, hit)
	}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
