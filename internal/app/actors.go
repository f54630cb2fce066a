package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"toolgate/internal/domain"
	"toolgate/internal/infra/platform"
)

// loadConcurrency bounds parallel definition fetches during a bulk load.
const loadConcurrency = 6

// LoadActors fetches actor definitions concurrently, builds catalog entries
// and publishes them in one atomic upsert. Actors that cannot be loaded are
// skipped with a log line; the rest still land. The returned slice holds the
// accepted entries in input order.
func (s *Server) LoadActors(ctx context.Context, token string, names []string, entitlements []string) ([]*domain.ToolEntry, error) {
	if len(names) == 0 {
		return nil, nil
	}

	entitled := make(map[string]struct{}, len(entitlements))
	for _, e := range entitlements {
		entitled[e] = struct{}{}
	}

	entries := make([]*domain.ToolEntry, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)

	for i, name := range names {
		g.Go(func() error {
			entry, err := s.buildActorEntry(gctx, token, name, entitled)
			if err != nil {
				s.logger.Warn("actor skipped", zap.String("actor", name), zap.Error(err))
				return nil
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := make([]*domain.ToolEntry, 0, len(entries))
	for _, entry := range entries {
		if entry != nil {
			batch = append(batch, entry)
		}
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("none of %d actors could be loaded", len(names))
	}

	accepted := s.Upsert(batch)
	s.logger.Info("actors loaded", zap.Int("requested", len(names)), zap.Int("published", len(accepted)))
	return accepted, nil
}

// buildActorEntry resolves one actor through the metadata caches and turns
// it into a remote-action entry. Rental actors pass only when the deployment
// allows them or the caller is entitled.
func (s *Server) buildActorEntry(ctx context.Context, token, name string, entitled map[string]struct{}) (*domain.ToolEntry, error) {
	actorID, err := s.caches.ActorID(ctx, token, name)
	if err != nil {
		return nil, fmt.Errorf("resolve actor: %w", err)
	}
	def, err := s.caches.Definition(ctx, token, actorID)
	if err != nil {
		return nil, fmt.Errorf("fetch definition: %w", err)
	}
	if def.Actor.Rental && !s.cfg.EnableRentedActors {
		if _, ok := entitled[def.Actor.FullName()]; !ok {
			return nil, fmt.Errorf("%s is a rental actor: %w", def.Actor.FullName(), domain.ErrActorNotFound)
		}
	}
	return platform.BuildActorTool(def, s.cfg.MaxMemoryMbytes)
}
