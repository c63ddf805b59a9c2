package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kiosco/backend/internal/cache"
	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/sequence"
	"kiosco/backend/internal/store"
	"kiosco/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Options carries the collaborators a Service needs besides its repository.
// Zero values fall back to in-process defaults.
type Options struct {
	Sequence       sequence.Generator
	ConfigCache    cache.ConfigurationCache
	ConfigCacheTTL time.Duration
	Location       *time.Location
	Logger         *zap.Logger
}

type Service struct {
	repo           store.Repository
	seq            sequence.Generator
	fallbackSeq    sequence.Generator
	configCache    cache.ConfigurationCache
	configCacheTTL time.Duration
	loc            *time.Location
	logger         *zap.Logger
	now            func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Sequence == nil {
		opts.Sequence = sequence.NewClockGenerator()
	}
	if opts.ConfigCache == nil {
		opts.ConfigCache = cache.NoopConfigurationCache{}
	}
	if opts.ConfigCacheTTL <= 0 {
		opts.ConfigCacheTTL = 5 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Service{
		repo:           repo,
		seq:            opts.Sequence,
		fallbackSeq:    sequence.NewClockGenerator(),
		configCache:    opts.ConfigCache,
		configCacheTTL: opts.ConfigCacheTTL,
		loc:            opts.Location,
		logger:         opts.Logger.Named("service"),
		now:            time.Now,
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, period string, limit int) ([]domain.AuditLog, error) {
	from, to, err := s.window(period, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("aud"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

// Location is the zone calendar periods are resolved in.
func (s *Service) Location() *time.Location {
	return s.loc
}
