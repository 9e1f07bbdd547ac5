// Package service is the engine facade used by the HTTP layer. It resolves
// the acting user from the context, enforces roles, and emits audit events
// and cache invalidations once a change has committed.
package service

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zimkada/BarTender-sub004/internal/apperror"
	"github.com/Zimkada/BarTender-sub004/internal/audit"
	"github.com/Zimkada/BarTender-sub004/internal/businessday"
	"github.com/Zimkada/BarTender-sub004/internal/cache"
	"github.com/Zimkada/BarTender-sub004/internal/consignment"
	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/logger"
	"github.com/Zimkada/BarTender-sub004/internal/returns"
	"github.com/Zimkada/BarTender-sub004/internal/sales"
	"github.com/Zimkada/BarTender-sub004/internal/store"
)

const (
	tracerName      = "github.com/Zimkada/BarTender-sub004/internal/service"
	defaultStatsTTL = 20 * time.Second
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var (
	staffRoles   = []string{domain.RoleServer, domain.RoleManager, domain.RoleOwner, domain.RoleSystem}
	managerRoles = []string{domain.RoleManager, domain.RoleOwner, domain.RoleSystem}
)

type Options struct {
	Venue domain.VenueSettings
	Audit audit.Sink
	Stats cache.StatsCache
	// StatsTTL bounds how long a cached report may be served.
	StatsTTL time.Duration
	// LowStockThreshold applies to products without their own alert threshold.
	LowStockThreshold int
	Logger            *logger.Logger
	Now               func() time.Time
}

type Service struct {
	repo         store.Repository
	venue        domain.VenueSettings
	days         *businessday.Resolver
	register     *sales.Register
	consignments *consignment.Manager
	returns      *returns.Processor
	audit        *audit.Recorder
	stats        cache.StatsCache
	statsTTL     time.Duration
	lowStock     int
	validate     *validator.Validate
	log          *logger.Logger
	tracer       trace.Tracer
}

func New(repo store.Repository, opts Options) (*Service, error) {
	if repo == nil {
		return nil, apperror.NewConfiguration("repository is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	venue := opts.Venue
	if venue.OperatingMode == "" {
		venue.OperatingMode = domain.ModeFull
	}
	if venue.OperatingMode != domain.ModeFull && venue.OperatingMode != domain.ModeSimplified {
		return nil, apperror.Newf(apperror.ErrConfiguration, "unknown operating mode %q", venue.OperatingMode)
	}

	days, err := businessday.NewResolver(venue.CloseHour, venue.Location, opts.Now)
	if err != nil {
		return nil, err
	}
	manager, err := consignment.NewManager(repo, days, venue.ConsignmentExpirationDays)
	if err != nil {
		return nil, err
	}
	if venue.ConsignmentExpirationDays == 0 {
		venue.ConsignmentExpirationDays = consignment.DefaultExpirationDays
	}
	venue.Location = days.Location()

	stats := opts.Stats
	if stats == nil {
		stats = cache.NoopStatsCache{}
	}
	ttl := opts.StatsTTL
	if ttl <= 0 {
		ttl = defaultStatsTTL
	}

	return &Service{
		repo:         repo,
		venue:        venue,
		days:         days,
		register:     sales.NewRegister(repo, days, venue.OperatingMode),
		consignments: manager,
		returns:      returns.NewProcessor(repo, days),
		audit:        audit.NewRecorder(opts.Audit, log, days.Now),
		stats:        stats,
		statsTTL:     ttl,
		lowStock:     opts.LowStockThreshold,
		validate:     newValidator(),
		log:          log.WithComponent("service"),
		tracer:       otel.Tracer(tracerName),
	}, nil
}

// Days exposes the business-day resolver the engine runs on.
func (s *Service) Days() *businessday.Resolver {
	return s.days
}

func (s *Service) Venue() domain.VenueSettings {
	return s.venue
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check validates a request struct and reports the first failing field.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		f := fields[0]
		return apperror.Newf(apperror.ErrInvalidInput, "%s failed %s validation", f.Namespace(), f.Tag()).
			WithDetail("field", f.Namespace())
	}
	return apperror.NewInvalidInput(err.Error())
}

// requireRole returns the context actor when it holds one of roles.
func requireRole(ctx context.Context, operation string, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" || !slices.Contains(roles, actor.Role) {
		return domain.Actor{}, apperror.NewForbidden(operation)
	}
	return actor, nil
}

func isManager(actor domain.Actor) bool {
	return slices.Contains(managerRoles, actor.Role)
}

// traced runs fn inside a span named after the operation.
func traced[T any](ctx context.Context, s *Service, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.Start(ctx, operation)
	defer span.End()
	if actor, ok := ActorFromContext(ctx); ok {
		span.SetAttributes(attribute.String("actor.role", actor.Role))
	}

	out, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.CodeOf(err))
		if apperror.HTTPStatus(err) >= 500 {
			s.log.Errorw("operation failed", "operation", operation, "error", err)
		}
	}
	return out, err
}

func optional(m *domain.Movement) []domain.Movement {
	if m == nil {
		return nil
	}
	return []domain.Movement{*m}
}

// committed records the audit event for a change and drops cached stats.
func (s *Service) committed(ctx context.Context, actor domain.Actor, action audit.Action, entityType, entityID string, change audit.Change, metadata map[string]any) {
	s.audit.Record(ctx, action, actor.ID, actor.Role, entityType, entityID, change, metadata)
	if err := s.stats.Invalidate(ctx); err != nil {
		s.log.Warnw("stats invalidation failed", "action", action, "error", err)
	}
}
