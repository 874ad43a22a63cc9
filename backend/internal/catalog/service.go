package catalog

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"catalog-graph/backend/internal/constants"
	"catalog-graph/backend/internal/graph"
	"catalog-graph/backend/pkg/logger"
	"catalog-graph/backend/pkg/metrics"
)

// Service implements the catalog operations on top of a graph Store. Every
// operation runs in exactly one unit of work.
type Service struct {
	store        graph.Store
	logger       *zap.Logger
	metrics      *metrics.Collector
	now          func() time.Time
	newID        func() string
	relatedLimit int
	maxDepth     int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithRelatedLimit sets the default number of recommendations.
func WithRelatedLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.relatedLimit = limit
		}
	}
}

// WithMaxPathDepth bounds shortest path searches.
func WithMaxPathDepth(depth int) Option {
	return func(s *Service) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics counts created and deleted items.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// StoreOptions returns the graph store options the catalog relies on: category and
// tag names are unique.
func StoreOptions() []graph.Option {
	return []graph.Option{graph.WithUniqueKeys(constants.UniqueKeys)}
}

// NewService creates a catalog service over store.
func NewService(store graph.Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		logger:       logger.Named("catalog"),
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
		relatedLimit: constants.DefaultRelatedLimit,
		maxDepth:     constants.DefaultMaxPathDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(constants.TimestampLayout)
}
