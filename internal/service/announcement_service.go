package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniqn-app/staffsync/internal/feed"
	"github.com/uniqn-app/staffsync/internal/models"
	"github.com/uniqn-app/staffsync/internal/source"
	"github.com/uniqn-app/staffsync/pkg/config"
	appErrors "github.com/uniqn-app/staffsync/pkg/errors"
	"github.com/uniqn-app/staffsync/pkg/jobs"
)

type announcementSource interface {
	FetchPage(ctx context.Context, q source.PageQuery) (source.PageResult, error)
	Count(ctx context.Context, q source.CountQuery) (int, error)
}

type announcementWriter interface {
	Put(ctx context.Context, entity models.EntityType, id string, doc map[string]any) error
	Patch(ctx context.Context, entity models.EntityType, id string, fields map[string]any) error
	Delete(ctx context.Context, entity models.EntityType, id string) error
	Increment(ctx context.Context, entity models.EntityType, id string, field string, delta int) error
}

type countCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// Notifier delivers announcement notifications. Delivery transport stays
// outside the engine; implementations live with the push infrastructure.
type Notifier interface {
	NotifyAnnouncement(ctx context.Context, announcement models.SystemAnnouncement) error
}

// CreateAnnouncementRequest describes the admin create payload.
type CreateAnnouncementRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Content     string     `json:"content" validate:"required"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low normal high"`
	StartDate   time.Time  `json:"start_date" validate:"required"`
	EndDate     *time.Time `json:"end_date"`
	IsActive    *bool      `json:"is_active"`
	CreatedBy   string     `json:"-"`
	CreatorName string     `json:"-"`
}

// UpdateAnnouncementRequest describes the admin update payload; nil fields
// are left untouched.
type UpdateAnnouncementRequest struct {
	Title     *string    `json:"title" validate:"omitempty,max=200"`
	Content   *string    `json:"content"`
	Priority  *string    `json:"priority" validate:"omitempty,oneof=low normal high"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	IsActive  *bool      `json:"is_active"`
}

// AnnouncementService pages the announcement feed and runs the admin
// workflows around it. Feed reads page through the backing store in its
// canonical order; the aggregate count is cached in Redis.
type AnnouncementService struct {
	source    announcementSource
	writer    announcementWriter
	cache     countCache
	notifier  Notifier
	queue     *jobs.Queue
	validator *validator.Validate
	cfg       config.EngineConfig
	logger    *zap.Logger
	metrics   *MetricsService
	now       func() time.Time

	pagerMu  sync.Mutex
	pagerKey string
	pager    *feed.Pager[models.SystemAnnouncement]
}

// NewAnnouncementService constructs the service. cache, notifier, metrics
// and logger may all be nil.
func NewAnnouncementService(
	src announcementSource,
	writer announcementWriter,
	cache countCache,
	notifier Notifier,
	cfg config.EngineConfig,
	notifierCfg config.NotifierConfig,
	logger *zap.Logger,
	metrics *MetricsService,
) *AnnouncementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AnnouncementService{
		source:    src,
		writer:    writer,
		cache:     cache,
		notifier:  notifier,
		validator: validator.New(),
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
	if notifier != nil && notifierCfg.Enabled {
		s.queue = jobs.NewQueue("announcement_notifications", s.dispatch, jobs.QueueConfig{
			Workers:    notifierCfg.Workers,
			MaxRetries: notifierCfg.MaxRetries,
			RetryDelay: notifierCfg.RetryDelay,
			Logger:     logger,
		})
	}
	return s
}

// Start begins background notification dispatch.
func (s *AnnouncementService) Start(ctx context.Context) {
	if s.queue != nil {
		s.queue.Start(ctx)
	}
}

// Stop drains the notification queue.
func (s *AnnouncementService) Stop() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

func (s *AnnouncementService) dispatch(ctx context.Context, job jobs.Job) error {
	announcement, ok := job.Payload.(models.SystemAnnouncement)
	if !ok {
		s.logger.Warn("dropping notification job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.notifier.NotifyAnnouncement(ctx, announcement)
}

func scopeForFilters(filters models.AnnouncementFilters) source.Scope {
	equals := map[string]string{}
	if filters.ActiveOnly {
		equals["is_active"] = "true"
	}
	if filters.Priority != nil {
		equals["priority"] = string(*filters.Priority)
	}
	if len(equals) == 0 {
		return source.Scope{}
	}
	return source.Scope{Equals: equals}
}

func (s *AnnouncementService) countKey(filters models.AnnouncementFilters) string {
	priority := "any"
	if filters.Priority != nil {
		priority = string(*filters.Priority)
	}
	return fmt.Sprintf("announcements:count:%t:%s", filters.ActiveOnly, priority)
}

// count returns the aggregate feed size, served from Redis when fresh.
func (s *AnnouncementService) count(ctx context.Context, filters models.AnnouncementFilters) (int, error) {
	key := s.countKey(filters)
	if s.cache != nil && s.cfg.CacheEnabled {
		var cached int
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.CacheHit()
			}
			return cached, nil
		}
		if s.metrics != nil {
			s.metrics.CacheMiss()
		}
	}

	total, err := s.source.Count(ctx, source.CountQuery{
		Entity: models.EntityAnnouncements,
		Scope:  scopeForFilters(filters),
	})
	if err != nil {
		return 0, err
	}

	if s.cache != nil && s.cfg.CacheEnabled {
		if err := s.cache.Set(ctx, key, total, s.cfg.CountCacheTTL); err != nil {
			s.logger.Warn("failed to cache announcement count", zap.Error(err))
		}
	}
	return total, nil
}

// pagerFor keys the pager by the filter signature: changing filters drops
// the recorded cursors, same filters keep them across requests.
func (s *AnnouncementService) pagerFor(filters models.AnnouncementFilters) *feed.Pager[models.SystemAnnouncement] {
	key := s.countKey(filters)
	s.pagerMu.Lock()
	defer s.pagerMu.Unlock()
	if s.pager != nil && s.pagerKey == key {
		return s.pager
	}

	scope := scopeForFilters(filters)
	fetch := func(ctx context.Context, after source.Cursor, limit int) ([]models.SystemAnnouncement, source.Cursor, bool, error) {
		result, err := s.source.FetchPage(ctx, source.PageQuery{
			Entity: models.EntityAnnouncements,
			Scope:  scope,
			After:  after,
			Limit:  limit,
		})
		if err != nil {
			return nil, "", false, err
		}
		items := make([]models.SystemAnnouncement, 0, len(result.Records))
		for _, doc := range result.Records {
			record, err := models.DecodeRecord(models.EntityAnnouncements, doc)
			if err != nil {
				s.logger.Warn("skipping undecodable announcement", zap.Error(err))
				continue
			}
			items = append(items, record.(models.SystemAnnouncement))
		}
		return items, result.Next, result.HasMore, nil
	}
	count := func(ctx context.Context) (int, error) { return s.count(ctx, filters) }

	var visible feed.FilterFunc[models.SystemAnnouncement]
	if filters.ActiveOnly {
		visible = func(a models.SystemAnnouncement) bool { return a.VisibleAt(s.now()) }
	}

	s.pagerKey = key
	s.pager = feed.NewPager(fetch, count, s.cfg.AnnouncementPageSize, visible, s.logger)
	return s.pager
}

// Page returns page n of the announcement feed. A page beyond the walked
// cursor window fails with ErrPageUnavailable; callers restart at one.
func (s *AnnouncementService) Page(ctx context.Context, n int, filters models.AnnouncementFilters) (feed.Page[models.SystemAnnouncement], error) {
	return s.pagerFor(filters).Page(ctx, n)
}

func announcementDoc(a models.SystemAnnouncement) (map[string]any, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *AnnouncementService) invalidateCounts(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "announcements:count:*"); err != nil {
		s.logger.Warn("failed to invalidate announcement counts", zap.Error(err))
	}
}

// Create publishes a new announcement and queues its notification.
func (s *AnnouncementService) Create(ctx context.Context, req CreateAnnouncementRequest) (*models.SystemAnnouncement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not precede start_date")
	}

	priority := models.AnnouncementPriority(req.Priority)
	if priority == "" {
		priority = models.AnnouncementPriorityNormal
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	now := s.now().UTC()
	announcement := models.SystemAnnouncement{
		ID:            uuid.NewString(),
		Title:         req.Title,
		Content:       req.Content,
		Priority:      priority,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		IsActive:      active,
		CreatedBy:     req.CreatedBy,
		CreatedByName: req.CreatorName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	doc, err := announcementDoc(announcement)
	if err != nil {
		return nil, appErrors.Wrap(err, "ENCODE_FAILED", 500, "failed to encode announcement")
	}
	if err := s.writer.Put(ctx, models.EntityAnnouncements, announcement.ID, doc); err != nil {
		return nil, err
	}
	s.invalidateCounts(ctx)
	s.enqueueNotification(announcement)

	s.logger.Info("announcement created",
		zap.String("id", announcement.ID),
		zap.String("priority", string(announcement.Priority)))
	return &announcement, nil
}

func (s *AnnouncementService) enqueueNotification(announcement models.SystemAnnouncement) {
	if s.queue == nil || !announcement.IsActive {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    "announcement_published",
		Payload: announcement,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue announcement notification",
			zap.String("announcement_id", announcement.ID),
			zap.Error(err))
	}
}

// Update edits an announcement in place.
func (s *AnnouncementService) Update(ctx context.Context, id string, req UpdateAnnouncementRequest) error {
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "announcement id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}

	fields := map[string]any{"updated_at": s.now().UTC()}
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.Content != nil {
		fields["content"] = *req.Content
	}
	if req.Priority != nil {
		fields["priority"] = *req.Priority
	}
	if req.StartDate != nil {
		fields["start_date"] = *req.StartDate
	}
	if req.EndDate != nil {
		fields["end_date"] = *req.EndDate
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}

	if err := s.writer.Patch(ctx, models.EntityAnnouncements, id, fields); err != nil {
		return err
	}
	s.invalidateCounts(ctx)
	return nil
}

// Delete removes an announcement.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "announcement id is required")
	}
	if err := s.writer.Delete(ctx, models.EntityAnnouncements, id); err != nil {
		return err
	}
	s.invalidateCounts(ctx)
	return nil
}

// IncrementViewCount bumps the read counter. Best-effort: failures are
// logged and absorbed so they never break the read path.
func (s *AnnouncementService) IncrementViewCount(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := s.writer.Increment(ctx, models.EntityAnnouncements, id, "view_count", 1); err != nil {
		s.logger.Warn("failed to increment view count",
			zap.String("announcement_id", id),
			zap.Error(err))
	}
}
