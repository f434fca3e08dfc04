// Package listing enforces the property listing workflow.
package listing

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/estate/internal/access"
	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/internal/cache"
	"github.com/garnizeh/estate/internal/validation"
	"github.com/garnizeh/estate/pkg/models"
	"github.com/garnizeh/estate/pkg/repository"
)

const (
	DefaultLimit = 12
	MaxLimit     = 100

	maxReasonLen = 1000
	cachePrefix  = "estate:listings"
)

// Indexer schedules a listing for embedding once it is approved.
type Indexer interface {
	EnqueueIndex(ctx context.Context, propertyID string) error
}

type Service struct {
	props     repository.PropertyRepo
	analytics repository.AnalyticsRepo
	validate  *validation.Validator
	cache     cache.Cache
	indexer   Indexer
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithCache(c cache.Cache) Option { return func(s *Service) { s.cache = c } }

func WithIndexer(i Indexer) Option { return func(s *Service) { s.indexer = i } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(props repository.PropertyRepo, analytics repository.AnalyticsRepo, v *validation.Validator, opts ...Option) *Service {
	s := &Service{
		props:     props,
		analytics: analytics,
		validate:  v,
		cache:     cache.Noop{},
		logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.validate == nil {
		s.validate = validation.New()
	}
	return s
}

// Create stores a new listing owned by the caller. It starts in draft when
// in.Draft is set and in pending-approval otherwise.
func (s *Service) Create(ctx context.Context, caller *access.Caller, in models.PropertyInput) (*models.Property, error) {
	if err := access.Require(caller, access.CreateListing); err != nil {
		return nil, err
	}
	if err := s.validate.Property(&in); err != nil {
		return nil, err
	}

	p := &models.Property{
		ID:      uuid.NewString(),
		Owner:   caller.ID,
		Status:  models.StatusPendingApproval,
		Version: 1,
	}
	if in.Draft {
		p.Status = models.StatusDraft
	}
	p.SetInput(in)
	if err := s.props.CreateProperty(ctx, p); err != nil {
		return nil, apperr.Internal("store property", err)
	}
	s.invalidate(ctx)
	s.logger.Info("property created", "property_id", p.ID, "owner", p.Owner, "status", p.Status)
	return p, nil
}

// Get loads a listing without access checks or counters.
func (s *Service) Get(ctx context.Context, id string) (*models.Property, error) {
	p, err := s.props.GetProperty(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load property", err)
	}
	if p == nil {
		return nil, apperr.NotFound("property", id)
	}
	return p, nil
}

// View is the public detail read. Listings that are not public are visible
// only to their owner and to admins. Every successful view increments the
// view counter.
func (s *Service) View(ctx context.Context, caller *access.Caller, id string) (*models.Property, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.Public() && !caller.Owns(p.Owner) && !caller.IsAdmin() {
		return nil, apperr.NotFound("property", id)
	}
	if err := s.props.IncrementViews(ctx, id); err != nil {
		return nil, apperr.Internal("count view", err)
	}
	p.Stats.Views++
	return p, nil
}

// List is the public search. Callers without moderation rights only see
// approved, sold and rented listings.
func (s *Service) List(ctx context.Context, caller *access.Caller, f models.PropertyFilter, status models.PropertyStatus) (*models.Page[models.Property], error) {
	if err := normalizeFilter(&f); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, apperr.Field("status", "unknown status "+string(status))
	}
	f.Owner = ""
	admin := caller.IsAdmin()
	switch {
	case status != "" && !admin && !status.Public():
		return &models.Page[models.Property]{Items: []models.Property{}, Page: f.Page, Limit: f.Limit}, nil
	case status != "":
		f.Statuses = []models.PropertyStatus{status}
	case admin:
		f.Statuses = nil
	default:
		f.Statuses = []models.PropertyStatus{models.StatusApproved, models.StatusSold, models.StatusRented}
	}

	if admin {
		return s.query(ctx, f)
	}

	key := s.cacheKey(ctx, f)
	if key != "" {
		var cached models.Page[models.Property]
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("listing cache get", "err", err)
		} else if found {
			return &cached, nil
		}
	}
	page, err := s.query(ctx, f)
	if err != nil {
		return nil, err
	}
	if key != "" {
		if err := s.cache.Set(ctx, key, page); err != nil {
			s.logger.Warn("listing cache set", "err", err)
		}
	}
	return page, nil
}

// ListMine returns the caller's own listings in any status.
func (s *Service) ListMine(ctx context.Context, caller *access.Caller, f models.PropertyFilter, status models.PropertyStatus) (*models.Page[models.Property], error) {
	if err := access.Require(caller, access.ManageOwnListing); err != nil {
		return nil, err
	}
	if err := normalizeFilter(&f); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, apperr.Field("status", "unknown status "+string(status))
	}
	f.Owner = caller.ID
	f.Statuses = nil
	if status != "" {
		f.Statuses = []models.PropertyStatus{status}
	}
	return s.query(ctx, f)
}

// Update edits a listing. Owners may change content only while the listing is
// a draft or awaiting approval; admins may edit any listing. A status in the
// patch goes through the same checks as UpdateStatus and is written together
// with the content.
func (s *Service) Update(ctx context.Context, caller *access.Caller, id string, patch models.PropertyPatch) (*models.Property, error) {
	if err := access.RequireAny(caller, access.ManageOwnListing, access.Moderate); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	admin := caller.IsAdmin()
	if !admin && !caller.Owns(p.Owner) {
		return nil, apperr.Forbidden("only the owner or an admin may edit this listing")
	}

	from := p.Status
	changed := false
	if patch.HasContent() {
		if !admin && !Editable(p.Status) {
			return nil, apperr.Forbidden("listing in status " + string(p.Status) + " can no longer be edited")
		}
		in := p.Input()
		patch.Apply(&in)
		if err := s.validate.Property(&in); err != nil {
			return nil, err
		}
		p.SetInput(in)
		changed = true
	}
	if patch.Status != nil && *patch.Status != p.Status {
		reason := ""
		if patch.RejectionReason != nil {
			reason = *patch.RejectionReason
		}
		if err := s.transition(caller, p, *patch.Status, reason); err != nil {
			return nil, err
		}
		changed = true
	}
	if !changed {
		return p, nil
	}
	if err := s.write(ctx, p, patch.ExpectedVersion); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, p, from)
	s.logger.Info("property updated", "property_id", p.ID, "by", caller.ID, "from", from, "to", p.Status, "version", p.Version)
	return p, nil
}

// UpdateStatus moves a listing through the workflow. Repeating the current
// status succeeds without side effects.
func (s *Service) UpdateStatus(ctx context.Context, caller *access.Caller, id string, to models.PropertyStatus, reason string, expectedVersion *int64) (*models.Property, error) {
	if err := access.RequireAny(caller, access.ManageOwnListing, access.ApproveListing); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, apperr.Field("status", "unknown status "+string(to))
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == to {
		if !caller.Owns(p.Owner) && !caller.IsAdmin() {
			return nil, apperr.Forbidden("not permitted to change this listing")
		}
		return p, nil
	}
	from := p.Status
	if err := s.transition(caller, p, to, reason); err != nil {
		return nil, err
	}
	if err := s.write(ctx, p, expectedVersion); err != nil {
		return nil, err
	}
	s.afterWrite(ctx, p, from)
	s.logger.Info("property status changed", "property_id", p.ID, "by", caller.ID, "from", from, "to", to, "version", p.Version)
	return p, nil
}

// Delete removes a listing. Its inquiries are kept and show the listing as deleted.
func (s *Service) Delete(ctx context.Context, caller *access.Caller, id string) error {
	if err := access.RequireAny(caller, access.ManageOwnListing, access.Moderate); err != nil {
		return err
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !caller.Owns(p.Owner) && !caller.IsAdmin() {
		return apperr.Forbidden("only the owner or an admin may delete this listing")
	}
	deleted, err := s.props.DeleteProperty(ctx, id)
	if err != nil {
		return apperr.Internal("delete property", err)
	}
	if !deleted {
		return apperr.NotFound("property", id)
	}
	s.invalidate(ctx)
	s.logger.Info("property deleted", "property_id", id, "by", caller.ID)
	return nil
}

// Stats returns the admin analytics snapshot.
func (s *Service) Stats(ctx context.Context, caller *access.Caller) (*models.Analytics, error) {
	if err := access.Require(caller, access.ViewAdminAnalytics); err != nil {
		return nil, err
	}
	a, err := s.analytics.Analytics(ctx, 5)
	if err != nil {
		return nil, apperr.Internal("load analytics", err)
	}
	return a, nil
}

// transition applies from -> to on p after checking the table, the actor and
// the rejection reason. It does not persist.
func (s *Service) transition(caller *access.Caller, p *models.Property, to models.PropertyStatus, reason string) error {
	if !to.Valid() {
		return apperr.Field("status", "unknown status "+string(to))
	}
	who, ok := transitions[p.Status][to]
	if !ok {
		return apperr.InvalidTransition(string(p.Status), string(to))
	}
	switch who {
	case actorAdmin:
		if !caller.Can(access.ApproveListing) {
			return apperr.Forbidden("only an admin may move a listing to " + string(to))
		}
	case actorLister:
		if !caller.Can(access.ManageOwnListing) || !caller.Owns(p.Owner) {
			return apperr.Forbidden("only the listing owner may move a listing to " + string(to))
		}
	}

	reason = strings.TrimSpace(reason)
	switch to {
	case models.StatusRejected:
		if reason == "" {
			return apperr.Field("rejectionReason", "is required when rejecting a listing")
		}
		if len(reason) > maxReasonLen {
			return apperr.Field("rejectionReason", "must be at most "+strconv.Itoa(maxReasonLen)+" characters")
		}
		p.RejectionReason = reason
	case models.StatusApproved:
		t := s.now().UTC().Truncate(time.Millisecond)
		p.PublishedAt = &t
		p.RejectionReason = ""
	}
	p.Status = to
	return nil
}

// write persists p conditionally on the version that was read. A client
// supplied version must match too.
func (s *Service) write(ctx context.Context, p *models.Property, expected *int64) error {
	if expected != nil && *expected != p.Version {
		return apperr.Conflict("listing was modified concurrently; reload and retry")
	}
	ok, err := s.props.UpdateProperty(ctx, p, p.Version)
	if err != nil {
		return apperr.Internal("store property", err)
	}
	if !ok {
		return apperr.Conflict("listing was modified concurrently; reload and retry")
	}
	return nil
}

func (s *Service) afterWrite(ctx context.Context, p *models.Property, from models.PropertyStatus) {
	s.invalidate(ctx)
	if p.Status == models.StatusApproved && from != models.StatusApproved && s.indexer != nil {
		if err := s.indexer.EnqueueIndex(ctx, p.ID); err != nil {
			s.logger.Error("enqueue property index", "property_id", p.ID, "err", err)
		}
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("listing cache bump", "err", err)
	}
}

func (s *Service) query(ctx context.Context, f models.PropertyFilter) (*models.Page[models.Property], error) {
	items, total, err := s.props.ListProperties(ctx, f)
	if err != nil {
		return nil, apperr.Internal("list properties", err)
	}
	return &models.Page[models.Property]{Items: items, Page: f.Page, Limit: f.Limit, Total: total}, nil
}

func (s *Service) cacheKey(ctx context.Context, f models.PropertyFilter) string {
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.logger.Warn("listing cache generation", "err", err)
		return ""
	}
	params := map[string]string{
		"search":       strings.ToLower(strings.TrimSpace(f.Search)),
		"city":         strings.ToLower(strings.TrimSpace(f.City)),
		"propertyType": string(f.PropertyType),
		"listingType":  string(f.ListingType),
		"page":         strconv.Itoa(f.Page),
		"limit":        strconv.Itoa(f.Limit),
		"sort":         f.Sort,
	}
	if f.MinPrice != nil {
		params["minPrice"] = strconv.FormatInt(*f.MinPrice, 10)
	}
	if f.MaxPrice != nil {
		params["maxPrice"] = strconv.FormatInt(*f.MaxPrice, 10)
	}
	if f.Bedrooms != nil {
		params["bedrooms"] = strconv.Itoa(*f.Bedrooms)
	}
	statuses := make([]string, len(f.Statuses))
	for i, st := range f.Statuses {
		statuses[i] = string(st)
	}
	params["status"] = strings.Join(statuses, ",")
	return cache.QueryKey(cachePrefix, gen, params)
}

func normalizeFilter(f *models.PropertyFilter) error {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	switch f.Sort {
	case "":
		f.Sort = models.SortNewest
	case models.SortNewest, models.SortOldest, models.SortPriceAsc, models.SortPriceDesc, models.SortPopular:
	default:
		return apperr.Field("sort", "must be one of: newest oldest price-asc price-desc popular")
	}
	if f.PropertyType != "" {
		switch f.PropertyType {
		case models.PropertyTypeApartment, models.PropertyTypeVilla, models.PropertyTypeIndependentHouse, models.PropertyTypePlot:
		default:
			return apperr.Field("propertyType", "unknown property type")
		}
	}
	if f.ListingType != "" && f.ListingType != models.ListingTypeSale && f.ListingType != models.ListingTypeRent {
		return apperr.Field("listingType", "must be sale or rent")
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return apperr.Field("minPrice", "must not exceed maxPrice")
	}
	return nil
}
