// Package inquiry enforces the buyer inquiry workflow.
package inquiry

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/garnizeh/estate/internal/access"
	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/internal/validation"
	"github.com/garnizeh/estate/pkg/models"
	"github.com/garnizeh/estate/pkg/repository"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100

	maxResponseLen = 1000
)

// transitions lists the explicit moves. Closing is allowed from every
// non-closed state and is handled separately.
var transitions = map[models.InquiryStatus][]models.InquiryStatus{
	models.InquiryNew:       {models.InquiryContacted, models.InquiryInterested, models.InquiryNotInterested},
	models.InquiryContacted: {models.InquiryInterested, models.InquiryNotInterested},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to models.InquiryStatus) bool {
	if from == models.InquiryClosed {
		return false
	}
	if to == models.InquiryClosed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Service struct {
	inquiries repository.InquiryRepo
	props     repository.PropertyRepo
	validate  *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(inquiries repository.InquiryRepo, props repository.PropertyRepo, v *validation.Validator, opts ...Option) *Service {
	s := &Service{
		inquiries: inquiries,
		props:     props,
		validate:  v,
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

// Create records a buyer's inquiry on an approved listing and bumps the
// listing's inquiry counter in the same transaction.
func (s *Service) Create(ctx context.Context, caller *access.Caller, in models.InquiryInput) (*models.Inquiry, error) {
	if err := access.Require(caller, access.SendInquiry); err != nil {
		return nil, err
	}
	if err := s.validate.Inquiry(&in); err != nil {
		return nil, err
	}
	p, err := s.props.GetProperty(ctx, in.PropertyID)
	if err != nil {
		return nil, apperr.Internal("load property", err)
	}
	if p == nil || p.Status != models.StatusApproved {
		return nil, apperr.NotFound("property", in.PropertyID)
	}

	q := &models.Inquiry{
		ID:            uuid.NewString(),
		Property:      p.ID,
		PropertyTitle: p.Title,
		Buyer:         caller.ID,
		Owner:         p.Owner,
		Message:       in.Message,
		ContactMethod: in.ContactMethod,
		BuyerInfo:     models.BuyerInfo{Name: caller.Name, Email: caller.Email, Phone: caller.Phone},
		Status:        models.InquiryNew,
		Version:       1,
	}
	ok, err := s.inquiries.CreateInquiry(ctx, q)
	if err != nil {
		return nil, apperr.Internal("store inquiry", err)
	}
	if !ok {
		// the listing left approved (or vanished) between the read and the write.
		return nil, apperr.NotFound("property", in.PropertyID)
	}
	s.logger.Info("inquiry created", "inquiry_id", q.ID, "property_id", q.Property, "buyer", q.Buyer)
	return q, nil
}

// Get returns an inquiry to its buyer, the listing owner, or an admin.
func (s *Service) Get(ctx context.Context, caller *access.Caller, id string) (*models.Inquiry, error) {
	if err := access.Authenticated(caller); err != nil {
		return nil, err
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(q.Buyer) && !caller.Owns(q.Owner) && !caller.IsAdmin() {
		return nil, apperr.Forbidden("not a party to this inquiry")
	}
	return q, nil
}

// Update changes status and/or response. Only the listing owner or an admin
// may update. The first non-empty response sets respondedAt; later responses
// replace the text and keep the original time.
func (s *Service) Update(ctx context.Context, caller *access.Caller, id string, patch models.InquiryPatch) (*models.Inquiry, error) {
	if err := access.RequireAny(caller, access.RespondToInquiry, access.Moderate); err != nil {
		return nil, err
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(q.Owner) && !caller.IsAdmin() {
		return nil, apperr.Forbidden("only the listing owner may update this inquiry")
	}

	from := q.Status
	changed := false
	if patch.Status != nil && *patch.Status != q.Status {
		to := *patch.Status
		if !to.Valid() {
			return nil, apperr.Field("status", "unknown status "+string(to))
		}
		if !CanTransition(q.Status, to) {
			return nil, apperr.InvalidTransition(string(q.Status), string(to))
		}
		q.Status = to
		changed = true
	}
	if patch.Response != nil {
		resp := strings.TrimSpace(*patch.Response)
		if utf8.RuneCountInString(resp) > maxResponseLen {
			return nil, apperr.Field("response", "must be at most 1000 characters")
		}
		if resp != q.Response {
			q.Response = resp
			if resp != "" && q.RespondedAt == nil {
				t := s.now().UTC().Truncate(time.Millisecond)
				q.RespondedAt = &t
			}
			changed = true
		}
	}
	if !changed {
		return q, nil
	}

	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != q.Version {
		return nil, apperr.Conflict("inquiry was modified concurrently; reload and retry")
	}
	ok, err := s.inquiries.UpdateInquiry(ctx, q, q.Version)
	if err != nil {
		return nil, apperr.Internal("store inquiry", err)
	}
	if !ok {
		return nil, apperr.Conflict("inquiry was modified concurrently; reload and retry")
	}
	s.logger.Info("inquiry updated", "inquiry_id", q.ID, "by", caller.ID, "from", from, "to", q.Status)
	return q, nil
}

// ListMine returns inquiries the caller sent as a buyer.
func (s *Service) ListMine(ctx context.Context, caller *access.Caller, f models.InquiryFilter) (*models.Page[models.Inquiry], error) {
	if err := access.Require(caller, access.SendInquiry); err != nil {
		return nil, err
	}
	if err := normalizeFilter(&f); err != nil {
		return nil, err
	}
	items, total, err := s.inquiries.ListInquiriesByBuyer(ctx, caller.ID, f)
	if err != nil {
		return nil, apperr.Internal("list inquiries", err)
	}
	return &models.Page[models.Inquiry]{Items: items, Page: f.Page, Limit: f.Limit, Total: total}, nil
}

// ListReceived returns inquiries on the caller's listings.
func (s *Service) ListReceived(ctx context.Context, caller *access.Caller, f models.InquiryFilter) (*models.Page[models.Inquiry], error) {
	if err := access.Require(caller, access.RespondToInquiry); err != nil {
		return nil, err
	}
	if err := normalizeFilter(&f); err != nil {
		return nil, err
	}
	items, total, err := s.inquiries.ListInquiriesByOwner(ctx, caller.ID, f)
	if err != nil {
		return nil, apperr.Internal("list inquiries", err)
	}
	return &models.Page[models.Inquiry]{Items: items, Page: f.Page, Limit: f.Limit, Total: total}, nil
}

// Delete removes an inquiry. The original buyer, the listing owner and admins may delete.
func (s *Service) Delete(ctx context.Context, caller *access.Caller, id string) error {
	if err := access.Authenticated(caller); err != nil {
		return err
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !caller.Owns(q.Buyer) && !caller.Owns(q.Owner) && !caller.IsAdmin() {
		return apperr.Forbidden("not permitted to delete this inquiry")
	}
	deleted, err := s.inquiries.DeleteInquiry(ctx, id)
	if err != nil {
		return apperr.Internal("delete inquiry", err)
	}
	if !deleted {
		return apperr.NotFound("inquiry", id)
	}
	s.logger.Info("inquiry deleted", "inquiry_id", id, "by", caller.ID)
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Inquiry, error) {
	q, err := s.inquiries.GetInquiry(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load inquiry", err)
	}
	if q == nil {
		return nil, apperr.NotFound("inquiry", id)
	}
	return q, nil
}

func normalizeFilter(f *models.InquiryFilter) error {
	if f.Status != "" && !f.Status.Valid() {
		return apperr.Field("status", "unknown status "+string(f.Status))
	}
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	return nil
}
