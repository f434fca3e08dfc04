package listing_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/estate/internal/access"
	"github.com/garnizeh/estate/internal/apperr"
	dbpkg "github.com/garnizeh/estate/internal/db"
	"github.com/garnizeh/estate/internal/listing"
	"github.com/garnizeh/estate/internal/repository/sqlite"
	"github.com/garnizeh/estate/internal/validation"
	"github.com/garnizeh/estate/pkg/models"
)

type recordingIndexer struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingIndexer) EnqueueIndex(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

type countingCache struct {
	mu    sync.Mutex
	gen   int64
	store map[string]models.Page[models.Property]
	hits  int
}

func (c *countingCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	c.hits++
	*(dest.(*models.Page[models.Property])) = v
	return true, nil
}

func (c *countingCache) Set(_ context.Context, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = *(value.(*models.Page[models.Property]))
	return nil
}

func (c *countingCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *countingCache) Bump(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	return nil
}

type fixture struct {
	svc     *listing.Service
	repo    *sqlite.SQLiteRepo
	indexer *recordingIndexer
	cache   *countingCache
	owner   *access.Caller
	other   *access.Caller
	agent   *access.Caller
	buyer   *access.Caller
	admin   *access.Caller
	admin2  *access.Caller
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := sqlite.New(dbpkg.NewTestDB(t), nil)
	f := &fixture{
		repo:    repo,
		indexer: &recordingIndexer{},
		cache:   &countingCache{store: map[string]models.Page[models.Property]{}},
		now:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = listing.New(repo, repo, validation.New(),
		listing.WithIndexer(f.indexer),
		listing.WithCache(f.cache),
		listing.WithClock(func() time.Time { return f.now }),
	)
	mk := func(id string, role models.Role) *access.Caller {
		u := &models.User{ID: id, Role: role, Name: id, Email: id + "@example.com", PasswordHash: "x"}
		require.NoError(t, repo.CreateUser(context.Background(), u))
		return access.FromUser(u)
	}
	f.owner = mk("owner-1", models.RoleOwner)
	f.other = mk("owner-2", models.RoleOwner)
	f.agent = mk("agent-1", models.RoleAgent)
	f.buyer = mk("buyer-1", models.RoleBuyer)
	f.admin = mk("admin-1", models.RoleAdmin)
	f.admin2 = mk("admin-2", models.RoleAdmin)
	return f
}

func sampleInput() models.PropertyInput {
	return models.PropertyInput{
		Title:        "Sea facing 3BHK in Colaba",
		Description:  "Spacious apartment close to the promenade with uninterrupted sea views.",
		PropertyType: models.PropertyTypeApartment,
		ListingType:  models.ListingTypeSale,
		Address: models.Address{
			FullAddress: "12 Marine Drive",
			City:        "Mumbai",
			State:       "Maharashtra",
			Pincode:     "400001",
		},
		Specs: models.Specs{
			CarpetArea:  1450,
			Bedrooms:    3,
			Bathrooms:   2,
			PropertyAge: models.AgeOneFive,
			Furnishing:  models.FurnishingSemiFurnished,
			Possession:  models.PossessionReady,
		},
		Pricing:   models.Pricing{ExpectedPrice: 12500000, PriceNegotiable: true},
		Amenities: []string{"gym", "pool"},
		Images: []models.Image{
			{URL: "https://cdn.example.com/1.jpg", Order: 0},
			{URL: "https://cdn.example.com/2.jpg", Order: 1},
		},
	}
}

func kindOf(err error) apperr.Kind { return apperr.KindOf(err) }

func (f *fixture) create(t *testing.T, caller *access.Caller, mod func(*models.PropertyInput)) *models.Property {
	t.Helper()
	in := sampleInput()
	if mod != nil {
		mod(&in)
	}
	p, err := f.svc.Create(context.Background(), caller, in)
	require.NoError(t, err)
	return p
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	_, total, err := f.repo.ListProperties(context.Background(), models.PropertyFilter{})
	require.NoError(t, err)
	return total
}

func TestScenarioA_CreateAndApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.create(t, f.owner, nil)
	assert.Equal(t, models.StatusPendingApproval, p.Status)
	assert.Nil(t, p.PublishedAt)

	approved, err := f.svc.UpdateStatus(ctx, f.admin, p.ID, models.StatusApproved, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	require.NotNil(t, approved.PublishedAt)
	assert.True(t, approved.PublishedAt.Equal(f.now))
	assert.Equal(t, []string{p.ID}, f.indexer.ids)

	stored, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestCreateDraftAndSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.create(t, f.agent, func(in *models.PropertyInput) { in.Draft = true })
	assert.Equal(t, models.StatusDraft, p.Status)

	_, err := f.svc.UpdateStatus(ctx, f.other, p.ID, models.StatusPendingApproval, "", nil)
	assert.Equal(t, apperr.KindForbidden, kindOf(err), "non-owning lister must not submit")

	submitted, err := f.svc.UpdateStatus(ctx, f.agent, p.ID, models.StatusPendingApproval, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, submitted.Status)
}

func TestCreateValidationPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]func(*models.PropertyInput){
		"price":       func(in *models.PropertyInput) { in.Pricing.ExpectedPrice = 9999 },
		"carpetArea":  func(in *models.PropertyInput) { in.Specs.CarpetArea = 99.5 },
		"pincode":     func(in *models.PropertyInput) { in.Address.Pincode = "4000011" },
		"title":       func(in *models.PropertyInput) { in.Title = "Too short" },
		"description": func(in *models.PropertyInput) { in.Description = "Nice flat." },
		"no images":   func(in *models.PropertyInput) { in.Images = nil },
	}
	for name, mod := range cases {
		t.Run(name, func(t *testing.T) {
			in := sampleInput()
			mod(&in)
			_, err := f.svc.Create(ctx, f.owner, in)
			assert.Equal(t, apperr.KindValidation, kindOf(err))
		})
	}
	assert.Equal(t, 0, f.count(t))
}

func TestCreateRequiresListerRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, nil, sampleInput())
	assert.Equal(t, apperr.KindUnauthenticated, kindOf(err))
	_, err = f.svc.Create(ctx, f.buyer, sampleInput())
	assert.Equal(t, apperr.KindForbidden, kindOf(err))
	_, err = f.svc.Create(ctx, f.admin, sampleInput())
	assert.Equal(t, apperr.KindForbidden, kindOf(err))
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	in := sampleInput()
	created := f.create(t, f.owner, nil)

	got, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)

	// first image becomes the cover when none is flagged.
	in.Images[0].IsCover = true
	assert.Equal(t, in.Title, got.Title)
	assert.Equal(t, in.Description, got.Description)
	assert.Equal(t, in.PropertyType, got.PropertyType)
	assert.Equal(t, in.ListingType, got.ListingType)
	assert.Equal(t, in.Address, got.Address)
	assert.Equal(t, in.Specs, got.Specs)
	assert.Equal(t, in.Pricing, got.Pricing)
	assert.Equal(t, in.Amenities, got.Amenities)
	assert.Equal(t, in.Images, got.Images)
	assert.Equal(t, f.owner.ID, got.Owner)
	assert.False(t, got.Verified)
}

func TestTransitionGrid(t *testing.T) {
	allowed := map[[2]models.PropertyStatus]bool{
		{models.StatusDraft, models.StatusPendingApproval}:    true,
		{models.StatusPendingApproval, models.StatusApproved}: true,
		{models.StatusPendingApproval, models.StatusRejected}: true,
		{models.StatusApproved, models.StatusSold}:            true,
		{models.StatusApproved, models.StatusRented}:          true,
	}
	for _, from := range models.PropertyStatuses {
		for _, to := range models.PropertyStatuses {
			if from == to {
				continue
			}
			assert.Equal(t, allowed[[2]models.PropertyStatus{from, to}], listing.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

// seed stores a listing directly in the given status.
func (f *fixture) seed(t *testing.T, owner *access.Caller, status models.PropertyStatus) *models.Property {
	t.Helper()
	in := sampleInput()
	require.NoError(t, validation.New().Property(&in))
	p := &models.Property{ID: "seed-" + string(status) + "-" + owner.ID, Owner: owner.ID, Status: status, Version: 1}
	p.SetInput(in)
	require.NoError(t, f.repo.CreateProperty(context.Background(), p))
	return p
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		from   models.PropertyStatus
		to     models.PropertyStatus
		caller *access.Caller
	}{
		{models.StatusDraft, models.StatusSold, f.owner},
		{models.StatusDraft, models.StatusApproved, f.admin},
		{models.StatusRejected, models.StatusApproved, f.admin},
		{models.StatusRejected, models.StatusPendingApproval, f.owner},
		{models.StatusSold, models.StatusApproved, f.admin},
		{models.StatusRented, models.StatusSold, f.owner},
		{models.StatusApproved, models.StatusPendingApproval, f.owner},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			p := f.seed(t, f.owner, tc.from)
			t.Cleanup(func() { _, _ = f.repo.DeleteProperty(ctx, p.ID) })
			_, err := f.svc.UpdateStatus(ctx, tc.caller, p.ID, tc.to, "reason", nil)
			assert.Equal(t, apperr.KindInvalidTransition, kindOf(err))
			stored, _ := f.svc.Get(ctx, p.ID)
			assert.Equal(t, tc.from, stored.Status)
		})
	}
}

func TestActorChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.seed(t, f.owner, models.StatusPendingApproval)
	_, err := f.svc.UpdateStatus(ctx, f.owner, pending.ID, models.StatusApproved, "", nil)
	assert.Equal(t, apperr.KindForbidden, kindOf(err), "owner must not approve")

	_, err = f.svc.UpdateStatus(ctx, f.buyer, pending.ID, models.StatusApproved, "", nil)
	assert.Equal(t, apperr.KindForbidden, kindOf(err), "buyer must not change status")

	approved := f.seed(t, f.other, models.StatusApproved)
	_, err = f.svc.UpdateStatus(ctx, f.admin, approved.ID, models.StatusSold, "", nil)
	assert.Equal(t, apperr.KindForbidden, kindOf(err), "admin must not mark sold")
	_, err = f.svc.UpdateStatus(ctx, f.owner, approved.ID, models.StatusSold, "", nil)
	assert.Equal(t, apperr.KindForbidden, kindOf(err), "non-owner must not mark sold")

	sold, err := f.svc.UpdateStatus(ctx, f.other, approved.ID, models.StatusRented, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRented, sold.Status)

	_, err = f.svc.UpdateStatus(ctx, nil, approved.ID, models.StatusSold, "", nil)
	assert.Equal(t, apperr.KindUnauthenticated, kindOf(err))

	_, err = f.svc.UpdateStatus(ctx, f.admin, "missing", models.StatusApproved, "", nil)
	assert.Equal(t, apperr.KindNotFound, kindOf(err))
}

func TestScenarioD_RejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, f.owner, nil)

	_, err := f.svc.UpdateStatus(ctx, f.admin, p.ID, models.StatusRejected, "   ", nil)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "rejectionReason")

	stored, _ := f.svc.Get(ctx, p.ID)
	assert.Equal(t, models.StatusPendingApproval, stored.Status)

	rejected, err := f.svc.UpdateStatus(ctx, f.admin, p.ID, models.StatusRejected, "Photos do not match the address", nil)
	require.NoError(t, err)
	assert.Equal(t, "Photos do not match the address", rejected.RejectionReason)
	assert.Empty(t, f.indexer.ids)
}

func TestRepeatedStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, f.owner, nil)

	first, err := f.svc.UpdateStatus(ctx, f.admin, p.ID, models.StatusApproved, "", nil)
	require.NoError(t, err)
	published := *first.PublishedAt

	f.now = f.now.Add(time.Hour)
	again, err := f.svc.UpdateStatus(ctx, f.admin2, p.ID, models.StatusApproved, "", nil)
	require.NoError(t, err)
	assert.True(t, again.PublishedAt.Equal(published), "publishedAt must not be reset")
	assert.Equal(t, first.Version, again.Version)
	assert.Len(t, f.indexer.ids, 1)

	_, err = f.svc.UpdateStatus(ctx, f.other, p.ID, models.StatusApproved, "", nil)
	assert.Equal(t, apperr.KindForbidden, kindOf(err), "strangers get no no-op")
}

func TestConcurrentModeration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, f.owner, nil)

	v := p.Version
	_, err := f.svc.UpdateStatus(ctx, f.admin, p.ID, models.StatusApproved, "", &v)
	require.NoError(t, err)

	// a second admin acting on the version they saw earlier loses.
	_, err = f.svc.UpdateStatus(ctx, f.admin2, p.ID, models.StatusRejected, "duplicate", &v)
	assert.Equal(t, apperr.KindInvalidTransition, kindOf(err))

	q := f.create(t, f.owner, func(in *models.PropertyInput) { in.Title = "Garden villa in Alibaug" })
	stale := q.Version
	_, err = f.svc.Update(ctx, f.owner, q.ID, models.PropertyPatch{Title: ptr("Garden villa in Alibaug, sea view")})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, f.admin, q.ID, models.StatusApproved, "", &stale)
	assert.Equal(t, apperr.KindConflict, kindOf(err))
}

func ptr[T any](v T) *T { return &v }

func TestScenarioE_StrangerCannotEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, f.owner, nil)

	_, err := f.svc.Update(ctx, f.buyer, p.ID, models.PropertyPatch{Title: ptr("hack")})
	assert.Equal(t, apperr.KindForbidden, kindOf(err))
	_, err = f.svc.Update(ctx, f.other, p.ID, models.PropertyPatch{Title: ptr("hack the planet listing")})
	assert.Equal(t, apperr.KindForbidden, kindOf(err))

	stored, _ := f.svc.Get(ctx, p.ID)
	assert.Equal(t, p.Title, stored.Title)
}

func TestUpdateContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, f.owner, nil)

	updated, err := f.svc.Update(ctx, f.owner, p.ID, models.PropertyPatch{
		Pricing: &models.Pricing{ExpectedPrice: 11000000},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11000000), updated.Pricing.ExpectedPrice)
	assert.Equal(t, p.Title, updated.Title)
	assert.Equal(t, int64(2), updated.Version)

	_, err = f.svc.Update(ctx, f.owner, p.ID, models.PropertyPatch{Pricing: &models.Pricing{ExpectedPrice: 10}})
	assert.Equal(t, apperr.KindValidation, kindOf(err))

	_, err = f.svc.UpdateStatus(ctx, f.admin, p.ID, models.StatusApproved, "", nil)
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, f.owner, p.ID, models.PropertyPatch{Title: ptr("Renovated sea facing 3BHK")})
	assert.Equal(t, apperr.KindForbidden, kindOf(err), "approved listings are frozen for owners")

	byAdmin, err := f.svc.Update(ctx, f.admin, p.ID, models.PropertyPatch{Title: ptr("Renovated sea facing 3BHK")})
	require.NoError(t, err)
	assert.Equal(t, "Renovated sea facing 3BHK", byAdmin.Title)
}

func TestUpdateWithStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, f.owner, func(in *models.PropertyInput) { in.Draft = true })

	status := models.StatusPendingApproval
	got, err := f.svc.Update(ctx, f.owner, p.ID, models.PropertyPatch{
		Description: ptr(strings.Repeat("Updated description for the listing. ", 2)),
		Status:      &status,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, got.Status)
	assert.Equal(t, int64(2), got.Version)

	sold := models.StatusSold
	_, err = f.svc.Update(ctx, f.owner, p.ID, models.PropertyPatch{Status: &sold})
	assert.Equal(t, apperr.KindInvalidTransition, kindOf(err))
}

func TestViewVisibilityAndCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, f.owner, nil)

	_, err := f.svc.View(ctx, nil, p.ID)
	assert.Equal(t, apperr.KindNotFound, kindOf(err), "pending listing hidden from public")
	_, err = f.svc.View(ctx, f.buyer, p.ID)
	assert.Equal(t, apperr.KindNotFound, kindOf(err))

	own, err := f.svc.View(ctx, f.owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), own.Stats.Views)

	_, err = f.svc.UpdateStatus(ctx, f.admin, p.ID, models.StatusApproved, "", nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.svc.View(ctx, nil, p.ID)
		require.NoError(t, err)
	}
	stored, _ := f.svc.Get(ctx, p.ID)
	assert.Equal(t, int64(4), stored.Stats.Views)
}

func TestListVisibilityAndCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, f.owner, nil)
	f.create(t, f.owner, func(in *models.PropertyInput) { in.Title = "Pending plot near the highway" })
	_, err := f.svc.UpdateStatus(ctx, f.admin, a.ID, models.StatusApproved, "", nil)
	require.NoError(t, err)

	public, err := f.svc.List(ctx, nil, models.PropertyFilter{}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, public.Total)
	assert.Equal(t, listing.DefaultLimit, public.Limit)

	again, err := f.svc.List(ctx, f.buyer, models.PropertyFilter{}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Total)
	assert.Equal(t, 1, f.cache.hits)

	hidden, err := f.svc.List(ctx, f.buyer, models.PropertyFilter{}, models.StatusPendingApproval)
	require.NoError(t, err)
	assert.Equal(t, 0, hidden.Total)

	adminView, err := f.svc.List(ctx, f.admin, models.PropertyFilter{}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, adminView.Total)

	// a write bumps the generation so the next public read misses the cache.
	f.create(t, f.owner, nil)
	_, err = f.svc.List(ctx, nil, models.PropertyFilter{}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.hits)

	_, err = f.svc.List(ctx, nil, models.PropertyFilter{Sort: "cheapest"}, "")
	assert.Equal(t, apperr.KindValidation, kindOf(err))

	capped, err := f.svc.List(ctx, nil, models.PropertyFilter{Limit: 500}, "")
	require.NoError(t, err)
	assert.Equal(t, listing.MaxLimit, capped.Limit)
}

func TestListMine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, f.owner, nil)
	f.create(t, f.owner, func(in *models.PropertyInput) { in.Draft = true })
	f.create(t, f.other, nil)

	mine, err := f.svc.ListMine(ctx, f.owner, models.PropertyFilter{}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, mine.Total)

	drafts, err := f.svc.ListMine(ctx, f.owner, models.PropertyFilter{}, models.StatusDraft)
	require.NoError(t, err)
	assert.Equal(t, 1, drafts.Total)

	_, err = f.svc.ListMine(ctx, f.buyer, models.PropertyFilter{}, "")
	assert.Equal(t, apperr.KindForbidden, kindOf(err))
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.create(t, f.owner, nil)

	assert.Equal(t, apperr.KindForbidden, kindOf(f.svc.Delete(ctx, f.buyer, p.ID)))
	assert.Equal(t, apperr.KindForbidden, kindOf(f.svc.Delete(ctx, f.other, p.ID)))
	require.NoError(t, f.svc.Delete(ctx, f.owner, p.ID))
	assert.Equal(t, apperr.KindNotFound, kindOf(f.svc.Delete(ctx, f.owner, p.ID)))

	q := f.create(t, f.owner, nil)
	require.NoError(t, f.svc.Delete(ctx, f.admin, q.ID))
	assert.Equal(t, 0, f.count(t))
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, f.owner, nil)

	_, err := f.svc.Stats(ctx, f.owner)
	assert.Equal(t, apperr.KindForbidden, kindOf(err))

	s, err := f.svc.Stats(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 1, s.PropertiesByStatus[models.StatusPendingApproval])
	assert.Equal(t, 2, s.UsersByRole[models.RoleAdmin])
}
