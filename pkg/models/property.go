package models

import "time"

// PropertyType is the kind of dwelling or land being listed.
type PropertyType string

const (
	PropertyTypeApartment        PropertyType = "apartment"
	PropertyTypeVilla            PropertyType = "villa"
	PropertyTypeIndependentHouse PropertyType = "independent-house"
	PropertyTypePlot             PropertyType = "plot"
)

// ListingType tells whether a property is offered for sale or for rent.
type ListingType string

const (
	ListingTypeSale ListingType = "sale"
	ListingTypeRent ListingType = "rent"
)

// PropertyStatus is the listing workflow state.
type PropertyStatus string

const (
	StatusDraft           PropertyStatus = "draft"
	StatusPendingApproval PropertyStatus = "pending-approval"
	StatusApproved        PropertyStatus = "approved"
	StatusRejected        PropertyStatus = "rejected"
	StatusSold            PropertyStatus = "sold"
	StatusRented          PropertyStatus = "rented"
)

// PropertyStatuses lists every listing state in workflow order.
var PropertyStatuses = []PropertyStatus{
	StatusDraft, StatusPendingApproval, StatusApproved, StatusRejected, StatusSold, StatusRented,
}

// Valid reports whether s is a known listing state.
func (s PropertyStatus) Valid() bool {
	for _, v := range PropertyStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Public reports whether listings in this state are visible to anonymous callers.
func (s PropertyStatus) Public() bool {
	return s == StatusApproved || s == StatusSold || s == StatusRented
}

// Furnishing, PropertyAge and Possession values.
const (
	FurnishingUnfurnished    = "unfurnished"
	FurnishingSemiFurnished  = "semi-furnished"
	FurnishingFullyFurnished = "fully-furnished"

	AgeNew      = "new"
	AgeUnderOne = "0-1"
	AgeOneFive  = "1-5"
	AgeFiveTen  = "5-10"
	AgeOverTen  = "10+"

	PossessionReady             = "ready"
	PossessionUnderConstruction = "under-construction"
)

type Address struct {
	FullAddress string `json:"fullAddress" validate:"required,max=500"`
	City        string `json:"city" validate:"required,max=100"`
	State       string `json:"state" validate:"required,max=100"`
	Pincode     string `json:"pincode" validate:"required,pincode"`
	Landmark    string `json:"landmark,omitempty" validate:"omitempty,max=200"`
}

type Parking struct {
	Covered int `json:"covered" validate:"gte=0,lte=20"`
	Open    int `json:"open" validate:"gte=0,lte=20"`
}

type Specs struct {
	CarpetArea  float64 `json:"carpetArea" validate:"gte=100"`
	Bedrooms    int     `json:"bedrooms" validate:"gte=0,lte=50"`
	Bathrooms   int     `json:"bathrooms" validate:"gte=0,lte=50"`
	Balconies   int     `json:"balconies" validate:"gte=0,lte=20"`
	Parking     Parking `json:"parking"`
	Floor       *int    `json:"floor,omitempty" validate:"omitempty,gte=-5,lte=300"`
	TotalFloors *int    `json:"totalFloors,omitempty" validate:"omitempty,gte=0,lte=300"`
	PropertyAge string  `json:"propertyAge" validate:"required,oneof=new 0-1 1-5 5-10 10+"`
	Furnishing  string  `json:"furnishing" validate:"required,oneof=unfurnished semi-furnished fully-furnished"`
	Possession  string  `json:"possession" validate:"required,oneof=ready under-construction"`
}

// Pricing amounts are whole currency units.
type Pricing struct {
	ExpectedPrice      int64  `json:"expectedPrice" validate:"gte=10000"`
	PriceNegotiable    bool   `json:"priceNegotiable"`
	MaintenanceCharges *int64 `json:"maintenanceCharges,omitempty" validate:"omitempty,gte=0"`
	SecurityDeposit    *int64 `json:"securityDeposit,omitempty" validate:"omitempty,gte=0"`
}

type Image struct {
	URL     string `json:"url" validate:"required,http_url,max=2048"`
	Key     string `json:"key,omitempty" validate:"max=300"`
	IsCover bool   `json:"isCover"`
	Order   int    `json:"order" validate:"gte=0"`
}

// Stats counters only ever grow.
type Stats struct {
	Views     int64 `json:"views"`
	Inquiries int64 `json:"inquiries"`
	Favorites int64 `json:"favorites"`
}

// PropertyInput is the caller-supplied part of a listing.
type PropertyInput struct {
	Title        string       `json:"title" validate:"required,min=10,max=200"`
	Description  string       `json:"description" validate:"required,min=50,max=5000"`
	PropertyType PropertyType `json:"propertyType" validate:"required,oneof=apartment villa independent-house plot"`
	ListingType  ListingType  `json:"listingType" validate:"required,oneof=sale rent"`
	Address      Address      `json:"address"`
	Specs        Specs        `json:"specs"`
	Pricing      Pricing      `json:"pricing"`
	Amenities    []string     `json:"amenities" validate:"max=50,dive,required,max=60"`
	Images       []Image      `json:"images" validate:"required,min=1,max=10,dive"`
	Draft        bool         `json:"draft,omitempty"`
}

// Property is a listing as stored.
type Property struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	PropertyType    PropertyType   `json:"propertyType"`
	ListingType     ListingType    `json:"listingType"`
	Address         Address        `json:"address"`
	Specs           Specs          `json:"specs"`
	Pricing         Pricing        `json:"pricing"`
	Amenities       []string       `json:"amenities"`
	Images          []Image        `json:"images"`
	Owner           string         `json:"owner"`
	Status          PropertyStatus `json:"status"`
	Verified        bool           `json:"verified"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	Stats           Stats          `json:"stats"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	PublishedAt     *time.Time     `json:"publishedAt,omitempty"`
	Version         int64          `json:"version"`
}

// Input returns the editable fields of p.
func (p *Property) Input() PropertyInput {
	return PropertyInput{
		Title:        p.Title,
		Description:  p.Description,
		PropertyType: p.PropertyType,
		ListingType:  p.ListingType,
		Address:      p.Address,
		Specs:        p.Specs,
		Pricing:      p.Pricing,
		Amenities:    append([]string(nil), p.Amenities...),
		Images:       append([]Image(nil), p.Images...),
	}
}

// SetInput copies the editable fields of in onto p.
func (p *Property) SetInput(in PropertyInput) {
	p.Title = in.Title
	p.Description = in.Description
	p.PropertyType = in.PropertyType
	p.ListingType = in.ListingType
	p.Address = in.Address
	p.Specs = in.Specs
	p.Pricing = in.Pricing
	p.Amenities = in.Amenities
	p.Images = in.Images
}

// CoverImage returns the image flagged as cover, or nil when there are no images.
func (p *Property) CoverImage() *Image {
	for i := range p.Images {
		if p.Images[i].IsCover {
			return &p.Images[i]
		}
	}
	if len(p.Images) > 0 {
		return &p.Images[0]
	}
	return nil
}

// PropertyPatch carries a partial update. Nil fields are left unchanged.
type PropertyPatch struct {
	Title           *string         `json:"title,omitempty"`
	Description     *string         `json:"description,omitempty"`
	PropertyType    *PropertyType   `json:"propertyType,omitempty"`
	ListingType     *ListingType    `json:"listingType,omitempty"`
	Address         *Address        `json:"address,omitempty"`
	Specs           *Specs          `json:"specs,omitempty"`
	Pricing         *Pricing        `json:"pricing,omitempty"`
	Amenities       *[]string       `json:"amenities,omitempty"`
	Images          *[]Image        `json:"images,omitempty"`
	Status          *PropertyStatus `json:"status,omitempty"`
	RejectionReason *string         `json:"rejectionReason,omitempty"`
	ExpectedVersion *int64          `json:"expectedVersion,omitempty"`
}

// HasContent reports whether the patch touches any editable field.
func (p PropertyPatch) HasContent() bool {
	return p.Title != nil || p.Description != nil || p.PropertyType != nil || p.ListingType != nil ||
		p.Address != nil || p.Specs != nil || p.Pricing != nil || p.Amenities != nil || p.Images != nil
}

// Apply overlays the patch onto in.
func (p PropertyPatch) Apply(in *PropertyInput) {
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.PropertyType != nil {
		in.PropertyType = *p.PropertyType
	}
	if p.ListingType != nil {
		in.ListingType = *p.ListingType
	}
	if p.Address != nil {
		in.Address = *p.Address
	}
	if p.Specs != nil {
		in.Specs = *p.Specs
	}
	if p.Pricing != nil {
		in.Pricing = *p.Pricing
	}
	if p.Amenities != nil {
		in.Amenities = *p.Amenities
	}
	if p.Images != nil {
		in.Images = *p.Images
	}
}

// Sort orders accepted by PropertyFilter.
const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortPriceAsc  = "price-asc"
	SortPriceDesc = "price-desc"
	SortPopular   = "popular"
)

type PropertyFilter struct {
	Search       string           `json:"search,omitempty"`
	City         string           `json:"city,omitempty"`
	PropertyType PropertyType     `json:"propertyType,omitempty"`
	ListingType  ListingType      `json:"listingType,omitempty"`
	MinPrice     *int64           `json:"minPrice,omitempty"`
	MaxPrice     *int64           `json:"maxPrice,omitempty"`
	Bedrooms     *int             `json:"bedrooms,omitempty"`
	Statuses     []PropertyStatus `json:"statuses,omitempty"`
	Owner        string           `json:"owner,omitempty"`
	Page         int              `json:"page"`
	Limit        int              `json:"limit"`
	Sort         string           `json:"sort,omitempty"`
}

// Offset returns the row offset for the filter's page.
func (f PropertyFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}
