package models

import "time"

// InquiryStatus is the inquiry workflow state.
type InquiryStatus string

const (
	InquiryNew           InquiryStatus = "new"
	InquiryContacted     InquiryStatus = "contacted"
	InquiryInterested    InquiryStatus = "interested"
	InquiryNotInterested InquiryStatus = "not-interested"
	InquiryClosed        InquiryStatus = "closed"
)

var InquiryStatuses = []InquiryStatus{
	InquiryNew, InquiryContacted, InquiryInterested, InquiryNotInterested, InquiryClosed,
}

func (s InquiryStatus) Valid() bool {
	for _, v := range InquiryStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ContactMethod is how the buyer prefers to be reached.
type ContactMethod string

const (
	ContactCall     ContactMethod = "call"
	ContactEmail    ContactMethod = "email"
	ContactWhatsApp ContactMethod = "whatsapp"
)

func (c ContactMethod) Valid() bool {
	return c == ContactCall || c == ContactEmail || c == ContactWhatsApp
}

// BuyerInfo is a snapshot of the buyer's profile taken when the inquiry is created.
type BuyerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Inquiry is a buyer-to-owner message about one listing. PropertyTitle and
// PropertyDeleted are filled on reads; the listing may have been deleted since.
type Inquiry struct {
	ID              string        `json:"id"`
	Property        string        `json:"property"`
	PropertyTitle   string        `json:"propertyTitle,omitempty"`
	PropertyDeleted bool          `json:"propertyDeleted,omitempty"`
	Buyer           string        `json:"buyer"`
	Owner           string        `json:"owner"`
	Message         string        `json:"message"`
	ContactMethod   ContactMethod `json:"contactMethod"`
	BuyerInfo       BuyerInfo     `json:"buyerInfo"`
	Status          InquiryStatus `json:"status"`
	Response        string        `json:"response,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	RespondedAt     *time.Time    `json:"respondedAt,omitempty"`
	Version         int64         `json:"version"`
}

// InquiryInput is the body of a new inquiry.
type InquiryInput struct {
	PropertyID    string        `json:"propertyId" validate:"required"`
	Message       string        `json:"message" validate:"min=10,max=500"`
	ContactMethod ContactMethod `json:"contactMethod" validate:"required,oneof=call email whatsapp"`
}

// InquiryPatch updates status and/or response. Nil fields are left unchanged.
type InquiryPatch struct {
	Status          *InquiryStatus `json:"status,omitempty"`
	Response        *string        `json:"response,omitempty" validate:"omitempty,max=1000"`
	ExpectedVersion *int64         `json:"expectedVersion,omitempty"`
}

type InquiryFilter struct {
	Status InquiryStatus `json:"status,omitempty"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
}

func (f InquiryFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}
