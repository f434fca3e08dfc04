package models

// Page is one slice of a paginated result.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// Pages returns the number of pages needed to hold Total items.
func (p Page[T]) Pages() int {
	if p.Limit <= 0 || p.Total == 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// Analytics is the admin dashboard snapshot.
type Analytics struct {
	PropertiesByStatus map[PropertyStatus]int `json:"propertiesByStatus"`
	PropertiesByType   map[PropertyType]int   `json:"propertiesByType"`
	TopCities          []CityCount            `json:"topCities"`
	InquiriesByStatus  map[InquiryStatus]int  `json:"inquiriesByStatus"`
	UsersByRole        map[Role]int           `json:"usersByRole"`
	TotalViews         int64                  `json:"totalViews"`
	TotalInquiries     int64                  `json:"totalInquiries"`
}

type CityCount struct {
	City  string `json:"city"`
	Count int    `json:"count"`
}

// PropertyEmbedding is the vector representation of an approved listing.
type PropertyEmbedding struct {
	PropertyID string    `json:"propertyId"`
	Model      string    `json:"model"`
	Vector     []float32 `json:"vector"`
}
