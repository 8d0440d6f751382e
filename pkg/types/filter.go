package types

// PartFilter represents list query parameters:
// /parts?category=cnc&search=gear&sort_by=name&sort_order=desc&limit=50&offset=0
type PartFilter struct {
	Category  string `json:"category,omitempty"`
	Search    string `json:"search,omitempty"`
	SortBy    string `json:"sort_by,omitempty"`
	SortOrder string `json:"sort_order,omitempty"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
}

// Pagination represents pagination metadata.
type Pagination struct {
	TotalCount uint64 `json:"total_count"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)
