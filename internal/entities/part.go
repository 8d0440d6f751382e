package entities

import "time"

// PartType is fixed at creation and decides which categories a part may enter.
type PartType string

const (
	PartTypeCNC  PartType = "cnc"
	PartTypeHand PartType = "hand"
	PartTypeMisc PartType = "misc"
)

var PartTypes = []PartType{PartTypeCNC, PartTypeHand, PartTypeMisc}

func (t PartType) Valid() bool {
	switch t {
	case PartTypeCNC, PartTypeHand, PartTypeMisc:
		return true
	}
	return false
}

// Category is the coarse workflow stage.
type Category string

const (
	CategoryReview    Category = "review"
	CategoryCNC       Category = "cnc"
	CategoryHand      Category = "hand"
	CategoryMisc      Category = "misc"
	CategoryCompleted Category = "completed"
)

var Categories = []Category{CategoryReview, CategoryCNC, CategoryHand, CategoryMisc, CategoryCompleted}

func (c Category) Valid() bool {
	switch c {
	case CategoryReview, CategoryCNC, CategoryHand, CategoryMisc, CategoryCompleted:
		return true
	}
	return false
}

// IsProduction reports whether parts in c are being fabricated or sourced.
func (c Category) IsProduction() bool {
	return c == CategoryCNC || c == CategoryHand || c == CategoryMisc
}

// Status is the human readable progress label inside a category.
type Status string

const (
	StatusPending        Status = "Pending"
	StatusReviewed       Status = "Reviewed"
	StatusInProgress     Status = "In Progress"
	StatusAlreadyStarted Status = "Already Started"
	StatusCompleted      Status = "Completed"
)

// ConversionStatus tracks the derived 3D model of an uploaded STEP file.
type ConversionStatus string

const (
	ConversionNone    ConversionStatus = "none"
	ConversionPending ConversionStatus = "pending"
	ConversionReady   ConversionStatus = "ready"
	ConversionFailed  ConversionStatus = "failed"
)

type Part struct {
	ID                int64
	PartID            string
	Type              PartType
	Name              string
	Subsystem         string
	Material          string
	MaterialThickness *string
	Amount            int
	CompletedAmount   *int
	Notes             string
	OnshapeURL        *string
	Category          Category
	Status            Status
	Assigned          *string
	ClaimedDate       *time.Time
	CompletedAt       *time.Time
	File              *string
	FilePath          *string
	ModelPath         *string
	ConversionStatus  ConversionStatus
	ConversionError   *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DisplayName falls back to the part id when the name is blank.
func (p Part) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.PartID
}

// Clone returns a deep copy so callers can mutate pointer fields safely.
func (p Part) Clone() Part {
	c := p
	c.MaterialThickness = cloneString(p.MaterialThickness)
	c.OnshapeURL = cloneString(p.OnshapeURL)
	c.Assigned = cloneString(p.Assigned)
	c.File = cloneString(p.File)
	c.FilePath = cloneString(p.FilePath)
	c.ModelPath = cloneString(p.ModelPath)
	c.ConversionError = cloneString(p.ConversionError)
	if p.CompletedAmount != nil {
		v := *p.CompletedAmount
		c.CompletedAmount = &v
	}
	if p.ClaimedDate != nil {
		v := *p.ClaimedDate
		c.ClaimedDate = &v
	}
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		c.CompletedAt = &v
	}
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// PartStats is the per-category and per-type breakdown served by /parts/stats.
type PartStats struct {
	Total      int64              `json:"total"`
	ByCategory map[Category]int64 `json:"byCategory"`
	ByType     map[PartType]int64 `json:"byType"`
	Assigned   int64              `json:"assigned"`
}

// LeaderboardEntry counts completed parts per assignee.
type LeaderboardEntry struct {
	Assigned  string `json:"assigned"`
	Completed int64  `json:"completed"`
}
