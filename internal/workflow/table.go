package workflow

import "parts-tracker/internal/entities"

const (
	InitialCategory = entities.CategoryReview
	InitialStatus   = entities.StatusPending
)

// validStatuses lists the statuses each category may carry.
var validStatuses = map[entities.Category][]entities.Status{
	entities.CategoryReview:    {entities.StatusPending, entities.StatusInProgress, entities.StatusAlreadyStarted},
	entities.CategoryCNC:       {entities.StatusReviewed, entities.StatusInProgress, entities.StatusAlreadyStarted},
	entities.CategoryHand:      {entities.StatusReviewed, entities.StatusInProgress, entities.StatusAlreadyStarted},
	entities.CategoryMisc:      {entities.StatusReviewed, entities.StatusInProgress, entities.StatusAlreadyStarted},
	entities.CategoryCompleted: {entities.StatusCompleted},
}

// categoryEdges is the type-independent transition graph.
var categoryEdges = map[entities.Category][]entities.Category{
	entities.CategoryReview:    {entities.CategoryCNC, entities.CategoryHand, entities.CategoryMisc, entities.CategoryCompleted},
	entities.CategoryCNC:       {entities.CategoryCompleted},
	entities.CategoryHand:      {entities.CategoryCompleted},
	entities.CategoryMisc:      {entities.CategoryCompleted},
	entities.CategoryCompleted: {entities.CategoryCNC, entities.CategoryHand, entities.CategoryMisc},
}

// ValidPair reports whether status is legal inside category.
func ValidPair(c entities.Category, s entities.Status) bool {
	for _, allowed := range validStatuses[c] {
		if allowed == s {
			return true
		}
	}
	return false
}

// CanMove reports whether the graph has an edge from -> to.
func CanMove(from, to entities.Category) bool {
	return containsCategory(categoryEdges[from], to)
}

// ApprovalTargets are the categories a part of type t may be approved into.
func ApprovalTargets(t entities.PartType) []entities.Category {
	switch t {
	case entities.PartTypeCNC:
		return []entities.Category{entities.CategoryCNC}
	case entities.PartTypeHand:
		return []entities.Category{entities.CategoryHand}
	case entities.PartTypeMisc:
		return []entities.Category{entities.CategoryMisc, entities.CategoryCompleted}
	}
	return nil
}

// RevertTargets are the categories a completed part of type t may return to.
func RevertTargets(t entities.PartType) []entities.Category {
	switch t {
	case entities.PartTypeCNC:
		return []entities.Category{entities.CategoryCNC, entities.CategoryMisc}
	case entities.PartTypeHand:
		return []entities.Category{entities.CategoryHand, entities.CategoryMisc}
	case entities.PartTypeMisc:
		return []entities.Category{entities.CategoryMisc}
	}
	return nil
}

// StatusesFor exposes the allowed statuses of c for listings and docs.
func StatusesFor(c entities.Category) []entities.Status {
	return append([]entities.Status(nil), validStatuses[c]...)
}

func containsCategory(list []entities.Category, c entities.Category) bool {
	for _, item := range list {
		if item == c {
			return true
		}
	}
	return false
}
