// Package partquery applies the server's list rules (search, sort, cnc
// priority, pagination) to parts already held by a client.
package partquery

import (
	"sort"
	"strings"

	"parts-tracker/internal/dto"
	"parts-tracker/internal/entities"
	"parts-tracker/pkg/types"
)

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
	None Order = ""
)

// SortState is the active sort of one list. The zero value is unsorted.
type SortState struct {
	Field string
	Order Order
}

// Active reports whether a user sort is applied.
func (s SortState) Active() bool {
	return s.Field != "" && s.Order != None
}

// Next returns the state after the user selects field: a new field starts
// ascending, then the same field goes descending, then back to unsorted.
func (s SortState) Next(field string) SortState {
	if !s.Active() || s.Field != field {
		return SortState{Field: field, Order: Asc}
	}
	if s.Order == Asc {
		return SortState{Field: field, Order: Desc}
	}
	return SortState{}
}

// Query mirrors the list endpoint parameters.
type Query struct {
	Category string
	Search   string
	Sort     SortState
	Limit    int
	Offset   int
}

// Filter returns the matching query parameters for the list endpoint.
func (q Query) Filter() types.PartFilter {
	return types.PartFilter{
		Category:  q.Category,
		Search:    q.Search,
		SortBy:    q.Sort.Field,
		SortOrder: string(q.Sort.Order),
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
}

// Apply filters, sorts and pages parts. The input slice is not modified.
func Apply(parts []dto.PartResponseDTO, q Query) []dto.PartResponseDTO {
	return Page(Arrange(parts, q), q.Limit, q.Offset)
}

// Arrange filters and sorts parts into a new slice, ignoring pagination.
func Arrange(parts []dto.PartResponseDTO, q Query) []dto.PartResponseDTO {
	out := make([]dto.PartResponseDTO, 0, len(parts))
	for _, p := range parts {
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		if !Match(p, q.Search) {
			continue
		}
		out = append(out, p)
	}
	switch {
	case q.Sort.Active():
		Sort(out, q.Sort)
	case q.Category == string(entities.CategoryCNC):
		SortByPriority(out)
	}
	return out
}

// Match reports whether any searchable field contains search, ignoring case.
// An empty search matches everything.
func Match(p dto.PartResponseDTO, search string) bool {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return true
	}
	fields := []string{p.Name, p.Notes, p.Subsystem, p.Assigned.String, p.Status, p.Material, p.PartID}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// Sort orders parts in place by s. Ties keep their current order. Unknown
// fields and the unsorted state leave parts untouched.
func Sort(parts []dto.PartResponseDTO, s SortState) {
	less := lessFunc(s.Field)
	if less == nil || !s.Active() {
		return
	}
	sort.SliceStable(parts, func(i, j int) bool {
		if s.Order == Desc {
			return less(parts[j], parts[i])
		}
		return less(parts[i], parts[j])
	})
}

// SortByPriority puts active work first, then reviewed parts, then the rest.
func SortByPriority(parts []dto.PartResponseDTO) {
	sort.SliceStable(parts, func(i, j int) bool {
		return priority(parts[i].Status) < priority(parts[j].Status)
	})
}

func priority(status string) int {
	switch entities.Status(status) {
	case entities.StatusInProgress, entities.StatusAlreadyStarted:
		return 0
	case entities.StatusReviewed:
		return 1
	}
	return 2
}

// Page applies limit and offset with the server's defaults. An offset past
// the end yields an empty page.
func Page(parts []dto.PartResponseDTO, limit, offset int) []dto.PartResponseDTO {
	if limit <= 0 {
		limit = types.DefaultLimit
	}
	if limit > types.MaxLimit {
		limit = types.MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(parts) {
		return []dto.PartResponseDTO{}
	}
	end := offset + limit
	if end > len(parts) {
		end = len(parts)
	}
	return parts[offset:end]
}

type lessFn func(a, b dto.PartResponseDTO) bool

func byString(key func(p dto.PartResponseDTO) string) lessFn {
	return func(a, b dto.PartResponseDTO) bool {
		return strings.ToLower(key(a)) < strings.ToLower(key(b))
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func lessFunc(field string) lessFn {
	switch field {
	case "name":
		return byString(func(p dto.PartResponseDTO) string { return firstNonEmpty(p.Name, p.PartID) })
	case "partId", "part_id":
		return byString(func(p dto.PartResponseDTO) string { return firstNonEmpty(p.PartID, p.Name) })
	case "assigned":
		return byString(func(p dto.PartResponseDTO) string { return p.Assigned.String })
	case "status":
		return byString(func(p dto.PartResponseDTO) string { return p.Status })
	case "subsystem":
		return byString(func(p dto.PartResponseDTO) string { return p.Subsystem })
	case "material":
		return byString(func(p dto.PartResponseDTO) string { return p.Material })
	case "createdAt", "created_at":
		return func(a, b dto.PartResponseDTO) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "amount":
		return func(a, b dto.PartResponseDTO) bool { return a.Amount < b.Amount }
	}
	return nil
}
