// Package viewstate holds client UI state for the parts tracker: the active
// tab, parts per category, search text, per-tab sort and notifications.
// State changes only through Update, so views can be rebuilt from it.
package viewstate

import (
	"sync"

	"parts-tracker/internal/dto"
	"parts-tracker/internal/entities"
	"parts-tracker/pkg/partquery"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notification struct {
	ID    int
	Level Level
	Text  string
}

// Msg is anything Update understands.
type Msg interface{ isMsg() }

type SwitchTab struct{ Tab entities.Category }

type SetSearch struct{ Text string }

// ClickSort cycles the active tab's sort on Field.
type ClickSort struct{ Field string }

type PartsLoaded struct {
	Category entities.Category
	Parts    []dto.PartResponseDTO
}

// PartChanged replaces the part wherever it is listed and files it under
// its current category.
type PartChanged struct{ Part dto.PartResponseDTO }

type PartRemoved struct{ ID int64 }

type AllRemoved struct{}

type Notify struct {
	Level Level
	Text  string
}

type Dismiss struct{ ID int }

func (SwitchTab) isMsg()   {}
func (SetSearch) isMsg()   {}
func (ClickSort) isMsg()   {}
func (PartsLoaded) isMsg() {}
func (PartChanged) isMsg() {}
func (PartRemoved) isMsg() {}
func (AllRemoved) isMsg()  {}
func (Notify) isMsg()      {}
func (Dismiss) isMsg()     {}

// AppState is safe for concurrent use; event feeds may call Update from
// their own goroutine.
type AppState struct {
	mu            sync.RWMutex
	tab           entities.Category
	parts         map[entities.Category][]dto.PartResponseDTO
	search        string
	sorts         map[entities.Category]partquery.SortState
	notifications []Notification
	nextID        int
}

func New() *AppState {
	return &AppState{
		tab:   entities.CategoryReview,
		parts: make(map[entities.Category][]dto.PartResponseDTO),
		sorts: make(map[entities.Category]partquery.SortState),
	}
}

func (s *AppState) Update(msg Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case SwitchTab:
		if m.Tab.Valid() {
			s.tab = m.Tab
		}
	case SetSearch:
		s.search = m.Text
	case ClickSort:
		s.sorts[s.tab] = s.sorts[s.tab].Next(m.Field)
	case PartsLoaded:
		s.parts[m.Category] = append([]dto.PartResponseDTO(nil), m.Parts...)
	case PartChanged:
		s.upsert(m.Part)
	case PartRemoved:
		s.remove(m.ID)
	case AllRemoved:
		s.parts = make(map[entities.Category][]dto.PartResponseDTO)
	case Notify:
		s.nextID++
		s.notifications = append(s.notifications, Notification{ID: s.nextID, Level: m.Level, Text: m.Text})
	case Dismiss:
		for i, n := range s.notifications {
			if n.ID == m.ID {
				s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
				break
			}
		}
	}
}

// upsert keeps the part's position when it stays in the same category and
// appends it otherwise.
func (s *AppState) upsert(p dto.PartResponseDTO) {
	target := entities.Category(p.Category)
	for cat, list := range s.parts {
		for i := range list {
			if list[i].ID != p.ID {
				continue
			}
			if cat == target {
				list[i] = p
				return
			}
			s.parts[cat] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	s.parts[target] = append(s.parts[target], p)
}

func (s *AppState) remove(id int64) {
	for cat, list := range s.parts {
		for i := range list {
			if list[i].ID == id {
				s.parts[cat] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
}

func (s *AppState) Tab() entities.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tab
}

func (s *AppState) Search() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search
}

func (s *AppState) Sort(tab entities.Category) partquery.SortState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorts[tab]
}

// Query describes what the active tab shows, for server side listing.
func (s *AppState) Query() partquery.Query {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return partquery.Query{Category: string(s.tab), Search: s.search, Sort: s.sorts[s.tab]}
}

// Visible returns the active tab's parts after search and sort, without
// pagination.
func (s *AppState) Visible() []dto.PartResponseDTO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return partquery.Arrange(s.parts[s.tab], partquery.Query{Category: string(s.tab), Search: s.search, Sort: s.sorts[s.tab]})
}

// Count returns how many parts are loaded for tab.
func (s *AppState) Count(tab entities.Category) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parts[tab])
}

func (s *AppState) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.notifications...)
}
