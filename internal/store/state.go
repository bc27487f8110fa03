package store

import (
	"time"

	"github.com/raysh454/netmon/internal/model"
)

// RequestList is an insertion-ordered set of requests. The reducer never
// mutates a list in place; every change produces a new one, so a State
// returned by GetState stays valid however the store moves on.
type RequestList struct {
	order []string
	byID  map[string]*model.Request
}

// Size is the number of requests in the list.
func (l RequestList) Size() int { return len(l.order) }

// Get returns the request with id.
func (l RequestList) Get(id string) (*model.Request, bool) {
	r, ok := l.byID[id]
	return r, ok
}

// All returns the requests in arrival order.
func (l RequestList) All() []*model.Request {
	out := make([]*model.Request, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

// ByID exposes the lookup map; callers must treat it as read-only.
func (l RequestList) ByID() map[string]*model.Request { return l.byID }

func (l RequestList) with(r *model.Request) RequestList {
	byID := make(map[string]*model.Request, len(l.byID)+1)
	for k, v := range l.byID {
		byID[k] = v
	}
	order := l.order
	if _, exists := byID[r.ID]; !exists {
		order = make([]string, len(l.order), len(l.order)+1)
		copy(order, l.order)
		order = append(order, r.ID)
	}
	byID[r.ID] = r
	return RequestList{order: order, byID: byID}
}

type Sort struct {
	Key        SortKey `json:"key"`
	Descending bool    `json:"descending"`
}

type Filter struct {
	Types map[FilterType]bool `json:"types"`
	Text  string              `json:"text"`
}

func (f Filter) clone() Filter {
	types := make(map[FilterType]bool, len(f.Types))
	for k, v := range f.Types {
		types[k] = v
	}
	return Filter{Types: types, Text: f.Text}
}

// State is the whole panel state.
type State struct {
	Requests     RequestList
	SelectedID   string
	Sort         Sort
	Filter       Filter
	BatchEnabled bool
	Recording    bool

	// FirstStartedAt anchors the waterfall; zero when the list is empty.
	FirstStartedAt time.Time
}

// InitialState is the state of a freshly opened panel.
func InitialState() State {
	return State{
		Requests:     RequestList{byID: map[string]*model.Request{}},
		Sort:         Sort{Key: SortWaterfall},
		Filter:       Filter{Types: map[FilterType]bool{FilterAll: true}},
		BatchEnabled: true,
		Recording:    true,
	}
}
