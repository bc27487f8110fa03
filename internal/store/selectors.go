package store

import (
	"time"

	"github.com/raysh454/netmon/internal/model"
)

// GetSortedRequests returns every request ordered by the active sort.
// The returned records are shared with the state and must not be modified.
func GetSortedRequests(s State) []*model.Request {
	reqs := s.Requests.All()
	sortRequests(reqs, s.Sort)
	return reqs
}

// GetDisplayedRequests is GetSortedRequests narrowed by the type buttons and
// the text filter.
func GetDisplayedRequests(s State) []*model.Request {
	sorted := GetSortedRequests(s)
	out := make([]*model.Request, 0, len(sorted))
	for _, r := range sorted {
		if matchesTypes(s.Filter, r) && matchesText(s.Filter.Text, r) {
			out = append(out, r)
		}
	}
	return out
}

func GetRequestByID(s State, id string) (*model.Request, bool) {
	return s.Requests.Get(id)
}

func GetSelectedRequest(s State) (*model.Request, bool) {
	if s.SelectedID == "" {
		return nil, false
	}
	return s.Requests.Get(s.SelectedID)
}

// Summary is the footer line of the request list.
type Summary struct {
	Count           int           `json:"count"`
	ContentSize     int64         `json:"content_size"`
	TransferredSize int64         `json:"transferred_size"`
	Elapsed         time.Duration `json:"elapsed"`
}

// GetSummary totals the displayed requests. Elapsed spans from the earliest
// start to the latest end.
func GetSummary(s State) Summary {
	var sum Summary
	var first, last time.Time
	for _, r := range GetDisplayedRequests(s) {
		sum.Count++
		sum.ContentSize += r.ContentSize
		sum.TransferredSize += r.TransferredSize
		if first.IsZero() || r.StartedAt.Before(first) {
			first = r.StartedAt
		}
		if end := r.StartedAt.Add(r.TotalTime); end.After(last) {
			last = end
		}
	}
	if sum.Count > 0 {
		sum.Elapsed = last.Sub(first)
	}
	return sum
}
