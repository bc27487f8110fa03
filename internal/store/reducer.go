package store

import "time"

// reduce returns the state after a. It never mutates prev.
func reduce(prev State, a Action) State {
	next := prev
	switch a.Type {
	case ActionAddRequest:
		if a.Request == nil || a.Request.ID == "" {
			return prev
		}
		if _, exists := prev.Requests.Get(a.Request.ID); exists {
			return prev
		}
		next.Requests = prev.Requests.with(a.Request)
		if next.FirstStartedAt.IsZero() || a.Request.StartedAt.Before(next.FirstStartedAt) {
			next.FirstStartedAt = a.Request.StartedAt
		}

	case ActionUpdateRequest:
		if a.Request == nil {
			return prev
		}
		if _, exists := prev.Requests.Get(a.Request.ID); !exists {
			return prev
		}
		next.Requests = prev.Requests.with(a.Request)

	case ActionClearRequests:
		next.Requests = InitialState().Requests
		next.SelectedID = ""
		next.FirstStartedAt = time.Time{}

	case ActionSelectRequest:
		if a.ID == "" {
			next.SelectedID = ""
		} else if _, ok := prev.Requests.Get(a.ID); ok {
			next.SelectedID = a.ID
		}

	case ActionSortBy:
		key := a.Sort
		if !validSortKey(key) {
			return prev
		}
		if prev.Sort.Key == key {
			next.Sort = Sort{Key: key, Descending: !prev.Sort.Descending}
		} else {
			next.Sort = Sort{Key: key}
		}

	case ActionToggleFilterType:
		next.Filter = toggleFilterType(prev.Filter, a.FilterType)

	case ActionSetFilterText:
		f := prev.Filter.clone()
		f.Text = a.Text
		next.Filter = f

	case ActionBatchEnable:
		next.BatchEnabled = a.Enabled

	case ActionBatchActions:
		for _, inner := range a.Actions {
			next = reduce(next, inner)
		}

	case ActionToggleRecording:
		next.Recording = !prev.Recording
	}
	return next
}

func toggleFilterType(prev Filter, t FilterType) Filter {
	if !validFilterType(t) {
		return prev
	}
	f := prev.clone()
	if t == FilterAll {
		f.Types = map[FilterType]bool{FilterAll: true}
		return f
	}
	delete(f.Types, FilterAll)
	if f.Types[t] {
		delete(f.Types, t)
	} else {
		f.Types[t] = true
	}
	if len(f.Types) == 0 {
		f.Types[FilterAll] = true
	}
	return f
}
