package store

import "github.com/raysh454/netmon/internal/model"

type ActionType string

const (
	ActionAddRequest       ActionType = "ADD_REQUEST"
	ActionUpdateRequest    ActionType = "UPDATE_REQUEST"
	ActionClearRequests    ActionType = "CLEAR_REQUESTS"
	ActionSelectRequest    ActionType = "SELECT_REQUEST"
	ActionSortBy           ActionType = "SORT_BY"
	ActionToggleFilterType ActionType = "TOGGLE_REQUEST_FILTER_TYPE"
	ActionSetFilterText    ActionType = "SET_REQUEST_FILTER_TEXT"
	ActionBatchEnable      ActionType = "BATCH_ENABLE"
	ActionBatchActions     ActionType = "BATCH_ACTIONS"
	ActionBatchFlush       ActionType = "BATCH_FLUSH"
	ActionToggleRecording  ActionType = "TOGGLE_RECORDING"
)

// Action is a plain description of a state change. Only the fields the Type
// uses are read.
type Action struct {
	Type ActionType `json:"type"`

	Request    *model.Request `json:"request,omitempty"`
	ID         string         `json:"id,omitempty"`
	Sort       SortKey        `json:"sort,omitempty"`
	FilterType FilterType     `json:"filter_type,omitempty"`
	Text       string         `json:"text,omitempty"`
	Enabled    bool           `json:"enabled,omitempty"`
	Actions    []Action       `json:"actions,omitempty"`
}

func AddRequest(r *model.Request) Action {
	return Action{Type: ActionAddRequest, Request: r.Clone()}
}

// UpdateRequest replaces the stored record with the same ID. Updates for
// requests that are not in the list (for example after a clear) are ignored.
func UpdateRequest(r *model.Request) Action {
	return Action{Type: ActionUpdateRequest, Request: r.Clone(), ID: r.ID}
}

func ClearRequests() Action { return Action{Type: ActionClearRequests} }

func SelectRequest(id string) Action { return Action{Type: ActionSelectRequest, ID: id} }

// SortBy sorts by key; sorting by the current key again flips direction.
func SortBy(key SortKey) Action { return Action{Type: ActionSortBy, Sort: key} }

func ToggleFilterType(t FilterType) Action {
	return Action{Type: ActionToggleFilterType, FilterType: t}
}

func SetFilterText(text string) Action { return Action{Type: ActionSetFilterText, Text: text} }

// BatchEnable turns queueing of request add/update actions on or off.
// Turning it off flushes whatever is queued first.
func BatchEnable(enabled bool) Action { return Action{Type: ActionBatchEnable, Enabled: enabled} }

func BatchFlush() Action { return Action{Type: ActionBatchFlush} }

func BatchActions(actions []Action) Action {
	return Action{Type: ActionBatchActions, Actions: actions}
}

func ToggleRecording() Action { return Action{Type: ActionToggleRecording} }

func batchable(a Action) bool {
	return a.Type == ActionAddRequest || a.Type == ActionUpdateRequest
}
