package server

import (
	"github.com/raysh454/netmon/internal/model"
	"github.com/raysh454/netmon/internal/store"
)

// HealthResponse reports liveness and a few counters.
type HealthResponse struct {
	Status    string `json:"status" example:"ok"`
	Recording bool   `json:"recording" example:"true"`
	Requests  int    `json:"requests" example:"12"`
	SessionID string `json:"session_id,omitempty" example:"3f0c8c52-7a43-4c1e-9e0e-1f2a9b6a1d11"`
	ProxyAddr string `json:"proxy_addr,omitempty" example:"127.0.0.1:8081"`
}

// RequestListResponse is the filtered, sorted request list with its footer.
type RequestListResponse struct {
	Requests []*model.Request `json:"requests"`
	Summary  store.Summary    `json:"summary"`
}

// BatchRequest turns action batching on or off.
type BatchRequest struct {
	Enabled bool `json:"enabled" example:"false"`
}

// RecordingRequest pauses or resumes capture.
type RecordingRequest struct {
	Paused bool `json:"paused" example:"true"`
}

// SortRequest sorts by a column; repeating the current column flips direction.
type SortRequest struct {
	Key string `json:"key" example:"status"`
}

// FilterRequest toggles a type button and/or sets the filter text.
type FilterRequest struct {
	Type string  `json:"type,omitempty" example:"xhr"`
	Text *string `json:"text,omitempty" example:"method:POST"`
}

// SelectRequest selects a row.
type SelectRequest struct {
	ID string `json:"id" example:"a1b2c3"`
}

// PanelStateResponse is the non-list part of the panel state.
type PanelStateResponse struct {
	SelectedID   string       `json:"selected_id,omitempty"`
	Sort         store.Sort   `json:"sort"`
	Filter       store.Filter `json:"filter"`
	BatchEnabled bool         `json:"batch_enabled"`
	Recording    bool         `json:"recording"`
}

// LoadRequest loads a page through a monitored tab.
type LoadRequest struct {
	URL string `json:"url" example:"http://localhost:8888/html_custom-get-page.html"`
}

// LoadResponse reports the page load outcome.
type LoadResponse struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty" example:"200"`
	Bytes      int    `json:"bytes" example:"512"`
}

// StartChecksRequest optionally picks scenarios; empty runs all.
type StartChecksRequest struct {
	Scenarios []string `json:"scenarios" example:"[\"beacon-capture\"]"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}

func panelState(st store.State) PanelStateResponse {
	return PanelStateResponse{
		SelectedID:   st.SelectedID,
		Sort:         st.Sort,
		Filter:       st.Filter,
		BatchEnabled: st.BatchEnabled,
		Recording:    st.Recording,
	}
}
