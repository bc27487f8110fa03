package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/raysh454/netmon/internal/app"
	"github.com/raysh454/netmon/internal/archive"
	"github.com/raysh454/netmon/internal/compare"
	"github.com/raysh454/netmon/internal/har"
	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/model"
	"github.com/raysh454/netmon/internal/panel"
	"github.com/raysh454/netmon/internal/scenario"
	"github.com/raysh454/netmon/internal/store"
)

// Version is reported as the HAR creator version.
var Version = "0.1.0"

func harCreator() har.Creator { return har.Creator{Name: "netmon", Version: Version} }

// handleHealth godoc
// @Summary Liveness and counters
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.store().GetState()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Recording: st.Recording,
		Requests:  st.Requests.Size(),
		SessionID: s.app.SessionID(),
		ProxyAddr: s.app.ProxyAddr(),
	})
}

// Requests

// handleListRequests godoc
// @Summary List captured requests
// @Description Query parameters override the panel's filter and sort for this response only.
// @Tags requests
// @Produce json
// @Param type query string false "comma separated filter types (html, css, js, xhr, fonts, images, media, ws, other)"
// @Param q query string false "filter text"
// @Param sort query string false "sort column"
// @Param desc query bool false "descending"
// @Success 200 {object} RequestListResponse
// @Failure 400 {object} ErrorResponse
// @Router /requests [get]
func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	st := s.store().GetState()
	q := r.URL.Query()

	if q.Has("type") || q.Has("q") {
		f := store.Filter{Types: map[store.FilterType]bool{}, Text: q.Get("q")}
		for _, raw := range strings.Split(q.Get("type"), ",") {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			ft, ok := store.ParseFilterType(raw)
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown filter type %q", raw))
				return
			}
			f.Types[ft] = true
		}
		st.Filter = f
	}
	if raw := q.Get("sort"); raw != "" {
		key, ok := store.ParseSortKey(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown sort key %q", raw))
			return
		}
		desc, _ := strconv.ParseBool(q.Get("desc"))
		st.Sort = store.Sort{Key: key, Descending: desc}
	}

	reqs := store.GetDisplayedRequests(st)
	s.logger.Info("listed requests", logging.F("count", len(reqs)))
	writeJSON(w, http.StatusOK, RequestListResponse{Requests: reqs, Summary: store.GetSummary(st)})
}

func (s *Server) lookup(w http.ResponseWriter, id string) (*model.Request, bool) {
	req, ok := store.GetRequestByID(s.store().GetState(), id)
	if !ok {
		s.logger.Warn("request lookup failed", logging.F("id", id))
		writeError(w, http.StatusNotFound, fmt.Sprintf("%v: %s", ErrRequestNotFound, id))
		return nil, false
	}
	return req, true
}

// handleGetRequest godoc
// @Summary Get one request
// @Tags requests
// @Produce json
// @Param id path string true "request id"
// @Success 200 {object} model.Request
// @Failure 404 {object} ErrorResponse
// @Router /requests/{id} [get]
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := s.lookup(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// handleRedirectChain godoc
// @Summary Redirect chain a request belongs to, origin first
// @Tags requests
// @Produce json
// @Param id path string true "request id"
// @Success 200 {array} model.Request
// @Failure 404 {object} ErrorResponse
// @Router /requests/{id}/redirects [get]
func (s *Server) handleRedirectChain(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	chain := model.RedirectChain(s.store().GetState().Requests.ByID(), id)
	if chain == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%v: %s", ErrRequestNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

// handleClearRequests godoc
// @Summary Clear the request list
// @Tags requests
// @Success 204
// @Router /requests [delete]
func (s *Server) handleClearRequests(w http.ResponseWriter, r *http.Request) {
	s.app.Monitor.Clear()
	s.logger.Info("cleared requests")
	w.WriteHeader(http.StatusNoContent)
}

// handleCompare godoc
// @Summary Diff two requests
// @Tags requests
// @Produce json
// @Param base query string true "base request id"
// @Param head query string true "head request id"
// @Success 200 {object} compare.Diff
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /compare [get]
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	baseID, headID := r.URL.Query().Get("base"), r.URL.Query().Get("head")
	if baseID == "" || headID == "" {
		writeError(w, http.StatusBadRequest, "missing base or head query parameter")
		return
	}
	base, ok := s.lookup(w, baseID)
	if !ok {
		return
	}
	head, ok := s.lookup(w, headID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, compare.Requests(base, head))
}

// handleHAR godoc
// @Summary Export the request list as HAR 1.2
// @Tags requests
// @Produce json
// @Success 200 {object} har.File
// @Router /har [get]
func (s *Server) handleHAR(w http.ResponseWriter, r *http.Request) {
	writeHAR(w, store.GetSortedRequests(s.store().GetState()), "netmon.har", s.logger)
}

func writeHAR(w http.ResponseWriter, reqs []*model.Request, filename string, logger logging.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := har.Write(w, har.Export(reqs, harCreator())); err != nil {
		logger.Warn("writing har", logging.Err(err))
	}
}

// handlePanel godoc
// @Summary Rendered request list
// @Tags panel
// @Produce html
// @Success 200 {string} string
// @Router /panel [get]
func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := panel.Render(w, s.store().GetState()); err != nil {
		s.logger.Warn("rendering panel", logging.Err(err))
	}
}

// Panel actions

// handleBatch godoc
// @Summary Enable or disable action batching
// @Tags panel
// @Accept json
// @Produce json
// @Param body body BatchRequest true "batching"
// @Success 200 {object} PanelStateResponse
// @Failure 400 {object} ErrorResponse
// @Router /batch [post]
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var body BatchRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.store().Dispatch(store.BatchEnable(body.Enabled))
	writeJSON(w, http.StatusOK, panelState(s.store().GetState()))
}

// handleRecording godoc
// @Summary Pause or resume capture
// @Tags panel
// @Accept json
// @Produce json
// @Param body body RecordingRequest true "recording"
// @Success 200 {object} PanelStateResponse
// @Failure 400 {object} ErrorResponse
// @Router /recording [post]
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	var body RecordingRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Paused {
		s.app.Monitor.Pause()
	} else {
		s.app.Monitor.Resume()
	}
	writeJSON(w, http.StatusOK, panelState(s.store().GetState()))
}

// handleSort godoc
// @Summary Sort the request list
// @Tags panel
// @Accept json
// @Produce json
// @Param body body SortRequest true "sort column"
// @Success 200 {object} PanelStateResponse
// @Failure 400 {object} ErrorResponse
// @Router /sort [post]
func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	var body SortRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	key, ok := store.ParseSortKey(body.Key)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown sort key %q", body.Key))
		return
	}
	s.store().Dispatch(store.SortBy(key))
	writeJSON(w, http.StatusOK, panelState(s.store().GetState()))
}

// handleFilter godoc
// @Summary Toggle a filter type or set the filter text
// @Tags panel
// @Accept json
// @Produce json
// @Param body body FilterRequest true "filter"
// @Success 200 {object} PanelStateResponse
// @Failure 400 {object} ErrorResponse
// @Router /filter [post]
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var body FilterRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Type != "" {
		ft, ok := store.ParseFilterType(body.Type)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown filter type %q", body.Type))
			return
		}
		s.store().Dispatch(store.ToggleFilterType(ft))
	}
	if body.Text != nil {
		s.store().Dispatch(store.SetFilterText(*body.Text))
	}
	writeJSON(w, http.StatusOK, panelState(s.store().GetState()))
}

// handleSelect godoc
// @Summary Select a request row
// @Tags panel
// @Accept json
// @Produce json
// @Param body body SelectRequest true "row"
// @Success 200 {object} PanelStateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /select [post]
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var body SelectRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if _, ok := s.lookup(w, body.ID); !ok {
		return
	}
	s.store().Dispatch(store.SelectRequest(body.ID))
	writeJSON(w, http.StatusOK, panelState(s.store().GetState()))
}

// handleLoad godoc
// @Summary Load a page through a monitored tab
// @Tags panel
// @Accept json
// @Produce json
// @Param body body LoadRequest true "page"
// @Success 200 {object} LoadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /load [post]
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var body LoadRequest
	if err := decodeBody(r, &body); err != nil || body.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid JSON or missing url")
		return
	}
	resp, err := s.app.Load(r.Context(), body.URL)
	if err != nil {
		s.logger.Warn("loading page", logging.F("url", body.URL), logging.Err(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, LoadResponse{URL: body.URL, StatusCode: resp.StatusCode, Bytes: len(resp.Body)})
}

// Archive

func (s *Server) requireArchive(w http.ResponseWriter) (*archive.Archive, bool) {
	if s.app.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive disabled")
		return nil, false
	}
	return s.app.Archive, true
}

// handleListSessions godoc
// @Summary List archived capture sessions, newest first
// @Tags archive
// @Produce json
// @Param limit query int false "maximum sessions"
// @Success 200 {array} archive.Session
// @Failure 503 {object} ErrorResponse
// @Router /sessions [get]
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	a, ok := s.requireArchive(w)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := a.ListSessions(r.Context(), limit)
	if err != nil {
		s.logger.Warn("listing sessions", logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*archive.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) sessionRequests(w http.ResponseWriter, r *http.Request) ([]*model.Request, bool) {
	a, ok := s.requireArchive(w)
	if !ok {
		return nil, false
	}
	id := chi.URLParam(r, "id")
	reqs, err := a.ListRequests(r.Context(), id)
	if errors.Is(err, archive.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		s.logger.Warn("listing session requests", logging.F("session_id", id), logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if reqs == nil {
		reqs = []*model.Request{}
	}
	return reqs, true
}

// handleSessionRequests godoc
// @Summary Requests archived in a session
// @Tags archive
// @Produce json
// @Param id path string true "session id"
// @Success 200 {array} model.Request
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/requests [get]
func (s *Server) handleSessionRequests(w http.ResponseWriter, r *http.Request) {
	if reqs, ok := s.sessionRequests(w, r); ok {
		writeJSON(w, http.StatusOK, reqs)
	}
}

// handleSessionHAR godoc
// @Summary Export an archived session as HAR 1.2
// @Tags archive
// @Produce json
// @Param id path string true "session id"
// @Success 200 {object} har.File
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/har [get]
func (s *Server) handleSessionHAR(w http.ResponseWriter, r *http.Request) {
	if reqs, ok := s.sessionRequests(w, r); ok {
		writeHAR(w, reqs, "netmon-"+chi.URLParam(r, "id")+".har", s.logger)
	}
}

// Check jobs

// handleStartChecks godoc
// @Summary Run scenario checks in the background
// @Tags checks
// @Accept json
// @Produce json
// @Param body body StartChecksRequest false "scenarios"
// @Success 202 {object} app.Job
// @Failure 400 {object} ErrorResponse
// @Router /checks [post]
func (s *Server) handleStartChecks(w http.ResponseWriter, r *http.Request) {
	var body StartChecksRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	job, err := s.app.Orch.StartCheckJob(context.Background(), body.Scenarios...)
	if errors.Is(err, scenario.ErrUnknownScenario) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Warn("starting check job", logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("started check job", logging.F("job_id", job.ID))
	writeJSON(w, http.StatusAccepted, job)
}

// handleListChecks godoc
// @Summary List check jobs, newest first
// @Tags checks
// @Produce json
// @Success 200 {array} app.Job
// @Router /checks [get]
func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Orch.ListJobs())
}

// handleGetCheck godoc
// @Summary Get a check job
// @Tags checks
// @Produce json
// @Param jobID path string true "job id"
// @Success 200 {object} app.Job
// @Failure 404 {object} ErrorResponse
// @Router /checks/{jobID} [get]
func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	job, err := s.app.Orch.GetJob(chi.URLParam(r, "jobID"))
	if errors.Is(err, app.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelCheck godoc
// @Summary Cancel a running check job
// @Tags checks
// @Param jobID path string true "job id"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /checks/{jobID} [delete]
func (s *Server) handleCancelCheck(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.app.Orch.CancelJob(jobID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Info("canceled check job", logging.F("job_id", jobID))
	w.WriteHeader(http.StatusNoContent)
}

// WebSockets

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(&s.upgrader, w, r)
}

func (s *Server) handleChecksWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	events, err := s.app.Orch.Events(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	defer conn.Close()

	job, _ := s.app.Orch.GetJob(jobID)
	_ = conn.WriteJSON(job)

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel job
			_ = s.app.Orch.CancelJob(jobID)
			return
		}
	}
}
