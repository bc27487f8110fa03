// Package monitor turns capture events into request records and feeds them
// to the panel store.
package monitor

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/model"
	"github.com/raysh454/netmon/internal/netevent"
	"github.com/raysh454/netmon/internal/security"
	"github.com/raysh454/netmon/internal/store"
	"github.com/raysh454/netmon/internal/utils"
)

// DefaultRedirectTTL bounds how long a 3xx Location waits for the request
// that follows it.
const DefaultRedirectTTL = 30 * time.Second

type Options struct {
	Classifier  security.Classifier
	RedirectTTL time.Duration
	// Now is used for events without a timestamp. Defaults to time.Now.
	Now func() time.Time
}

type pendingRedirect struct {
	fromID  string
	expires time.Time
}

// Monitor is a netevent.Sink. Events are processed one at a time so the
// actions it dispatches are totally ordered.
type Monitor struct {
	store      *store.Store
	logger     logging.Logger
	classifier security.Classifier
	ttl        time.Duration
	now        func() time.Time

	mu        sync.Mutex
	seq       int64
	records   map[string]*model.Request
	redirects map[string]pendingRedirect
	completed int64
	waiters   []*Waiter
}

func New(st *store.Store, logger logging.Logger, opts Options) *Monitor {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.RedirectTTL <= 0 {
		opts.RedirectTTL = DefaultRedirectTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		store:      st,
		logger:     logger.With(logging.F("component", "monitor")),
		classifier: opts.Classifier,
		ttl:        opts.RedirectTTL,
		now:        opts.Now,
		records:    make(map[string]*model.Request),
		redirects:  make(map[string]pendingRedirect),
	}
}

func (m *Monitor) Store() *store.Store { return m.store }

// Emit implements netevent.Sink.
func (m *Monitor) Emit(ev netevent.Event) {
	if ev.Time.IsZero() {
		ev.Time = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case netevent.KindRequest:
		m.onRequest(ev)
	case netevent.KindResponse:
		m.onResponse(ev)
	case netevent.KindFinished, netevent.KindFailed:
		if m.onComplete(ev) {
			m.completed++
			m.notifyLocked()
		}
	default:
		m.logger.Warn("unknown event kind", logging.F("kind", ev.Kind), logging.F("actor", ev.ActorID))
	}
}

func (m *Monitor) onRequest(ev netevent.Event) {
	if ev.Request == nil || ev.ActorID == "" {
		return
	}
	if !m.store.GetState().Recording {
		return
	}
	if _, dup := m.records[ev.ActorID]; dup {
		m.logger.Debug("duplicate request event", logging.F("actor", ev.ActorID))
		return
	}

	info := ev.Request
	m.seq++
	r := &model.Request{
		ID:             ev.ActorID,
		Seq:            m.seq,
		Method:         strings.ToUpper(info.Method),
		URL:            info.URL,
		Domain:         model.DomainOf(info.URL),
		Cause:          info.Cause,
		IsXHR:          info.IsXHR,
		RequestHeaders: info.Headers.Clone(),
		StartedAt:      ev.Time,
		SecurityState:  m.classifier.ClassifyURL(info.URL),
	}
	if r.Method == "" {
		r.Method = "GET"
	}
	if r.Cause == "" {
		r.Cause = netevent.CauseOther
	}
	if u, err := url.Parse(info.URL); err == nil {
		r.SecurityInfo.Scheme = strings.ToLower(u.Scheme)
		r.SecurityInfo.Host = u.Hostname()
	}

	prev := m.redirectSourceLocked(info, ev.Time)
	if prev != nil {
		r.RedirectedFrom = prev.ID
	}

	m.records[r.ID] = r
	m.store.Dispatch(store.AddRequest(r))

	if prev != nil {
		prev.RedirectedTo = r.ID
		m.store.Dispatch(store.UpdateRequest(prev))
	}
}

// redirectSourceLocked finds the hop that redirected to info, preferring an
// explicit link from the capture source over Location correlation.
func (m *Monitor) redirectSourceLocked(info *netevent.RequestInfo, at time.Time) *model.Request {
	if info.RedirectFrom != "" {
		if prev, ok := m.records[info.RedirectFrom]; ok {
			m.dropPendingFor(prev.ID)
			return prev
		}
	}

	key, err := utils.Canonicalize(info.URL, utils.CanonicalizeOptions{})
	if err != nil {
		return nil
	}
	p, ok := m.redirects[key]
	if !ok {
		return nil
	}
	delete(m.redirects, key)
	if at.After(p.expires) {
		return nil
	}
	prev, ok := m.records[p.fromID]
	if !ok || prev.RedirectedTo != "" {
		return nil
	}
	return prev
}

func (m *Monitor) dropPendingFor(id string) {
	for k, p := range m.redirects {
		if p.fromID == id {
			delete(m.redirects, k)
		}
	}
}

func (m *Monitor) onResponse(ev netevent.Event) {
	r, ok := m.records[ev.ActorID]
	if !ok || ev.Response == nil {
		m.logger.Debug("response for unknown request", logging.F("actor", ev.ActorID))
		return
	}
	resp := ev.Response

	r.Status = strconv.Itoa(resp.Status)
	r.StatusText = resp.StatusText
	r.HTTPVersion = resp.HTTPVersion
	r.ResponseHeaders = resp.Headers.Clone()
	r.RemoteAddress = resp.RemoteAddr
	r.FromCache = resp.FromCache
	r.MimeType = resp.MimeType
	if r.MimeType == "" {
		r.MimeType = mimeType(resp.Headers.Get("Content-Type"))
	}

	sec := resp.Security
	if sec.Scheme == "" {
		sec.Scheme = r.SecurityInfo.Scheme
	}
	if sec.Host == "" {
		sec.Host = r.SecurityInfo.Host
	}
	r.SecurityInfo = sec
	r.SecurityState = m.classifier.Classify(sec)

	if resp.Status >= 300 && resp.Status < 400 {
		m.rememberRedirectLocked(r, resp.Headers.Get("Location"), ev.Time)
	}

	m.store.Dispatch(store.UpdateRequest(r))
}

func (m *Monitor) rememberRedirectLocked(r *model.Request, location string, at time.Time) {
	if location == "" {
		return
	}
	target, err := utils.ResolveLocation(r.URL, location)
	if err != nil {
		m.logger.Debug("unresolvable redirect location", logging.F("actor", r.ID), logging.F("location", location))
		return
	}
	key, err := utils.Canonicalize(target, utils.CanonicalizeOptions{})
	if err != nil {
		return
	}
	m.pruneRedirectsLocked(at)
	m.redirects[key] = pendingRedirect{fromID: r.ID, expires: at.Add(m.ttl)}
}

func (m *Monitor) pruneRedirectsLocked(now time.Time) {
	for k, p := range m.redirects {
		if now.After(p.expires) {
			delete(m.redirects, k)
		}
	}
}

// onComplete reports whether ev completed a known request.
func (m *Monitor) onComplete(ev netevent.Event) bool {
	r, ok := m.records[ev.ActorID]
	if !ok {
		m.logger.Debug("completion for unknown request", logging.F("actor", ev.ActorID))
		return false
	}
	if r.Complete {
		return false
	}

	r.Complete = true
	r.TotalTime = ev.Time.Sub(r.StartedAt)
	if r.TotalTime < 0 {
		r.TotalTime = 0
	}

	switch {
	case ev.Finished != nil:
		r.TransferredSize = ev.Finished.TransferredSize
		r.ContentSize = ev.Finished.ContentSize
	case ev.Failed != nil:
		r.Error = ev.Failed.ErrorText
		r.Canceled = ev.Failed.Canceled
		if sec := ev.Failed.Security; sec != nil {
			if sec.Scheme == "" {
				sec.Scheme = r.SecurityInfo.Scheme
			}
			if sec.Host == "" {
				sec.Host = r.SecurityInfo.Host
			}
			r.SecurityInfo = *sec
			r.SecurityState = m.classifier.Classify(*sec)
		}
	}

	m.store.Dispatch(store.UpdateRequest(r))
	return true
}

func mimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return mt
}

// Paused reports whether new requests are being dropped.
func (m *Monitor) Paused() bool { return !m.store.GetState().Recording }

func (m *Monitor) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store.GetState().Recording {
		m.store.Dispatch(store.ToggleRecording())
	}
}

func (m *Monitor) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.store.GetState().Recording {
		m.store.Dispatch(store.ToggleRecording())
	}
}

// Clear empties the request list. Requests still in flight are forgotten;
// their remaining events are dropped.
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*model.Request)
	m.redirects = make(map[string]pendingRedirect)
	m.store.Dispatch(store.ClearRequests())
}

// Completed is the number of requests that finished or failed so far.
func (m *Monitor) Completed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed
}

// Waiter is released once a number of requests complete.
type Waiter struct {
	n      int
	target int64
	done   chan struct{}
}

// WaitForNetworkEvents registers a waiter for the next n completed
// requests. Register it before triggering the traffic.
func (m *Monitor) WaitForNetworkEvents(n int) *Waiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &Waiter{n: n, target: m.completed + int64(n), done: make(chan struct{})}
	if n <= 0 {
		close(w.done)
		return w
	}
	m.waiters = append(m.waiters, w)
	return w
}

func (m *Monitor) notifyLocked() {
	kept := m.waiters[:0]
	for _, w := range m.waiters {
		if m.completed >= w.target {
			close(w.done)
			continue
		}
		kept = append(kept, w)
	}
	for i := len(kept); i < len(m.waiters); i++ {
		m.waiters[i] = nil
	}
	m.waiters = kept
}

// Done is closed once the waited-for events have been observed.
func (w *Waiter) Done() <-chan struct{} { return w.done }

func (w *Waiter) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d network events: %w", w.n, ctx.Err())
	}
}
