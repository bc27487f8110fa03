package archive

import (
	"context"
	"sync"
	"time"

	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/model"
	"github.com/raysh454/netmon/internal/store"
)

const recorderQueueSize = 256

// Recorder saves every request that reaches completion in a store to one
// archive session. Writes happen on a background goroutine so dispatch is
// never held up by disk I/O.
type Recorder struct {
	archive   *Archive
	sessionID string
	logger    logging.Logger

	queue chan *model.Request
	unsub func()

	closeOnce sync.Once
	done      chan struct{}

	mu      sync.Mutex
	closed  bool
	saved   int
	dropped int
}

// NewRecorder subscribes to st and starts the writer.
func NewRecorder(a *Archive, st *store.Store, sessionID string, logger logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Recorder{
		archive:   a,
		sessionID: sessionID,
		logger:    logger.With(logging.F("session_id", sessionID)),
		queue:     make(chan *model.Request, recorderQueueSize),
		done:      make(chan struct{}),
	}
	r.unsub = st.Subscribe(r.onAction)
	go r.run()
	return r
}

func (r *Recorder) onAction(_ store.State, a store.Action) {
	switch a.Type {
	case store.ActionBatchActions:
		for _, inner := range a.Actions {
			r.onAction(store.State{}, inner)
		}
	case store.ActionAddRequest, store.ActionUpdateRequest:
		if a.Request == nil || !a.Request.Complete {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		// Non-blocking send; drop if buffer is full.
		select {
		case r.queue <- a.Request.Clone():
		default:
			r.dropped++
			r.logger.Warn("archive queue full, dropping request", logging.F("request_id", a.Request.ID))
		}
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for req := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := r.archive.SaveRequest(ctx, r.sessionID, req)
		cancel()
		if err != nil {
			r.logger.Error("failed to archive request", logging.F("request_id", req.ID), logging.Err(err))
			continue
		}
		r.mu.Lock()
		r.saved++
		r.mu.Unlock()
	}
}

// SessionID is the archive session requests are written to.
func (r *Recorder) SessionID() string { return r.sessionID }

// Stats reports how many requests were saved and how many were dropped
// because the queue was full.
func (r *Recorder) Stats() (saved, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved, r.dropped
}

// Close unsubscribes and waits for queued writes to finish.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.unsub()
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})
	<-r.done
}
