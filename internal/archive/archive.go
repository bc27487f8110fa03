// Package archive persists captured requests in SQLite, grouped into
// capture sessions.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/raysh454/netmon/internal/compare"
	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/model"
	"github.com/raysh454/netmon/internal/netevent"
	"github.com/raysh454/netmon/internal/security"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNilRequest      = errors.New("request cannot be nil")
)

type Config struct {
	// Path of the database file. Parent directories are created.
	Path string
	// RedactSensitiveHeaders replaces credential headers before they are
	// stored. Defaults to true.
	RedactSensitiveHeaders *bool
}

type Session struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	StartedAt time.Time `json:"started_at"`
	Requests  int       `json:"requests"`
}

type Archive struct {
	db     *sql.DB
	logger logging.Logger
	redact bool
}

func Open(cfg Config, logger logging.Logger) (*Archive, error) {
	if logger == nil {
		return nil, errors.New("archive: nil logger provided")
	}
	if cfg.Path == "" {
		return nil, errors.New("archive: empty database path")
	}
	redact := true
	if cfg.RedactSensitiveHeaders != nil {
		redact = *cfg.RedactSensitiveHeaders
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	dsn := cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger = logger.With(logging.F("component", "archive"))
	logger.Info("archive opened", logging.F("path", cfg.Path))
	return &Archive{db: db, logger: logger, redact: redact}, nil
}

func (a *Archive) StartSession(ctx context.Context, label string) (*Session, error) {
	s := &Session{ID: uuid.New().String(), Label: label, StartedAt: time.Now().UTC()}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO sessions (id, label, started_at) VALUES (?, ?, ?)`,
		s.ID, s.Label, s.StartedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	a.logger.Info("session started", logging.F("session_id", s.ID), logging.F("label", label))
	return s, nil
}

func (a *Archive) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		s       Session
		started int64
	)
	err := a.db.QueryRowContext(ctx, `
		SELECT s.id, s.label, s.started_at, COUNT(r.id)
		FROM sessions s LEFT JOIN requests r ON r.session_id = s.id
		WHERE s.id = ?
		GROUP BY s.id`, id).Scan(&s.ID, &s.Label, &started, &s.Requests)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	s.StartedAt = time.Unix(0, started).UTC()
	return &s, nil
}

// ListSessions returns sessions newest first.
func (a *Archive) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT s.id, s.label, s.started_at, COUNT(r.id)
		FROM sessions s LEFT JOIN requests r ON r.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var (
			s       Session
			started int64
		)
		if err := rows.Scan(&s.ID, &s.Label, &started, &s.Requests); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.StartedAt = time.Unix(0, started).UTC()
		out = append(out, &s)
	}
	return out, rows.Err()
}

// SaveRequest inserts r into the session, replacing an earlier copy with the
// same id.
func (a *Archive) SaveRequest(ctx context.Context, sessionID string, r *model.Request) error {
	if r == nil {
		return ErrNilRequest
	}
	reqHeaders, err := json.Marshal(compare.NormalizeHeaders(r.RequestHeaders, a.redact))
	if err != nil {
		return fmt.Errorf("failed to marshal request headers: %w", err)
	}
	respHeaders, err := json.Marshal(compare.NormalizeHeaders(r.ResponseHeaders, a.redact))
	if err != nil {
		return fmt.Errorf("failed to marshal response headers: %w", err)
	}
	secInfo, err := json.Marshal(r.SecurityInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal security info: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO requests (
			session_id, id, seq, method, url, domain, cause, is_xhr,
			status, status_text, http_version, remote_address, mime_type,
			security_state, security_info, request_headers, response_headers,
			started_at, total_time_ns, transferred_size, content_size, from_cache,
			complete, error, canceled, redirected_from, redirected_to
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, id) DO UPDATE SET
			status = excluded.status,
			status_text = excluded.status_text,
			http_version = excluded.http_version,
			remote_address = excluded.remote_address,
			mime_type = excluded.mime_type,
			security_state = excluded.security_state,
			security_info = excluded.security_info,
			response_headers = excluded.response_headers,
			total_time_ns = excluded.total_time_ns,
			transferred_size = excluded.transferred_size,
			content_size = excluded.content_size,
			from_cache = excluded.from_cache,
			complete = excluded.complete,
			error = excluded.error,
			canceled = excluded.canceled,
			redirected_from = excluded.redirected_from,
			redirected_to = excluded.redirected_to`,
		sessionID, r.ID, r.Seq, r.Method, r.URL, r.Domain, string(r.Cause), boolInt(r.IsXHR),
		r.Status, r.StatusText, r.HTTPVersion, r.RemoteAddress, r.MimeType,
		string(r.SecurityState), string(secInfo), string(reqHeaders), string(respHeaders),
		r.StartedAt.UnixNano(), int64(r.TotalTime), r.TransferredSize, r.ContentSize, boolInt(r.FromCache),
		boolInt(r.Complete), r.Error, boolInt(r.Canceled), r.RedirectedFrom, r.RedirectedTo,
	)
	if err != nil {
		return fmt.Errorf("failed to save request %s: %w", r.ID, err)
	}
	return nil
}

// ListRequests returns the session's requests in start order.
func (a *Archive) ListRequests(ctx context.Context, sessionID string) ([]*model.Request, error) {
	if _, err := a.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, seq, method, url, domain, cause, is_xhr,
			status, status_text, http_version, remote_address, mime_type,
			security_state, security_info, request_headers, response_headers,
			started_at, total_time_ns, transferred_size, content_size, from_cache,
			complete, error, canceled, redirected_from, redirected_to
		FROM requests WHERE session_id = ?
		ORDER BY started_at, seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var out []*model.Request
	for rows.Next() {
		var (
			r                             model.Request
			cause, state                  string
			secInfo, reqHdrs, respHdrs    string
			started, total                int64
			isXHR, cached, complete, canc int
		)
		if err := rows.Scan(&r.ID, &r.Seq, &r.Method, &r.URL, &r.Domain, &cause, &isXHR,
			&r.Status, &r.StatusText, &r.HTTPVersion, &r.RemoteAddress, &r.MimeType,
			&state, &secInfo, &reqHdrs, &respHdrs,
			&started, &total, &r.TransferredSize, &r.ContentSize, &cached,
			&complete, &r.Error, &canc, &r.RedirectedFrom, &r.RedirectedTo); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		r.Cause = netevent.Cause(cause)
		r.SecurityState = security.State(state)
		r.IsXHR = isXHR == 1
		r.FromCache = cached == 1
		r.Complete = complete == 1
		r.Canceled = canc == 1
		r.StartedAt = time.Unix(0, started).UTC()
		r.TotalTime = time.Duration(total)

		if err := json.Unmarshal([]byte(secInfo), &r.SecurityInfo); err != nil {
			return nil, fmt.Errorf("decode security info of %s: %w", r.ID, err)
		}
		var hdrs map[string][]string
		if err := json.Unmarshal([]byte(reqHdrs), &hdrs); err != nil {
			return nil, fmt.Errorf("decode request headers of %s: %w", r.ID, err)
		}
		r.RequestHeaders = canonicalHeader(hdrs)
		hdrs = nil
		if err := json.Unmarshal([]byte(respHdrs), &hdrs); err != nil {
			return nil, fmt.Errorf("decode response headers of %s: %w", r.ID, err)
		}
		r.ResponseHeaders = canonicalHeader(hdrs)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its requests.
func (a *Archive) DeleteSession(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}
