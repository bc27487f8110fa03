package store_test

import (
	"sync"
	"testing"
	"time"

	"github.com/raysh454/netmon/internal/model"
	"github.com/raysh454/netmon/internal/netevent"
	"github.com/raysh454/netmon/internal/security"
	"github.com/raysh454/netmon/internal/store"
)

var t0 = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func req(id string, seq int64, opts ...func(*model.Request)) *model.Request {
	r := &model.Request{
		ID:        id,
		Seq:       seq,
		Method:    "GET",
		URL:       "http://example.com/" + id,
		StartedAt: t0.Add(time.Duration(seq) * time.Millisecond),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func unbatched() *store.Store {
	s := store.New()
	s.Dispatch(store.BatchEnable(false))
	return s
}

func TestStore_InitialState(t *testing.T) {
	t.Parallel()
	s := store.New()
	st := s.GetState()
	if st.Requests.Size() != 0 {
		t.Errorf("expected empty list, got %d", st.Requests.Size())
	}
	if !st.BatchEnabled || !st.Recording {
		t.Errorf("expected batching and recording on by default: %+v", st)
	}
	if st.Sort.Key != store.SortWaterfall {
		t.Errorf("expected waterfall sort, got %q", st.Sort.Key)
	}
}

func TestStore_AddAndUpdateUnbatched(t *testing.T) {
	t.Parallel()
	s := unbatched()

	r := req("a", 1)
	s.Dispatch(store.AddRequest(r))
	if got := s.GetState().Requests.Size(); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}

	r.Status = "404"
	s.Dispatch(store.UpdateRequest(r))

	got, ok := store.GetRequestByID(s.GetState(), "a")
	if !ok || got.Status != "404" {
		t.Fatalf("update not applied: %+v", got)
	}
}

func TestStore_AddCopiesRecord(t *testing.T) {
	t.Parallel()
	s := unbatched()
	r := req("a", 1)
	s.Dispatch(store.AddRequest(r))
	r.Method = "POST"

	got, _ := store.GetRequestByID(s.GetState(), "a")
	if got.Method != "GET" {
		t.Fatal("store must not alias dispatched records")
	}
}

func TestStore_UpdateUnknownIgnored(t *testing.T) {
	t.Parallel()
	s := unbatched()
	s.Dispatch(store.UpdateRequest(req("ghost", 1)))
	if s.GetState().Requests.Size() != 0 {
		t.Fatal("update for unknown request must not create it")
	}
}

func TestStore_DuplicateAddIgnored(t *testing.T) {
	t.Parallel()
	s := unbatched()
	s.Dispatch(store.AddRequest(req("a", 1)))
	s.Dispatch(store.AddRequest(req("a", 1, func(r *model.Request) { r.Method = "PUT" })))
	got, _ := store.GetRequestByID(s.GetState(), "a")
	if s.GetState().Requests.Size() != 1 || got.Method != "GET" {
		t.Fatalf("duplicate add changed state: size=%d method=%s", s.GetState().Requests.Size(), got.Method)
	}
}

func TestStore_SnapshotsAreStable(t *testing.T) {
	t.Parallel()
	s := unbatched()
	s.Dispatch(store.AddRequest(req("a", 1)))
	before := s.GetState()

	s.Dispatch(store.AddRequest(req("b", 2)))
	s.Dispatch(store.ClearRequests())

	if before.Requests.Size() != 1 {
		t.Fatalf("old snapshot changed: size %d", before.Requests.Size())
	}
}

func TestStore_BatchingQueuesUntilFlush(t *testing.T) {
	t.Parallel()
	s := store.New(store.WithBatchInterval(time.Hour))
	defer s.Close()

	s.Dispatch(store.AddRequest(req("a", 1)))
	s.Dispatch(store.AddRequest(req("b", 2)))
	if got := s.GetState().Requests.Size(); got != 0 {
		t.Fatalf("batched adds applied early: %d", got)
	}

	s.Dispatch(store.BatchFlush())
	if got := s.GetState().Requests.Size(); got != 2 {
		t.Fatalf("expected 2 after flush, got %d", got)
	}
}

func TestStore_BatchEnableFalseFlushesQueue(t *testing.T) {
	t.Parallel()
	s := store.New(store.WithBatchInterval(time.Hour))
	defer s.Close()

	s.Dispatch(store.AddRequest(req("a", 1)))
	s.Dispatch(store.BatchEnable(false))

	st := s.GetState()
	if st.BatchEnabled {
		t.Fatal("batching still enabled")
	}
	if st.Requests.Size() != 1 {
		t.Fatalf("queued add not flushed: %d", st.Requests.Size())
	}

	s.Dispatch(store.AddRequest(req("b", 2)))
	if got := s.GetState().Requests.Size(); got != 2 {
		t.Fatalf("expected immediate apply once batching is off, got %d", got)
	}
}

func TestStore_BatchTimerFlushes(t *testing.T) {
	t.Parallel()
	s := store.New(store.WithBatchInterval(10 * time.Millisecond))
	defer s.Close()

	done := make(chan store.Action, 1)
	s.Subscribe(func(_ store.State, a store.Action) {
		if a.Type == store.ActionBatchActions {
			done <- a
		}
	})

	s.Dispatch(store.AddRequest(req("a", 1)))

	select {
	case a := <-done:
		if len(a.Actions) != 1 {
			t.Errorf("expected one batched action, got %d", len(a.Actions))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch timer never flushed")
	}
	if s.GetState().Requests.Size() != 1 {
		t.Fatal("flushed add not applied")
	}
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	t.Parallel()
	s := unbatched()

	var mu sync.Mutex
	var seen []store.ActionType
	unsub := s.Subscribe(func(_ store.State, a store.Action) {
		mu.Lock()
		seen = append(seen, a.Type)
		mu.Unlock()
	})

	s.Dispatch(store.AddRequest(req("a", 1)))
	unsub()
	s.Dispatch(store.AddRequest(req("b", 2)))

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != store.ActionAddRequest {
		t.Fatalf("unexpected notifications: %v", seen)
	}
}

func TestStore_ClearResetsSelection(t *testing.T) {
	t.Parallel()
	s := unbatched()
	s.Dispatch(store.AddRequest(req("a", 1)))
	s.Dispatch(store.SelectRequest("a"))
	if _, ok := store.GetSelectedRequest(s.GetState()); !ok {
		t.Fatal("selection not applied")
	}
	s.Dispatch(store.ClearRequests())
	st := s.GetState()
	if st.Requests.Size() != 0 || st.SelectedID != "" || !st.FirstStartedAt.IsZero() {
		t.Fatalf("clear left state behind: %+v", st)
	}
}

func TestStore_SelectUnknownIgnored(t *testing.T) {
	t.Parallel()
	s := unbatched()
	s.Dispatch(store.SelectRequest("nope"))
	if s.GetState().SelectedID != "" {
		t.Fatal("selected a request that does not exist")
	}
}

func TestStore_ToggleRecording(t *testing.T) {
	t.Parallel()
	s := unbatched()
	s.Dispatch(store.ToggleRecording())
	if s.GetState().Recording {
		t.Fatal("recording should be off")
	}
}

func TestSelectors_SortedByStartThenSeq(t *testing.T) {
	t.Parallel()
	s := unbatched()
	same := t0.Add(time.Second)
	s.Dispatch(store.AddRequest(req("late", 3, func(r *model.Request) { r.StartedAt = same })))
	s.Dispatch(store.AddRequest(req("early", 5, func(r *model.Request) { r.StartedAt = t0 })))
	s.Dispatch(store.AddRequest(req("tie", 4, func(r *model.Request) { r.StartedAt = same })))

	got := ids(store.GetSortedRequests(s.GetState()))
	want := []string{"early", "late", "tie"}
	if !equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSelectors_SortByToggleDirection(t *testing.T) {
	t.Parallel()
	s := unbatched()
	s.Dispatch(store.AddRequest(req("a", 1, func(r *model.Request) { r.Status = "500" })))
	s.Dispatch(store.AddRequest(req("b", 2, func(r *model.Request) { r.Status = "200" })))
	s.Dispatch(store.AddRequest(req("c", 3, func(r *model.Request) { r.Status = "404" })))

	s.Dispatch(store.SortBy(store.SortStatus))
	if got := ids(store.GetSortedRequests(s.GetState())); !equal(got, []string{"b", "c", "a"}) {
		t.Fatalf("ascending status: %v", got)
	}

	s.Dispatch(store.SortBy(store.SortStatus))
	if got := ids(store.GetSortedRequests(s.GetState())); !equal(got, []string{"a", "c", "b"}) {
		t.Fatalf("descending status: %v", got)
	}

	s.Dispatch(store.SortBy("bogus"))
	if s.GetState().Sort.Key != store.SortStatus {
		t.Fatal("invalid sort key changed sort")
	}
}

func TestSelectors_FilterTypes(t *testing.T) {
	t.Parallel()
	s := unbatched()
	s.Dispatch(store.AddRequest(req("page", 1, func(r *model.Request) { r.MimeType = "text/html"; r.Cause = netevent.CauseDocument })))
	s.Dispatch(store.AddRequest(req("beacon", 2, func(r *model.Request) { r.Cause = netevent.CauseBeacon; r.Method = "POST" })))
	s.Dispatch(store.AddRequest(req("logo", 3, func(r *model.Request) { r.MimeType = "image/png" })))

	s.Dispatch(store.ToggleFilterType(store.FilterXHR))
	if got := ids(store.GetDisplayedRequests(s.GetState())); !equal(got, []string{"beacon"}) {
		t.Fatalf("xhr filter: %v", got)
	}

	s.Dispatch(store.ToggleFilterType(store.FilterImages))
	if got := ids(store.GetDisplayedRequests(s.GetState())); !equal(got, []string{"beacon", "logo"}) {
		t.Fatalf("xhr+images filter: %v", got)
	}

	s.Dispatch(store.ToggleFilterType(store.FilterXHR))
	s.Dispatch(store.ToggleFilterType(store.FilterImages))
	if !s.GetState().Filter.Types[store.FilterAll] {
		t.Fatal("clearing every type should fall back to all")
	}

	s.Dispatch(store.ToggleFilterType(store.FilterHTML))
	s.Dispatch(store.ToggleFilterType(store.FilterAll))
	if got := len(store.GetDisplayedRequests(s.GetState())); got != 3 {
		t.Fatalf("all should show everything, got %d", got)
	}
}

func TestSelectors_FilterText(t *testing.T) {
	t.Parallel()
	s := unbatched()
	s.Dispatch(store.AddRequest(req("beacon_request", 1, func(r *model.Request) { r.Method = "POST"; r.Status = "404" })))
	s.Dispatch(store.AddRequest(req("page", 2, func(r *model.Request) {
		r.Status = "200"
		r.URL = "https://secure.example.org/page"
		r.Complete = true
	})))

	cases := []struct {
		text string
		want []string
	}{
		{"BEACON", []string{"beacon_request"}},
		{"method:post", []string{"beacon_request"}},
		{"status-code:200", []string{"page"}},
		{"-status-code:200", []string{"beacon_request"}},
		{"scheme:https", []string{"page"}},
		{"domain:example.org", []string{"page"}},
		{"is:running", []string{"beacon_request"}},
		{"", []string{"beacon_request", "page"}},
	}
	for _, tc := range cases {
		s.Dispatch(store.SetFilterText(tc.text))
		if got := ids(store.GetDisplayedRequests(s.GetState())); !equal(got, tc.want) {
			t.Errorf("filter %q: got %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestSelectors_Summary(t *testing.T) {
	t.Parallel()
	s := unbatched()
	s.Dispatch(store.AddRequest(req("a", 0, func(r *model.Request) {
		r.ContentSize, r.TransferredSize, r.TotalTime = 100, 150, 20*time.Millisecond
	})))
	s.Dispatch(store.AddRequest(req("b", 10, func(r *model.Request) {
		r.ContentSize, r.TransferredSize, r.TotalTime = 50, 60, 40*time.Millisecond
	})))

	sum := store.GetSummary(s.GetState())
	if sum.Count != 2 || sum.ContentSize != 150 || sum.TransferredSize != 210 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.Elapsed != 50*time.Millisecond {
		t.Fatalf("expected 50ms span, got %v", sum.Elapsed)
	}
}

func TestCategory(t *testing.T) {
	t.Parallel()
	cases := []struct {
		r    *model.Request
		want store.FilterType
	}{
		{&model.Request{MimeType: "text/css"}, store.FilterCSS},
		{&model.Request{MimeType: "application/javascript"}, store.FilterJS},
		{&model.Request{MimeType: "font/woff2"}, store.FilterFonts},
		{&model.Request{MimeType: "video/mp4"}, store.FilterMedia},
		{&model.Request{Cause: netevent.CauseWebSocket}, store.FilterWS},
		{&model.Request{IsXHR: true, MimeType: "text/html"}, store.FilterXHR},
		{&model.Request{MimeType: "application/octet-stream"}, store.FilterOther},
	}
	for _, tc := range cases {
		if got := store.Category(tc.r); got != tc.want {
			t.Errorf("Category(%+v) = %q, want %q", tc.r, got, tc.want)
		}
	}
}

func TestSelectors_SortBySecurity(t *testing.T) {
	t.Parallel()
	s := unbatched()
	s.Dispatch(store.AddRequest(req("s", 1, func(r *model.Request) { r.SecurityState = security.StateSecure })))
	s.Dispatch(store.AddRequest(req("i", 2, func(r *model.Request) { r.SecurityState = security.StateInsecure })))
	s.Dispatch(store.SortBy(store.SortSecurity))
	if got := ids(store.GetSortedRequests(s.GetState())); !equal(got, []string{"i", "s"}) {
		t.Fatalf("got %v", got)
	}
}

func ids(rs []*model.Request) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseSortKeyAndFilterType(t *testing.T) {
	t.Parallel()
	if k, ok := store.ParseSortKey(" Status "); !ok || k != store.SortStatus {
		t.Errorf("store.ParseSortKey(Status) = %q, %v", k, ok)
	}
	if _, ok := store.ParseSortKey("colour"); ok {
		t.Error("unknown sort key accepted")
	}
	if ft, ok := store.ParseFilterType("XHR"); !ok || ft != store.FilterXHR {
		t.Errorf("store.ParseFilterType(XHR) = %q, %v", ft, ok)
	}
	if _, ok := store.ParseFilterType("docs"); ok {
		t.Error("unknown filter type accepted")
	}
}
