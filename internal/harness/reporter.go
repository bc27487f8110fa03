package harness

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/raysh454/netmon/internal/logging"
)

// Check is one assertion outcome.
type Check struct {
	Message string `json:"message"`
	Passed  bool   `json:"passed"`
	Got     string `json:"got,omitempty"`
	Want    string `json:"want,omitempty"`
}

// Reporter collects assertion outcomes. A failing check is recorded and
// logged; it never stops the caller.
type Reporter struct {
	logger logging.Logger

	mu     sync.Mutex
	checks []Check
}

func NewReporter(logger logging.Logger) *Reporter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reporter{logger: logger}
}

// Is records whether got equals want.
func (r *Reporter) Is(got, want any, msg string) bool {
	ok := reflect.DeepEqual(got, want)
	r.add(Check{Message: msg, Passed: ok, Got: fmt.Sprint(got), Want: fmt.Sprint(want)})
	return ok
}

func (r *Reporter) Ok(cond bool, msg string) bool {
	r.add(Check{Message: msg, Passed: cond})
	return cond
}

func (r *Reporter) add(c Check) {
	r.mu.Lock()
	r.checks = append(r.checks, c)
	r.mu.Unlock()

	if c.Passed {
		r.logger.Debug("check passed", logging.F("message", c.Message))
		return
	}
	fields := []logging.Field{logging.F("message", c.Message)}
	if c.Got != "" || c.Want != "" {
		fields = append(fields, logging.F("got", c.Got), logging.F("want", c.Want))
	}
	r.logger.Warn("check failed", fields...)
}

func (r *Reporter) Checks() []Check {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Check(nil), r.checks...)
}

func (r *Reporter) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.checks {
		if !c.Passed {
			return true
		}
	}
	return false
}
