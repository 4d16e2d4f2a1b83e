// Package console mediates between an operator and the query endpoint: it
// submits raw query text, keeps the latest result and a session history, and
// allows at most one submission in flight.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrBusy is returned when Submit is called while another submission is in flight.
	ErrBusy = errors.New("console: submission in flight")
	// ErrNoSuchEntry is returned for a history index out of range.
	ErrNoSuchEntry = errors.New("console: no such history entry")
)

// LabelLayout formats the submission time shown on history entries.
const LabelLayout = "15:04:05"

// Response is what the endpoint answered.
type Response struct {
	OK     bool
	Status int
	Body   []byte
}

// Endpoint carries a query to the service that executes it.
type Endpoint interface {
	Post(ctx context.Context, body string) (Response, error)
}

// View renders console state. Calls happen on the goroutine running Submit
// or SelectHistoryEntry.
type View interface {
	SetSubmitEnabled(enabled bool)
	ShowResult(pretty string)
	Alert(msg string)
	AppendHistory(e Entry)
	SetInput(text string)
}

// Entry is one successful submission.
type Entry struct {
	ID          uuid.UUID
	Query       string
	SubmittedAt time.Time
	Label       string
}

// Result is a successfully parsed response.
type Result struct {
	Value  any
	Pretty string
}

// Failure is returned by Submit when the endpoint could not be reached
// (Status 0) or answered with a non-ok status. Message is what the operator
// was shown.
type Failure struct {
	Status  int
	Message string
	Err     error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

// Option configures a Console.
type Option func(*Console)

// WithClock overrides time.Now for history labels.
func WithClock(now func() time.Time) Option {
	return func(c *Console) { c.now = now }
}

// Console is one operator session. History and result are owned by the
// instance and die with it.
type Console struct {
	endpoint Endpoint
	view     View
	now      func() time.Time

	// submitting is true for the whole Idle -> Submitting -> Idle cycle.
	submitting atomic.Bool

	mu      sync.Mutex
	input   string
	result  string
	history []Entry
}

// New creates a Console. A nil view discards rendering.
func New(endpoint Endpoint, view View, opts ...Option) *Console {
	if view == nil {
		view = nopView{}
	}
	c := &Console{
		endpoint: endpoint,
		view:     view,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Submit sends text verbatim to the endpoint. While it runs the submit
// action is disabled and further calls return ErrBusy without side effects.
func (c *Console) Submit(ctx context.Context, text string) (Result, error) {
	if !c.submitting.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	c.view.SetSubmitEnabled(false)
	defer func() {
		c.view.SetSubmitEnabled(true)
		c.submitting.Store(false)
	}()

	resp, err := c.endpoint.Post(ctx, text)
	if err != nil {
		return Result{}, c.fail(0, err.Error(), err)
	}
	if !resp.OK {
		return Result{}, c.fail(resp.Status, string(resp.Body), nil)
	}

	value, pretty, err := prettyJSON(resp.Body)
	if err != nil {
		return Result{}, c.fail(resp.Status, string(resp.Body), err)
	}

	entry := Entry{
		ID:          uuid.New(),
		Query:       text,
		SubmittedAt: c.now(),
	}
	entry.Label = entry.SubmittedAt.Format(LabelLayout)

	c.mu.Lock()
	c.result = pretty
	c.history = append(c.history, entry)
	c.mu.Unlock()

	c.view.ShowResult(pretty)
	c.view.AppendHistory(entry)
	return Result{Value: value, Pretty: pretty}, nil
}

func (c *Console) fail(status int, msg string, err error) error {
	c.view.Alert(msg)
	return &Failure{Status: status, Message: msg, Err: err}
}

// Busy reports whether a submission is in flight.
func (c *Console) Busy() bool {
	return c.submitting.Load()
}

// SelectHistoryEntry copies entry i's query back into the input buffer.
// It never submits.
func (c *Console) SelectHistoryEntry(i int) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.history) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoSuchEntry, i)
	}
	text := c.history[i].Query
	c.input = text
	c.mu.Unlock()

	c.view.SetInput(text)
	return nil
}

// History returns a copy of the entries in submission order.
func (c *Console) History() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.history))
	copy(out, c.history)
	return out
}

// Input returns the current input buffer.
func (c *Console) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// SetInput replaces the input buffer, as typing would.
func (c *Console) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
}

// Result returns the pretty-printed latest result, empty before the first success.
func (c *Console) Result() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// prettyJSON parses body and re-encodes it with two-space indentation.
// Numbers keep their textual form.
func prettyJSON(body []byte) (any, string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, "", fmt.Errorf("parsing response: %w", err)
	}
	if dec.More() {
		return nil, "", errors.New("parsing response: trailing data")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, "", fmt.Errorf("formatting response: %w", err)
	}
	return v, strings.TrimSuffix(buf.String(), "\n"), nil
}

type nopView struct{}

func (nopView) SetSubmitEnabled(bool) {}
func (nopView) ShowResult(string)     {}
func (nopView) Alert(string)          {}
func (nopView) AppendHistory(Entry)   {}
func (nopView) SetInput(string)       {}
