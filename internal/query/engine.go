// Package query executes operator SQL against the catalog mirror and shapes
// rows into JSON-ready values.
package query

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/versionsql/internal/metrics"
	"github.com/kalambet/versionsql/internal/storage"
)

// Kind separates failures the operator caused from failures of the service.
type Kind int

const (
	KindUser Kind = iota
	KindInternal
)

// HTTPStatus maps the kind to the status reported by /query.json.
func (k Kind) HTTPStatus() int {
	if k == KindUser {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (k Kind) String() string {
	if k == KindUser {
		return "user_error"
	}
	return "internal_error"
}

// Error is returned by Execute. Its message is the bare cause, suitable for
// showing to the operator verbatim.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Row is one result row keyed by column name.
type Row = map[string]any

// Store runs read-only SQL.
type Store interface {
	Query(ctx context.Context, text string) (*storage.Rows, error)
}

// Freshener brings the mirror up to date before a query runs.
type Freshener interface {
	EnsureFresh(ctx context.Context) error
}

// Engine executes queries.
type Engine struct {
	store   Store
	fresh   Freshener
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine creates an Engine. fresh may be nil to skip refresh checks.
func NewEngine(store Store, fresh Freshener, m *metrics.Metrics) *Engine {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Engine{store: store, fresh: fresh, metrics: m, logger: slog.Default()}
}

// Execute refreshes the mirror if needed, runs text and returns one Row per
// result row. The slice is never nil.
func (e *Engine) Execute(ctx context.Context, text string) (rows []Row, err error) {
	start := time.Now()
	defer func() {
		e.metrics.QueryDuration.Observe(time.Since(start).Seconds())
		outcome := "ok"
		var qe *Error
		if errors.As(err, &qe) {
			outcome = qe.Kind.String()
		} else if err != nil {
			outcome = KindInternal.String()
		}
		e.metrics.Queries.WithLabelValues(outcome).Inc()
	}()

	if e.fresh != nil {
		if err := e.fresh.EnsureFresh(ctx); err != nil {
			e.logger.Error("catalog refresh failed", "error", err)
			return nil, &Error{Kind: KindInternal, Err: err}
		}
	}

	res, err := e.store.Query(ctx, text)
	if err != nil {
		var se *storage.SQLError
		if errors.As(err, &se) {
			return nil, &Error{Kind: KindUser, Err: se.Err}
		}
		return nil, &Error{Kind: KindInternal, Err: err}
	}

	return Shape(res), nil
}

// Shape converts raw rows into JSON-ready maps. A column name that appears
// twice keeps the right-most value.
func Shape(res *storage.Rows) []Row {
	out := make([]Row, 0, len(res.Values))
	for _, vals := range res.Values {
		row := make(Row, len(res.Columns))
		for i, name := range res.Columns {
			row[name] = jsonValue(vals[i])
		}
		out = append(out, row)
	}
	return out
}

// jsonValue maps a SQLite value onto a JSON value: blobs become lowercase
// hex, non-finite reals become their string form.
func jsonValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return formatFloat(x)
		}
		return x
	case string:
		return strings.ToValidUTF8(x, "�")
	case []byte:
		return hex.EncodeToString(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
