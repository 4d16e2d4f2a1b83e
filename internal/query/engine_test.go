package query

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/versionsql/internal/metrics"
	"github.com/kalambet/versionsql/internal/storage"
)

type staticFreshener struct {
	err   error
	calls int
}

func (f *staticFreshener) EnsureFresh(context.Context) error {
	f.calls++
	return f.err
}

func seededStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.ReplaceCatalog(context.Background(), storage.Catalog{
		Versions: []storage.Version{
			{ID: 1, GameVersionTypeID: 10, Name: "1.20.1", Slug: "1-20-1"},
			{ID: 2, GameVersionTypeID: 11, Name: "Forge", Slug: "forge"},
		},
		VersionTypes: []storage.VersionType{
			{ID: 10, Name: "Minecraft 1.20", Slug: "minecraft-1-20"},
			{ID: 11, Name: "Modloader", Slug: "modloader"},
		},
	}))
	return s
}

func TestExecuteRowsAsObjects(t *testing.T) {
	fresh := &staticFreshener{}
	e := NewEngine(seededStore(t), fresh, nil)

	rows, err := e.Execute(context.Background(), "SELECT * FROM versions ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, fresh.calls)

	assert.Equal(t, Row{
		"id":                int64(1),
		"gameVersionTypeID": int64(10),
		"name":              "1.20.1",
		"slug":              "1-20-1",
	}, rows[0])

	out, err := json.Marshal(rows[:1])
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"gameVersionTypeID":10,"name":"1.20.1","slug":"1-20-1"}]`, string(out))
}

func TestExecuteJoin(t *testing.T) {
	e := NewEngine(seededStore(t), nil, nil)

	rows, err := e.Execute(context.Background(), `
		SELECT v.name AS version, t.name AS type
		FROM versions v JOIN versionTypes t ON t.id = v.gameVersionTypeID
		WHERE t.slug = 'modloader'`)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"version": "Forge", "type": "Modloader"}}, rows)
}

func TestExecuteEmptyIsNotNil(t *testing.T) {
	e := NewEngine(seededStore(t), nil, nil)

	rows, err := e.Execute(context.Background(), "SELECT * FROM versions WHERE id < 0")
	require.NoError(t, err)
	require.NotNil(t, rows)

	out, err := json.Marshal(rows)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestExecuteValueMapping(t *testing.T) {
	e := NewEngine(seededStore(t), nil, nil)

	rows, err := e.Execute(context.Background(),
		"SELECT NULL AS n, 7 AS i, 1.5 AS r, 'txt' AS s, x'00ff10' AS b")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Nil(t, r["n"])
	assert.Equal(t, int64(7), r["i"])
	assert.Equal(t, 1.5, r["r"])
	assert.Equal(t, "txt", r["s"])
	assert.Equal(t, "00ff10", r["b"])
}

func TestExecuteDuplicateColumnsRightmostWins(t *testing.T) {
	e := NewEngine(seededStore(t), nil, nil)

	rows, err := e.Execute(context.Background(), "SELECT 1 AS a, 2 AS a")
	require.NoError(t, err)
	assert.Equal(t, []Row{{"a": int64(2)}}, rows)
}

func TestExecuteUserError(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	e := NewEngine(seededStore(t), nil, m)

	_, err := e.Execute(context.Background(), "SELECT * FROM nope")
	var qe *Error
	require.True(t, errors.As(err, &qe), "err = %v", err)
	assert.Equal(t, KindUser, qe.Kind)
	assert.Equal(t, http.StatusBadRequest, qe.Kind.HTTPStatus())
	assert.Contains(t, qe.Error(), "nope")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("user_error")))
}

func TestExecuteWriteIsUserError(t *testing.T) {
	e := NewEngine(seededStore(t), nil, nil)

	_, err := e.Execute(context.Background(), "DROP TABLE versions")
	var qe *Error
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, KindUser, qe.Kind)
}

func TestExecuteRefreshFailureIsInternal(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	e := NewEngine(seededStore(t), &staticFreshener{err: errors.New("upstream unavailable")}, m)

	_, err := e.Execute(context.Background(), "SELECT 1")
	var qe *Error
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, KindInternal, qe.Kind)
	assert.Equal(t, http.StatusInternalServerError, qe.Kind.HTTPStatus())
	assert.Equal(t, "upstream unavailable", qe.Error())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("internal_error")))
}

func TestJSONValueEdgeCases(t *testing.T) {
	assert.Equal(t, "NaN", jsonValue(math.NaN()))
	assert.Equal(t, "inf", jsonValue(math.Inf(1)))
	assert.Equal(t, "-inf", jsonValue(math.Inf(-1)))
	assert.Equal(t, "", jsonValue([]byte{}))
	assert.Equal(t, "a�b", jsonValue("a\xffb"))
	assert.Equal(t, "2026-01-02T03:04:05Z", jsonValue(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	_, err := json.Marshal([]Row{{"v": jsonValue(math.NaN())}})
	assert.NoError(t, err)
}
