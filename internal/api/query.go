package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/kalambet/versionsql/internal/query"
)

const maxQueryBodySize = 1 << 20 // 1MB

// handleQuery runs the raw request body as SQL. Failures are answered with
// the bare error text so the console can show it verbatim.
func handleQuery(q Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxQueryBodySize)
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				textError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("query exceeds %d bytes", tooLarge.Limit))
				return
			}
			textError(w, http.StatusBadRequest, fmt.Sprintf("reading request body: %v", err))
			return
		}
		if !utf8.Valid(body) {
			textError(w, http.StatusBadRequest, "query is not valid UTF-8")
			return
		}

		rows, err := q.Execute(r.Context(), string(body))
		if err != nil {
			status := http.StatusInternalServerError
			var qe *query.Error
			if errors.As(err, &qe) {
				status = qe.Kind.HTTPStatus()
			}
			if status >= http.StatusInternalServerError {
				slog.Error("query failed", "error", err)
			} else {
				slog.Debug("query rejected", "error", err)
			}
			textError(w, status, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, rows)
	}
}

func textError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	io.WriteString(w, msg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		textError(w, http.StatusInternalServerError, fmt.Sprintf("encoding response: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}
