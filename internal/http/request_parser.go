// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data:
// JSON bodies, path ids and month/year query parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tresorerie/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// requestError is a malformed request, reported with its own status.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters, using
// today as the default. Non-numeric values are an error; range checks are
// left to the service.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{
		Year:  now.Year(),
		Month: int(now.Month()),
	}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return params, badRequest("year must be a number")
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return params, badRequest("month must be a number")
		}
		params.Month = m
	}

	return params, nil
}

// ParseAsOf reads the asOf query parameter (YYYY-MM-DD), defaulting to today.
func ParseAsOf(query url.Values, today core.Date) (core.Date, error) {
	v := strings.TrimSpace(query.Get("asOf"))
	if v == "" {
		return today, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, badRequest("asOf must be a YYYY-MM-DD date")
	}
	return d, nil
}

// pathID parses the {name} path segment as a positive id.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &requestError{status: http.StatusNotFound, msg: fmt.Sprintf("invalid %s", name)}
	}
	return id, nil
}

// pathName returns the sanitized {name} path segment.
func pathName(r *http.Request, name string) (string, error) {
	v := sanitizeInput(r.PathValue(name))
	if v == "" {
		return "", badRequest("missing %s", name)
	}
	return v, nil
}

// decodeJSON reads a single JSON object into v. Unknown fields, trailing
// data and bodies over maxBodyBytes are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return &requestError{status: http.StatusRequestEntityTooLarge, msg: "request body too large"}
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.Is(err, core.ErrValidation):
			return err
		default:
			return badRequest("invalid JSON: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	err := decodeJSON(w, r, v)
	var reqErr *requestError
	if errors.As(err, &reqErr) && reqErr.msg == "request body is empty" {
		return nil
	}
	return err
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
