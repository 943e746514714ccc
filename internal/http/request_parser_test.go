package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"tresorerie/internal/core"
)

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		query     url.Values
		wantYear  int
		wantMonth int
		wantErr   bool
	}{
		{"defaults to now", url.Values{}, 2024, 6, false},
		{"explicit values", url.Values{"year": {"2023"}, "month": {"2"}}, 2023, 2, false},
		{"month only", url.Values{"month": {"11"}}, 2024, 11, false},
		{"out of range is left to the service", url.Values{"month": {"13"}}, 2024, 13, false},
		{"non numeric month", url.Values{"month": {"june"}}, 0, 0, true},
		{"non numeric year", url.Values{"year": {"twenty"}}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMonthParams(tt.query, now)
			if tt.wantErr {
				if StatusForError(err) != http.StatusBadRequest {
					t.Fatalf("expected 400 error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Year != tt.wantYear || got.Month != tt.wantMonth {
				t.Errorf("got %d-%d, want %d-%d", got.Year, got.Month, tt.wantYear, tt.wantMonth)
			}
		})
	}
}

func TestParseAsOf(t *testing.T) {
	today := core.MustParseDate("2024-03-10")

	got, err := ParseAsOf(url.Values{}, today)
	if err != nil || !got.Equal(today) {
		t.Errorf("empty asOf = %v, %v; want today", got, err)
	}

	got, err = ParseAsOf(url.Values{"asOf": {"2024-01-31"}}, today)
	if err != nil || got.String() != "2024-01-31" {
		t.Errorf("asOf = %v, %v", got, err)
	}

	if _, err := ParseAsOf(url.Values{"asOf": {"31/01/2024"}}, today); StatusForError(err) != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed asOf, got %v", err)
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		value   string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.SetPathValue("id", tt.value)
		got, err := pathID(r, "id")
		if tt.wantErr {
			if StatusForError(err) != http.StatusNotFound {
				t.Errorf("pathID(%q) error = %v, want 404", tt.value, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("pathID(%q) = %d, %v", tt.value, got, err)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string    `json:"name"`
		Date core.Date `json:"date"`
	}

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"name":"Rent","date":"2024-01-31"}`, 0},
		{"empty", ``, http.StatusBadRequest},
		{"malformed", `{"name":`, http.StatusBadRequest},
		{"unknown field", `{"name":"x","other":true}`, http.StatusBadRequest},
		{"two objects", `{"name":"x"} {"name":"y"}`, http.StatusBadRequest},
		{"invalid date", `{"date":"2024-02-30"}`, http.StatusUnprocessableEntity},
		{"too large", `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := decodeJSON(httptest.NewRecorder(), r, &p)
			if tt.wantStatus == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Name != "Rent" || p.Date.String() != "2024-01-31" {
					t.Errorf("decoded %+v", p)
				}
				return
			}
			if got := StatusForError(err); got != tt.wantStatus {
				t.Errorf("status = %d, want %d (err %v)", got, tt.wantStatus, err)
			}
		})
	}
}

func TestDecodeOptionalJSON(t *testing.T) {
	var req processRequest

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := decodeOptionalJSON(httptest.NewRecorder(), r, &req); err != nil {
		t.Fatalf("empty body: %v", err)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"catchUp":false}`))
	if err := decodeOptionalJSON(httptest.NewRecorder(), r, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.CatchUp == nil || *req.CatchUp {
		t.Errorf("catchUp = %v, want false", req.CatchUp)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"catchUp":`))
	var reqErr *requestError
	if err := decodeOptionalJSON(httptest.NewRecorder(), r, &req); !errors.As(err, &reqErr) {
		t.Errorf("malformed body error = %v, want requestError", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Rent  ", "Rent"},
		{"a\x00b\x07c", "abc"},
		{"line\nbreak", "line\nbreak"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := sanitizeInput(tt.input); got != tt.expected {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
