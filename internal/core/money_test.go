package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"92233720368547758.07", 9223372036854775807, true},
		{"92233720368547758.08", 0, false},
		{"184467440737095516.17", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else {
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("%q expected validation error, got %v", tc.in, err)
			}
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := Cents(0).Validate(); err != nil {
		t.Fatalf("zero must be valid, got %v", err)
	}
	if err := Cents(-1).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Cents(123450)})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"amount":1234.5}` {
		t.Fatalf("unexpected encoding %s", b)
	}

	for in, want := range map[string]int64{
		`500`:      50000,
		`"12.34"`:  1234,
		`0.015`:    2,
		`19.99`:    1999,
		`1200.50`:  120050,
		`"1e2"`:    10000,
		`null`:     0,
		`0.000001`: 0,
	} {
		var m Money
		if err := json.Unmarshal([]byte(in), &m); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if m.Cents != want {
			t.Fatalf("%s: expected %d cents, got %d", in, want, m.Cents)
		}
	}

	for _, in := range []string{`"abc"`, `100000000000000000000`, `"184467440737095516.17"`} {
		var m Money
		if err := json.Unmarshal([]byte(in), &m); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%s: expected ErrInvalidAmount, got %v (cents %d)", in, err, m.Cents)
		}
	}
}

func TestMoneyString(t *testing.T) {
	if got := Cents(1250).String(); got != "12.50" {
		t.Fatalf("expected 12.50, got %s", got)
	}
	if got := Cents(5).Euros(); got != 0.05 {
		t.Fatalf("expected 0.05, got %v", got)
	}
}
