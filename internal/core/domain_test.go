package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2024, 9, 7), true},
		{Date{Time: time.Time{}}, false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-09-07")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.String() != "2024-09-07" {
		t.Fatalf("String() = %q", d.String())
	}
	if _, err := ParseDate("07/09/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if Today(time.Date(2024, 9, 7, 23, 59, 0, 0, time.UTC)) != NewDate(2024, 9, 7) {
		t.Fatal("Today should truncate to the calendar date")
	}
}

func TestSessionValid(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var nilSession *Session
	cases := []struct {
		name string
		s    *Session
		want bool
	}{
		{"nil", nilSession, false},
		{"no token", &Session{}, false},
		{"no expiry", &Session{AccessToken: "t"}, true},
		{"future expiry", &Session{AccessToken: "t", ExpiresAt: now.Add(time.Minute)}, true},
		{"expired", &Session{AccessToken: "t", ExpiresAt: now.Add(-time.Minute)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.s.Valid(now); got != tc.want {
				t.Fatalf("Valid = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTransactionInputValidate(t *testing.T) {
	good := TransactionInput{
		UserID:      "u1",
		Description: "Groceries",
		Amount:      decimal.RequireFromString("45.50"),
		Kind:        Expense,
		Date:        NewDate(2024, 9, 7),
		Category:    Food,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*TransactionInput)
		want   error
	}{
		{"missing owner", func(in *TransactionInput) { in.UserID = "" }, ErrMissingOwner},
		{"blank description", func(in *TransactionInput) { in.Description = "  " }, ErrEmptyDescription},
		{"long description", func(in *TransactionInput) { in.Description = strings.Repeat("x", 201) }, ErrDescriptionTooLong},
		{"negative amount", func(in *TransactionInput) { in.Amount = decimal.NewFromInt(-1) }, ErrInvalidAmount},
		{"three decimals", func(in *TransactionInput) { in.Amount = decimal.RequireFromString("1.005") }, ErrInvalidAmount},
		{"bad kind", func(in *TransactionInput) { in.Kind = "transfer" }, ErrInvalidKind},
		{"zero date", func(in *TransactionInput) { in.Date = Date{} }, ErrInvalidDate},
		{"bad category", func(in *TransactionInput) { in.Category = "Travel" }, ErrInvalidCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := good
			tc.mutate(&in)
			if err := in.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("Validate = %v, want %v", err, tc.want)
			}
			if !IsValidationError(in.Validate()) {
				t.Fatal("IsValidationError should recognise the error")
			}
		})
	}
}

func TestSigned(t *testing.T) {
	in := Transaction{Amount: decimal.NewFromInt(10), Kind: Income}
	ex := Transaction{Amount: decimal.NewFromInt(10), Kind: Expense}
	if !in.Signed().Equal(decimal.NewFromInt(10)) || !ex.Signed().Equal(decimal.NewFromInt(-10)) {
		t.Fatalf("Signed: income=%s expense=%s", in.Signed(), ex.Signed())
	}
}
