package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"45.50", "45.5", true},
		{"45,5", "45.5", true},
		{"0.01", "0.01", true},
		{"0", "0", true},
		{".5", "0.5", true},
		{" 2.50 ", "2.5", true},
		{"1.005", "", false},
		{"-1", "", false},
		{"+1", "", false},
		{"1e3", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1.", "", false},
		{"1 000", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err != ErrInvalidAmount {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestBalance(t *testing.T) {
	txs := []Transaction{
		{Amount: decimal.RequireFromString("1850.00"), Kind: Income},
		{Amount: decimal.RequireFromString("45.50"), Kind: Expense},
		{Amount: decimal.RequireFromString("0.10"), Kind: Expense},
		{Amount: decimal.RequireFromString("0.20"), Kind: Expense},
	}
	want := decimal.RequireFromString("1804.20")
	if got := Balance(txs); !got.Equal(want) {
		t.Fatalf("Balance = %s, want %s", got, want)
	}
	if got := Balance(nil); !got.IsZero() {
		t.Fatalf("Balance(nil) = %s, want 0", got)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[string]string{
		"45.5":   "45.50 €",
		"-12":    "-12.00 €",
		"0":      "0.00 €",
		"1804.2": "1804.20 €",
	}
	for in, want := range cases {
		if got := FormatAmount(decimal.RequireFromString(in)); got != want {
			t.Errorf("FormatAmount(%s) = %q, want %q", in, got, want)
		}
	}
}
