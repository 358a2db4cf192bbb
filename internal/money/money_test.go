package money

import (
	"testing"
	"time"
)

func TestFormatCurrency(t *testing.T) {
	cases := []struct {
		amount int64
		want   string
	}{
		{0, "Rp 0"},
		{950, "Rp 950"},
		{15000, "Rp 15.000"},
		{1500000, "Rp 1.500.000"},
		{-25000, "-Rp 25.000"},
	}
	for _, tc := range cases {
		if got := FormatCurrency(tc.amount); got != tc.want {
			t.Fatalf("FormatCurrency(%d) = %q, want %q", tc.amount, got, tc.want)
		}
	}
}

func TestApplyDiscount(t *testing.T) {
	cases := []struct {
		total         int64
		wantCollected int64
		wantDiscount  int64
	}{
		{10000, 9000, 1000},
		{15, 14, 1},
		{5, 5, 0},
		{0, 0, 0},
		{12345, 11111, 1234},
	}
	for _, tc := range cases {
		collected, discount := ApplyDiscount(tc.total)
		if collected != tc.wantCollected || discount != tc.wantDiscount {
			t.Fatalf("ApplyDiscount(%d) = (%d, %d), want (%d, %d)", tc.total, collected, discount, tc.wantCollected, tc.wantDiscount)
		}
		if collected+discount != tc.total {
			t.Fatalf("collected + discount must equal total for %d", tc.total)
		}
	}
}

func TestBusinessDateUsesLocation(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	at := time.Date(2026, 10, 17, 20, 30, 0, 0, time.UTC)

	if got := BusinessDate(at, jakarta); got != "2026-10-18" {
		t.Fatalf("expected next day in UTC+7, got %s", got)
	}
	if got := BusinessDate(at, time.UTC); got != "2026-10-17" {
		t.Fatalf("expected same day in UTC, got %s", got)
	}
}

func TestParseBusinessDate(t *testing.T) {
	if got, err := ParseBusinessDate(" 2026-10-17 "); err != nil || got != "2026-10-17" {
		t.Fatalf("unexpected parse result %q %v", got, err)
	}
	if _, err := ParseBusinessDate("17/10/2026"); err == nil {
		t.Fatalf("expected invalid layout to be rejected")
	}
}
