package decmath

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSafeDivTruncates(t *testing.T) {
	got, err := SafeDiv(decimal.NewFromInt(2), decimal.NewFromInt(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Truncated, not rounded: a rounding divide would end in ...667.
	want := "0.666666666666666666666666666666666666"
	if got.String() != want {
		t.Fatalf("2/3 = %s, want %s", got, want)
	}
}

func TestSafeDivZeroDenominator(t *testing.T) {
	_, err := SafeDiv(decimal.NewFromInt(1), decimal.Zero)
	if !errors.Is(err, ErrDivisionUndefined) {
		t.Fatalf("expected ErrDivisionUndefined, got %v", err)
	}
}

func TestToHumanToRaw(t *testing.T) {
	raw, ok := new(big.Int).SetString("1234567890123456789", 10)
	if !ok {
		t.Fatal("bad literal")
	}

	human := ToHuman(raw, 18)
	if human.String() != "1.234567890123456789" {
		t.Fatalf("ToHuman = %s", human)
	}

	back := ToRaw(human, 18)
	if back.Cmp(raw) != 0 {
		t.Fatalf("ToRaw(ToHuman(x)) = %s, want %s", back, raw)
	}

	// Fractions below the smallest unit truncate away.
	d := decimal.RequireFromString("0.0000001")
	if got := ToRaw(d, 6); got.Sign() != 0 {
		t.Fatalf("ToRaw below scale = %s, want 0", got)
	}
}

func TestToGwei(t *testing.T) {
	wei := big.NewInt(50_000_000_000)
	if got := ToGwei(wei); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("ToGwei = %s, want 50", got)
	}
	// Remainder is discarded.
	if got := ToGwei(big.NewInt(1_999_999_999)); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("ToGwei = %s, want 1", got)
	}
}

func TestToEther(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := ToEther(wei); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("ToEther = %s, want 1.5", got)
	}
}

func TestAlignHour(t *testing.T) {
	cases := []struct {
		ts   int64
		want int64
	}{
		{0, 0},
		{3599, 0},
		{3600, 3600},
		{7205, 7200},
		{1700003605, 1700003605 / 3600 * 3600},
	}
	for _, c := range cases {
		if got := AlignHour(c.ts); got != c.want {
			t.Errorf("AlignHour(%d) = %d, want %d", c.ts, got, c.want)
		}
	}
}

func TestPlain(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"50.00", "50"},
		{"0.003000", "0.003"},
		{"1.230", "1.23"},
		{"100", "100"},
		{"0.000", "0"},
	}
	for _, c := range cases {
		d := decimal.RequireFromString(c.in)
		if got := Plain(d); got != c.want {
			t.Errorf("Plain(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}
