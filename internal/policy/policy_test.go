package policy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func dp(n int64) *decimal.Decimal {
	v := decimal.NewFromInt(n)
	return &v
}

// --- Reserve price ---

func TestMeetsReserve(t *testing.T) {
	tests := []struct {
		name    string
		amount  decimal.Decimal
		reserve *decimal.Decimal
		want    bool
	}{
		{"no reserve always sells", d(1), nil, true},
		{"above reserve", d(600), dp(500), true},
		{"exactly at reserve", d(500), dp(500), true},
		{"below reserve", d(300), dp(500), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MeetsReserve(tt.amount, tt.reserve); got != tt.want {
				t.Errorf("MeetsReserve(%s) = %v, want %v", tt.amount, got, tt.want)
			}
		})
	}
}

// --- Anti-snipe ---

func TestCheckAntiSnipe_ExtendsInsideWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	endsAt := now.Add(30 * time.Second)

	res := CheckAntiSnipe(endsAt, 120*time.Second, now)

	if !res.ShouldExtend {
		t.Fatal("bid 30s before the end with a 120s window must extend")
	}
	want := now.Add(120 * time.Second)
	if !res.NewEndsAt.Equal(want) {
		t.Errorf("expected new end %v, got %v", want, res.NewEndsAt)
	}
}

func TestCheckAntiSnipe_ExactlyAtWindowBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	endsAt := now.Add(120 * time.Second)

	res := CheckAntiSnipe(endsAt, 120*time.Second, now)
	if !res.ShouldExtend {
		t.Error("remaining == window must extend")
	}
}

func TestCheckAntiSnipe_OutsideWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	endsAt := now.Add(10 * time.Minute)

	res := CheckAntiSnipe(endsAt, 120*time.Second, now)

	if res.ShouldExtend {
		t.Error("bid well before the window must not extend")
	}
	if !res.NewEndsAt.Equal(endsAt) {
		t.Errorf("end time must be unchanged, got %v", res.NewEndsAt)
	}
}

func TestCheckAntiSnipe_AlreadyEnded(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	endsAt := now.Add(-time.Second)

	res := CheckAntiSnipe(endsAt, 120*time.Second, now)
	if res.ShouldExtend {
		t.Error("an already-ended auction must not extend")
	}
}

func TestCheckAntiSnipe_ZeroWindowDisabled(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	endsAt := now.Add(time.Second)

	res := CheckAntiSnipe(endsAt, 0, now)
	if res.ShouldExtend {
		t.Error("window 0 disables anti-snipe")
	}
}
