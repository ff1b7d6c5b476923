package wire

import (
	"testing"

	"github.com/NNTin/d-cogs/internal/platform"
)

func TestCanonicalStatusMapsPlatformTable(t *testing.T) {
	cases := []struct {
		raw  platform.Status
		want Status
	}{
		{platform.StatusOnline, StatusOnline},
		{platform.StatusIdle, StatusIdle},
		{platform.StatusDnd, StatusDnd},
		{platform.StatusOffline, StatusOffline},
		{platform.StatusInvisible, StatusOffline},
	}

	for _, tc := range cases {
		if got := CanonicalStatus(tc.raw); got != tc.want {
			t.Fatalf("status %q: expected %q, got %q", tc.raw, tc.want, got)
		}
	}
}

func TestCanonicalStatusDefaultsUnknownToOffline(t *testing.T) {
	if got := CanonicalStatus(platform.Status("streaming")); got != StatusOffline {
		t.Fatalf("expected unknown status to read as offline, got %q", got)
	}
	if got := CanonicalStatus(platform.Status("")); got != StatusOffline {
		t.Fatalf("expected empty status to read as offline, got %q", got)
	}
}
