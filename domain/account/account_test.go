package account

import (
	"testing"
	"time"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusPending, "Pending"},
		{StatusScheduled, "Scheduled"},
		{StatusCompleted, "Completed"},
		{StatusFailed, "Failed"},
		{Status(9), "Unknown(9)"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestRunRecord_NextRunDisplay(t *testing.T) {
	rec := &RunRecord{Account: "101", Status: StatusPending}
	if got := rec.NextRunDisplay(); got != "N/A" {
		t.Errorf("pending NextRunDisplay() = %q, want N/A", got)
	}

	rec.Status = StatusCompleted
	if got := rec.NextRunDisplay(); got != "Immediate" {
		t.Errorf("completed NextRunDisplay() = %q, want Immediate", got)
	}

	rec.NextRun = time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)
	rec.Status = StatusScheduled
	if got := rec.NextRunDisplay(); got != "2025-03-01 14:30:00" {
		t.Errorf("scheduled NextRunDisplay() = %q", got)
	}
}

func TestRecordSet_ResetAndOrder(t *testing.T) {
	set := NewRecordSet()
	set.Reset([]Account{"3", "1", "2"})

	all := set.All()
	if len(all) != 3 {
		t.Fatalf("All() returned %d records, want 3", len(all))
	}
	wantOrder := []Account{"3", "1", "2"}
	for i, rec := range all {
		if rec.Account != wantOrder[i] {
			t.Errorf("All()[%d].Account = %s, want %s", i, rec.Account, wantOrder[i])
		}
		if rec.Status != StatusPending {
			t.Errorf("fresh record status = %s, want Pending", rec.Status)
		}
		if rec.Username != "N/A" {
			t.Errorf("fresh record username = %q, want N/A", rec.Username)
		}
	}
}

func TestRecordSet_NotScheduled(t *testing.T) {
	set := NewRecordSet()
	set.Reset([]Account{"A", "B", "C"})

	set.Update("B", func(r *RunRecord) { r.Status = StatusScheduled })
	set.Update("A", func(r *RunRecord) { r.Status = StatusFailed })

	got := set.NotScheduled()
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("NotScheduled() = %v, want [A C]", got)
	}
}

func TestRecordSet_GetUnknownAccount(t *testing.T) {
	set := NewRecordSet()
	set.Reset([]Account{"A"})
	if rec := set.Get("nope"); rec != nil {
		t.Error("Get() for unknown account should return nil")
	}
	// Update of an unknown account must be a no-op, not a panic
	set.Update("nope", func(r *RunRecord) { r.Status = StatusFailed })
}
