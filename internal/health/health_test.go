package health

import (
	"testing"
	"time"
)

// TestErrorRate_Empty verifies that ErrorRate returns zeros when no
// outcomes have been recorded within the time window.
func TestErrorRate_Empty(t *testing.T) {
	Reset()
	errors, total := ErrorRate(1 * time.Minute)
	if errors != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 0)", errors, total)
	}
}

// TestErrorRate_SuccessAndError verifies that ErrorRate correctly calculates
// error rate from recorded success and error outcomes.
func TestErrorRate_SuccessAndError(t *testing.T) {
	Reset()
	RecordSuccess()
	RecordSuccess()
	RecordError()
	errors, total := ErrorRate(1 * time.Minute)
	if errors != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errors, total)
	}
}

// TestErrorRate_DeniedExcluded verifies that ErrorRate excludes rate-limit
// denials from the error rate calculation.
func TestErrorRate_DeniedExcluded(t *testing.T) {
	Reset()
	RecordSuccess()
	RecordDenied()
	RecordDenied()
	errors, total := ErrorRate(1 * time.Minute)
	if errors != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1) - denied excluded from error rate", errors, total)
	}
	if n := DenialCount(1 * time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
}

// TestDegraded_BelowThreshold verifies that Degraded stays false when the
// error rate is under the threshold.
func TestDegraded_BelowThreshold(t *testing.T) {
	Reset()
	for i := 0; i < 9; i++ {
		RecordSuccess()
	}
	RecordError()
	if Degraded(1*time.Minute, 25, 5) {
		t.Error("Degraded() = true at 10% error rate with 25% threshold")
	}
}

// TestDegraded_AboveThreshold verifies that Degraded flips true when the
// error rate exceeds the threshold.
func TestDegraded_AboveThreshold(t *testing.T) {
	Reset()
	RecordSuccess()
	for i := 0; i < 4; i++ {
		RecordError()
	}
	if !Degraded(1*time.Minute, 25, 5) {
		t.Error("Degraded() = false at 80% error rate with 25% threshold")
	}
}

// TestDegraded_MinSamples verifies that Degraded requires minSamples outcomes
// before flagging, so a single failure after startup is not degraded.
func TestDegraded_MinSamples(t *testing.T) {
	Reset()
	RecordError()
	if Degraded(1*time.Minute, 25, 5) {
		t.Error("Degraded() = true with 1 sample, want false below minSamples")
	}
}

// TestReset verifies that Reset clears all recorded outcomes.
func TestReset(t *testing.T) {
	Reset()
	RecordSuccess()
	RecordError()
	RecordDenied()
	Reset()
	errors, total := ErrorRate(1 * time.Minute)
	if errors != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 0)", errors, total)
	}
	if n := DenialCount(1 * time.Minute); n != 0 {
		t.Errorf("DenialCount() = %d, want 0", n)
	}
}
