package timeout

import (
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
)

// callRecorder collects escalation callback invocations in order.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *callRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *callRecorder) wait(t *testing.T, want int, timeout time.Duration) []string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if calls := r.snapshot(); len(calls) >= want {
			return calls
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d callback calls, got %v", want, r.snapshot())
	return nil
}

func newTestManager() *Manager {
	return NewManager(time.Second, nil, arbor.NewLogger())
}

func shortConfig(soft, medium, hard, nuclear time.Duration) *interfaces.TimeoutConfig {
	return &interfaces.TimeoutConfig{Soft: soft, Medium: medium, Hard: hard, Nuclear: nuclear}
}

func TestEscalationOrder(t *testing.T) {
	m := newTestManager()
	rec := &callRecorder{}

	callbacks := interfaces.TimeoutCallbacks{
		OnSoftTimeout: func(id string, elapsed time.Duration) { rec.record("soft") },
		OnMediumTimeout: func(id string, elapsed time.Duration) bool {
			rec.record("medium")
			return true // keep waiting, let the hard tier fire
		},
		OnHardTimeout:    func(id string, elapsed time.Duration) { rec.record("hard") },
		OnNuclearTimeout: func(id string, elapsed time.Duration) { rec.record("nuclear") },
	}

	// Hard fires its callback then cancels, so nuclear can only fire when
	// its timer beats the hard cancellation. Use a separate operation for
	// the nuclear tier below; here verify soft -> medium -> hard.
	err := m.StartOperation("op1", "stuck export", interfaces.OperationExport,
		shortConfig(20*time.Millisecond, 40*time.Millisecond, 60*time.Millisecond, 10*time.Second), callbacks)
	if err != nil {
		t.Fatal(err)
	}

	calls := rec.wait(t, 3, 2*time.Second)
	want := []string{"soft", "medium", "hard"}
	for i, name := range want {
		if calls[i] != name {
			t.Fatalf("escalation order: expected %v, got %v", want, calls)
		}
	}

	// Hard tier force-cancelled the operation.
	if ops := m.GetActiveOperations(); len(ops) != 0 {
		t.Errorf("expected no active operations after hard cancel, got %d", len(ops))
	}
}

func TestNuclearTriggersEmergencyCleanup(t *testing.T) {
	m := newTestManager()
	rec := &callRecorder{}

	// A bystander operation that should be swept by the nuclear cleanup.
	var bystanderMu sync.Mutex
	bystanderReason := ""
	m.StartOperation("bystander", "other export", interfaces.OperationExport,
		shortConfig(time.Minute, time.Minute, time.Minute, time.Minute), interfaces.TimeoutCallbacks{
			Cleanup: func(id, reason string) {
				bystanderMu.Lock()
				bystanderReason = reason
				bystanderMu.Unlock()
			},
		})

	// Medium keeps waiting and hard sits past the nuclear threshold, so
	// the nuclear tier is the first terminal escalation to fire.
	m.StartOperation("doomed", "stuck export", interfaces.OperationExport,
		shortConfig(5*time.Millisecond, 10*time.Millisecond, 10*time.Second, 40*time.Millisecond),
		interfaces.TimeoutCallbacks{
			OnMediumTimeout:  func(id string, elapsed time.Duration) bool { return true },
			OnNuclearTimeout: func(id string, elapsed time.Duration) { rec.record("nuclear") },
		})

	rec.wait(t, 1, 2*time.Second)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(m.GetActiveOperations()) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if ops := m.GetActiveOperations(); len(ops) != 0 {
		t.Fatalf("emergency cleanup left %d operations active", len(ops))
	}

	bystanderMu.Lock()
	defer bystanderMu.Unlock()
	if bystanderReason != "timeout" {
		t.Errorf("bystander cleanup reason: expected timeout, got %q", bystanderReason)
	}
}

func TestUpdateProgressReArmsOnlySoftTimer(t *testing.T) {
	m := newTestManager()
	rec := &callRecorder{}

	m.StartOperation("op_soft", "export", interfaces.OperationExport,
		shortConfig(60*time.Millisecond, 10*time.Second, 10*time.Second, 10*time.Second),
		interfaces.TimeoutCallbacks{
			OnSoftTimeout: func(id string, elapsed time.Duration) { rec.record("soft") },
		})

	// Keep touching the operation before the soft threshold elapses.
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		m.UpdateProgress("op_soft", "still rendering")
	}
	if calls := rec.snapshot(); len(calls) != 0 {
		t.Fatalf("soft timeout fired despite progress updates: %v", calls)
	}

	// Stop reporting; the soft timer fires one interval after the last update.
	rec.wait(t, 1, 2*time.Second)
	m.CancelOperation("op_soft", "test done")
}

func TestMediumTimeoutDecliningCancelsOperation(t *testing.T) {
	m := newTestManager()

	var mu sync.Mutex
	cleanupReason := ""
	m.StartOperation("op_med", "export", interfaces.OperationExport,
		shortConfig(5*time.Millisecond, 15*time.Millisecond, 10*time.Second, 10*time.Second),
		interfaces.TimeoutCallbacks{
			OnMediumTimeout: func(id string, elapsed time.Duration) bool { return false },
			Cleanup: func(id, reason string) {
				mu.Lock()
				cleanupReason = reason
				mu.Unlock()
			},
		})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(m.GetActiveOperations()) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if ops := m.GetActiveOperations(); len(ops) != 0 {
		t.Fatal("operation should have been cancelled at the medium tier")
	}

	mu.Lock()
	defer mu.Unlock()
	if cleanupReason != "medium timeout" {
		t.Errorf("cleanup reason: expected medium timeout, got %q", cleanupReason)
	}
}

func TestMediumTimeoutWithoutCallbacksCancels(t *testing.T) {
	m := newTestManager()

	m.StartOperation("op_nocb", "export", interfaces.OperationExport,
		shortConfig(5*time.Millisecond, 15*time.Millisecond, 10*time.Second, 10*time.Second),
		interfaces.TimeoutCallbacks{})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(m.GetActiveOperations()) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("operation without callbacks should cancel at the medium tier")
}

func TestCompleteOperationClearsTimers(t *testing.T) {
	m := newTestManager()
	rec := &callRecorder{}

	var mu sync.Mutex
	cleanupReason := ""
	m.StartOperation("op_done", "export", interfaces.OperationExport,
		shortConfig(20*time.Millisecond, 40*time.Millisecond, 60*time.Millisecond, 80*time.Millisecond),
		interfaces.TimeoutCallbacks{
			OnSoftTimeout: func(id string, elapsed time.Duration) { rec.record("soft") },
			Cleanup: func(id, reason string) {
				mu.Lock()
				cleanupReason = reason
				mu.Unlock()
			},
		})

	m.CompleteOperation("op_done")

	if ops := m.GetActiveOperations(); len(ops) != 0 {
		t.Errorf("expected no active operations, got %d", len(ops))
	}
	mu.Lock()
	if cleanupReason != "completed" {
		t.Errorf("cleanup reason: expected completed, got %q", cleanupReason)
	}
	mu.Unlock()

	// No timer fires after completion.
	time.Sleep(120 * time.Millisecond)
	if calls := rec.snapshot(); len(calls) != 0 {
		t.Errorf("timers fired after completion: %v", calls)
	}
}

func TestStartOperationReplacesDuplicateID(t *testing.T) {
	m := newTestManager()

	var mu sync.Mutex
	reasons := []string{}
	cleanup := func(id, reason string) {
		mu.Lock()
		reasons = append(reasons, reason)
		mu.Unlock()
	}

	longCfg := shortConfig(time.Minute, time.Minute, time.Minute, time.Minute)
	m.StartOperation("op_dup", "first", interfaces.OperationExport, longCfg, interfaces.TimeoutCallbacks{Cleanup: cleanup})
	m.StartOperation("op_dup", "second", interfaces.OperationExport, longCfg, interfaces.TimeoutCallbacks{Cleanup: cleanup})

	ops := m.GetActiveOperations()
	if len(ops) != 1 {
		t.Fatalf("expected 1 active operation, got %d", len(ops))
	}
	if ops[0].Name != "second" {
		t.Errorf("expected the replacement operation, got %q", ops[0].Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reasons) != 1 || reasons[0] != "replaced" {
		t.Errorf("expected one replaced cleanup, got %v", reasons)
	}
}

func TestDefaultThresholdsByType(t *testing.T) {
	tests := []struct {
		opType interfaces.OperationType
		soft   time.Duration
	}{
		{interfaces.OperationExport, 10 * time.Second},
		{interfaces.OperationBatchExport, 30 * time.Second},
		{interfaces.OperationDebug, 45 * time.Second},
	}
	for _, tt := range tests {
		cfg := resolveConfig(tt.opType, nil)
		if cfg.Soft != tt.soft {
			t.Errorf("%s soft: expected %v, got %v", tt.opType, tt.soft, cfg.Soft)
		}
	}

	// Partial overrides keep the remaining defaults.
	cfg := resolveConfig(interfaces.OperationExport, &interfaces.TimeoutConfig{Soft: time.Second})
	if cfg.Soft != time.Second {
		t.Errorf("override lost: %v", cfg.Soft)
	}
	if cfg.Nuclear != 120*time.Second {
		t.Errorf("default not filled: %v", cfg.Nuclear)
	}
}

func TestCanStartExportCooldown(t *testing.T) {
	m := NewManager(100*time.Millisecond, nil, arbor.NewLogger())

	if !m.CanStartExport() {
		t.Fatal("first export should be allowed")
	}
	if m.CanStartExport() {
		t.Fatal("second immediate export should be throttled")
	}

	time.Sleep(150 * time.Millisecond)
	if !m.CanStartExport() {
		t.Error("export should be allowed again after the cooldown")
	}
}
