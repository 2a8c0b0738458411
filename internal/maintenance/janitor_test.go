package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codec-agences/admin-backend/internal/repository"
)

// mockMaintenanceRepository records the cutoffs it was called with
type mockMaintenanceRepository struct {
	mu          sync.Mutex
	calls       map[string]time.Time
	blockCode   int
	failArticle bool
}

func newMockRepo() *mockMaintenanceRepository {
	return &mockMaintenanceRepository{calls: map[string]time.Time{}}
}

func (m *mockMaintenanceRepository) record(name string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name] = t
}

func (m *mockMaintenanceRepository) CloseSessionsOlderThan(_ context.Context, before, _ time.Time) (int64, error) {
	m.record("sessions", before)
	return 3, nil
}

func (m *mockMaintenanceRepository) UnblockUsers(_ context.Context, code int, before time.Time) (int64, error) {
	m.record("unblock", before)
	m.mu.Lock()
	m.blockCode = code
	m.mu.Unlock()
	return 1, nil
}

func (m *mockMaintenanceRepository) DeleteArticlesBefore(_ context.Context, before time.Time) (int64, error) {
	m.record("articles", before)
	if m.failArticle {
		return 0, errors.New("disk full")
	}
	return 10, nil
}

func (m *mockMaintenanceRepository) DeleteProcessedFilesBefore(_ context.Context, before time.Time) (int64, error) {
	m.record("files", before)
	return 4, nil
}

func (m *mockMaintenanceRepository) DeleteClosedSessionsBefore(_ context.Context, before time.Time) (int64, error) {
	m.record("purge_sessions", before)
	return 2, nil
}

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestRunAll_Cutoffs(t *testing.T) {
	repo := newMockRepo()
	j := NewJanitor(repo, Config{}, nil).WithClock(func() time.Time { return base })

	results, err := j.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 jobs without session purge, got %d", len(results))
	}

	want := map[string]time.Time{
		"sessions": base.Add(-2 * time.Hour),
		"unblock":  base.Add(-20 * time.Minute),
		"articles": base.Add(-30 * 24 * time.Hour),
		"files":    base.Add(-30 * 24 * time.Hour),
	}
	for name, cutoff := range want {
		if got := repo.calls[name]; !got.Equal(cutoff) {
			t.Errorf("%s cutoff = %v, want %v", name, got, cutoff)
		}
	}
	if _, ran := repo.calls["purge_sessions"]; ran {
		t.Error("session purge is off by default")
	}
	if repo.blockCode != repository.BlockCodeAttemptsExceeded {
		t.Errorf("unblock must target code %d only, got %d", repository.BlockCodeAttemptsExceeded, repo.blockCode)
	}
	if results[2].Affected != 14 {
		t.Errorf("article purge affected = %d, want articles plus files", results[2].Affected)
	}
}

func TestRunAll_PurgeSessions(t *testing.T) {
	repo := newMockRepo()
	results, err := NewJanitor(repo, Config{PurgeSessions: true}, nil).RunAll(context.Background())
	if err != nil || len(results) != 4 {
		t.Fatalf("RunAll() = %d results, %v", len(results), err)
	}
}

func TestRunAll_FailureDoesNotStopOthers(t *testing.T) {
	repo := newMockRepo()
	repo.failArticle = true

	results, err := NewJanitor(repo, Config{}, nil).RunAll(context.Background())
	if err == nil {
		t.Fatal("expected the article failure to be returned")
	}
	if results[0].Err != nil || results[1].Err != nil || results[2].Err == nil {
		t.Errorf("unexpected results %+v", results)
	}
	if _, ran := repo.calls["files"]; ran {
		t.Error("processed files must not be purged when the article purge failed")
	}
}
