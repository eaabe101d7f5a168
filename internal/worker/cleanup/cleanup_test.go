package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
	err          error
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, r.err }

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	execCalled bool
	query      string
	args       []interface{}
	result     sql.Result
	err        error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.execCalled = true
	m.query = query
	m.args = args
	return m.result, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewJob_DefaultRetentionIs30Days(t *testing.T) {
	job := NewJob(nil)

	if job.Retention != 30*24*time.Hour {
		t.Errorf("Retention = %v, want %v", job.Retention, 30*24*time.Hour)
	}
}

func TestJob_Cutoff(t *testing.T) {
	job := NewJob(nil)
	now := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)

	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	if got := job.Cutoff(now); got != want {
		t.Errorf("Cutoff = %d, want %d", got, want)
	}
}

func TestJob_Run_ExecutesDeleteWithCutoff(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 5}}
	job := NewJob(newTestLogger(&buf))
	now := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)

	deleted, err := job.Run(context.Background(), mock, now)
	if err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if deleted != 5 {
		t.Errorf("deleted = %d, want 5", deleted)
	}

	if !strings.Contains(mock.query, "DELETE FROM articles") {
		t.Errorf("クエリに 'DELETE FROM articles' が含まれていない: %s", mock.query)
	}
	if !strings.Contains(mock.query, "timestamp <") {
		t.Errorf("クエリに 'timestamp <' 条件が含まれていない: %s", mock.query)
	}

	if len(mock.args) != 1 {
		t.Fatalf("引数の数 = %d, want 1", len(mock.args))
	}
	cutoff, ok := mock.args[0].(int64)
	if !ok {
		t.Fatalf("第1引数が int64 ではない: %T", mock.args[0])
	}
	if cutoff != job.Cutoff(now) {
		t.Errorf("cutoff = %d, want %d", cutoff, job.Cutoff(now))
	}
}

func TestJob_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 42}}
	job := NewJob(newTestLogger(&buf))

	_, _ = job.Run(context.Background(), mock, time.Now())

	var entry map[string]interface{}
	found := false
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["deleted_count"] == float64(42) && entry["retention_days"] == float64(30) {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("ログに deleted_count=42, retention_days=30 が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestJob_Run_NoLogWhenNothingDeleted(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}
	job := NewJob(newTestLogger(&buf))

	if _, err := job.Run(context.Background(), mock, time.Now()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("削除なしでログが出力された: %s", buf.String())
	}
}

func TestJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{err: sql.ErrConnDone}
	job := NewJob(newTestLogger(&buf))

	_, err := job.Run(context.Background(), mock, time.Now())
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("error = %v, want wrapped sql.ErrConnDone", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラーログが出力されていない: %s", buf.String())
	}
}

func TestJob_Run_ReturnsErrorOnRowsAffectedFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{err: errors.New("not supported")}}
	job := NewJob(newTestLogger(&buf))

	if _, err := job.Run(context.Background(), mock, time.Now()); err == nil {
		t.Fatal("RowsAffected失敗時にエラーが返されなかった")
	}
}
