package transaction

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/reposit-go/reposit/internal/orm/ormerrors"
)

// setupTestDB creates a file database with a test table
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "uow.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE records (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	if err != nil {
		t.Fatalf("failed to create test table: %v", err)
	}
	return db
}

func countRecords(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func insert(t *testing.T, ctx context.Context, u *UnitOfWork, name string) {
	t.Helper()
	w, err := u.Writer(ctx, "Record")
	if err != nil {
		t.Fatalf("Writer failed: %v", err)
	}
	if _, err := w.ExecContext(ctx, `INSERT INTO records (name) VALUES (?)`, name); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	u.MarkWritten("records")
}

func TestUnitOfWork_Commit(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)
	ctx := context.Background()

	u, err := mgr.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if u.InTransaction() {
		t.Error("transaction should begin on the first write")
	}

	insert(t, ctx, u, "a")
	insert(t, ctx, u, "b")
	if !u.InTransaction() {
		t.Error("expected an active transaction after a write")
	}

	if err := u.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if u.State() != Committed {
		t.Errorf("expected committed, got %v", u.State())
	}
	if err := u.Dispose(); err != nil {
		t.Errorf("Dispose after commit should be a no-op, got %v", err)
	}
	if n := countRecords(t, db); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}

func TestUnitOfWork_DisposeRollsBack(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)
	ctx := context.Background()

	u, err := mgr.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	insert(t, ctx, u, "a")

	if err := u.Dispose(); err != nil {
		t.Fatalf("Dispose failed: %v", err)
	}
	if u.State() != RolledBack {
		t.Errorf("expected rolled back, got %v", u.State())
	}
	if n := countRecords(t, db); n != 0 {
		t.Errorf("expected 0 records, got %d", n)
	}
}

func TestUnitOfWork_FinalizedOperations(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		finalize func(u *UnitOfWork) error
		state    string
	}{
		{"committed", func(u *UnitOfWork) error { return u.Commit(ctx) }, "committed"},
		{"disposed", func(u *UnitOfWork) error { return u.Dispose() }, "rolled back"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := mgr.Begin(ctx)
			if err != nil {
				t.Fatalf("Begin failed: %v", err)
			}
			if err := tt.finalize(u); err != nil {
				t.Fatalf("finalize failed: %v", err)
			}

			_, err = u.Writer(ctx, "pkg.Record")
			if !errors.Is(err, ormerrors.ErrContextFinalized) {
				t.Fatalf("expected ContextFinalized, got %v", err)
			}
			want := "operation on 'pkg.Record' failed: the unit of work has already been " + tt.state
			if err.Error() != want {
				t.Errorf("unexpected message %q", err.Error())
			}

			if _, err := u.Reader("pkg.Record"); !errors.Is(err, ormerrors.ErrContextFinalized) {
				t.Errorf("expected ContextFinalized from Reader, got %v", err)
			}
			if err := u.Commit(ctx); !errors.Is(err, ormerrors.ErrContextFinalized) {
				t.Errorf("expected ContextFinalized from Commit, got %v", err)
			}
		})
	}
}

func TestUnitOfWork_CancelledWriteFaults(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)
	ctx := context.Background()

	u, err := mgr.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	insert(t, ctx, u, "a")

	if got := u.Observe(context.Canceled); got != context.Canceled {
		t.Errorf("Observe should return its argument, got %v", got)
	}

	_, err = u.Writer(ctx, "Record")
	if !errors.Is(err, ormerrors.ErrContextFinalized) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ContextFinalized wrapping the cancellation, got %v", err)
	}
	if err := u.Commit(ctx); err == nil {
		t.Fatal("a faulted unit must not commit")
	}
	if err := u.Dispose(); err != nil {
		t.Fatalf("Dispose failed: %v", err)
	}
	if n := countRecords(t, db); n != 0 {
		t.Errorf("expected 0 records, got %d", n)
	}
}

func TestUnitOfWork_PerCallContexts(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)

	u, err := mgr.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	callCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	insert(t, callCtx, u, "first")
	cancel()

	insert(t, context.Background(), u, "second")
	if err := u.Commit(context.Background()); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if n := countRecords(t, db); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}

func TestUnitOfWork_WriterOnCancelledContext(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)

	u, err := mgr.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer u.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := u.Writer(ctx, "Record"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if u.InTransaction() {
		t.Error("no transaction should begin on a cancelled context")
	}
	if err := u.Check("Record"); !errors.Is(err, ormerrors.ErrContextFinalized) {
		t.Errorf("expected the unit to be faulted, got %v", err)
	}
}

func TestUnitOfWork_OnCommit(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)
	ctx := context.Background()

	u, err := mgr.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	var got []string
	u.OnCommit(func(_ context.Context, tables []string) { got = tables })
	insert(t, ctx, u, "a")
	u.MarkWritten("others")

	if !u.HasWritten("records") || u.HasWritten("missing") {
		t.Error("unexpected written table tracking")
	}
	if err := u.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(got) != 2 || got[0] != "others" || got[1] != "records" {
		t.Errorf("unexpected hook tables %v", got)
	}
}

func TestManager_Do(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)
	ctx := context.Background()

	err := mgr.Do(ctx, func(ctx context.Context, u *UnitOfWork) error {
		if fromCtx, ok := FromContext(ctx); !ok || fromCtx != u {
			t.Error("expected the unit of work in the context")
		}
		insert(t, ctx, u, "kept")
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	boom := errors.New("boom")
	err = mgr.Do(ctx, func(ctx context.Context, u *UnitOfWork) error {
		insert(t, ctx, u, "dropped")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		mgr.Do(ctx, func(ctx context.Context, u *UnitOfWork) error {
			insert(t, ctx, u, "panicked")
			panic("boom")
		})
	}()

	if n := countRecords(t, db); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestFromContext_Empty(t *testing.T) {
	u, ok := FromContext(context.Background())
	if ok || u != nil {
		t.Error("expected no unit of work")
	}
}
