package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T, driver Driver) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes-test.db")
	db, err := Open(context.Background(), driver, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	for _, driver := range []Driver{DriverCGO, DriverPure} {
		t.Run(string(driver), func(t *testing.T) {
			db := testDB(t, driver)
			var count int
			if err := db.sqlDB.QueryRow(`SELECT count(*) FROM "user"`).Scan(&count); err != nil {
				t.Fatalf("user table missing: %v", err)
			}
			if err := db.sqlDB.QueryRow(`SELECT count(*) FROM "note"`).Scan(&count); err != nil {
				t.Fatalf("note table missing: %v", err)
			}
		})
	}
}

func TestOpenIsIdempotentOnExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	ctx := context.Background()

	db, err := Open(ctx, DriverCGO, path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := db.InsertUser(ctx, "a@b.com"); err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	db.Close()

	db, err = Open(ctx, DriverCGO, path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db.Close()
	if _, err := db.GetUserByEmail(ctx, "a@b.com"); err != nil {
		t.Errorf("user lost across reopen: %v", err)
	}
	if _, err := os.Stat(db.Path()); err != nil {
		t.Errorf("db file missing: %v", err)
	}
}

func TestUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Driver("postgres"), "x.db"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestUserRoundTrip(t *testing.T) {
	db := testDB(t, DriverCGO)
	ctx := context.Background()

	u, err := db.InsertUser(ctx, "x@y.com")
	if err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	if u.ID == 0 {
		t.Fatal("expected generated id")
	}
	got, err := db.GetUserByEmail(ctx, "x@y.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got != u {
		t.Errorf("got %+v, want %+v", got, u)
	}

	if _, err := db.InsertUser(ctx, "x@y.com"); err == nil {
		t.Error("expected unique constraint violation")
	}

	n, err := db.DeleteUserByEmail(ctx, "x@y.com")
	if err != nil || n != 1 {
		t.Fatalf("DeleteUserByEmail = %d, %v", n, err)
	}
	if _, err := db.GetUserByEmail(ctx, "x@y.com"); !errors.Is(err, ErrNoRows) {
		t.Errorf("err = %v, want ErrNoRows", err)
	}
}

func TestNoteCRUD(t *testing.T) {
	db := testDB(t, DriverPure)
	ctx := context.Background()
	u, _ := db.InsertUser(ctx, "n@n.com")

	n, err := db.InsertNote(ctx, u.ID, "", false)
	if err != nil {
		t.Fatalf("InsertNote: %v", err)
	}
	got, err := db.GetNote(ctx, n.ID)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got != n {
		t.Errorf("got %+v, want %+v", got, n)
	}

	affected, err := db.UpdateNote(ctx, n.ID, "hello", true)
	if err != nil || affected != 1 {
		t.Fatalf("UpdateNote = %d, %v", affected, err)
	}
	got, _ = db.GetNote(ctx, n.ID)
	if got.Text != "hello" || !got.IsSyncedWithCloud {
		t.Errorf("after update = %+v", got)
	}

	affected, _ = db.UpdateNote(ctx, 9999, "nope", false)
	if affected != 0 {
		t.Errorf("update of missing note affected %d rows", affected)
	}

	affected, err = db.DeleteNote(ctx, n.ID)
	if err != nil || affected != 1 {
		t.Fatalf("DeleteNote = %d, %v", affected, err)
	}
	if _, err := db.GetNote(ctx, n.ID); !errors.Is(err, ErrNoRows) {
		t.Errorf("err = %v, want ErrNoRows", err)
	}
}

func TestDeleteUserLeavesOrphanNotes(t *testing.T) {
	db := testDB(t, DriverCGO)
	ctx := context.Background()
	u, _ := db.InsertUser(ctx, "o@o.com")
	_, _ = db.InsertNote(ctx, u.ID, "orphan", false)

	if _, err := db.DeleteUserByEmail(ctx, "o@o.com"); err != nil {
		t.Fatalf("DeleteUserByEmail: %v", err)
	}
	notes, err := db.ListNotes(ctx)
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 1 {
		t.Errorf("notes = %d, want the orphan to remain", len(notes))
	}
}

func TestDeleteAllAndByUser(t *testing.T) {
	db := testDB(t, DriverCGO)
	ctx := context.Background()
	a, _ := db.InsertUser(ctx, "a@a.com")
	b, _ := db.InsertUser(ctx, "b@b.com")
	_, _ = db.InsertNote(ctx, a.ID, "a1", false)
	_, _ = db.InsertNote(ctx, a.ID, "a2", false)
	_, _ = db.InsertNote(ctx, b.ID, "b1", false)

	n, err := db.DeleteNotesByUser(ctx, a.ID)
	if err != nil || n != 2 {
		t.Fatalf("DeleteNotesByUser = %d, %v", n, err)
	}
	n, err = db.DeleteAllNotes(ctx)
	if err != nil || n != 1 {
		t.Fatalf("DeleteAllNotes = %d, %v", n, err)
	}
	notes, _ := db.ListNotes(ctx)
	if len(notes) != 0 {
		t.Errorf("notes left = %d", len(notes))
	}
}

func TestWithTxRollsBack(t *testing.T) {
	db := testDB(t, DriverCGO)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(ctx context.Context, tx Conn) error {
		if _, err := tx.InsertUser(ctx, "tx@tx.com"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := db.GetUserByEmail(ctx, "tx@tx.com"); !errors.Is(err, ErrNoRows) {
		t.Errorf("insert survived rollback: %v", err)
	}
}

func TestDataVersionChangesOnForeignWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dv.db")
	ctx := context.Background()
	a, err := Open(ctx, DriverCGO, path)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := Open(ctx, DriverCGO, path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	before, _ := a.DataVersion(ctx)
	if _, err := a.InsertUser(ctx, "self@x.com"); err != nil {
		t.Fatal(err)
	}
	self, _ := a.DataVersion(ctx)
	if self != before {
		t.Errorf("own write changed data_version: %d -> %d", before, self)
	}

	if _, err := b.InsertUser(ctx, "other@x.com"); err != nil {
		t.Fatal(err)
	}
	after, _ := a.DataVersion(ctx)
	if after == self {
		t.Errorf("foreign write did not change data_version (%d)", after)
	}
}
