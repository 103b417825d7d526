package holders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/campus-card/cardledger/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupHoldersDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:holders_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.HolderEntry{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

func TestDirectoryUpsertAndResolve(t *testing.T) {
	dir := NewDirectory(setupHoldersDB(t))
	ctx := context.Background()

	if _, ok, err := dir.ResolveHolderName(ctx, "STUDENT", "S1"); err != nil || ok {
		t.Fatalf("expected missing holder, got ok=%v err=%v", ok, err)
	}

	if _, err := dir.Upsert(ctx, "student", " S1 ", "Zhang San"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	name, ok, err := dir.ResolveHolderName(ctx, "STUDENT", "S1")
	if err != nil || !ok || name != "Zhang San" {
		t.Fatalf("unexpected resolve result %q ok=%v err=%v", name, ok, err)
	}

	if _, err := dir.Upsert(ctx, "STUDENT", "S1", "Zhang San (PhD)"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	name, _, _ = dir.ResolveHolderName(ctx, "student", "S1")
	if name != "Zhang San (PhD)" {
		t.Fatalf("expected renamed holder, got %q", name)
	}

	if err := dir.Delete(ctx, "STUDENT", "S1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := dir.ResolveHolderName(ctx, "STUDENT", "S1"); ok {
		t.Fatalf("expected holder to be gone")
	}
}

func TestDirectoryUpsertRequiresFields(t *testing.T) {
	dir := NewDirectory(setupHoldersDB(t))
	if _, err := dir.Upsert(context.Background(), "STAFF", "E1", "  "); err == nil {
		t.Fatalf("expected empty name to be rejected")
	}
}

func TestNilDirectoryResolvesNothing(t *testing.T) {
	var dir *Directory
	if _, ok, err := dir.ResolveHolderName(context.Background(), "STAFF", "E1"); ok || err != nil {
		t.Fatalf("expected nil directory to resolve nothing")
	}
}
