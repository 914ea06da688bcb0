package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/model"
)

func TestCreateBucket(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	b, err := env.buckets.CreateBucket(ctx, "media")
	if err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if b.ID() != "media" || b.IsDeleted() {
		t.Errorf("неожиданный бакет: %s deleted=%v", b.ID(), b.IsDeleted())
	}

	if info, err := os.Stat(filepath.Join(env.root, "buckets", "media")); err != nil || !info.IsDir() {
		t.Errorf("директория бакета не создана: %v", err)
	}

	c, _ := env.catalog.Get(ctx)
	if !c.HasBucket("media") {
		t.Error("бакет не сохранён в каталоге")
	}
}

// TestCreateBucket_Twice — повторное создание даёт конфликт.
func TestCreateBucket_Twice(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	if _, err := env.buckets.CreateBucket(ctx, "media"); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if _, err := env.buckets.CreateBucket(ctx, "media"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("ожидалась ErrAlreadyExists, получено %v", err)
	}

	// Удалённый бакет тоже занимает идентификатор
	if err := env.buckets.DeleteBucket(ctx, "media"); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}
	if _, err := env.buckets.CreateBucket(ctx, "media"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("ожидалась ErrAlreadyExists после удаления, получено %v", err)
	}
}

func TestCreateBucket_InvalidID(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.buckets.CreateBucket(context.Background(), "bad id")
	if !errors.Is(err, model.ErrInvalidID) {
		t.Fatalf("ожидалась ErrInvalidID, получено %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.root, "buckets", "bad id")); !os.IsNotExist(err) {
		t.Error("директория создана для некорректного id")
	}
}

// TestDeleteBucket_Idempotent — удаление отсутствующего и удалённого бакета успешно.
func TestDeleteBucket_Idempotent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	if err := env.buckets.DeleteBucket(ctx, "missing"); err != nil {
		t.Fatalf("удаление несуществующего бакета: %v", err)
	}

	if _, err := env.buckets.CreateBucket(ctx, "media"); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := env.buckets.DeleteBucket(ctx, "media"); err != nil {
			t.Fatalf("DeleteBucket #%d: %v", i+1, err)
		}
	}

	c, _ := env.catalog.Get(ctx)
	if !c.Bucket("media").IsDeleted() {
		t.Error("бакет не помечен удалённым")
	}
}

// TestDeleteBucket_HidesFiles — после удаления бакета его файлы не читаются.
func TestDeleteBucket_HidesFiles(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	if _, err := env.buckets.CreateBucket(ctx, "media"); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	f, err := env.ingest.Upload(ctx, "media", "image/png", bytes.NewReader([]byte("png")))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := env.buckets.DeleteBucket(ctx, "media"); err != nil {
		t.Fatalf("DeleteBucket: %v", err)
	}

	if _, err := env.download.Stream(ctx, "media", f.ID(), ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
	// Содержимое на диске остаётся
	if !env.files.Exists("media/" + f.ID()) {
		t.Error("содержимое удалено при мягком удалении бакета")
	}
}

func TestDeleteFile_Idempotent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	if err := env.buckets.DeleteFile(ctx, "missing", "x.png"); err != nil {
		t.Fatalf("удаление в несуществующем бакете: %v", err)
	}
	if _, err := env.buckets.CreateBucket(ctx, "media"); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	if err := env.buckets.DeleteFile(ctx, "media", "missing.png"); err != nil {
		t.Fatalf("удаление несуществующего файла: %v", err)
	}

	f, err := env.ingest.Upload(ctx, "media", "image/png", bytes.NewReader([]byte("png")))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := env.buckets.DeleteFile(ctx, "media", f.ID()); err != nil {
			t.Fatalf("DeleteFile #%d: %v", i+1, err)
		}
	}

	c, _ := env.catalog.Get(ctx)
	if !c.Bucket("media").File(f.ID()).IsDeleted() {
		t.Error("файл не помечен удалённым")
	}
}
