package tenantdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrAlreadyExists — активная запись с таким id уже существует.
var ErrAlreadyExists = errors.New("файл уже существует")

// Prometheus-метрики кэша строк.
var (
	rowCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdn_row_cache_hits_total",
		Help: "Общее количество попаданий в кэш строк тенантов.",
	})
	rowCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdn_row_cache_misses_total",
		Help: "Общее количество промахов кэша строк тенантов.",
	})
)

const selectColumns = `SELECT id, is_deleted, creation_ts, last_modified_ts, deleted_ts FROM files`

// Repository — операции над таблицей files одного тенанта.
// Каждая запись атомарна на уровне строки.
type Repository struct {
	db       *sql.DB
	location string
	dir      string

	// cache — read-through кэш активных записей; nil, если отключён
	cache *expirable.LRU[string, *FileRecord]

	now func() time.Time
}

// Location возвращает location тенанта.
func (r *Repository) Location() string { return r.location }

// Dir возвращает каталог тенанта (<location>/<cdnFolder>).
func (r *Repository) Dir() string { return r.dir }

// FindActive возвращает активную (не удалённую) запись или (nil, nil).
func (r *Repository) FindActive(ctx context.Context, id string) (*FileRecord, error) {
	if r.cache != nil {
		if rec, ok := r.cache.Get(id); ok {
			rowCacheHitsTotal.Inc()
			return copyRecord(rec), nil
		}
		rowCacheMissesTotal.Inc()
	}

	rec, err := r.queryOne(ctx, selectColumns+` WHERE id = ? AND is_deleted = 'false' LIMIT 1`, id)
	if err != nil || rec == nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Add(id, copyRecord(rec))
	}
	return rec, nil
}

// Find возвращает запись независимо от флага удаления или (nil, nil).
func (r *Repository) Find(ctx context.Context, id string) (*FileRecord, error) {
	return r.queryOne(ctx, selectColumns+` WHERE id = ? LIMIT 1`, id)
}

// Insert создаёт активную запись. Удалённая запись с тем же id
// восстанавливается с новыми метками времени. Если активная запись
// уже существует, возвращается ErrAlreadyExists.
func (r *Repository) Insert(ctx context.Context, id string) (*FileRecord, error) {
	now := r.now().UnixMilli()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO files (id, is_deleted, creation_ts, last_modified_ts, deleted_ts)
		VALUES (?, 'false', ?, ?, NULL)
		ON CONFLICT(id) DO UPDATE SET
			is_deleted = 'false',
			creation_ts = excluded.creation_ts,
			last_modified_ts = excluded.last_modified_ts,
			deleted_ts = NULL
		WHERE files.is_deleted = 'true'`,
		id, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка вставки записи %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения результата вставки %s: %w", id, err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	r.invalidate(id)

	return &FileRecord{
		ID:             id,
		IsDeleted:      flagFalse,
		CreationTs:     now,
		LastModifiedTs: now,
	}, nil
}

// MarkDeleted помечает активную запись удалённой.
// Возвращает false, если активной записи не было (идемпотентно).
func (r *Repository) MarkDeleted(ctx context.Context, id string) (bool, error) {
	now := r.now().UnixMilli()

	res, err := r.db.ExecContext(ctx,
		`UPDATE files SET is_deleted = 'true', last_modified_ts = ?, deleted_ts = ?
		 WHERE id = ? AND is_deleted = 'false'`,
		now, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления записи %s: %w", id, err)
	}

	r.invalidate(id)

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка получения результата удаления %s: %w", id, err)
	}
	return affected > 0, nil
}

// List возвращает все записи тенанта, упорядоченные по id.
func (r *Repository) List(ctx context.Context) ([]*FileRecord, error) {
	return r.queryMany(ctx, selectColumns+` ORDER BY id`)
}

// ListDeleted возвращает удалённые записи, упорядоченные по id.
func (r *Repository) ListDeleted(ctx context.Context) ([]*FileRecord, error) {
	return r.queryMany(ctx, selectColumns+` WHERE is_deleted = 'true' ORDER BY id`)
}

// Ping проверяет доступность базы.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) invalidate(id string) {
	if r.cache != nil {
		r.cache.Remove(id)
	}
}

func (r *Repository) queryOne(ctx context.Context, query string, args ...any) (*FileRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения записи (%s): %w", r.location, err)
	}
	return rec, nil
}

func (r *Repository) queryMany(ctx context.Context, query string, args ...any) ([]*FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки записей (%s): %w", r.location, err)
	}
	defer rows.Close()

	var out []*FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения записи (%s): %w", r.location, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка выборки записей (%s): %w", r.location, err)
	}
	return out, nil
}

// scanner — общий интерфейс *sql.Row и *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*FileRecord, error) {
	var (
		rec       FileRecord
		deletedTs sql.NullInt64
	)
	if err := s.Scan(&rec.ID, &rec.IsDeleted, &rec.CreationTs, &rec.LastModifiedTs, &deletedTs); err != nil {
		return nil, err
	}
	if deletedTs.Valid {
		ts := deletedTs.Int64
		rec.DeletedTs = &ts
	}
	return &rec, nil
}

func copyRecord(rec *FileRecord) *FileRecord {
	c := *rec
	if rec.DeletedTs != nil {
		ts := *rec.DeletedTs
		c.DeletedTs = &ts
	}
	return &c
}
