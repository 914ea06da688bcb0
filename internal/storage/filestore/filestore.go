// Пакет filestore — операции с содержимым файлов на диске.
// Обеспечивает streaming-запись с подсчётом SHA-256 на лету,
// открытие для чтения, удаление, обход и получение ёмкости диска.
//
// Файлы адресуются ключом — относительным путём через "/"
// (например "media/<uuid>.png" или "a/b/c.txt").
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
)

// PartialSuffix — суффикс незавершённой записи. Файл с этим суффиксом
// переименовывается в итоговый только после успешного fsync.
const PartialSuffix = ".part"

// BucketsDir — каталог содержимого бакетов внутри корня хранилища.
const BucketsDir = "buckets"

var (
	// ErrNotFound — файл отсутствует на диске
	ErrNotFound = errors.New("файл не найден")
	// ErrInvalidKey — ключ выходит за пределы корня или пуст
	ErrInvalidKey = errors.New("некорректный ключ файла")
)

// FileStore — управление файлами в корневой директории.
type FileStore struct {
	// dir — корневая директория хранения
	dir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого
	Checksum string
}

// DiskUsage — ёмкость файловой системы корневой директории.
type DiskUsage struct {
	Total     int64 `json:"total"`
	Used      int64 `json:"used"`
	Available int64 `json:"available"`
}

// New создаёт FileStore. Создаёт директорию, если она не существует.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir возвращает корневую директорию.
func (s *FileStore) Dir() string {
	return s.dir
}

// FullPath возвращает абсолютный путь для ключа.
func (s *FileStore) FullPath(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

// MkdirAll создаёт поддиректорию (например директорию бакета).
func (s *FileStore) MkdirAll(key string) error {
	full, err := s.FullPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", key, err)
	}
	return nil
}

// Save записывает данные из reader по ключу с подсчётом SHA-256 на лету.
// Промежуточные директории создаются автоматически.
//
// Паттерн: <name>.<random>.part → запись + SHA-256 → fsync → rename.
// У каждой записи свой частичный файл, поэтому параллельные записи
// по одному ключу не перемешивают данные: итоговым становится файл
// последнего rename.
// При ошибке записи частичный файл остаётся на диске и позже
// убирается очисткой; итоговый ключ не появляется.
func (s *FileStore) Save(key string, reader io.Reader) (*SaveResult, error) {
	fullPath, err := s.FullPath(key)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для %s: %w", key, err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(fullPath)+".*"+PartialSuffix)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	partPath := f.Name()

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка записи данных %s: %w", key, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка fsync %s: %w", key, err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("ошибка закрытия файла %s: %w", key, err)
	}

	if err := os.Rename(partPath, fullPath); err != nil {
		return nil, fmt.Errorf("ошибка атомарного переименования %s: %w", key, err)
	}

	return &SaveResult{
		FullPath: fullPath,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает файл для чтения и возвращает его размер.
// Отсутствие файла (или директория на его месте) — ErrNotFound.
// Вызывающий код обязан закрыть файл.
func (s *FileStore) Open(key string) (*os.File, int64, error) {
	fullPath, err := s.FullPath(key)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, 0, fmt.Errorf("ошибка открытия файла %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("ошибка получения информации о файле %s: %w", key, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return f, info.Size(), nil
}

// Exists проверяет наличие обычного файла по ключу.
func (s *FileStore) Exists(key string) bool {
	fullPath, err := s.FullPath(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

// Stat возвращает сведения об обычном файле по ключу.
// Отсутствие файла (или директория на его месте) — ErrNotFound.
func (s *FileStore) Stat(key string) (fs.FileInfo, error) {
	fullPath, err := s.FullPath(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("ошибка получения информации о файле %s: %w", key, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return info, nil
}

// Remove удаляет файл. Возвращает nil, если файл уже не существует.
func (s *FileStore) Remove(key string) error {
	fullPath, err := s.FullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", key, err)
	}
	return nil
}

// RemoveAll удаляет поддиректорию со всем содержимым.
func (s *FileStore) RemoveAll(key string) error {
	fullPath, err := s.FullPath(key)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("ошибка удаления директории %s: %w", key, err)
	}
	return nil
}

// Entry — файл, найденный при обходе.
type Entry struct {
	// Key — ключ файла относительно корня ("/"-разделители)
	Key  string
	Info fs.FileInfo
}

// Partial сообщает, что запись не была завершена.
func (e Entry) Partial() bool {
	return strings.HasSuffix(e.Key, PartialSuffix)
}

// Walk обходит все обычные файлы под корнем (включая частичные).
// Отсутствие корня не считается ошибкой.
func (s *FileStore) Walk(fn func(Entry) error) error {
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		return fn(Entry{Key: filepath.ToSlash(rel), Info: info})
	})
	if err != nil {
		return fmt.Errorf("ошибка обхода %s: %w", s.dir, err)
	}
	return nil
}

// DiskUsage возвращает ёмкость файловой системы корня.
// Платформозависимый код для Unix-подобных систем.
func (s *FileStore) DiskUsage() (DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(s.dir, &stat); err != nil {
		return DiskUsage{}, fmt.Errorf("ошибка statfs %s: %w", s.dir, err)
	}

	total := int64(stat.Blocks) * int64(stat.Bsize)
	available := int64(stat.Bavail) * int64(stat.Bsize)
	return DiskUsage{
		Total:     total,
		Used:      total - available,
		Available: available,
	}, nil
}

// cleanKey нормализует ключ и запрещает выход за пределы корня.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.ContainsRune(key, '\\') {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
