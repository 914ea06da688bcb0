// Пакет model — доменные модели micro-cdn: каталог, бакеты и файлы.
//
// Поля сущностей закрыты, изменение возможно только через методы,
// которые соблюдают инварианты: уникальность идентификаторов,
// совпадение file.BucketID с владельцем и монотонность мягкого удаления.
// Поиск по идентификатору выполняется за O(1) через индексные map.
//
// Сущности не потокобезопасны. Конкурентный доступ обеспечивает
// хранилище каталога (copy-on-write снимки).
package model

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/media"
	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/uid"
)

// Ошибки доменной модели. Нарушение структурных инвариантов
// (ErrDuplicateID, ErrBucketMismatch) — ошибка программирования:
// вызывающий код обязан проверить состояние заранее.
var (
	// ErrInvalidID — идентификатор не соответствует формату
	ErrInvalidID = errors.New("некорректный идентификатор")
	// ErrDuplicateID — сущность с таким идентификатором уже существует
	ErrDuplicateID = errors.New("идентификатор уже существует")
	// ErrBucketMismatch — file.BucketID не совпадает с бакетом-владельцем
	ErrBucketMismatch = errors.New("файл принадлежит другому бакету")
	// ErrInvalidField — пустое или некорректное обязательное поле
	ErrInvalidField = errors.New("некорректное поле")
)

var bucketIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateBucketID проверяет формат идентификатора бакета.
func ValidateBucketID(id string) error {
	if !bucketIDPattern.MatchString(id) {
		return fmt.Errorf("%w: бакет %q (допустимы A-Z, a-z, 0-9, _ и -)", ErrInvalidID, id)
	}
	return nil
}

// --- File ---

// File — метаданные загруженного файла.
type File struct {
	id        string
	bucketID  string
	extension string
	mimeType  string
	deleted   bool
}

// NewFile создаёт метаданные файла с проверкой обязательных полей.
func NewFile(id, bucketID, extension, mimeType string) (*File, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: пустой id файла", ErrInvalidField)
	}
	if err := ValidateBucketID(bucketID); err != nil {
		return nil, err
	}
	if extension == "" {
		return nil, fmt.Errorf("%w: пустое расширение файла %s", ErrInvalidField, id)
	}
	if mimeType == "" {
		return nil, fmt.Errorf("%w: пустой MIME-тип файла %s", ErrInvalidField, id)
	}
	return &File{
		id:        id,
		bucketID:  bucketID,
		extension: extension,
		mimeType:  mimeType,
	}, nil
}

func (f *File) ID() string        { return f.id }
func (f *File) BucketID() string  { return f.bucketID }
func (f *File) Extension() string { return f.extension }
func (f *File) MIMEType() string  { return f.mimeType }
func (f *File) IsDeleted() bool   { return f.deleted }

// MarkDeleted помечает файл удалённым. Флаг не снимается никогда.
func (f *File) MarkDeleted() { f.deleted = true }

// MediaType — классификация по расширению, не сохраняется в документе.
func (f *File) MediaType() media.Type {
	return media.Classify(f.extension)
}

func (f *File) clone() *File {
	c := *f
	return &c
}

// --- Bucket ---

// Bucket — именованный контейнер файлов.
type Bucket struct {
	id      string
	deleted bool
	files   []*File
	byID    map[string]*File
}

// NewBucket создаёт пустой бакет. Идентификатор проверяется по формату.
func NewBucket(id string) (*Bucket, error) {
	if err := ValidateBucketID(id); err != nil {
		return nil, err
	}
	return &Bucket{
		id:   id,
		byID: make(map[string]*File),
	}, nil
}

func (b *Bucket) ID() string      { return b.id }
func (b *Bucket) IsDeleted() bool { return b.deleted }

// MarkDeleted помечает бакет удалённым. Файлы бакета не изменяются:
// для чтения они недоступны через удалённого владельца.
func (b *Bucket) MarkDeleted() { b.deleted = true }

// Files возвращает файлы бакета в порядке добавления.
// Срез — копия, сами файлы общие.
func (b *Bucket) Files() []*File {
	out := make([]*File, len(b.files))
	copy(out, b.files)
	return out
}

// File возвращает файл по id или nil.
func (b *Bucket) File(id string) *File {
	return b.byID[id]
}

// HasFile сообщает, есть ли файл с таким id (включая удалённые).
func (b *Bucket) HasFile(id string) bool {
	_, ok := b.byID[id]
	return ok
}

// ActiveFile возвращает файл, если ни он, ни бакет не удалены.
func (b *Bucket) ActiveFile(id string) *File {
	if b.deleted {
		return nil
	}
	f := b.byID[id]
	if f == nil || f.deleted {
		return nil
	}
	return f
}

// AddFile добавляет файл в бакет. Состояние не меняется при ошибке.
func (b *Bucket) AddFile(f *File) error {
	if f.bucketID != b.id {
		return fmt.Errorf("%w: файл %s ссылается на %q, бакет %q",
			ErrBucketMismatch, f.id, f.bucketID, b.id)
	}
	if b.HasFile(f.id) {
		return fmt.Errorf("%w: файл %s в бакете %s", ErrDuplicateID, f.id, b.id)
	}
	b.files = append(b.files, f)
	b.byID[f.id] = f
	return nil
}

// NewFileID выделяет свободный идентификатор файла с расширением
// в качестве суффикса (например "<uuid>.png").
func (b *Bucket) NewFileID(extension string) string {
	suffix := ""
	if extension != "" {
		suffix = "." + extension
	}
	return uid.InMap(b.byID, "", suffix)
}

func (b *Bucket) clone() *Bucket {
	c := &Bucket{
		id:      b.id,
		deleted: b.deleted,
		files:   make([]*File, 0, len(b.files)),
		byID:    make(map[string]*File, len(b.files)),
	}
	for _, f := range b.files {
		fc := f.clone()
		c.files = append(c.files, fc)
		c.byID[fc.id] = fc
	}
	return c
}

// --- Catalog ---

// Catalog — корневой агрегат: упорядоченный набор бакетов.
type Catalog struct {
	buckets []*Bucket
	byID    map[string]*Bucket
}

// NewCatalog создаёт пустой каталог.
func NewCatalog() *Catalog {
	return &Catalog{byID: make(map[string]*Bucket)}
}

// Buckets возвращает бакеты в порядке создания.
func (c *Catalog) Buckets() []*Bucket {
	out := make([]*Bucket, len(c.buckets))
	copy(out, c.buckets)
	return out
}

// Bucket возвращает бакет по id или nil.
func (c *Catalog) Bucket(id string) *Bucket {
	return c.byID[id]
}

// HasBucket сообщает, есть ли бакет с таким id (включая удалённые).
func (c *Catalog) HasBucket(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// ActiveBucket возвращает бакет, если он существует и не удалён.
func (c *Catalog) ActiveBucket(id string) *Bucket {
	b := c.byID[id]
	if b == nil || b.deleted {
		return nil
	}
	return b
}

// AddBucket добавляет бакет. Состояние не меняется при ошибке.
func (c *Catalog) AddBucket(b *Bucket) error {
	if c.HasBucket(b.id) {
		return fmt.Errorf("%w: бакет %s", ErrDuplicateID, b.id)
	}
	c.buckets = append(c.buckets, b)
	c.byID[b.id] = b
	return nil
}

// Stats — счётчики каталога.
type Stats struct {
	Buckets        int
	DeletedBuckets int
	Files          int
	DeletedFiles   int
}

// Stats подсчитывает бакеты и файлы каталога.
func (c *Catalog) Stats() Stats {
	var s Stats
	for _, b := range c.buckets {
		s.Buckets++
		if b.deleted {
			s.DeletedBuckets++
		}
		for _, f := range b.files {
			s.Files++
			if f.deleted {
				s.DeletedFiles++
			}
		}
	}
	return s
}

// Clone возвращает глубокую копию каталога.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{
		buckets: make([]*Bucket, 0, len(c.buckets)),
		byID:    make(map[string]*Bucket, len(c.buckets)),
	}
	for _, b := range c.buckets {
		bc := b.clone()
		out.buckets = append(out.buckets, bc)
		out.byID[bc.id] = bc
	}
	return out
}
