package tenantdb

import "time"

// Значения колонки is_deleted.
const (
	flagTrue  = "true"
	flagFalse = "false"
)

// FileRecord — строка таблицы files. Формат JSON совпадает с ответом API.
type FileRecord struct {
	// ID — путь файла внутри каталога тенанта ("a/b/c.txt")
	ID string `json:"id"`
	// IsDeleted — "true" или "false"
	IsDeleted string `json:"isDeleted"`
	// CreationTs — время создания, epoch ms
	CreationTs int64 `json:"creationTs"`
	// LastModifiedTs — время последнего изменения, epoch ms
	LastModifiedTs int64 `json:"lastModifiedTs"`
	// DeletedTs — время мягкого удаления, epoch ms; nil для активных
	DeletedTs *int64 `json:"deletedTs"`
}

// Deleted сообщает, что запись помечена удалённой.
func (r *FileRecord) Deleted() bool {
	return r.IsDeleted == flagTrue
}

// DeletedAt возвращает время удаления или нулевое время.
func (r *FileRecord) DeletedAt() time.Time {
	if r.DeletedTs == nil {
		return time.Time{}
	}
	return time.UnixMilli(*r.DeletedTs)
}
