package model

import (
	"encoding/json"
	"fmt"
)

// Формат документа catalog.json:
//
//	{"buckets":[{"id","markedToDeletion","files":[{"id","bucketId","extension","mimeType","markedToDeletion"}]}]}
//
// Классификация медиа не сохраняется: она выводится из расширения.

type catalogDocument struct {
	Buckets []bucketDocument `json:"buckets"`
}

type bucketDocument struct {
	ID               string         `json:"id"`
	MarkedToDeletion bool           `json:"markedToDeletion"`
	Files            []fileDocument `json:"files"`
}

type fileDocument struct {
	ID               string `json:"id"`
	BucketID         string `json:"bucketId"`
	Extension        string `json:"extension"`
	MIMEType         string `json:"mimeType"`
	MarkedToDeletion bool   `json:"markedToDeletion"`
}

// MarshalJSON сериализует каталог в формат catalog.json.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	doc := catalogDocument{Buckets: make([]bucketDocument, 0, len(c.buckets))}
	for _, b := range c.buckets {
		bd := bucketDocument{
			ID:               b.id,
			MarkedToDeletion: b.deleted,
			Files:            make([]fileDocument, 0, len(b.files)),
		}
		for _, f := range b.files {
			bd.Files = append(bd.Files, fileDocument{
				ID:               f.id,
				BucketID:         f.bucketID,
				Extension:        f.extension,
				MIMEType:         f.mimeType,
				MarkedToDeletion: f.deleted,
			})
		}
		doc.Buckets = append(doc.Buckets, bd)
	}
	return json.Marshal(doc)
}

// UnmarshalJSON восстанавливает каталог с полной проверкой инвариантов:
// документ с дубликатами или несогласованными ссылками отклоняется.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	var doc catalogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	restored := NewCatalog()
	for i, bd := range doc.Buckets {
		b, err := NewBucket(bd.ID)
		if err != nil {
			return fmt.Errorf("buckets[%d]: %w", i, err)
		}
		b.deleted = bd.MarkedToDeletion

		for j, fd := range bd.Files {
			f, err := NewFile(fd.ID, fd.BucketID, fd.Extension, fd.MIMEType)
			if err != nil {
				return fmt.Errorf("buckets[%d].files[%d]: %w", i, j, err)
			}
			f.deleted = fd.MarkedToDeletion
			if err := b.AddFile(f); err != nil {
				return fmt.Errorf("buckets[%d].files[%d]: %w", i, j, err)
			}
		}

		if err := restored.AddBucket(b); err != nil {
			return fmt.Errorf("buckets[%d]: %w", i, err)
		}
	}

	*c = *restored
	return nil
}
