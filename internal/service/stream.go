package service

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/bigkaa/goartstore/micro-cdn/internal/domain/media"
	"github.com/bigkaa/goartstore/micro-cdn/internal/storage/filestore"
)

// Content — готовый к отдаче ответ: статус, заголовки и поток байт.
// Вызывающий код обязан закрыть Body.
type Content struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
	// Length — число байт в Body
	Length int64
	// Total — полный размер файла на диске
	Total int64
}

// UnsatisfiableRangeError — диапазон вне файла; несёт размер
// для заголовка Content-Range: bytes */<total>.
type UnsatisfiableRangeError struct {
	Total int64
	Err   error
}

func (e *UnsatisfiableRangeError) Error() string { return e.Err.Error() }
func (e *UnsatisfiableRangeError) Unwrap() error { return e.Err }

// sectionBody — окно файла с закрытием исходного файла.
type sectionBody struct {
	io.Reader
	io.Closer
}

// openContent открывает файл по ключу и формирует ответ.
//
// Range учитывается только для Video: полный ответ 200 для прочих
// классификаций и для видео без Range. Отсутствие файла на диске
// при наличии метаданных — ErrNotFound.
func openContent(files *filestore.FileStore, key, mimeType string, kind media.Type, rangeHeader string) (*Content, error) {
	// Синтаксис Range проверяется до обращения к диску
	var spec *RangeSpec
	if kind == media.Video && rangeHeader != "" {
		rs, err := ParseRangeSpec(rangeHeader)
		if err != nil {
			return nil, err
		}
		spec = &rs
	}

	f, total, err := files.Open(key)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return nil, fmt.Errorf("%w: содержимое %s отсутствует на диске", ErrNotFound, key)
		}
		return nil, err
	}

	header := make(http.Header)
	header.Set("Content-Type", mimeType)

	if kind != media.Video {
		header.Set("Content-Length", strconv.FormatInt(total, 10))
		return &Content{
			Status: http.StatusOK,
			Header: header,
			Body:   f,
			Length: total,
			Total:  total,
		}, nil
	}

	header.Set("Accept-Ranges", "bytes")

	if spec == nil {
		header.Set("Content-Length", strconv.FormatInt(total, 10))
		return &Content{
			Status: http.StatusOK,
			Header: header,
			Body:   f,
			Length: total,
			Total:  total,
		}, nil
	}

	r, err := spec.Resolve(total)
	if err != nil {
		f.Close()
		if errors.Is(err, ErrUnsatisfiableRange) {
			return nil, &UnsatisfiableRangeError{Total: total, Err: err}
		}
		return nil, err
	}

	header.Set("Content-Range", r.ContentRange(total))
	header.Set("Content-Length", strconv.FormatInt(r.Length(), 10))
	return &Content{
		Status: http.StatusPartialContent,
		Header: header,
		Body:   sectionBody{Reader: io.NewSectionReader(f, r.Start, r.Length()), Closer: f},
		Length: r.Length(),
		Total:  total,
	}, nil
}
