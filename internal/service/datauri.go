package service

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// dataURIHeader — заголовок data URI до запятой: data:<mime>;base64
var dataURIHeader = regexp.MustCompile(`^data:([^;,]+);base64$`)

// DataURI — разобранный data URI.
type DataURI struct {
	MIMEType string
	Data     []byte
}

// ParseDataURI строго разбирает строку вида data:<mime>;base64,<data>.
// Пустой MIME-тип или пустые данные — ErrInvalidPayload.
func ParseDataURI(s string) (*DataURI, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok {
		return nil, fmt.Errorf("%w: ожидается data:<mime>;base64,<data>", ErrInvalidPayload)
	}

	m := dataURIHeader.FindStringSubmatch(header)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return nil, fmt.Errorf("%w: ожидается data:<mime>;base64,<data>", ErrInvalidPayload)
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: пустые данные", ErrInvalidPayload)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: некорректный base64: %v", ErrInvalidPayload, err)
	}

	return &DataURI{MIMEType: m[1], Data: data}, nil
}
