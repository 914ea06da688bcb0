package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var rangePattern = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// ByteRange — диапазон байт [Start, End] включительно.
type ByteRange struct {
	Start int64
	End   int64
}

// Length возвращает число байт диапазона.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange формирует значение заголовка Content-Range.
func (r ByteRange) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// RangeSpec — синтаксически разобранный заголовок Range, ещё не
// привязанный к размеру ресурса.
type RangeSpec struct {
	// Start — начало; -1 для суффиксной формы bytes=-N
	Start int64
	// End — конец включительно; -1, если не указан
	End int64
	// Suffix — N для формы bytes=-N
	Suffix int64
}

// ParseRangeSpec разбирает заголовок Range без обращения к ресурсу.
//
// Поддерживаются формы bytes=S-E, bytes=S- и bytes=-N (последние N байт).
// Несколько диапазонов не поддерживаются. Ошибки — ErrInvalidRange.
func ParseRangeSpec(header string) (RangeSpec, error) {
	header = strings.TrimSpace(header)
	m := rangePattern.FindStringSubmatch(header)
	if m == nil {
		return RangeSpec{}, fmt.Errorf("%w: %q", ErrInvalidRange, header)
	}
	startStr, endStr := m[1], m[2]

	if startStr == "" {
		if endStr == "" {
			return RangeSpec{}, fmt.Errorf("%w: %q", ErrInvalidRange, header)
		}
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("%w: %q", ErrInvalidRange, header)
		}
		return RangeSpec{Start: -1, End: -1, Suffix: suffix}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("%w: %q", ErrInvalidRange, header)
	}

	end := int64(-1)
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("%w: %q", ErrInvalidRange, header)
		}
		if end < start {
			return RangeSpec{}, fmt.Errorf("%w: конец раньше начала %q", ErrInvalidRange, header)
		}
	}
	return RangeSpec{Start: start, End: end}, nil
}

// Resolve привязывает диапазон к ресурсу размером total.
// Отсутствующий конец равен total-1, конец за пределами файла
// ограничивается total-1. Начало за концом файла или пустой
// суффикс — ErrUnsatisfiableRange.
func (rs RangeSpec) Resolve(total int64) (ByteRange, error) {
	if rs.Start < 0 {
		if rs.Suffix == 0 || total == 0 {
			return ByteRange{}, fmt.Errorf("%w: bytes=-%d при размере %d", ErrUnsatisfiableRange, rs.Suffix, total)
		}
		start := total - rs.Suffix
		if start < 0 {
			start = 0
		}
		return ByteRange{Start: start, End: total - 1}, nil
	}

	if rs.Start >= total {
		return ByteRange{}, fmt.Errorf("%w: начало %d при размере %d", ErrUnsatisfiableRange, rs.Start, total)
	}
	end := rs.End
	if end < 0 || end > total-1 {
		end = total - 1
	}
	return ByteRange{Start: rs.Start, End: end}, nil
}

// ParseRange разбирает заголовок Range для ресурса размером total.
// Синтаксические ошибки — ErrInvalidRange, начало за концом файла
// или пустой суффикс — ErrUnsatisfiableRange.
func ParseRange(header string, total int64) (ByteRange, error) {
	rs, err := ParseRangeSpec(header)
	if err != nil {
		return ByteRange{}, err
	}
	return rs.Resolve(total)
}
