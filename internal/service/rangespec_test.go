package service

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name   string
		header string
		total  int64
		want   ByteRange
	}{
		{"открытый конец", "bytes=100-", 1000, ByteRange{100, 999}},
		{"закрытый", "bytes=100-199", 1000, ByteRange{100, 199}},
		{"один байт", "bytes=0-0", 1000, ByteRange{0, 0}},
		{"весь файл", "bytes=0-", 1000, ByteRange{0, 999}},
		{"конец за файлом", "bytes=900-5000", 1000, ByteRange{900, 999}},
		{"суффикс", "bytes=-100", 1000, ByteRange{900, 999}},
		{"суффикс больше файла", "bytes=-5000", 1000, ByteRange{0, 999}},
		{"пробелы", "  bytes=1-2 ", 10, ByteRange{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.total)
			if err != nil {
				t.Fatalf("ParseRange(%q): %v", tt.header, err)
			}
			if got != tt.want {
				t.Errorf("ParseRange(%q) = %+v, хотели %+v", tt.header, got, tt.want)
			}
		})
	}
}

// TestParseRange_LengthProperties — bytes=S- даёт длину T-S и конец T-1,
// bytes=S-E даёт длину E-S+1.
func TestParseRange_LengthProperties(t *testing.T) {
	for _, total := range []int64{1, 2, 10, 1000, 1 << 20} {
		for _, start := range []int64{0, total / 3, total / 2, total - 1} {
			r, err := ParseRange("bytes="+itoa(start)+"-", total)
			if err != nil {
				t.Fatalf("T=%d S=%d: %v", total, start, err)
			}
			if r.End != total-1 || r.Length() != total-start {
				t.Errorf("T=%d S=%d: %+v длина %d", total, start, r, r.Length())
			}
			if r.ContentRange(total) != "bytes "+itoa(start)+"-"+itoa(total-1)+"/"+itoa(total) {
				t.Errorf("Content-Range: %s", r.ContentRange(total))
			}

			end := start + (total-1-start)/2
			r, err = ParseRange("bytes="+itoa(start)+"-"+itoa(end), total)
			if err != nil {
				t.Fatalf("T=%d S=%d E=%d: %v", total, start, end, err)
			}
			if r.Length() != end-start+1 {
				t.Errorf("T=%d S=%d E=%d: длина %d", total, start, end, r.Length())
			}
		}
	}
}

func TestParseRange_Invalid(t *testing.T) {
	for _, header := range []string{
		"bytes=",
		"bytes=-",
		"bytes=a-b",
		"items=0-1",
		"bytes=5-3",
		"bytes=0-1,4-5",
		"0-1",
		"bytes=99999999999999999999-",
	} {
		if _, err := ParseRange(header, 1000); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("ParseRange(%q): ожидалась ErrInvalidRange, получено %v", header, err)
		}
	}
}

func TestParseRange_Unsatisfiable(t *testing.T) {
	tests := []struct {
		header string
		total  int64
	}{
		{"bytes=1000-", 1000},
		{"bytes=1000-1001", 1000},
		{"bytes=-0", 1000},
		{"bytes=0-", 0},
		{"bytes=-10", 0},
	}
	for _, tt := range tests {
		if _, err := ParseRange(tt.header, tt.total); !errors.Is(err, ErrUnsatisfiableRange) {
			t.Errorf("ParseRange(%q, %d): ожидалась ErrUnsatisfiableRange, получено %v", tt.header, tt.total, err)
		}
	}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestParseRangeSpec_Resolve(t *testing.T) {
	tests := []struct {
		header string
		total  int64
		want   ByteRange
	}{
		{"bytes=0-", 10, ByteRange{0, 9}},
		{"bytes=2-5", 10, ByteRange{2, 5}},
		{"bytes=2-50", 10, ByteRange{2, 9}},
		{"bytes=-3", 10, ByteRange{7, 9}},
		{"bytes=-30", 10, ByteRange{0, 9}},
	}
	for _, tt := range tests {
		spec, err := ParseRangeSpec(tt.header)
		if err != nil {
			t.Fatalf("ParseRangeSpec(%q): %v", tt.header, err)
		}
		got, err := spec.Resolve(tt.total)
		if err != nil {
			t.Fatalf("Resolve(%q, %d): %v", tt.header, tt.total, err)
		}
		if got != tt.want {
			t.Errorf("Resolve(%q, %d) = %+v, ожидалось %+v", tt.header, tt.total, got, tt.want)
		}
	}

	if _, err := ParseRangeSpec("bytes=7-2"); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("ожидалась ErrInvalidRange, получено %v", err)
	}
}
