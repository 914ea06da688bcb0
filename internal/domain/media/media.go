// Пакет media — классификация медиа-типов и соответствие MIME ↔ расширение.
//
// Классификация (Image, Video, Unknown) выводится только из расширения
// файла по фиксированной таблице и используется исключительно для выбора
// стратегии отдачи контента: Range-запросы поддерживаются лишь для Video.
package media

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Type — классификация медиа-контента.
type Type int

const (
	// Unknown — прочие файлы, отдаются целиком.
	Unknown Type = iota
	// Image — изображения, отдаются целиком.
	Image
	// Video — видео, поддерживают Range-запросы.
	Video
)

// String возвращает имя классификации в формате JSON-документа.
func (t Type) String() string {
	switch t {
	case Image:
		return "IMAGE"
	case Video:
		return "VIDEO"
	default:
		return "UNKNOWN"
	}
}

// MarshalText реализует encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// DefaultMIME — MIME-тип для расширений, которых нет ни в одной таблице.
const DefaultMIME = "application/octet-stream"

// entry — строка таблицы известных типов.
type entry struct {
	mime      string
	extension string
}

// knownTypes — явная таблица MIME → расширение (без точки).
// Порядок важен для обратного поиска: первое вхождение расширения
// задаёт его канонический MIME-тип.
var knownTypes = []entry{
	// Изображения
	{"image/svg+xml", "svg"},
	{"image/png", "png"},
	{"image/jpeg", "jpeg"},
	{"image/jpg", "jpg"},
	{"image/pjpeg", "jpg"},
	{"image/gif", "gif"},
	{"image/webp", "webp"},
	// Видео
	{"video/mp4", "mp4"},
	{"video/mpeg", "mpeg"},
	{"video/mpg", "mpg"},
	{"video/quicktime", "mov"},
	{"video/x-ms-wmv", "wmv"},
	{"video/x-flv", "flv"},
	{"video/x-msvideo", "avi"},
	{"video/mp2t", "ts"},
	{"video/webm", "webm"},
	// Прочее
	{"text/plain", "txt"},
	{"text/html", "html"},
	{"text/css", "css"},
	{"text/csv", "csv"},
	{"application/json", "json"},
	{"application/pdf", "pdf"},
	{"application/zip", "zip"},
	{"application/octet-stream", "bin"},
	{"audio/mpeg", "mp3"},
	{"audio/ogg", "ogg"},
}

// classes — классификация по расширению (нижний регистр, без точки).
var classes = map[string]Type{
	"svg":  Image,
	"png":  Image,
	"jpg":  Image,
	"jpeg": Image,
	"gif":  Image,
	"webp": Image,

	"mp4":  Video,
	"mpeg": Video,
	"mpg":  Video,
	"mov":  Video,
	"wmv":  Video,
	"flv":  Video,
	"avi":  Video,
	"ts":   Video,
	"webm": Video,
}

var (
	extByMIME = make(map[string]string, len(knownTypes))
	mimeByExt = make(map[string]string, len(knownTypes))
)

func init() {
	for _, e := range knownTypes {
		if _, ok := extByMIME[e.mime]; !ok {
			extByMIME[e.mime] = e.extension
		}
		if _, ok := mimeByExt[e.extension]; !ok {
			mimeByExt[e.extension] = e.mime
		}
	}
}

// Classify возвращает классификацию по расширению файла.
// Расширение принимается с точкой или без, регистр не важен.
func Classify(extension string) Type {
	return classes[normalizeExtension(extension)]
}

// NormalizeMIME убирает параметры (charset и т.д.) и приводит MIME к нижнему регистру.
// Возвращает false, если значение не является корректным MIME-типом.
func NormalizeMIME(mimeType string) (string, bool) {
	if strings.TrimSpace(mimeType) == "" {
		return "", false
	}
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil || !strings.Contains(mediaType, "/") {
		return "", false
	}
	return mediaType, true
}

// ExtensionForMIME возвращает расширение (без точки) для MIME-типа.
// Сначала используется явная таблица, затем дерево типов mimetype.
// Возвращает false, если расширение неизвестно.
func ExtensionForMIME(mimeType string) (string, bool) {
	normalized, ok := NormalizeMIME(mimeType)
	if !ok {
		return "", false
	}

	if ext, ok := extByMIME[normalized]; ok {
		return ext, true
	}

	if m := mimetype.Lookup(normalized); m != nil {
		if ext := strings.TrimPrefix(m.Extension(), "."); ext != "" {
			return ext, true
		}
	}

	return "", false
}

// MIMEForExtension возвращает MIME-тип для расширения файла.
// Неизвестные расширения получают DefaultMIME.
func MIMEForExtension(extension string) string {
	ext := normalizeExtension(extension)
	if ext == "" {
		return DefaultMIME
	}
	if m, ok := mimeByExt[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension("." + ext); m != "" {
		return m
	}
	return DefaultMIME
}

// normalizeExtension убирает ведущую точку и приводит к нижнему регистру.
func normalizeExtension(extension string) string {
	return strings.ToLower(strings.TrimPrefix(extension, "."))
}
