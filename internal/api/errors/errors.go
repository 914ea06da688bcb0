// Пакет errors — конверты ответов micro-cdn.
// Ошибки: {"error": {"code": "...", "message": "...", "details": [...]}}.
// Данные: {"data": ...}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib, импортируется как apierrors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок API.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeInvalidBucketID     = "INVALID_BUCKET_ID"
	CodeMissingContentType  = "MISSING_CONTENT_TYPE"
	CodeInvalidMIMEType     = "INVALID_MIME_TYPE"
	CodeBucketAlreadyExists = "BUCKET_ALREADY_EXISTS"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeNotFound            = "NOT_FOUND"
	CodeResourceNotFound    = "RESOURCE_NOT_FOUND"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInvalidRange        = "INVALID_RANGE"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeReconcileInProgress = "RECONCILE_IN_PROGRESS"
	CodeInternalError       = "INTERNAL_ERROR"
)

// Detail — уточнение ошибки: какое поле запроса и с каким значением.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
}

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []Detail `json:"details,omitempty"`
}

// dataBody — конверт успешного ответа.
type dataBody struct {
	Data any `json:"data"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details ...Detail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteData записывает успешный ответ {"data": data}.
func WriteData(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(dataBody{Data: data})
}

// WriteJSON записывает произвольный JSON без конверта (health, info, reconcile).
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string, details ...Detail) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message, details...)
}

// InvalidBucketID — 400 идентификатор бакета не соответствует [A-Za-z0-9_-]+.
func InvalidBucketID(w http.ResponseWriter, bucketID string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidBucketID,
		"Некорректный идентификатор бакета \""+bucketID+"\"",
		Detail{Code: CodeInvalidBucketID, Message: "Допустимы символы A-Z, a-z, 0-9, _ и -", Field: "bucketId", Value: bucketID},
	)
}

// MissingContentType — 400 не указан Content-Type загрузки.
func MissingContentType(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, CodeMissingContentType, "Не указан тип содержимого",
		Detail{Code: CodeMissingContentType, Message: "Заголовок Content-Type обязателен", Field: "headers:Content-Type"},
	)
}

// InvalidMIMEType — 422 MIME-тип не отображается в известное расширение.
func InvalidMIMEType(w http.ResponseWriter, mimeType string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeInvalidMIMEType, "Неизвестный MIME-тип",
		Detail{Code: CodeInvalidMIMEType, Message: "MIME-тип не соответствует ни одному расширению", Field: "headers:Content-Type", Value: mimeType},
	)
}

// BucketAlreadyExists — 422 бакет с таким идентификатором уже существует.
func BucketAlreadyExists(w http.ResponseWriter, bucketID string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeBucketAlreadyExists,
		"Бакет \""+bucketID+"\" уже существует")
}

// AlreadyExists — 422 файл по этому пути уже существует.
func AlreadyExists(w http.ResponseWriter, fileID string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeAlreadyExists, "Файл уже существует",
		Detail{Code: CodeAlreadyExists, Message: "Файл уже существует", Field: "path:fileId", Value: fileID},
	)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// InvalidRange — 416 диапазон вне файла.
func InvalidRange(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestedRangeNotSatisfiable, CodeInvalidRange, message)
}

// FileTooLarge — 413 тело запроса превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// ReconcileInProgress — 409 сверка уже выполняется.
func ReconcileInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeReconcileInProgress, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// ResourceNotFound — 404 для неизвестного маршрута.
func ResourceNotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, CodeResourceNotFound, "Запрошенный ресурс не найден")
}

// MethodNotAllowed — 405 для известного маршрута с неподдерживаемым методом.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Метод не поддерживается")
}
