// Пакет service — бизнес-логика micro-cdn: операции с бакетами,
// приём и отдача содержимого, файлы тенантов, очистка и сверка.
//
// Ошибки сервисов — sentinel-значения, обёрнутые через %w.
// HTTP-слой сопоставляет их с кодами ответов через errors.Is.
package service

import "errors"

var (
	// ErrNotFound — бакет/файл отсутствует или помечен удалённым.
	// Клиент не различает "не существовал" и "удалён".
	ErrNotFound = errors.New("не найдено")
	// ErrAlreadyExists — идентификатор уже занят
	ErrAlreadyExists = errors.New("уже существует")
	// ErrMissingMIME — не указан MIME-тип содержимого
	ErrMissingMIME = errors.New("не указан MIME-тип")
	// ErrInvalidMIME — MIME-тип не соответствует известному расширению
	ErrInvalidMIME = errors.New("неизвестный MIME-тип")
	// ErrInvalidRange — синтаксически некорректный Range
	ErrInvalidRange = errors.New("некорректный Range")
	// ErrUnsatisfiableRange — диапазон вне размера файла
	ErrUnsatisfiableRange = errors.New("диапазон не может быть удовлетворён")
	// ErrInvalidPayload — некорректное тело запроса (data URI, base64)
	ErrInvalidPayload = errors.New("некорректное содержимое")
	// ErrInvalidPath — некорректный путь файла тенанта
	ErrInvalidPath = errors.New("некорректный путь файла")
	// ErrReconcileInProgress — сверка уже выполняется
	ErrReconcileInProgress = errors.New("сверка уже выполняется")
)
