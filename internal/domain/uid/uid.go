// Пакет uid — выделение уникальных идентификаторов в пределах namespace.
//
// Идентификатор — UUID v4 с произвольными префиксом и суффиксом
// (суффикс используется для расширения файла, например ".png").
// Кандидат генерируется заново, пока он присутствует в namespace.
// Число попыток не ограничено: вероятность коллизии UUID v4 пренебрежимо мала.
//
// Уникальность гарантируется только относительно состояния namespace
// на момент вызова. Конкурентные аллокаторы на одном namespace
// не координируются (single-writer).
package uid

import (
	"github.com/google/uuid"
)

// ExistsFunc сообщает, занят ли идентификатор в namespace.
type ExistsFunc func(id string) bool

// generator — источник случайной части идентификатора.
// Подменяется в тестах для проверки повторных попыток.
var generator = func() string {
	return uuid.NewString()
}

// New возвращает идентификатор prefix + UUID + suffix, для которого exists == false.
// exists == nil означает пустой namespace.
func New(exists ExistsFunc, prefix, suffix string) string {
	for {
		candidate := prefix + generator() + suffix
		if exists == nil || !exists(candidate) {
			return candidate
		}
	}
}

// InMap выделяет идентификатор, отсутствующий среди ключей m.
// Подходит как для индексов (map[string]*T), так и для множеств (map[string]struct{}).
func InMap[V any](m map[string]V, prefix, suffix string) string {
	return New(func(id string) bool {
		_, ok := m[id]
		return ok
	}, prefix, suffix)
}
