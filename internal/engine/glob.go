package engine

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// isGlob проверяет, содержит ли путь метасимволы шаблона.
// Объявленный выход с таким именем всё равно совпадает буквально (см. linkInputs).
func isGlob(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// expandGlob раскрывает шаблон по списку объявленных выходов.
// Порядок совпадений — порядок объявления выходов.
func expandGlob(pattern string, outputs []string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: bad pattern %q", ErrInvalidPath, pattern)
	}

	matches := make([]string, 0)
	for _, out := range outputs {
		ok, err := doublestar.Match(pattern, out)
		if err != nil {
			return nil, fmt.Errorf("%w: match %q: %v", ErrInvalidPath, pattern, err)
		}
		if ok {
			matches = append(matches, out)
		}
	}
	return matches, nil
}
