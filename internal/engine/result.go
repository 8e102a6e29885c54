package engine

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Схемы ссылок на входы.
const (
	resourcePrefix = "res://"
	filePrefix     = "file://"
)

// Result — символическая ссылка на выход job: res://<job>/<path>.
//
// До обращения к Workflow ссылка не привязана к файловой системе.
type Result struct {
	Node string
	Path string
}

// ResultOf создаёт ссылку на выход path job node.
func ResultOf(node, path string) Result {
	return Result{Node: node, Path: path}
}

// ParseResult разбирает URI вида res://<job>/<path>.
func ParseResult(uri string) (Result, error) {
	rest, ok := strings.CutPrefix(uri, resourcePrefix)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q is not a res:// uri", ErrInvalidURI, uri)
	}

	node, p, ok := strings.Cut(rest, "/")
	if !ok || node == "" || p == "" {
		return Result{}, fmt.Errorf("%w: %q must be res://<job>/<path>", ErrInvalidURI, uri)
	}

	return Result{Node: node, Path: p}, nil
}

// URI возвращает строковое представление ссылки.
func (r Result) URI() string {
	return resourcePrefix + r.Node + "/" + r.Path
}

// String реализует fmt.Stringer.
func (r Result) String() string {
	return r.URI()
}

// IsGlob возвращает true, если путь — шаблон.
func (r Result) IsGlob() bool {
	return isGlob(r.Path)
}

// IsResourceURI проверяет, что uri ссылается на выход другого job.
func IsResourceURI(uri string) bool {
	return strings.HasPrefix(uri, resourcePrefix)
}

// FileURI возвращает file:// URI для абсолютного пути.
func FileURI(p string) string {
	return filePrefix + filepath.ToSlash(p)
}

// ParseFileURI возвращает абсолютный путь из file:// URI.
func ParseFileURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, filePrefix)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a file:// uri", ErrInvalidURI, uri)
	}

	p := filepath.FromSlash(rest)
	if !filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidURI, uri)
	}
	return p, nil
}

// cleanRelative нормализует относительный путь выхода.
// Пустые, абсолютные и выходящие за пределы каталога пути отвергаются.
func cleanRelative(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	slashed := filepath.ToSlash(p)
	if filepath.IsAbs(p) || strings.HasPrefix(slashed, "/") {
		return "", fmt.Errorf("%w: %q must be relative", ErrInvalidPath, p)
	}

	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes the job directory", ErrInvalidPath, p)
	}
	return cleaned, nil
}
