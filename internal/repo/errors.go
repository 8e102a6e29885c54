package repo

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки хранилища workflows и записей о выполнении jobs.
// API отображает их в 404, 409 и 422.
var (
	// ErrNotFound — нет workflow с таким ID или записи выполнения.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists — workflow с таким ID уже сохранён.
	ErrAlreadyExists = errors.New("workflow already exists")

	// ErrInvalidState — статус workflow уже сменил другой процесс.
	ErrInvalidState = errors.New("workflow status changed concurrently")
)

// scanErr переводит отсутствие строки в ErrNotFound.
func scanErr(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("scan %s: %w", what, err)
}

// requireRows возвращает miss, если команда не затронула ни одной строки.
func requireRows(tag pgconn.CommandTag, miss error) error {
	if tag.RowsAffected() == 0 {
		return miss
	}
	return nil
}
