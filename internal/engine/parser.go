package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shaiso/Batchflow/internal/domain"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func specValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ParseSpec разбирает JSON-спецификацию workflow и проверяет обязательные поля.
//
// Неизвестные поля считаются ошибкой. Ошибки оборачивают ErrInvalidSpec.
func ParseSpec(data []byte) (*domain.WorkflowSpec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var spec domain.WorkflowSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if err := ValidateSpec(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// ValidateSpec проверяет спецификацию по тегам validate.
func ValidateSpec(spec *domain.WorkflowSpec) error {
	if spec == nil {
		return fmt.Errorf("%w: nil spec", ErrInvalidSpec)
	}

	err := specValidator().Struct(spec)
	if err == nil {
		return nil
	}

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	msgs := make([]string, len(vErrs))
	for i, fe := range vErrs {
		msgs[i] = fmt.Sprintf("%s: failed on %q", fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("%w: %s", ErrInvalidSpec, strings.Join(msgs, "; "))
}

// BuildOptions — параметры сборки workflow из спецификации.
type BuildOptions struct {
	// ID — идентификатор workflow. uuid.Nil → случайный.
	ID uuid.UUID

	// DataRoot — корень каталогов данных. Пусто → os.TempDir().
	DataRoot string

	// StrictGlobs — шаблоны без совпадений считаются ошибкой.
	StrictGlobs bool

	Logger    *slog.Logger
	Listeners []Listener
}

// BuildWorkflow собирает Workflow из спецификации.
func BuildWorkflow(spec *domain.WorkflowSpec, opts BuildOptions) (*Workflow, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}

	b := NewBuilder().
		StrictGlobs(opts.StrictGlobs).
		Logger(opts.Logger)
	if opts.ID != uuid.Nil {
		b.ID(opts.ID)
	}
	if opts.DataRoot != "" {
		b.DataRoot(opts.DataRoot)
	}
	for _, l := range opts.Listeners {
		b.Listener(l)
	}

	for _, js := range spec.Jobs {
		def, err := buildDefinition(js)
		if err != nil {
			return nil, err
		}
		b.Job(def)
	}

	for name, ref := range spec.Outputs {
		b.Output(name, ref.From, ref.Path)
	}

	return b.Build()
}

// buildDefinition превращает JobSpec в JobDefinition.
func buildDefinition(js domain.JobSpec) (*JobDefinition, error) {
	db := NewJobDefinition(js.Name).
		Job(js.Job).
		Params(js.Params)

	for _, in := range js.Inputs {
		switch {
		case in.From != "":
			db.InputFrom(in.From, in.Path)
		case IsResourceURI(in.Path):
			ref, err := ParseResult(in.Path)
			if err != nil {
				return nil, NewValidationError(js.Name, "inputs", err.Error(), err)
			}
			db.InputFrom(ref.Node, ref.Path)
		case strings.HasPrefix(in.Path, filePrefix):
			p, err := ParseFileURI(in.Path)
			if err != nil {
				return nil, NewValidationError(js.Name, "inputs", err.Error(), err)
			}
			db.Input(p)
		default:
			db.Input(filepath.FromSlash(in.Path))
		}
	}

	for _, out := range js.Outputs {
		db.Output(out)
	}

	return db.Build()
}
