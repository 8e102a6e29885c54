package engine

import (
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/shaiso/Batchflow/internal/domain"
)

// nameSegment — допустимый сегмент имени job.
var nameSegment = regexp.MustCompile(`(?i)^[a-z0-9][-_a-z0-9]*$`)

// ValidateName проверяет имя job: сегменты через точку,
// каждый вида [a-z0-9][-_a-z0-9]* без учёта регистра.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	for _, segment := range strings.Split(name, ".") {
		if !nameSegment.MatchString(segment) {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

// JobDefinition — неизменяемое определение job.
//
// Создаётся через JobDefinitionBuilder. Входы хранятся как URI:
// file://<абсолютный путь> или res://<job>/<относительный путь>.
type JobDefinition struct {
	name    string
	job     domain.JobRef
	params  map[string]string
	inputs  []string
	outputs []string
}

// Name возвращает имя job.
func (d *JobDefinition) Name() string {
	return d.name
}

// Job возвращает ссылку на единицу работы.
func (d *JobDefinition) Job() domain.JobRef {
	return d.job
}

// Params возвращает копию параметров.
func (d *JobDefinition) Params() map[string]string {
	return maps.Clone(d.params)
}

// Inputs возвращает копию входов (URI).
func (d *JobDefinition) Inputs() []string {
	return slices.Clone(d.inputs)
}

// Outputs возвращает копию объявленных выходов.
func (d *JobDefinition) Outputs() []string {
	return slices.Clone(d.outputs)
}

// declares проверяет, объявлен ли выход p.
func (d *JobDefinition) declares(p string) bool {
	return slices.Contains(d.outputs, p)
}

// withInputs возвращает копию определения с другим списком входов.
func (d *JobDefinition) withInputs(inputs []string) *JobDefinition {
	clone := *d
	clone.inputs = inputs
	return &clone
}

// JobDefinitionBuilder накапливает определение job.
//
// Локальные проверки выполняются сразу, первая ошибка запоминается
// и возвращается из Build.
type JobDefinitionBuilder struct {
	def JobDefinition
	err error
}

// NewJobDefinition начинает определение job с именем name.
func NewJobDefinition(name string) *JobDefinitionBuilder {
	b := &JobDefinitionBuilder{
		def: JobDefinition{
			name:   name,
			params: make(map[string]string),
		},
	}
	if err := ValidateName(name); err != nil {
		b.fail("name", err)
	}
	return b
}

// Job задаёт единицу работы.
func (b *JobDefinitionBuilder) Job(ref domain.JobRef) *JobDefinitionBuilder {
	b.def.job = ref
	return b
}

// Param добавляет параметр.
func (b *JobDefinitionBuilder) Param(key, value string) *JobDefinitionBuilder {
	b.def.params[key] = value
	return b
}

// Params добавляет параметры.
func (b *JobDefinitionBuilder) Params(params map[string]string) *JobDefinitionBuilder {
	maps.Copy(b.def.params, params)
	return b
}

// Input добавляет внешний вход по абсолютному пути.
func (b *JobDefinitionBuilder) Input(p string) *JobDefinitionBuilder {
	if !filepath.IsAbs(p) {
		b.fail("inputs", fmt.Errorf("%w: input %q must be absolute", ErrInvalidPath, p))
		return b
	}
	b.def.inputs = append(b.def.inputs, FileURI(filepath.Clean(p)))
	return b
}

// InputFrom добавляет вход из выхода другого job.
// relPath может быть шаблоном (*, **, ?), он раскрывается при сборке workflow.
func (b *JobDefinitionBuilder) InputFrom(dependency, relPath string) *JobDefinitionBuilder {
	if err := ValidateName(dependency); err != nil {
		b.fail("inputs", err)
		return b
	}
	cleaned, err := cleanRelative(relPath)
	if err != nil {
		b.fail("inputs", err)
		return b
	}
	b.def.inputs = append(b.def.inputs, ResultOf(dependency, cleaned).URI())
	return b
}

// Output объявляет выход относительно каталога job.
func (b *JobDefinitionBuilder) Output(relPath string) *JobDefinitionBuilder {
	cleaned, err := cleanRelative(relPath)
	if err != nil {
		b.fail("outputs", err)
		return b
	}
	if slices.Contains(b.def.outputs, cleaned) {
		return b
	}
	b.def.outputs = append(b.def.outputs, cleaned)
	return b
}

// Build возвращает определение или первую накопленную ошибку.
func (b *JobDefinitionBuilder) Build() (*JobDefinition, error) {
	if b.err != nil {
		return nil, b.err
	}

	def := b.def
	def.params = maps.Clone(b.def.params)
	def.inputs = slices.Clone(b.def.inputs)
	def.outputs = slices.Clone(b.def.outputs)
	return &def, nil
}

// fail запоминает первую ошибку.
func (b *JobDefinitionBuilder) fail(field string, err error) {
	if b.err != nil {
		return
	}
	b.err = NewValidationError(b.def.name, field, err.Error(), err)
}
