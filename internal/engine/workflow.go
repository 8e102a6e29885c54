package engine

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"github.com/shaiso/Batchflow/internal/graph"
)

// Каталоги внутри каталога данных workflow.
const (
	stageDir  = "stage"
	outputDir = "output"
)

// Workflow — неизменяемый DAG jobs.
//
// Вершины графа — индексы jobs в порядке объявления.
// Имя ↔ индекс разрешается через сам Workflow, JobNode хранит
// только индекс и ссылку на Workflow.
type Workflow struct {
	id        uuid.UUID
	dataDir   string
	defs      []*JobDefinition
	index     map[string]int
	graph     *graph.Graph
	order     []int
	outputs   map[string]Result
	listeners []Listener
}

// ID возвращает идентификатор workflow.
func (w *Workflow) ID() uuid.UUID {
	return w.id
}

// Len возвращает количество jobs.
func (w *Workflow) Len() int {
	return len(w.defs)
}

// Graph возвращает граф зависимостей. Граф нельзя изменять.
func (w *Workflow) Graph() *graph.Graph {
	return w.graph
}

// Node возвращает job по имени.
func (w *Workflow) Node(name string) (JobNode, error) {
	i, ok := w.index[name]
	if !ok {
		return JobNode{}, unknownNode(name)
	}
	return JobNode{wf: w, index: i}, nil
}

// NodeAt возвращает job по индексу вершины.
func (w *Workflow) NodeAt(index int) (JobNode, error) {
	if index < 0 || index >= len(w.defs) {
		return JobNode{}, fmt.Errorf("%w: index %d", ErrUnknownNode, index)
	}
	return JobNode{wf: w, index: index}, nil
}

// NodeNames возвращает имена jobs в порядке объявления.
func (w *Workflow) NodeNames() []string {
	names := make([]string, len(w.defs))
	for i, def := range w.defs {
		names[i] = def.name
	}
	return names
}

// Nodes возвращает jobs в порядке объявления.
func (w *Workflow) Nodes() iter.Seq[JobNode] {
	return func(yield func(JobNode) bool) {
		for i := range w.defs {
			if !yield(JobNode{wf: w, index: i}) {
				return
			}
		}
	}
}

// NodesInTopologicalOrder возвращает jobs так, что зависимости идут раньше зависимых.
func (w *Workflow) NodesInTopologicalOrder() iter.Seq[JobNode] {
	return func(yield func(JobNode) bool) {
		for _, i := range w.order {
			if !yield(JobNode{wf: w, index: i}) {
				return
			}
		}
	}
}

// Listeners возвращает слушателей выполнения.
func (w *Workflow) Listeners() []Listener {
	return slices.Clone(w.listeners)
}

// DataDirectory возвращает каталог данных workflow: <root>/<id>.
func (w *Workflow) DataDirectory() string {
	return w.dataDir
}

// StagingDirectory возвращает каталог job: <root>/<id>/stage/<job>.
func (w *Workflow) StagingDirectory(name string) string {
	return filepath.Join(w.dataDir, stageDir, name)
}

// StagingOutputDirectory возвращает каталог выходов job: <root>/<id>/stage/<job>/output.
func (w *Workflow) StagingOutputDirectory(name string) string {
	return filepath.Join(w.StagingDirectory(name), outputDir)
}

// OutputDirectory возвращает каталог выходов workflow: <root>/<id>/output.
func (w *Workflow) OutputDirectory() string {
	return filepath.Join(w.dataDir, outputDir)
}

// Output возвращает абсолютные пути именованных выходов workflow.
func (w *Workflow) Output() map[string]string {
	out := make(map[string]string, len(w.outputs))
	for name, ref := range w.outputs {
		out[name] = w.resolve(ref)
	}
	return out
}

// OutputURIs возвращает именованные выходы workflow как res:// ссылки.
func (w *Workflow) OutputURIs() map[string]string {
	out := make(map[string]string, len(w.outputs))
	for name, ref := range w.outputs {
		out[name] = ref.URI()
	}
	return out
}

// resolve превращает ссылку в абсолютный путь в каталоге производителя.
func (w *Workflow) resolve(ref Result) string {
	return filepath.Join(w.StagingOutputDirectory(ref.Node), filepath.FromSlash(ref.Path))
}

// resolveInput превращает URI входа в абсолютный путь.
func (w *Workflow) resolveInput(uri string) string {
	if IsResourceURI(uri) {
		ref, err := ParseResult(uri)
		if err != nil {
			// Входы проверены при сборке
			panic(fmt.Sprintf("engine: unresolvable input %q: %v", uri, err))
		}
		return w.resolve(ref)
	}

	p, err := ParseFileURI(uri)
	if err != nil {
		panic(fmt.Sprintf("engine: unresolvable input %q: %v", uri, err))
	}
	return p
}

// Builder собирает Workflow.
//
// Определения накапливаются как есть, вся проверка графа
// (ссылки, шаблоны, циклы, выходы workflow) выполняется в Build.
type Builder struct {
	id          uuid.UUID
	root        string
	defs        []*JobDefinition
	outputs     map[string]Result
	listeners   []Listener
	strictGlobs bool
	logger      *slog.Logger
	err         error
}

// NewBuilder создаёт Builder со случайным ID и корнем данных во временном каталоге.
func NewBuilder() *Builder {
	return &Builder{
		id:      uuid.New(),
		root:    os.TempDir(),
		outputs: make(map[string]Result),
		logger:  slog.Default(),
	}
}

// ID задаёт идентификатор workflow.
func (b *Builder) ID(id uuid.UUID) *Builder {
	b.id = id
	return b
}

// DataRoot задаёт корневой каталог данных.
func (b *Builder) DataRoot(root string) *Builder {
	if !filepath.IsAbs(root) {
		b.fail(NewValidationError("", "data_root",
			fmt.Sprintf("data root %q must be absolute", root), ErrInvalidPath))
		return b
	}
	b.root = filepath.Clean(root)
	return b
}

// Job добавляет определение job.
func (b *Builder) Job(def *JobDefinition) *Builder {
	b.defs = append(b.defs, def)
	return b
}

// Output объявляет именованный выход workflow.
func (b *Builder) Output(name, node, relPath string) *Builder {
	if name == "" {
		b.fail(NewValidationError(node, "outputs", "workflow output has empty name", ErrInvalidName))
		return b
	}
	if _, exists := b.outputs[name]; exists {
		b.fail(NewValidationError(node, "outputs",
			fmt.Sprintf("duplicate workflow output: %s", name), ErrDuplicateName))
		return b
	}
	cleaned, err := cleanRelative(relPath)
	if err != nil {
		b.fail(NewValidationError(node, "outputs", err.Error(), err))
		return b
	}
	b.outputs[name] = ResultOf(node, cleaned)
	return b
}

// Listener добавляет слушателя выполнения.
func (b *Builder) Listener(l Listener) *Builder {
	b.listeners = append(b.listeners, l)
	return b
}

// StrictGlobs включает ошибку ErrEmptyGlob для шаблонов без совпадений.
// По умолчанию такие шаблоны дают ноль входов и предупреждение в лог.
func (b *Builder) StrictGlobs(strict bool) *Builder {
	b.strictGlobs = strict
	return b
}

// Logger задаёт логгер для предупреждений сборки.
func (b *Builder) Logger(logger *slog.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Build проверяет граф целиком и возвращает неизменяемый Workflow.
func (b *Builder) Build() (*Workflow, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.defs) == 0 {
		return nil, ErrEmptyWorkflow
	}

	wf := &Workflow{
		id:        b.id,
		dataDir:   filepath.Join(b.root, b.id.String()),
		defs:      make([]*JobDefinition, len(b.defs)),
		index:     make(map[string]int, len(b.defs)),
		graph:     graph.New(len(b.defs)),
		outputs:   maps.Clone(b.outputs),
		listeners: slices.Clone(b.listeners),
	}

	// Первый проход: имена → индексы
	for i, def := range b.defs {
		if def == nil {
			return nil, NewValidationError("", "jobs", fmt.Sprintf("job #%d is nil", i), ErrInvalidName)
		}
		if _, exists := wf.index[def.name]; exists {
			return nil, NewValidationError(def.name, "name",
				fmt.Sprintf("duplicate job name: %s", def.name), ErrDuplicateName)
		}
		wf.index[def.name] = i
	}

	// Второй проход: раскрываем шаблоны и связываем зависимости
	for i, def := range b.defs {
		inputs, err := b.linkInputs(wf, i, def)
		if err != nil {
			return nil, err
		}
		wf.defs[i] = def.withInputs(inputs)
	}

	// Проверяем на циклы и строим топологический порядок
	order, err := graph.TopologicalSort(wf.graph)
	if err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			name := b.defs[cycleErr.Vertex].name
			return nil, NewValidationError(name, "inputs",
				fmt.Sprintf("cyclic dependency through job %s", name), err)
		}
		return nil, err
	}
	wf.order = order

	// Выходы workflow должны ссылаться на объявленные выходы
	for name, ref := range wf.outputs {
		if err := validateRef(wf, ref, "outputs"); err != nil {
			var vErr *ValidationError
			if errors.As(err, &vErr) {
				vErr.Message = fmt.Sprintf("workflow output %s: %s", name, vErr.Message)
			}
			return nil, err
		}
	}

	return wf, nil
}

// linkInputs проверяет входы job i, раскрывает шаблоны и добавляет рёбра.
func (b *Builder) linkInputs(wf *Workflow, i int, def *JobDefinition) ([]string, error) {
	inputs := make([]string, 0, len(def.inputs))

	for _, uri := range def.inputs {
		if !IsResourceURI(uri) {
			inputs = append(inputs, uri)
			continue
		}

		ref, err := ParseResult(uri)
		if err != nil {
			return nil, NewValidationError(def.name, "inputs", err.Error(), err)
		}

		dep, ok := wf.index[ref.Node]
		if !ok {
			return nil, NewValidationError(def.name, "inputs",
				fmt.Sprintf("depends on unknown job: %s", ref.Node), ErrUnknownNode)
		}
		producer := b.defs[dep]

		// Объявленный выход с метасимволами в имени — литерал, не шаблон
		if !ref.IsGlob() || producer.declares(ref.Path) {
			if !producer.declares(ref.Path) {
				return nil, NewValidationError(def.name, "inputs",
					fmt.Sprintf("job %s does not declare output %s", ref.Node, ref.Path), ErrUndeclaredOutput)
			}
			inputs = append(inputs, uri)
			wf.graph.AddDependency(i, dep)
			continue
		}

		matches, err := expandGlob(ref.Path, producer.outputs)
		if err != nil {
			return nil, NewValidationError(def.name, "inputs", err.Error(), err)
		}
		if len(matches) == 0 {
			if b.strictGlobs {
				return nil, NewValidationError(def.name, "inputs",
					fmt.Sprintf("pattern %s matches no outputs of job %s", ref.Path, ref.Node), ErrEmptyGlob)
			}
			b.logger.Warn("input pattern matches no outputs",
				"job", def.name,
				"dependency", ref.Node,
				"pattern", ref.Path,
			)
		}
		for _, m := range matches {
			inputs = append(inputs, ResultOf(ref.Node, m).URI())
		}
		// Ребро добавляется даже без совпадений: зависимость объявлена явно
		wf.graph.AddDependency(i, dep)
	}

	return inputs, nil
}

// validateRef проверяет, что ссылка указывает на объявленный выход существующего job.
func validateRef(wf *Workflow, ref Result, field string) error {
	dep, ok := wf.index[ref.Node]
	if !ok {
		return NewValidationError(ref.Node, field,
			fmt.Sprintf("unknown job: %s", ref.Node), ErrUnknownNode)
	}
	if !wf.defs[dep].declares(ref.Path) {
		return NewValidationError(ref.Node, field,
			fmt.Sprintf("job %s does not declare output %s", ref.Node, ref.Path), ErrUndeclaredOutput)
	}
	return nil
}

// fail запоминает первую ошибку.
func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
