package engine

import (
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaiso/Batchflow/internal/domain"
)

// Зарезервированные параметры, которые движок добавляет каждому job.
// Значения, переданные в определении, перезаписываются.
const (
	// ParamInput — абсолютные пути входов через os.PathListSeparator.
	ParamInput = "input"

	// ParamWorkflowID — идентификатор workflow.
	ParamWorkflowID = "workflow.id"
)

// JobNode — job внутри конкретного Workflow.
//
// Лёгкое представление: индекс вершины и ссылка на Workflow.
// Два JobNode равны, если совпадают ID workflow и индекс (см. Equal).
type JobNode struct {
	wf    *Workflow
	index int
}

// Index возвращает индекс вершины.
func (n JobNode) Index() int {
	return n.index
}

// Workflow возвращает workflow узла.
func (n JobNode) Workflow() *Workflow {
	return n.wf
}

// Definition возвращает определение job (с раскрытыми шаблонами входов).
func (n JobNode) Definition() *JobDefinition {
	return n.wf.defs[n.index]
}

// Name возвращает имя job.
func (n JobNode) Name() string {
	return n.Definition().name
}

// Job возвращает единицу работы.
func (n JobNode) Job() domain.JobRef {
	return n.Definition().job
}

// Equal сравнивает узлы по ID workflow и индексу.
func (n JobNode) Equal(other JobNode) bool {
	if n.wf == nil || other.wf == nil {
		return n.wf == other.wf && n.index == other.index
	}
	return n.wf.id == other.wf.id && n.index == other.index
}

// String реализует fmt.Stringer.
func (n JobNode) String() string {
	return n.Name()
}

// InputURIs возвращает входы в виде URI.
func (n JobNode) InputURIs() []string {
	return n.Definition().Inputs()
}

// Input возвращает абсолютные пути входов.
// Внешние файлы передаются как есть, res:// ссылки указывают
// в каталог выходов job-производителя.
func (n JobNode) Input() []string {
	def := n.Definition()
	paths := make([]string, len(def.inputs))
	for i, uri := range def.inputs {
		paths[i] = n.wf.resolveInput(uri)
	}
	return paths
}

// Output возвращает абсолютные пути объявленных выходов.
func (n JobNode) Output() []string {
	def := n.Definition()
	dir := n.StagingOutputDirectory()
	paths := make([]string, len(def.outputs))
	for i, p := range def.outputs {
		paths[i] = filepath.Join(dir, filepath.FromSlash(p))
	}
	return paths
}

// StagingDirectory возвращает каталог job.
func (n JobNode) StagingDirectory() string {
	return n.wf.StagingDirectory(n.Name())
}

// StagingOutputDirectory возвращает каталог выходов job.
func (n JobNode) StagingOutputDirectory() string {
	return n.wf.StagingOutputDirectory(n.Name())
}

// Parameters возвращает параметры запуска: параметры определения
// плюс зарезервированные ParamInput и ParamWorkflowID.
func (n JobNode) Parameters() map[string]string {
	params := n.Definition().Params()
	if params == nil {
		params = make(map[string]string, 2)
	}
	params[ParamInput] = strings.Join(n.Input(), string(os.PathListSeparator))
	params[ParamWorkflowID] = n.wf.id.String()
	return params
}

// Dependencies возвращает jobs, от которых зависит узел.
func (n JobNode) Dependencies() iter.Seq[JobNode] {
	return n.neighbours(n.wf.graph.Dependencies(n.index))
}

// Dependents возвращает jobs, которые зависят от узла.
func (n JobNode) Dependents() iter.Seq[JobNode] {
	return n.neighbours(n.wf.graph.Dependents(n.index))
}

func (n JobNode) neighbours(seq iter.Seq[int]) iter.Seq[JobNode] {
	return func(yield func(JobNode) bool) {
		for i := range seq {
			if !yield(JobNode{wf: n.wf, index: i}) {
				return
			}
		}
	}
}
