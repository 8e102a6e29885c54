package domain

// WorkflowSpec — спецификация workflow (содержимое JSONB поля spec).
//
// Описывает jobs, их входы и выходы. Зависимости между jobs не задаются
// явно: они выводятся из входов вида {"from": "<job>", "path": "..."}.
type WorkflowSpec struct {
	// Name — имя workflow.
	Name string `json:"name" validate:"required"`

	// Jobs — jobs в порядке объявления.
	Jobs []JobSpec `json:"jobs" validate:"required,min=1,dive"`

	// Outputs — именованные выходы workflow.
	Outputs map[string]OutputRef `json:"outputs,omitempty" validate:"omitempty,dive"`
}

// JobSpec — определение одного job.
type JobSpec struct {
	// Name — уникальное имя job, сегменты через точку.
	Name string `json:"name" validate:"required"`

	// Job — единица работы.
	Job JobRef `json:"job"`

	// Params — параметры, передаются как есть.
	Params map[string]string `json:"params,omitempty"`

	// Inputs — входы job.
	Inputs []InputSpec `json:"inputs,omitempty" validate:"omitempty,dive"`

	// Outputs — выходы job относительно его каталога.
	Outputs []string `json:"outputs,omitempty" validate:"omitempty,dive,required"`
}

// InputSpec — вход job.
//
// Либо внешний файл (только Path, абсолютный), либо выход
// другого job (From + Path, Path может быть glob-шаблоном).
type InputSpec struct {
	// From — имя job-производителя.
	From string `json:"from,omitempty"`

	// Path — путь к файлу или шаблон.
	Path string `json:"path" validate:"required"`
}

// OutputRef — ссылка на выход конкретного job.
type OutputRef struct {
	From string `json:"from" validate:"required"`
	Path string `json:"path" validate:"required"`
}
