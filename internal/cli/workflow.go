package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/shaiso/Batchflow/internal/engine"
	"github.com/spf13/cobra"
)

// PlanEntry — разрешённый план запуска одного job.
type PlanEntry struct {
	Order        int               `json:"order"`
	Name         string            `json:"name"`
	Dependencies []string          `json:"dependencies"`
	Inputs       []string          `json:"inputs"`
	Outputs      []string          `json:"outputs"`
	Params       map[string]string `json:"params"`
	StagingDir   string            `json:"staging_dir"`
}

// NewValidateCmd создаёт команду проверки спецификации.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a workflow spec and print jobs in execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			wf, err := loadWorkflow(cmd.InOrStdin(), args[0], "", strict)
			if err != nil {
				return err
			}

			plan := buildPlan(wf)
			out.Success(fmt.Sprintf("Workflow is valid: %d jobs", len(plan)))

			headers := []string{"ORDER", "JOB", "DEPENDS ON"}
			rows := make([][]string, len(plan))
			for i, p := range plan {
				rows[i] = []string{strconv.Itoa(p.Order), p.Name, joinOrDash(p.Dependencies)}
			}
			out.Print(headers, rows, plan)
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict-globs", false, "Treat input globs without matches as errors")

	return cmd
}

// NewPlanCmd создаёт команду вывода разрешённых путей и параметров.
func NewPlanCmd(outputFn func() *Output) *cobra.Command {
	var root string
	var strict bool

	cmd := &cobra.Command{
		Use:   "plan FILE",
		Short: "Show resolved inputs, outputs and parameters per job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			wf, err := loadWorkflow(cmd.InOrStdin(), args[0], root, strict)
			if err != nil {
				return err
			}

			plan := buildPlan(wf)

			headers := []string{"ORDER", "JOB", "INPUTS", "OUTPUTS", "PARAMS"}
			rows := make([][]string, len(plan))
			for i, p := range plan {
				rows[i] = []string{
					strconv.Itoa(p.Order),
					p.Name,
					joinOrDash(p.Inputs),
					joinOrDash(p.Outputs),
					formatParams(p.Params),
				}
			}
			out.Print(headers, rows, plan)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Data root directory (default: system temp dir)")
	cmd.Flags().BoolVar(&strict, "strict-globs", false, "Treat input globs without matches as errors")

	return cmd
}

// NewSubmitCmd создаёт команду отправки workflow на выполнение.
func NewSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Submit a workflow spec for execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := readSpec(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			// Локальная проверка до обращения к API
			if _, err := engine.ParseSpec(data); err != nil {
				return err
			}

			wf, err := client.SubmitWorkflow(SubmitWorkflowRequest{
				Spec:     json.RawMessage(data),
				DataRoot: root,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow submitted: %s", wf.ID))
			printWorkflows(out, []WorkflowResponse{*wf}, wf)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Data root directory (default: server setting)")

	return cmd
}

// NewListCmd создаёт команду вывода workflows по статусу.
func NewListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflows, err := client.ListWorkflows(strings.ToUpper(status), limit)
			if err != nil {
				return err
			}

			printWorkflows(out, workflows, workflows)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "RUNNING", "Filter by status (PENDING, RUNNING, COMPLETED, ABANDONED)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of workflows")

	return cmd
}

// NewStatusCmd создаёт команду вывода статуса workflow.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID",
		Short: "Show workflow status and per-job progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.GetWorkflow(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(wf)
				return nil
			}

			printWorkflows(out, []WorkflowResponse{*wf}, wf)
			if wf.Execution != nil {
				fmt.Fprintln(out.w)
				printJobs(out, wf.Execution.Jobs)
			}
			return nil
		},
	}
}

// NewJobsCmd создаёт команду вывода jobs выполняющегося workflow.
func NewJobsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "jobs ID",
		Short: "List jobs of a running workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(args[0], strings.ToUpper(status))
			if err != nil {
				return err
			}

			printJobs(out, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by job status")

	return cmd
}

// --- helpers ---

// readSpec читает спецификацию из файла или stdin ("-").
func readSpec(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec: %w", err)
	}
	return data, nil
}

// loadWorkflow читает, разбирает и собирает workflow.
func loadWorkflow(stdin io.Reader, path, root string, strict bool) (*engine.Workflow, error) {
	data, err := readSpec(stdin, path)
	if err != nil {
		return nil, err
	}

	spec, err := engine.ParseSpec(data)
	if err != nil {
		return nil, err
	}

	return engine.BuildWorkflow(spec, engine.BuildOptions{
		DataRoot:    root,
		StrictGlobs: strict,
	})
}

// buildPlan раскладывает workflow в топологическом порядке.
func buildPlan(wf *engine.Workflow) []PlanEntry {
	plan := make([]PlanEntry, 0, wf.Len())
	for node := range wf.NodesInTopologicalOrder() {
		deps := make([]string, 0)
		for dep := range node.Dependencies() {
			deps = append(deps, dep.Name())
		}
		slices.Sort(deps)

		plan = append(plan, PlanEntry{
			Order:        len(plan) + 1,
			Name:         node.Name(),
			Dependencies: deps,
			Inputs:       node.Input(),
			Outputs:      node.Output(),
			Params:       node.Parameters(),
			StagingDir:   node.StagingDirectory(),
		})
	}
	return plan
}

func printWorkflows(out *Output, workflows []WorkflowResponse, jsonData any) {
	headers := []string{"ID", "NAME", "STATUS", "PROGRESS", "CREATED"}
	rows := make([][]string, len(workflows))
	for i, wf := range workflows {
		progress := "-"
		if wf.Execution != nil {
			progress = fmt.Sprintf("%d/%d", wf.Execution.Completed, wf.Execution.Total)
		}
		rows[i] = []string{wf.ID, wf.Name, wf.Status, progress, wf.CreatedAt}
	}
	out.Print(headers, rows, jsonData)
}

func printJobs(out *Output, jobs []JobStateResponse) {
	headers := []string{"JOB", "STATUS", "EXECUTION", "READY"}
	rows := make([][]string, len(jobs))
	for i, j := range jobs {
		exec := "-"
		if j.ExecutionID != 0 {
			exec = strconv.FormatInt(j.ExecutionID, 10)
		}
		rows[i] = []string{j.Name, j.Status, exec, strconv.FormatBool(j.Ready)}
	}
	out.Print(headers, rows, jobs)
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}

// formatParams выводит параметры как k=v по возрастанию ключей.
// Входы уже показаны отдельной колонкой и пропускаются.
func formatParams(params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for _, k := range slices.Sorted(maps.Keys(params)) {
		if k == engine.ParamInput {
			continue
		}
		pairs = append(pairs, k+"="+params[k])
	}
	return joinOrDash(pairs)
}
