package engine

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reportSpec = `{
  "name": "daily-report",
  "jobs": [
    {
      "name": "extract",
      "job": {"kind": "container", "spec": {"image": "etl:1"}},
      "params": {"date": "2024-01-01"},
      "inputs": [{"path": "/mnt/raw/orders.csv"}],
      "outputs": ["orders.csv", "customers.csv", "meta.json"]
    },
    {
      "name": "report",
      "inputs": [{"from": "extract", "path": "*.csv"}],
      "outputs": ["report.pdf"]
    },
    {
      "name": "archive",
      "inputs": [{"path": "res://report/report.pdf"}, {"path": "file:///mnt/raw/orders.csv"}]
    }
  ],
  "outputs": {"report": {"from": "report", "path": "report.pdf"}}
}`

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec([]byte(reportSpec))
	require.NoError(t, err)

	assert.Equal(t, "daily-report", spec.Name)
	require.Len(t, spec.Jobs, 3)
	assert.Equal(t, "container", spec.Jobs[0].Job.Kind)
	assert.Equal(t, "etl:1", spec.Jobs[0].Job.Spec["image"])
	assert.Equal(t, "extract", spec.Jobs[1].Inputs[0].From)
	assert.Equal(t, "report", spec.Outputs["report"].From)
}

func TestParseSpec_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"unknown field", `{"name": "x", "jobs": [{"name": "a"}], "retries": 3}`},
		{"missing name", `{"jobs": [{"name": "a"}]}`},
		{"no jobs", `{"name": "x", "jobs": []}`},
		{"job without name", `{"name": "x", "jobs": [{"outputs": ["a"]}]}`},
		{"input without path", `{"name": "x", "jobs": [{"name": "a", "inputs": [{"from": "b"}]}]}`},
		{"empty output", `{"name": "x", "jobs": [{"name": "a", "outputs": [""]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSpec([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidSpec)
		})
	}
}

func TestBuildWorkflow(t *testing.T) {
	spec, err := ParseSpec([]byte(reportSpec))
	require.NoError(t, err)

	id := uuid.New()
	wf, err := BuildWorkflow(spec, BuildOptions{ID: id, DataRoot: testRoot})
	require.NoError(t, err)

	assert.Equal(t, id, wf.ID())
	assert.Equal(t, []string{"extract", "report", "archive"}, wf.NodeNames())

	report, err := wf.Node("report")
	require.NoError(t, err)
	assert.Equal(t, []string{"res://extract/orders.csv", "res://extract/customers.csv"}, report.InputURIs())

	archive, err := wf.Node("archive")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"res://report/report.pdf",
		FileURI(filepath.FromSlash("/mnt/raw/orders.csv")),
	}, archive.InputURIs())

	extract, err := wf.Node("extract")
	require.NoError(t, err)
	assert.Equal(t, "container", extract.Job().Kind)
	assert.Equal(t, "2024-01-01", extract.Parameters()["date"])

	assert.Equal(t, map[string]string{"report": "res://report/report.pdf"}, wf.OutputURIs())

	e := NewExecution(wf)
	assert.Equal(t, []string{"extract"}, names(e.ReadyNodes()))
}

func TestBuildWorkflow_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{
			name: "cycle",
			data: `{"name": "x", "jobs": [
				{"name": "a", "inputs": [{"from": "b", "path": "b"}], "outputs": ["a"]},
				{"name": "b", "inputs": [{"from": "a", "path": "a"}], "outputs": ["b"]}]}`,
			want: ErrCyclicDependency,
		},
		{
			name: "relative external input",
			data: `{"name": "x", "jobs": [{"name": "a", "inputs": [{"path": "raw/x.csv"}]}]}`,
			want: ErrInvalidPath,
		},
		{
			name: "bad job name",
			data: `{"name": "x", "jobs": [{"name": "a b"}]}`,
			want: ErrInvalidName,
		},
		{
			name: "unknown producer",
			data: `{"name": "x", "jobs": [{"name": "a", "inputs": [{"from": "z", "path": "x"}]}]}`,
			want: ErrUnknownNode,
		},
		{
			name: "bad resource uri",
			data: `{"name": "x", "jobs": [{"name": "a", "inputs": [{"path": "res://z"}]}]}`,
			want: ErrInvalidURI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseSpec([]byte(tt.data))
			require.NoError(t, err)

			_, err = BuildWorkflow(spec, BuildOptions{StrictGlobs: true})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
