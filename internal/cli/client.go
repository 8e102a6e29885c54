package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// JobStateResponse — состояние job в снимке выполнения.
type JobStateResponse struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	ExecutionID int64  `json:"execution_id,omitempty"`
	Ready       bool   `json:"ready"`
}

// ExecutionResponse — снимок выполнения workflow.
type ExecutionResponse struct {
	WorkflowID string             `json:"workflow_id"`
	Total      int                `json:"total"`
	Completed  int                `json:"completed"`
	Abandoned  bool               `json:"abandoned"`
	Running    bool               `json:"running"`
	Failed     bool               `json:"failed"`
	TakenAt    string             `json:"taken_at"`
	Jobs       []JobStateResponse `json:"jobs"`
}

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	DataRoot   string             `json:"data_root"`
	Jobs       int                `json:"jobs"`
	CreatedAt  string             `json:"created_at"`
	FinishedAt string             `json:"finished_at,omitempty"`
	Execution  *ExecutionResponse `json:"execution,omitempty"`
}

// --- Request types ---

// SubmitWorkflowRequest — запуск workflow.
type SubmitWorkflowRequest struct {
	Spec     json.RawMessage `json:"spec"`
	DataRoot string          `json:"data_root,omitempty"`
}

// envelope — общий конверт ответов API: data для объектов и списков,
// error для ошибок.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Total     int             `json:"total"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

// APIError — ошибка, которую вернул сервер.
type APIError struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"-"`
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (request %s)", e.Code, e.Message, e.RequestID)
	}
	return e.Code + ": " + e.Message
}

// --- Client ---

// Client — HTTP-клиент для Batchflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workflows ---

// SubmitWorkflow отправляет спецификацию на выполнение.
func (c *Client) SubmitWorkflow(req SubmitWorkflowRequest) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.post("/api/v1/workflows", req, &wf)
	return &wf, err
}

// GetWorkflow возвращает workflow по ID.
func (c *Client) GetWorkflow(id string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get("/api/v1/workflows/"+url.PathEscape(id), &wf)
	return &wf, err
}

// ListWorkflows возвращает workflows в статусе status (пусто — RUNNING).
func (c *Client) ListWorkflows(status string, limit int) ([]WorkflowResponse, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var workflows []WorkflowResponse
	err := c.list("/api/v1/workflows", params, &workflows)
	return workflows, err
}

// ListJobs возвращает состояние jobs выполняющегося workflow.
func (c *Client) ListJobs(id, status string) ([]JobStateResponse, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}

	var jobs []JobStateResponse
	err := c.list("/api/v1/workflows/"+url.PathEscape(id)+"/jobs", params, &jobs)
	return jobs, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.call(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.call(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.call(http.MethodGet, path, nil, result)
}

// call выполняет запрос и раскладывает поле data конверта в result.
func (c *Client) call(method, path string, body, result any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= http.StatusBadRequest {
		if decodeErr != nil || env.Error == nil {
			return &APIError{Status: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
		}
		env.Error.Status = resp.StatusCode
		env.Error.RequestID = env.RequestID
		return env.Error
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}

	if result == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, result)
}
