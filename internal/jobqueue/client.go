// Package jobqueue реализует клиент очереди генеративных задач fal.ai:
// постановка задачи, опрос статуса, получение результата и синхронный запуск.
package jobqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client клиент асинхронной очереди задач.
type Client struct {
	apiKey     string
	queueURL   string
	syncRunURL string
	httpClient *http.Client
}

// NewClient создаёт клиент очереди. Синхронный запуск генерации может
// выполняться минутами, поэтому таймаут клиента намеренно большой;
// более короткие ограничения задаются контекстом запроса.
func NewClient(apiKey, queueURL, syncRunURL string) *Client {
	return &Client{
		apiKey:     apiKey,
		queueURL:   queueURL,
		syncRunURL: syncRunURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}

// Submit ставит задачу в очередь модели и возвращает идентификатор запроса.
func (c *Client) Submit(ctx context.Context, model string, input any) (string, error) {
	const op = "jobqueue.Submit"

	payload := map[string]any{"input": input}
	req, err := c.newRequest(ctx, http.MethodPost, c.queueURL+"/"+model, payload)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var submitResp SubmitResponse
	if err := c.do(req, &submitResp); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return submitResp.RequestID, nil
}

// Status возвращает текущий статус задачи; withLogs добавляет журнал выполнения.
func (c *Client) Status(ctx context.Context, model, requestID string, withLogs bool) (*JobStatus, error) {
	const op = "jobqueue.Status"

	statusURL := fmt.Sprintf("%s/%s/requests/%s/status", c.queueURL, model, url.PathEscape(requestID))
	if withLogs {
		statusURL += "?logs=1"
	}
	req, err := c.newRequest(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var status JobStatus
	if err := c.do(req, &status); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &status, nil
}

// Result возвращает результат завершённой задачи в исходном виде.
func (c *Client) Result(ctx context.Context, model, requestID string) (JobResult, error) {
	const op = "jobqueue.Result"

	resultURL := fmt.Sprintf("%s/%s/requests/%s", c.queueURL, model, url.PathEscape(requestID))
	req, err := c.newRequest(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result json.RawMessage
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return JobResult(result), nil
}

// Run выполняет модель синхронно и возвращает результат генерации.
func (c *Client) Run(ctx context.Context, model string, input GenerateInput) (*GenerateResult, error) {
	const op = "jobqueue.Run"

	payload := map[string]any{"input": input}
	req, err := c.newRequest(ctx, http.MethodPost, c.syncRunURL+"/"+model, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result GenerateResult
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &result, nil
}
