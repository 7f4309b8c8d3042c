// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/globus-compute/central-scheduler/core"
	"github.com/globus-compute/central-scheduler/ports"
)

// Client implements ports.Executor against the execution service's batched
// submission and endpoint-status HTTP API.
type Client struct {
	baseURL string
	client  http.Client
}

// New returns a Client that talks to the execution service at baseURL,
// using a secure client with the given per-request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		client:  secureHTTPClient(timeout),
	}
}

var _ ports.Executor = (*Client)(nil)

// submitTask is the wire shape of a single item in a /submit request.
type submitTask struct {
	FunctionID string `json:"function_id"`
	Endpoint   string `json:"endpoint"`
	Payload    string `json:"payload"` // base64-encoded opaque bytes
}

type submitRequest struct {
	Tasks []submitTask `json:"tasks"`
}

type submitResponse struct {
	TaskIDs []string `json:"task_ids"`
}

// Submit posts tasks as a single batch under headers, the forwarded
// client-request headers for this batch, and returns one RealTaskID per
// item, aligned by order with tasks.
func (c *Client) Submit(ctx context.Context, headers http.Header, tasks []ports.SubmitItem) ([]core.RealTaskID, error) {
	req := submitRequest{Tasks: make([]submitTask, len(tasks))}
	for i, t := range tasks {
		req.Tasks[i] = submitTask{
			FunctionID: string(t.FunctionID),
			Endpoint:   string(t.Endpoint),
			Payload:    base64.StdEncoding.EncodeToString(t.Payload),
		}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, "submit", headers, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.TaskIDs) != len(tasks) {
		return nil, &BatchMismatchError{Submitted: len(tasks), Returned: len(resp.TaskIDs)}
	}

	realIDs := make([]core.RealTaskID, len(resp.TaskIDs))
	for i, id := range resp.TaskIDs {
		realIDs[i] = core.RealTaskID(id)
	}
	return realIDs, nil
}

type endpointStatusEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	ActiveManagers int       `json:"active_managers"`
}

type endpointStatusResponse struct {
	Statuses []endpointStatusEntry `json:"statuses"`
}

// EndpointStatus returns endpoint's status history, most recent first.
func (c *Client) EndpointStatus(ctx context.Context, endpoint core.EndpointID) ([]core.EndpointStatus, error) {
	resource := fmt.Sprintf("endpoints/%s/status", url.PathEscape(string(endpoint)))
	body, err := c.get(ctx, resource)
	if err != nil {
		if _, ok := err.(*notFoundError); ok {
			return nil, &UnrecognizedEndpointError{Endpoint: endpoint}
		}
		return nil, err
	}

	var resp endpointStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	statuses := make([]core.EndpointStatus, len(resp.Statuses))
	for i, s := range resp.Statuses {
		statuses[i] = core.EndpointStatus{Timestamp: s.Timestamp, ActiveManagers: s.ActiveManagers}
	}
	return statuses, nil
}

type notFoundError struct{}

func (*notFoundError) Error() string { return "not found" }

func (c *Client) post(ctx context.Context, resource string, headers http.Header, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+resource, body)
	if err != nil {
		return nil, err
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return io.ReadAll(resp.Body)
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return nil, &UnavailableError{StatusCode: resp.StatusCode}
	default:
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("execution service submit failed (%d): %s", resp.StatusCode, string(data))
	}
}

func (c *Client) get(ctx context.Context, resource string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+resource, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, &notFoundError{}
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return nil, &UnavailableError{StatusCode: resp.StatusCode}
	default:
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("execution service status poll failed (%d): %s", resp.StatusCode, string(data))
	}
}
