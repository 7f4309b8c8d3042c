package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humamux"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globus-compute/central-scheduler/ports"
)

// newMockExecutionService builds a schema-validated mock of the downstream
// execution service's /submit and endpoint-status API, in the style of
// the project's other huma-backed mock server tests, so Client is
// exercised against a spec-conformant backend rather than a bare handler.
func newMockExecutionService(t *testing.T) *httptest.Server {
	t.Helper()

	router := mux.NewRouter()
	api := humamux.New(router, huma.DefaultConfig("Mock Execution Service", "1.0.0"))

	huma.Register(api, huma.Operation{
		OperationID: "submit",
		Method:      http.MethodPost,
		Path:        "/submit",
	}, func(ctx context.Context, input *struct {
		Body submitRequest
	}) (*struct {
		Body submitResponse
	}, error) {
		ids := make([]string, len(input.Body.Tasks))
		for i := range input.Body.Tasks {
			ids[i] = "mock-real-" + input.Body.Tasks[i].Endpoint
		}
		resp := &struct {
			Body submitResponse
		}{}
		resp.Body.TaskIDs = ids
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "endpointStatus",
		Method:      http.MethodGet,
		Path:        "/endpoints/{endpoint}/status",
	}, func(ctx context.Context, input *struct {
		Endpoint string `path:"endpoint"`
	}) (*struct {
		Body endpointStatusResponse
	}, error) {
		resp := &struct {
			Body endpointStatusResponse
		}{}
		resp.Body.Statuses = []endpointStatusEntry{
			{Timestamp: time.Now().UTC(), ActiveManagers: 1},
		}
		return resp, nil
	})

	return httptest.NewServer(router)
}

func TestSubmitAgainstHumaBackedMockExecutionService(t *testing.T) {
	server := newMockExecutionService(t)
	defer server.Close()

	c := New(server.URL, time.Second)
	realIDs, err := c.Submit(context.Background(), http.Header{}, []ports.SubmitItem{
		{FunctionID: "fn", Endpoint: "endpoint-a"},
	})
	require.NoError(t, err)
	require.Len(t, realIDs, 1)
	assert.Equal(t, "mock-real-endpoint-a", string(realIDs[0]))
}

func TestEndpointStatusAgainstHumaBackedMockExecutionService(t *testing.T) {
	server := newMockExecutionService(t)
	defer server.Close()

	c := New(server.URL, time.Second)
	statuses, err := c.EndpointStatus(context.Background(), "endpoint-a")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 1, statuses[0].ActiveManagers)
}
