package async

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/kelsos/quickrank/internal/client"
	"github.com/kelsos/quickrank/internal/models"
)

// ErrTransient marks a status query that failed in a way the next poll may
// recover from: transport errors, non-2xx responses, success=false and
// malformed envelopes.
var ErrTransient = errors.New("transient status query failure")

// StatusClient queries the two remote task kinds and normalizes the responses.
type StatusClient struct {
	client *client.APIClient
}

// NewStatusClient creates a status client on top of apiClient
func NewStatusClient(apiClient *client.APIClient) *StatusClient {
	return &StatusClient{client: apiClient}
}

// QueryStatus issues one status query for handle. A cancelled context is
// returned as is; every other failure wraps ErrTransient.
func (s *StatusClient) QueryStatus(ctx context.Context, handle models.TaskHandle) (*models.TaskStatus, error) {
	endpoint := fmt.Sprintf("/tasks/%s", url.PathEscape(handle.ID))

	var (
		status *models.TaskStatus
		err    error
	)
	switch handle.Kind {
	case models.KindBatch:
		var resp models.BatchStatusResponse
		if err = s.client.Get(ctx, endpoint+"?batch=true", &resp); err == nil {
			status, err = resp.Normalize(handle.ID)
		}
	case models.KindSingle:
		var resp models.SingleStatusResponse
		if err = s.client.Get(ctx, endpoint, &resp); err == nil {
			status, err = resp.Normalize(handle.ID)
		}
	default:
		return nil, fmt.Errorf("unknown task kind %q", handle.Kind)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrTransient, handle, err)
	}
	return status, nil
}
