// Package directory talks to the space persistence API to check that a
// space exists before a session may join it.
package directory

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prajyot7070/MetaSpace/internal/core"
	"github.com/prajyot7070/MetaSpace/internal/domain"
)

type httpDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTP resolves spaces via GET {base}/api/v1/space/{id}: 200 means the
// space exists, 404 means it does not, anything else is an error.
func NewHTTP(baseURL string, timeout time.Duration) core.SpaceDirectory {
	return &httpDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *httpDirectory) Exists(ctx context.Context, id domain.SpaceID) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/space/%s", d.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build space lookup: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("space lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("space lookup: unexpected status %d", resp.StatusCode)
	}
}

type allowAll struct{}

// AllowAll accepts every space id. Used when no directory is configured.
func AllowAll() core.SpaceDirectory { return allowAll{} }

func (allowAll) Exists(context.Context, domain.SpaceID) (bool, error) { return true, nil }
