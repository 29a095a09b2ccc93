// Package external implements the "external" scaler kind's backend driver:
// an HTTP+JSON client to an out-of-process provisioner, standing in for the
// gRPC service tarsy's pkg/agent/llm_grpc.go dials (same per-call timeout
// and connection-reuse shape; net/http instead of grpc since no .proto
// stubs are available in the retrieved pack — see DESIGN.md).
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/thoriumlabs/thorium/pkg/apierrors"
	"github.com/thoriumlabs/thorium/pkg/backend"
	"github.com/thoriumlabs/thorium/pkg/models"
)

// Driver talks to an external provisioner over HTTP.
type Driver struct {
	endpoint string
	client   *http.Client
}

// New builds a Driver against a provisioner's base URL, with a per-call
// timeout applied to every request.
func New(endpoint string, timeout time.Duration) *Driver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Driver{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

type resourcesResponse struct {
	Nodes map[string]models.Resources `json:"nodes"`
}

type spawnRequest struct {
	Spawns []backend.Spawn `json:"spawns"`
}

type deleteRequest struct {
	Deletes []backend.Delete `json:"deletes"`
}

type terminalResponse struct {
	Workers []backend.TerminalWorker `json:"workers"`
}

func (d *Driver) Setup(ctx context.Context, cluster string) error {
	_, err := d.do(ctx, http.MethodGet, "/setup/"+cluster, nil, nil)
	return err
}

func (d *Driver) ResourcesAvailable(ctx context.Context, cluster string, _ models.SystemSettings) (map[string]models.Resources, error) {
	var resp resourcesResponse
	if _, err := d.do(ctx, http.MethodGet, "/resources/"+cluster, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

func (d *Driver) Spawn(ctx context.Context, cluster string, spawns []backend.Spawn) map[string]error {
	var errResp map[string]string
	if _, err := d.do(ctx, http.MethodPost, "/spawn/"+cluster, spawnRequest{Spawns: spawns}, &errResp); err != nil {
		out := make(map[string]error, len(spawns))
		for _, s := range spawns {
			out[s.Name] = err
		}
		return out
	}
	out := make(map[string]error, len(errResp))
	for name, msg := range errResp {
		out[name] = apierrors.NewInternal("%s", msg)
	}
	return out
}

func (d *Driver) Delete(ctx context.Context, cluster string, deletes []backend.Delete) []backend.DeleteResult {
	var resp []backend.DeleteResult
	if _, err := d.do(ctx, http.MethodPost, "/delete/"+cluster, deleteRequest{Deletes: deletes}, &resp); err != nil {
		out := make([]backend.DeleteResult, len(deletes))
		for i, del := range deletes {
			out[i] = backend.DeleteResult{Name: del.Name, Err: err}
		}
		return out
	}
	return resp
}

func (d *Driver) ClearTerminal(ctx context.Context, cluster string, active map[string]bool) ([]backend.TerminalWorker, error) {
	var resp terminalResponse
	if _, err := d.do(ctx, http.MethodPost, "/terminal/"+cluster, map[string]any{"active": active}, &resp); err != nil {
		return nil, err
	}
	return resp.Workers, nil
}

// do issues one request against the provisioner, decoding a JSON response
// body into out when non-nil. Transport failures and non-2xx responses map
// to KindUnavailable; a body that cannot be encoded maps to KindInvalid, a
// request that cannot be built to KindInternal, and a response body that
// cannot be decoded is returned as an unclassified error.
func (d *Driver) do(ctx context.Context, method, path string, body, out any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.KindInvalid, err, "marshal request body")
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.endpoint+path, reader)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindInternal, err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindUnavailable, err, "call external provisioner %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp, apierrors.NewUnavailable("external provisioner %s returned %s", path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("decode response from %s: %w", path, err)
		}
	}
	return resp, nil
}
