package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Get fetches path and decodes the JSON response into out.
func (d *Dispatcher) Get(ctx context.Context, path string, query url.Values, out any) error {
	if err := d.do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, nil, out); err != nil {
		return fmt.Errorf("dispatch.Get: %w", err)
	}
	return nil
}

// Post sends in as JSON and decodes the response into out.
func (d *Dispatcher) Post(ctx context.Context, path string, in, out any) error {
	if err := d.do(ctx, Request{Method: http.MethodPost, Path: path}, in, out); err != nil {
		return fmt.Errorf("dispatch.Post: %w", err)
	}
	return nil
}

// Patch sends a partial update.
func (d *Dispatcher) Patch(ctx context.Context, path string, in, out any) error {
	if err := d.do(ctx, Request{Method: http.MethodPatch, Path: path}, in, out); err != nil {
		return fmt.Errorf("dispatch.Patch: %w", err)
	}
	return nil
}

func (d *Dispatcher) Delete(ctx context.Context, path string) error {
	if err := d.do(ctx, Request{Method: http.MethodDelete, Path: path}, nil, nil); err != nil {
		return fmt.Errorf("dispatch.Delete: %w", err)
	}
	return nil
}

// Do sends a JSON request with any method. Non-2xx responses become errors.
func (d *Dispatcher) Do(ctx context.Context, method, path string, in, out any) error {
	if err := d.do(ctx, Request{Method: method, Path: path}, in, out); err != nil {
		return fmt.Errorf("dispatch.Do: %w", err)
	}
	return nil
}

func (d *Dispatcher) do(ctx context.Context, req Request, in, out any) error {
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.Body = data
	}

	resp, err := d.Send(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
