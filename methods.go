package transmission

import (
	"context"
	"fmt"
)

const resultSuccess = "success"

// Invoke performs Call, checks the daemon's "result" member and decodes the
// "arguments" member into out (skipped when out is nil).
func (c *Client) Invoke(ctx context.Context, method string, arguments map[string]any, out any) error {
	resp, err := c.Call(ctx, method, arguments)
	if err != nil {
		return err
	}

	if result := resp.Result(); result != resultSuccess {
		return &ResultError{Method: method, Result: result}
	}

	if out == nil {
		return nil
	}
	if err := resp.Arguments().Decode(out); err != nil {
		return fmt.Errorf("error decoding %s arguments: %w", method, err)
	}

	return nil
}

// SessionGet returns the daemon's session settings as a generic object.
func (c *Client) SessionGet(ctx context.Context) (Object, error) {
	resp, err := c.Call(ctx, "session-get", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if result := resp.Result(); result != resultSuccess {
		return nil, fmt.Errorf("failed to get session: %w", &ResultError{Method: "session-get", Result: result})
	}
	return resp.Arguments(), nil
}

func (c *Client) SessionStats(ctx context.Context) (*SessionStats, error) {
	var stats SessionStats
	if err := c.Invoke(ctx, "session-stats", nil, &stats); err != nil {
		return nil, fmt.Errorf("failed to get session stats: %w", err)
	}
	return &stats, nil
}

// AddMagnet adds a torrent from a magnet link. The link is validated before
// anything is sent. A torrent the daemon already knows is returned with
// Duplicate set.
func (c *Client) AddMagnet(ctx context.Context, opts AddOptions) (*AddedTorrent, error) {
	if _, err := ParseMagnetLink(opts.MagnetURI); err != nil {
		return nil, fmt.Errorf("failed to add torrent: %w", err)
	}

	args := map[string]any{
		"filename": opts.MagnetURI,
		"paused":   opts.Paused,
	}
	if opts.DownloadDir != "" {
		args["download-dir"] = opts.DownloadDir
	}
	if len(opts.Labels) > 0 {
		args["labels"] = opts.Labels
	}

	var response struct {
		Added     *AddedTorrent `json:"torrent-added"`
		Duplicate *AddedTorrent `json:"torrent-duplicate"`
	}
	if err := c.Invoke(ctx, "torrent-add", args, &response); err != nil {
		return nil, fmt.Errorf("failed to add torrent: %w", err)
	}

	switch {
	case response.Added != nil:
		return response.Added, nil
	case response.Duplicate != nil:
		response.Duplicate.Duplicate = true
		return response.Duplicate, nil
	}

	return nil, fmt.Errorf("failed to add torrent: response has no torrent")
}
