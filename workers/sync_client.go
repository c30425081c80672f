// workers/sync_client.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"loyalty-draw-system/utils"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "sync")

// SyncClient reads change feeds from the sync service.
type SyncClient struct {
	BaseURL    string // e.g. "http://localhost:8500"
	Token      string
	HTTPClient *http.Client
}

func NewSyncClient(baseURL, token string) *SyncClient {
	return &SyncClient{BaseURL: baseURL, Token: token, HTTPClient: utils.HTTPClient}
}

// FetchChanges GETs path?since=<RFC3339> and decodes the JSON body into out.
func (c *SyncClient) FetchChanges(ctx context.Context, path string, since time.Time, out any) error {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid sync service URL '%s': %w", c.BaseURL, err)
	}
	endpoint := base.JoinPath(path)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", endpoint, err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sync service returned %d for %s: %s", resp.StatusCode, path, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return nil
}

// poll runs sync once, then on every tick until ctx is done.
func poll(ctx context.Context, name string, interval time.Duration, sync func(context.Context) error) {
	entry := log.WithField("worker", name)
	entry.Info("🔁 sync worker started")
	if err := sync(ctx); err != nil {
		entry.WithError(err).Warn("⚠️ initial sync failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := sync(ctx); err != nil {
				entry.WithError(err).Error("❌ sync batch failed")
			}
		case <-ctx.Done():
			entry.Info("⏹️ sync worker stopped")
			return
		}
	}
}
