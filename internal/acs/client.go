// Package acs fetches one pre-computed American Community Survey percentage
// per census tract from the Census Data API.
package acs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accessmap/internal/config"
	"github.com/sells-group/accessmap/internal/fetcher"
	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/store"
)

// Client downloads and parses ACS tract tables.
type Client struct {
	fetcher fetcher.Fetcher
	cache   store.Store
	cfg     config.ACSConfig
	ttl     time.Duration
}

// NewClient returns a Client. A nil cache disables caching.
func NewClient(f fetcher.Fetcher, cache store.Store, cfg config.ACSConfig, ttl time.Duration) *Client {
	if cache == nil {
		cache = store.Nop{}
	}
	return &Client{fetcher: f, cache: cache, cfg: cfg, ttl: ttl}
}

// QueryURL builds the tract-level request URL without the API key.
func QueryURL(cfg config.ACSConfig) (string, error) {
	if cfg.Variable == "" {
		return "", eris.New("acs: variable is required")
	}
	if cfg.State == "" {
		return "", eris.New("acs: state is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return "", eris.Wrap(err, "acs: parse base url")
	}
	base = base.JoinPath(fmt.Sprint(cfg.Year), cfg.Dataset)

	q := url.Values{}
	q.Set("get", "NAME,"+cfg.Variable)
	q.Set("for", "tract:*")
	q.Add("in", "state:"+cfg.State)
	if cfg.County != "" {
		q.Add("in", "county:"+cfg.County)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// Fetch returns the configured variable keyed by tract GEOID. Cached
// responses younger than the TTL are reused.
func (c *Client) Fetch(ctx context.Context) (model.Demographics, error) {
	log := zap.L().With(zap.String("component", "acs"))

	key, err := QueryURL(c.cfg)
	if err != nil {
		return nil, model.NewSourceLoadError("demographics", c.cfg.BaseURL, err)
	}

	data, err := c.cache.GetResponse(ctx, key)
	if err != nil {
		log.Warn("cache read failed, fetching", zap.Error(err))
		data = nil
	}
	if data != nil {
		demo, err := Parse(data, c.cfg.Variable)
		if err == nil {
			log.Info("using cached ACS response", zap.String("url", key), zap.Int("bytes", len(data)))
			return demo, nil
		}
		// The fresh download below overwrites the entry.
		log.Warn("cached ACS response is unreadable, refetching", zap.String("url", key), zap.Error(err))
	}

	data, err = c.download(ctx, key)
	if err != nil {
		return nil, model.NewSourceLoadError("demographics", key, err)
	}
	log.Info("downloaded ACS response", zap.String("url", key), zap.Int("bytes", len(data)))

	demo, err := Parse(data, c.cfg.Variable)
	if err != nil {
		return nil, model.NewSourceLoadError("demographics", key, err)
	}

	if err := c.cache.SetResponse(ctx, key, data, c.ttl); err != nil {
		log.Warn("cache write failed", zap.Error(err))
	}
	return demo, nil
}

func (c *Client) download(ctx context.Context, key string) ([]byte, error) {
	reqURL := key
	if c.cfg.APIKey != "" {
		reqURL += "&key=" + url.QueryEscape(c.cfg.APIKey)
	}

	body, err := c.fetcher.Download(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "acs: read response")
	}
	return data, nil
}
