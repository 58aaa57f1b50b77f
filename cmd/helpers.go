package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/accessmap/internal/config"
	"github.com/sells-group/accessmap/internal/fetcher"
	"github.com/sells-group/accessmap/internal/store"
)

func newFetcher(c *config.Config) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  c.HTTP.UserAgent,
		Timeout:    time.Duration(c.HTTP.TimeoutSecs) * time.Second,
		MaxRetries: c.HTTP.MaxRetries,
	})
}

func openCache(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Cache)
	if err != nil {
		return nil, eris.Wrap(err, "open response cache")
	}
	return st, nil
}
