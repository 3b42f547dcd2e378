package tile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Failure kinds reported in a TileError
const (
	FailureFetch  = "fetch"
	FailureDecode = "decode"
)

// TileError reports tiles that could not be fetched or decoded.
// Any failed tile aborts the whole composition.
type TileError struct {
	Message         string
	FailedTiles     []FailedTile
	SuccessfulTiles int
	TotalTiles      int
}

func (e *TileError) Error() string {
	return e.Message
}

// Unwrap exposes the cause of the first failed tile
func (e *TileError) Unwrap() error {
	if len(e.FailedTiles) == 0 {
		return nil
	}
	return e.FailedTiles[0].Err
}

// FailedTile represents a single failed tile
type FailedTile struct {
	Index      int
	URL        string
	Kind       string
	StatusCode *int
	Err        error
}

// FetchOptions controls the fetch fan-out
type FetchOptions struct {
	// Concurrency limits in-flight fetches; zero or less means unlimited
	Concurrency int
	// TileTimeout bounds each fetch; zero means only ctx applies
	TileTimeout time.Duration
}

// FetchAll fetches and decodes every descriptor concurrently.
//
// The returned tiles are indexed by descriptor position regardless of
// completion order. The first failure cancels outstanding fetches and is
// returned as a *TileError.
func FetchAll(ctx context.Context, fetcher Fetcher, descs []Descriptor, opts FetchOptions) ([]Tile, error) {
	tiles := make([]Tile, len(descs))

	group, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		group.SetLimit(opts.Concurrency)
	}

	var (
		mu        sync.Mutex
		failed    []FailedTile
		succeeded int
	)
	record := func(ft FailedTile) error {
		mu.Lock()
		failed = append(failed, ft)
		mu.Unlock()
		return ft.Err
	}

	for i, d := range descs {
		i, d := i, d
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			tctx := gctx
			if opts.TileTimeout > 0 {
				var cancel context.CancelFunc
				tctx, cancel = context.WithTimeout(gctx, opts.TileTimeout)
				defer cancel()
			}

			data, err := fetcher.Fetch(tctx, d)
			if err != nil {
				// fetches aborted by an earlier failure are not failures themselves
				if gctx.Err() != nil {
					return err
				}
				return record(newFailedTile(i, d, FailureFetch, err))
			}

			img, err := Decode(data)
			if err != nil {
				return record(newFailedTile(i, d, FailureDecode, err))
			}

			tiles[i] = Tile{Descriptor: d, Image: img}
			mu.Lock()
			succeeded++
			mu.Unlock()
			return nil
		})
	}

	err := group.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if len(failed) > 0 {
		first := failed[0]
		return nil, &TileError{
			Message:         fmt.Sprintf("tile %d (%s) %s failed: %v", first.Index, first.URL, first.Kind, first.Err),
			FailedTiles:     failed,
			SuccessfulTiles: succeeded,
			TotalTiles:      len(descs),
		}
	}
	if err != nil {
		return nil, err
	}

	return tiles, nil
}

func newFailedTile(index int, d Descriptor, kind string, err error) FailedTile {
	ft := FailedTile{
		Index: index,
		URL:   d.URL(),
		Kind:  kind,
		Err:   err,
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		ft.StatusCode = &code
	}
	return ft
}
