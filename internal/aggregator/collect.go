package aggregator

import (
	"context"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/health"
	"codeberg.org/mutker/rfhealth/internal/vendor"
)

type categoryResult struct {
	category health.Category
	readings []health.Reading
	err      error
	timedOut bool
}

// collect runs the four category extractions concurrently on one session
// and joins them. Extractions still running when the poll timeout fires
// are abandoned and reported as timed out.
func (a *Aggregator) collect(ctx context.Context, f vendor.Fetcher, sel vendor.Selection) []categoryResult {
	cctx, cancel := context.WithTimeout(ctx, a.opts.PollTimeout)
	defer cancel()

	categories := health.Categories()
	ch := make(chan categoryResult, len(categories))

	for _, c := range categories {
		go func(c health.Category) {
			rs, err := vendor.Collect(cctx, sel.Provider, f, sel.Identity, c)
			ch <- categoryResult{category: c, readings: rs, err: err}
		}(c)
	}

	done := make(map[health.Category]categoryResult, len(categories))
	for len(done) < len(categories) {
		select {
		case r := <-ch:
			if r.err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
				r.timedOut = true
			}
			done[r.category] = r
		case <-cctx.Done():
			for _, c := range categories {
				if _, ok := done[c]; !ok {
					done[c] = categoryResult{
						category: c,
						err:      errors.New().Wrap(errors.ErrTimeout, cctx.Err()).WithData(c),
						timedOut: errors.Is(cctx.Err(), context.DeadlineExceeded),
					}
				}
			}
		}
	}

	out := make([]categoryResult, 0, len(categories))
	for _, c := range categories {
		out = append(out, done[c])
	}

	return out
}
