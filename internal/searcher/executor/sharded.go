package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/indexer/posting"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/pipeline"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/internal/searcher/tables"
	apperrors "github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fulltext-search/pkg/tracing"
)

type candidate = pipeline.Candidate

type partitionResult struct {
	top   []candidate
	total int
	stats pipeline.Stats
}

type scanOutput struct {
	page       []candidate
	total      int
	partitions int
}

// scan runs the relevance and ranking stages on every partition in
// parallel, each keeping its best page*pageSize candidates, then merges
// them into the requested page, worst first.
func (e *Executor) scan(ctx context.Context, plan *parser.QueryPlan, snap *tables.Snapshot, page, pageSize int) (*scanOutput, error) {
	ctx, span := tracing.StartChildSpan(ctx, "scan")
	defer span.End()

	cursors, err := e.deps.Store.Cursors(ctx)
	if err != nil {
		return nil, storeError("opening cursors", err)
	}
	results := make([]partitionResult, len(cursors))
	rng := posting.TermRange(plan.Pivot)

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range cursors {
		g.Go(func() error {
			res := &results[i]
			c := pipeline.Chain(src,
				pipeline.Relevance(pipeline.RelevanceOptions{
					Terms:       plan.Terms,
					QueryRatios: plan.Ratios,
					Frequencies: snap.Sample,
					Authority:   snap.Authority,
					Stats:       &res.stats,
					Logger:      e.logger.With("partition", i),
				}),
				pipeline.Ranking(1, page*pageSize),
			)
			defer c.Close()
			if err := c.Seek(gctx, rng); err != nil {
				return fmt.Errorf("partition %d: seek: %w", i, err)
			}
			for c.Next() {
				rank, err := pipeline.DecodeRank(c.Value())
				if err != nil {
					return fmt.Errorf("partition %d: %w", i, err)
				}
				key := c.Key()
				if n, ok := pipeline.TotalFromKey(key); ok {
					res.total = n
				}
				res.top = append(res.top, candidate{Key: key, Rank: rank})
			}
			if err := c.Err(); err != nil {
				return fmt.Errorf("partition %d: scan: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if isContextErr(err) {
			return nil, storeError("scanning", err)
		}
		return nil, err
	}

	sel := pipeline.NewSelector(page, pageSize)
	out := &scanOutput{partitions: len(cursors)}
	var groups, corrupt int64
	for _, res := range results {
		out.total += res.total
		groups += res.stats.Groups
		corrupt += res.stats.Corrupt
		for _, c := range res.top {
			sel.Add(c)
		}
	}
	out.page = pipeline.PageOf(sel, out.total, page, pageSize)

	span.SetAttr("partitions", len(cursors))
	span.SetAttr("candidates", groups)
	span.SetAttr("matches", out.total)
	if m := e.deps.Metrics; m != nil {
		m.CandidatesScanned.Add(float64(groups))
		m.CorruptRowsTotal.Add(float64(corrupt))
	}
	return out, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// storeError classifies a failed store call. An ended context is a timeout;
// anything else means the store could not serve the scan.
func storeError(op string, err error) error {
	if isContextErr(err) {
		return apperrors.Newf(apperrors.ErrTimeout, http.StatusGatewayTimeout, "%s: %v", op, err)
	}
	return apperrors.Newf(apperrors.ErrStoreUnavailable, http.StatusServiceUnavailable, "%s: %v", op, err)
}
