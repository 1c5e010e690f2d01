package rpc

import (
	"context"
	"log/slog"
	"sync"
)

// QueryAllMax queries every endpoint concurrently with query and returns the
// maximum successfully observed value, tolerating lagging or failing
// endpoints — a single node behind on replication must never block the
// verifier from confirming a resource increase already visible elsewhere.
func QueryAllMax(ctx context.Context, endpoints []*Endpoint, query func(context.Context, *Endpoint) (int64, error)) (int64, int, error) {
	if len(endpoints) == 0 {
		return 0, 0, ErrNoEndpointsToQuery
	}

	type result struct {
		value int64
		err   error
	}

	results := make([]result, len(endpoints))
	var wg sync.WaitGroup
	wg.Add(len(endpoints))

	for i, ep := range endpoints {
		go func(i int, ep *Endpoint) {
			defer wg.Done()
			v, err := query(ctx, ep)
			results[i] = result{value: v, err: err}
			if err != nil {
				slog.Debug("parallel query failed for endpoint", "endpoint", ep.Name, "error", err)
			}
		}(i, ep)
	}
	wg.Wait()

	var (
		max    int64
		ok     int
		gotAny bool
	)
	for _, r := range results {
		if r.err != nil {
			continue
		}
		ok++
		if !gotAny || r.value > max {
			max = r.value
			gotAny = true
		}
	}

	if !gotAny {
		return 0, 0, ErrAllEndpointsFailedQuery
	}
	return max, ok, nil
}
