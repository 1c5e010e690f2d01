package rpc

import (
	"context"
	"errors"
	"testing"
)

func TestQueryAllMax_ReturnsMaximum(t *testing.T) {
	endpoints := []*Endpoint{
		NewEndpoint("lagging", "http://unused", "", 100),
		NewEndpoint("fresh", "http://unused", "", 100),
		NewEndpoint("middle", "http://unused", "", 100),
	}
	values := map[string]int64{"lagging": 0, "fresh": 10000, "middle": 6000}

	max, ok, err := QueryAllMax(context.Background(), endpoints, func(_ context.Context, ep *Endpoint) (int64, error) {
		return values[ep.Name], nil
	})
	if err != nil {
		t.Fatalf("QueryAllMax() error = %v", err)
	}
	if max != 10000 {
		t.Errorf("expected max 10000, got %d", max)
	}
	if ok != 3 {
		t.Errorf("expected 3 successful queries, got %d", ok)
	}
}

func TestQueryAllMax_TolerantOfFailures(t *testing.T) {
	endpoints := []*Endpoint{
		NewEndpoint("broken", "http://unused", "", 100),
		NewEndpoint("healthy", "http://unused", "", 100),
	}

	max, ok, err := QueryAllMax(context.Background(), endpoints, func(_ context.Context, ep *Endpoint) (int64, error) {
		if ep.Name == "broken" {
			return 0, errors.New("connection refused")
		}
		return 15000, nil
	})
	if err != nil {
		t.Fatalf("QueryAllMax() error = %v", err)
	}
	if max != 15000 {
		t.Errorf("expected max 15000, got %d", max)
	}
	if ok != 1 {
		t.Errorf("expected 1 successful query, got %d", ok)
	}
}

func TestQueryAllMax_AllFail(t *testing.T) {
	endpoints := []*Endpoint{NewEndpoint("broken", "http://unused", "", 100)}

	_, _, err := QueryAllMax(context.Background(), endpoints, func(_ context.Context, ep *Endpoint) (int64, error) {
		return 0, errors.New("down")
	})
	if !errors.Is(err, ErrAllEndpointsFailedQuery) {
		t.Errorf("expected ErrAllEndpointsFailedQuery, got %v", err)
	}
}

func TestQueryAllMax_NoEndpoints(t *testing.T) {
	_, _, err := QueryAllMax(context.Background(), nil, func(_ context.Context, ep *Endpoint) (int64, error) {
		return 0, nil
	})
	if !errors.Is(err, ErrNoEndpointsToQuery) {
		t.Errorf("expected ErrNoEndpointsToQuery, got %v", err)
	}
}
