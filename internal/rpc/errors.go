package rpc

import "errors"

var (
	ErrNoEndpointsToQuery      = errors.New("no endpoints to query")
	ErrAllEndpointsFailedQuery = errors.New("all endpoints failed to return a value")
)
