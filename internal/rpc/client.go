// Package rpc implements the TRON HTTP client: a round-robin, circuit
// breaker protected pool of full-node/solidity-node endpoints exposing the
// handful of wallet/* calls the gas station needs.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/fueltron/gasstation/internal/config"
)

// Client is a pool of TRON HTTP endpoints with round-robin rotation and
// per-endpoint circuit breaking, mirroring the balance scanner's provider
// pool but specialized to a single chain (TRON) and a fixed call surface.
type Client struct {
	endpoints []*Endpoint
	current   atomic.Int32
}

// NewClient builds a client over the given endpoints. At least one endpoint
// is required.
func NewClient(endpoints ...*Endpoint) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, config.ErrNoEndpoints
	}
	names := make([]string, len(endpoints))
	for i, e := range endpoints {
		names[i] = e.Name
	}
	slog.Info("rpc client created", "endpoints", names, "count", len(endpoints))
	return &Client{endpoints: endpoints}, nil
}

// Endpoints returns the underlying endpoint set, for callers that need to
// query all of them in parallel rather than round-robin.
func (c *Client) Endpoints() []*Endpoint { return c.endpoints }

func (c *Client) nextIndex() int {
	idx := c.current.Add(1)
	return int(idx-1) % len(c.endpoints)
}

// call executes fn against endpoints in round-robin order, skipping
// circuit-open endpoints and failing over on transient errors.
func (c *Client) call(ctx context.Context, op string, fn func(*Endpoint) error) error {
	var allErrors []error

	for range c.endpoints {
		idx := c.nextIndex()
		ep := c.endpoints[idx]

		if !ep.Allow() {
			slog.Debug("circuit breaker open, skipping endpoint", "op", op, "endpoint", ep.Name, "state", ep.CircuitState())
			allErrors = append(allErrors, fmt.Errorf("%s: %w", ep.Name, config.ErrCircuitOpen))
			continue
		}

		err := fn(ep)
		if err == nil {
			ep.RecordSuccess()
			return nil
		}

		ep.RecordFailure(err)
		allErrors = append(allErrors, fmt.Errorf("%s: %w", ep.Name, err))

		if config.IsTransient(err) || errors.Is(err, config.ErrNetworkTimeout) {
			slog.Warn("endpoint failed, trying next", "op", op, "endpoint", ep.Name, "circuitState", ep.CircuitState(), "error", err)
			continue
		}

		return err
	}

	return fmt.Errorf("%w: %s: %w", config.ErrAllEndpointsFailed, op, errors.Join(allErrors...))
}

// GetAccount returns the raw TRX balance of an address (in sun).
func (c *Client) GetAccount(ctx context.Context, addressHex string) (activated bool, balanceSun int64, err error) {
	var resp accountResponse
	err = c.call(ctx, "getaccount", func(ep *Endpoint) error {
		return ep.Post(ctx, "/wallet/getaccount", map[string]any{"address": addressHex, "visible": false}, &resp)
	})
	if err != nil {
		return false, 0, err
	}
	// TRON returns an empty object body ({}) for unactivated addresses.
	activated = resp.Address != ""
	return activated, resp.Balance, nil
}

// GetAccountResource returns the energy and bandwidth resource state of an
// address.
func (c *Client) GetAccountResource(ctx context.Context, addressHex string) (AccountResourceResponse, error) {
	var resp AccountResourceResponse
	err := c.call(ctx, "getaccountresource", func(ep *Endpoint) error {
		return ep.Post(ctx, "/wallet/getaccountresource", map[string]any{"address": addressHex, "visible": false}, &resp)
	})
	return resp, err
}

// GetChainParameters returns the network's dynamic chain parameters,
// including energy/bandwidth issuance ratios used by the resource oracle.
func (c *Client) GetChainParameters(ctx context.Context) ([]ChainParameter, error) {
	var resp chainParametersResponse
	err := c.call(ctx, "getchainparameters", func(ep *Endpoint) error {
		return ep.Post(ctx, "/wallet/getchainparameters", map[string]any{}, &resp)
	})
	return resp.ChainParameter, err
}

// TriggerConstantContract simulates a contract call without broadcasting,
// used to estimate energy consumption for a USDT transfer.
func (c *Client) TriggerConstantContract(ctx context.Context, ownerHex, contractHex, selector, parameterHex string) (ConstantContractResult, error) {
	req := triggerConstantContractRequest{
		OwnerAddress:     ownerHex,
		ContractAddress:  contractHex,
		FunctionSelector: selector,
		Parameter:        parameterHex,
		Visible:          false,
	}
	var resp ConstantContractResult
	err := c.call(ctx, "triggerconstantcontract", func(ep *Endpoint) error {
		return ep.Post(ctx, "/wallet/triggerconstantcontract", req, &resp)
	})
	return resp, err
}

// withPermission adds Permission_id to body when permissionID is nonzero.
// TRON's build endpoints accept Permission_id directly and embed it in the
// raw_data they serialize, so the node's own raw_data_hex already reflects
// the permission — no client-side re-serialization is needed before signing.
func withPermission(body map[string]any, permissionID uint8) map[string]any {
	if permissionID != 0 {
		body["Permission_id"] = permissionID
	}
	return body
}

// BuildTransferTx builds an unsigned TRX transfer transaction. permissionID
// is nonzero when the caller intends to sign with a permission-scoped
// control key rather than the owner key (see signer.PermissionFor).
func (c *Client) BuildTransferTx(ctx context.Context, ownerHex, toHex string, amountSun int64, permissionID uint8) (TransactionEnvelope, error) {
	var env TransactionEnvelope
	err := c.call(ctx, "createtransaction", func(ep *Endpoint) error {
		return ep.Post(ctx, "/wallet/createtransaction", withPermission(map[string]any{
			"owner_address": ownerHex,
			"to_address":    toHex,
			"amount":        amountSun,
			"visible":       false,
		}, permissionID), &env)
	})
	return env, err
}

// BuildAccountCreate builds an unsigned account-activation transaction.
func (c *Client) BuildAccountCreate(ctx context.Context, ownerHex, accountAddressHex string, permissionID uint8) (TransactionEnvelope, error) {
	var env TransactionEnvelope
	err := c.call(ctx, "createaccount", func(ep *Endpoint) error {
		return ep.Post(ctx, "/wallet/createaccount", withPermission(map[string]any{
			"owner_address":   ownerHex,
			"account_address": accountAddressHex,
			"visible":         false,
		}, permissionID), &env)
	})
	return env, err
}

// BuildFreezeBalanceV2 builds an unsigned Staking 2.0 freeze transaction for
// the given resource ("ENERGY" or "BANDWIDTH").
func (c *Client) BuildFreezeBalanceV2(ctx context.Context, ownerHex string, frozenBalanceSun int64, resource string, permissionID uint8) (TransactionEnvelope, error) {
	var env TransactionEnvelope
	err := c.call(ctx, "freezebalancev2", func(ep *Endpoint) error {
		return ep.Post(ctx, "/wallet/freezebalancev2", withPermission(map[string]any{
			"owner_address":     ownerHex,
			"frozen_balance":    frozenBalanceSun,
			"resource":          resource,
			"visible":           false,
		}, permissionID), &env)
	})
	return env, err
}

// BuildDelegateResource builds an unsigned Staking 2.0 delegate transaction
// moving previously frozen resource units from ownerHex to receiverHex.
func (c *Client) BuildDelegateResource(ctx context.Context, ownerHex, receiverHex string, balanceSun int64, resource string, lock bool, permissionID uint8) (TransactionEnvelope, error) {
	var env TransactionEnvelope
	err := c.call(ctx, "delegateresource", func(ep *Endpoint) error {
		return ep.Post(ctx, "/wallet/delegateresource", withPermission(map[string]any{
			"owner_address":    ownerHex,
			"receiver_address": receiverHex,
			"balance":          balanceSun,
			"resource":         resource,
			"lock":             lock,
			"visible":          false,
		}, permissionID), &env)
	})
	return env, err
}

// BroadcastTransaction broadcasts a signed transaction envelope.
func (c *Client) BroadcastTransaction(ctx context.Context, signed TransactionEnvelope) (BroadcastResult, error) {
	var resp BroadcastResult
	err := c.call(ctx, "broadcasttransaction", func(ep *Endpoint) error {
		return ep.Post(ctx, "/wallet/broadcasttransaction", signed, &resp)
	})
	if err != nil {
		return resp, err
	}
	if !resp.Result {
		return resp, fmt.Errorf("%w: %s %s", config.ErrBroadcastRejected, resp.Code, resp.Message)
	}
	return resp, nil
}

// GetTransactionInfoByID looks up confirmation info for a broadcast
// transaction. Returns a zero-value, unconfirmed TransactionInfo (no error)
// if the transaction has not yet been included in a block.
func (c *Client) GetTransactionInfoByID(ctx context.Context, txID string) (TransactionInfo, error) {
	var info TransactionInfo
	err := c.call(ctx, "gettransactioninfobyid", func(ep *Endpoint) error {
		return ep.Post(ctx, "/wallet/gettransactioninfobyid", map[string]any{"value": txID}, &info)
	})
	return info, err
}

// LatestBlockNumber returns the current block height, used by Health to
// confirm connectivity.
func (c *Client) LatestBlockNumber(ctx context.Context) (int64, error) {
	var resp struct {
		BlockHeader struct {
			RawData struct {
				Number int64 `json:"number"`
			} `json:"raw_data"`
		} `json:"block_header"`
	}
	err := c.call(ctx, "getnowblock", func(ep *Endpoint) error {
		return ep.Post(ctx, "/wallet/getnowblock", map[string]any{}, &resp)
	})
	return resp.BlockHeader.RawData.Number, err
}
