package rpc

// Wire-level request/response shapes for TRON's HTTP full-node and
// solidity-node APIs (plain JSON POST, not JSON-RPC 2.0).

type accountResponse struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

// AccountResourceResponse mirrors /wallet/getaccountresource.
type AccountResourceResponse struct {
	FreeNetLimit      int64 `json:"freeNetLimit"`
	FreeNetUsed       int64 `json:"freeNetUsed"`
	NetLimit          int64 `json:"NetLimit"`
	NetUsed           int64 `json:"NetUsed"`
	EnergyLimit       int64 `json:"EnergyLimit"`
	EnergyUsed        int64 `json:"EnergyUsed"`
	TotalEnergyLimit  int64 `json:"TotalEnergyLimit"`
	TotalEnergyWeight int64 `json:"TotalEnergyWeight"`
	TotalNetLimit     int64 `json:"TotalNetLimit"`
	TotalNetWeight    int64 `json:"TotalNetWeight"`
}

// EnergyRemaining returns available energy: limit minus used.
func (r AccountResourceResponse) EnergyRemaining() int64 {
	return r.EnergyLimit - r.EnergyUsed
}

// BandwidthRemaining returns available bandwidth across free and staked
// pools.
func (r AccountResourceResponse) BandwidthRemaining() int64 {
	free := r.FreeNetLimit - r.FreeNetUsed
	staked := r.NetLimit - r.NetUsed
	return free + staked
}

// ChainParameter is one entry of /wallet/getchainparameters.
type ChainParameter struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

type chainParametersResponse struct {
	ChainParameter []ChainParameter `json:"chainParameter"`
}

// triggerConstantContractRequest mirrors /wallet/triggerconstantcontract.
type triggerConstantContractRequest struct {
	OwnerAddress     string `json:"owner_address"`
	ContractAddress  string `json:"contract_address"`
	FunctionSelector string `json:"function_selector"`
	Parameter        string `json:"parameter"`
	Visible          bool   `json:"visible"`
}

// ConstantContractResult is the parsed simulation outcome.
type ConstantContractResult struct {
	Result struct {
		Result  bool   `json:"result"`
		Message string `json:"message,omitempty"`
	} `json:"result"`
	EnergyUsed int64    `json:"energy_used"`
	ConstantResult []string `json:"constant_result"`
	Transaction struct {
		RawDataHex string `json:"raw_data_hex"`
	} `json:"transaction"`
}

// Succeeded reports whether the simulated call would succeed.
func (r ConstantContractResult) Succeeded() bool {
	return r.Result.Result
}

// TransactionEnvelope is the unsigned/signed transaction envelope common to
// every TRON build-tx endpoint (createtransaction, freezebalancev2,
// delegateresource, createaccount).
type TransactionEnvelope struct {
	TxID       string          `json:"txID"`
	RawData    map[string]any  `json:"raw_data"`
	RawDataHex string          `json:"raw_data_hex"`
	Signature  []string        `json:"signature,omitempty"`
	Visible    bool            `json:"visible,omitempty"`
}

// BroadcastResult mirrors /wallet/broadcasttransaction.
type BroadcastResult struct {
	Result  bool   `json:"result"`
	TxID    string `json:"txid"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// TransactionInfo mirrors /wallet/gettransactioninfobyid.
type TransactionInfo struct {
	ID             string `json:"id"`
	BlockNumber    int64  `json:"blockNumber"`
	Receipt        struct {
		Result     string `json:"result"`
		EnergyUsage int64 `json:"energy_usage"`
		NetUsage    int64 `json:"net_usage"`
	} `json:"receipt"`
}

// Confirmed reports whether the transaction was included in a block.
func (t TransactionInfo) Confirmed() bool {
	return t.BlockNumber > 0
}
