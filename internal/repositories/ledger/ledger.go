package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/ConsignEx/escrowrouter/internal/interfaces"
)

// Ledger is the fungible-value transfer collaborator the router settles
// against. TransferFrom pulls value from a third party into the owner
// custody (subject to the party's balance and allowance), Transfer pays
// out of custody.
type Ledger interface {
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
}

const (
	BackendSim   = "sim"
	BackendERC20 = "erc20"
)

var ErrUnknownBackend = fmt.Errorf("unknown ledger backend")

type FactoryParams struct {
	Backend      string
	Owner        common.Address // custody address funds are pulled into and paid out of
	GenesisPath  string         // sim: initial balances and allowances, optional
	EthNodeURL   string         // erc20: json-rpc endpoint
	TokenAddress common.Address // erc20: token contract
	PrivateKey   string         // erc20: custody key, hex without 0x
	LegacyTx     bool           // erc20: disable EIP-1559 fee fields
}

// Factory selects the ledger backend from config
func Factory(ctx context.Context, params FactoryParams, log interfaces.ILogger) (Ledger, error) {
	switch params.Backend {
	case BackendSim, "":
		if params.GenesisPath == "" {
			return NewSimLedger(params.Owner, log), nil
		}
		genesis, err := LoadGenesis(params.GenesisPath)
		if err != nil {
			return nil, err
		}
		return NewSimLedgerFromGenesis(params.Owner, genesis, log)
	case BackendERC20:
		client, err := DialContext(ctx, params.EthNodeURL)
		if err != nil {
			return nil, err
		}
		return NewERC20Ledger(params.TokenAddress, params.Owner, params.PrivateKey, params.LegacyTx, client, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, params.Backend)
	}
}
