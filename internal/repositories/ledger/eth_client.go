package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthereumClient is the subset of ethclient.Client the ERC-20 ledger
// depends on, split out so tests can substitute a simulated backend
type EthereumClient interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

type EthClient struct {
	// config
	url string

	// state
	*ethclient.Client
}

func DialContext(ctx context.Context, urlString string) (*EthClient, error) {
	client, err := ethclient.DialContext(ctx, urlString)
	if err != nil {
		return nil, err
	}
	return &EthClient{
		Client: client,
		url:    urlString,
	}, nil
}

func (c *EthClient) URL() string {
	return c.url
}
