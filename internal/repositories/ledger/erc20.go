package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"gitlab.com/ConsignEx/escrowrouter/internal/interfaces"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[{"name":"sender","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const txTimeout = 1 * time.Minute

var ErrTxReverted = fmt.Errorf("transaction reverted")

// ERC20Ledger settles value movements against an ERC-20 token contract.
// The owner address must match the configured private key, it is the
// custody account escrowed funds sit in between Lock and Finalize.
type ERC20Ledger struct {
	// config
	tokenAddr common.Address
	owner     common.Address
	privKey   string
	legacyTx  bool // use legacy transaction fee, for local node testing

	// state
	nonce uint64
	mutex sync.Mutex

	// deps
	token  *bind.BoundContract
	client EthereumClient
	log    interfaces.ILogger
}

func NewERC20Ledger(tokenAddr, owner common.Address, privKey string, legacyTx bool, client EthereumClient, log interfaces.ILogger) (*ERC20Ledger, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic("invalid erc20 ABI: " + err.Error())
	}

	keyAddr, err := lib.PrivKeyStringToAddr(privKey)
	if err != nil {
		return nil, err
	}
	if keyAddr != owner {
		return nil, fmt.Errorf("custody key address %s does not match owner %s", keyAddr, owner)
	}

	return &ERC20Ledger{
		tokenAddr: tokenAddr,
		owner:     owner,
		privKey:   privKey,
		legacyTx:  legacyTx,
		token:     bind.NewBoundContract(tokenAddr, parsed, client, client, client),
		client:    client,
		log:       log,
	}, nil
}

func (g *ERC20Ledger) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	var out []interface{}
	err := g.token.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", addr)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (g *ERC20Ledger) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	var out []interface{}
	err := g.token.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (g *ERC20Ledger) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return g.transact(ctx, "transferFrom", from, to, amount)
}

func (g *ERC20Ledger) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return g.transact(ctx, "transfer", to, amount)
}

func (g *ERC20Ledger) transact(ctx context.Context, method string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	opts, err := g.getTransactOpts(ctx)
	if err != nil {
		return err
	}

	tx, err := g.token.Transact(opts, method, args...)
	if err != nil {
		return err
	}

	receipt, err := bind.WaitMined(ctx, g.client, tx)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return lib.WrapError(ErrTxReverted, fmt.Errorf("%s tx %s", method, tx.Hash()))
	}

	g.log.Debugw("token transaction mined", "method", method, "tx", lib.StrShort(tx.Hash().Hex()))
	return nil
}

func (g *ERC20Ledger) getTransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	privateKey, err := crypto.HexToECDSA(g.privKey)
	if err != nil {
		return nil, err
	}

	chainId, err := g.client.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	transactOpts, err := bind.NewKeyedTransactorWithChainID(privateKey, chainId)
	if err != nil {
		return nil, err
	}

	if g.legacyTx {
		gasPrice, err := g.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, err
		}
		transactOpts.GasPrice = gasPrice
	}

	nonce, err := g.getNonce(ctx, g.owner)
	if err != nil {
		return nil, err
	}

	transactOpts.Value = big.NewInt(0)
	transactOpts.Nonce = nonce
	transactOpts.Context = ctx

	return transactOpts, nil
}

// getNonce serializes nonce assignment so concurrent payout legs do not
// collide on the same pending nonce
func (g *ERC20Ledger) getNonce(ctx context.Context, from common.Address) (*big.Int, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	nonce := &big.Int{}
	blockchainNonce, err := g.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nonce, err
	}

	if g.nonce > blockchainNonce {
		nonce.SetUint64(g.nonce)
	} else {
		nonce.SetUint64(blockchainNonce)
	}

	g.nonce = nonce.Uint64() + 1

	return nonce, nil
}
