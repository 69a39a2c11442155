package ledger

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/ConsignEx/escrowrouter/internal/interfaces"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
	"gopkg.in/yaml.v3"
)

var (
	ErrInsufficientBalance   = fmt.Errorf("insufficient balance")
	ErrInsufficientAllowance = fmt.Errorf("insufficient allowance")
	ErrInvalidGenesis        = fmt.Errorf("invalid genesis file")
)

// SimLedger is an in-process value ledger with ERC-20 transfer
// semantics: balances per address and per-spender allowances. It backs
// development and test profiles where no chain is available.
type SimLedger struct {
	// config
	owner common.Address // acts as the spender for TransferFrom and the source for Transfer

	// state
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int // owner -> spender -> remaining
	mutex      lib.Mutex

	// deps
	log interfaces.ILogger
}

func NewSimLedger(owner common.Address, log interfaces.ILogger) *SimLedger {
	return &SimLedger{
		owner:      owner,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		mutex:      lib.NewMutex(),
		log:        log,
	}
}

// Genesis is the YAML-declared initial state of the simulated ledger.
// Amounts are decimal strings in base units.
type Genesis struct {
	Balances   map[string]string            `yaml:"balances"`
	Allowances map[string]map[string]string `yaml:"allowances"`
}

func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	genesis := &Genesis{}
	if err := yaml.Unmarshal(data, genesis); err != nil {
		return nil, lib.WrapError(ErrInvalidGenesis, err)
	}
	return genesis, nil
}

func NewSimLedgerFromGenesis(owner common.Address, genesis *Genesis, log interfaces.ILogger) (*SimLedger, error) {
	l := NewSimLedger(owner, log)

	for addr, amount := range genesis.Balances {
		value, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, lib.WrapError(ErrInvalidGenesis, fmt.Errorf("balance of %s: bad amount %q", addr, amount))
		}
		l.SetBalance(common.HexToAddress(addr), value)
	}

	for addr, spenders := range genesis.Allowances {
		for spender, amount := range spenders {
			value, ok := new(big.Int).SetString(amount, 10)
			if !ok {
				return nil, lib.WrapError(ErrInvalidGenesis, fmt.Errorf("allowance of %s: bad amount %q", addr, amount))
			}
			l.Approve(common.HexToAddress(addr), common.HexToAddress(spender), value)
		}
	}

	log.Infof("sim ledger initialized with %d balances and %d allowances", len(genesis.Balances), len(genesis.Allowances))
	return l, nil
}

// SetBalance overwrites the balance of addr, used by genesis loading
// and tests
func (l *SimLedger) SetBalance(addr common.Address, amount *big.Int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.balances[addr] = new(big.Int).Set(amount)
}

// Approve sets the remaining allowance spender may pull from owner
func (l *SimLedger) Approve(owner, spender common.Address, amount *big.Int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		l.allowances[owner] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)
}

func (l *SimLedger) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	if err := l.mutex.LockCtx(ctx); err != nil {
		return nil, err
	}
	defer l.mutex.Unlock()

	return new(big.Int).Set(l.balance(addr)), nil
}

// TransferFrom moves amount from "from" to "to", spending the allowance
// granted by "from" to the ledger owner. Balance and allowance are
// checked before any mutation, a failed transfer changes nothing.
func (l *SimLedger) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative amount %s", amount)
	}
	if err := l.mutex.LockCtx(ctx); err != nil {
		return err
	}
	defer l.mutex.Unlock()

	balance := l.balance(from)
	if balance.Cmp(amount) < 0 {
		return lib.WrapError(ErrInsufficientBalance, fmt.Errorf("%s has %s, needs %s", from, balance, amount))
	}

	allowance := l.allowance(from, l.owner)
	if allowance.Cmp(amount) < 0 {
		return lib.WrapError(ErrInsufficientAllowance, fmt.Errorf("%s allowed %s to %s, needs %s", from, allowance, l.owner, amount))
	}

	allowance.Sub(allowance, amount)
	l.move(from, to, amount)
	return nil
}

// Transfer moves amount out of the owner custody balance
func (l *SimLedger) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative amount %s", amount)
	}
	if err := l.mutex.LockCtx(ctx); err != nil {
		return err
	}
	defer l.mutex.Unlock()

	balance := l.balance(l.owner)
	if balance.Cmp(amount) < 0 {
		return lib.WrapError(ErrInsufficientBalance, fmt.Errorf("custody has %s, needs %s", balance, amount))
	}

	l.move(l.owner, to, amount)
	return nil
}

// callers must hold the mutex
func (l *SimLedger) balance(addr common.Address) *big.Int {
	b, ok := l.balances[addr]
	if !ok {
		b = new(big.Int)
		l.balances[addr] = b
	}
	return b
}

// callers must hold the mutex
func (l *SimLedger) allowance(owner, spender common.Address) *big.Int {
	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		l.allowances[owner] = spenders
	}
	a, ok := spenders[spender]
	if !ok {
		a = new(big.Int)
		spenders[spender] = a
	}
	return a
}

// callers must hold the mutex
func (l *SimLedger) move(from, to common.Address, amount *big.Int) {
	l.balance(from).Sub(l.balance(from), amount)
	l.balance(to).Add(l.balance(to), amount)
}
