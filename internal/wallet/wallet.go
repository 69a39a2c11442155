package wallet

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
)

// Wallet is the custody account the router transacts from. On the
// simulated ledger only the address matters, on chain the private key
// signs the transfer transactions.
type Wallet struct {
	address    common.Address
	privateKey string
}

func NewWalletFromMnemonic(mnemonic string, accountIndex int) (*Wallet, error) {
	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}

	path := hdwallet.MustParseDerivationPath(fmt.Sprintf("m/44'/60'/0'/0/%d", accountIndex))

	account, err := wallet.Derive(path, false)
	if err != nil {
		return nil, err
	}

	address, err := wallet.Address(account)
	if err != nil {
		return nil, err
	}

	privateKey, err := wallet.PrivateKeyHex(account)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		address:    address,
		privateKey: privateKey,
	}, nil
}

func NewWalletFromPrivateKey(privateKey string) (*Wallet, error) {
	address, err := lib.PrivKeyStringToAddr(privateKey)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		address:    address,
		privateKey: privateKey,
	}, nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

func (w *Wallet) PrivateKeyHex() string {
	return w.privateKey
}
