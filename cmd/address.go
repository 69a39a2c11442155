package main

import (
	"fmt"
	"strings"

	"gitlab.com/ConsignEx/escrowrouter/internal/config"
	"gitlab.com/ConsignEx/escrowrouter/internal/wallet"
)

type addressConfig struct {
	Wallet struct {
		Mnemonic     string `env:"WALLET_MNEMONIC"      flag:"wallet-mnemonic"      validate:"required_without=PrivateKey"`
		AccountIndex int    `env:"WALLET_ACCOUNT_INDEX" flag:"wallet-account-index" validate:"omitempty,number"`
		PrivateKey   string `env:"WALLET_PRIVATE_KEY"   flag:"wallet-private-key"   validate:"required_without=Mnemonic"`
	}
}

// printCustodyAddress resolves the custody wallet the same way the
// server does and prints its address. Operators fund this address for
// gas and buyers grant it their token allowance, so it is needed before
// the first boot.
func printCustodyAddress(args []string) error {
	var cfg addressConfig
	if err := config.LoadConfig(&cfg, &args); err != nil {
		return err
	}

	var (
		wlt *wallet.Wallet
		err error
	)
	if cfg.Wallet.PrivateKey != "" {
		wlt, err = wallet.NewWalletFromPrivateKey(strings.TrimPrefix(cfg.Wallet.PrivateKey, "0x"))
	} else {
		wlt, err = wallet.NewWalletFromMnemonic(cfg.Wallet.Mnemonic, cfg.Wallet.AccountIndex)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Custody address:\n%s\n", wlt.Address().Hex())
	return nil
}
