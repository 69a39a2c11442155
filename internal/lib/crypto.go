package lib

import (
	"crypto/ecdsa"
	cryptorand "crypto/rand"
	"fmt"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func PrivKeyToAddr(privateKey *ecdsa.PrivateKey) (common.Address, error) {
	publicKey := privateKey.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("error casting public key to ECDSA")
	}

	return crypto.PubkeyToAddress(*publicKeyECDSA), nil
}

func PrivKeyStringToAddr(privateKey string) (common.Address, error) {
	privKey, err := crypto.HexToECDSA(privateKey)
	if err != nil {
		return common.Address{}, err
	}

	return PrivKeyToAddr(privKey)
}

func MustPrivKeyToAddr(privateKey *ecdsa.PrivateKey) common.Address {
	addr, err := PrivKeyToAddr(privateKey)
	if err != nil {
		panic(err)
	}
	return addr
}

func MustPrivKeyStringToAddr(privateKey string) common.Address {
	addr, err := PrivKeyStringToAddr(privateKey)
	if err != nil {
		panic(err)
	}
	return addr
}

// GetRandomAddr returns a random address, used in tests
func GetRandomAddr() common.Address {
	return common.BigToAddress(big.NewInt(rand.Int63()))
}

// GetRandomHash returns a cryptographically random 32-byte hash
func GetRandomHash() common.Hash {
	var h common.Hash
	_, _ = cryptorand.Read(h[:])
	return h
}

// StrShort shortens hex strings (addresses, hashes) for logging
func StrShort(str string) string {
	if len(str) <= 10 {
		return str
	}
	return fmt.Sprintf("%s..%s", str[:6], str[len(str)-4:])
}
