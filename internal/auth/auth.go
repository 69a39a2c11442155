package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
)

var ErrInvalidToken = errors.New("invalid bearer token")

// Service mints and verifies bearer tokens that bind the caller to a
// ledger address. The router trusts the binding, not the transport, so
// the same token works from any client.
type Service struct {
	secret []byte
	ttl    time.Duration
}

func NewService(secret string, ttl time.Duration) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Mint issues a signed token carrying the address as the "addr" claim
func (s *Service) Mint(addr common.Address) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"addr": addr.Hex(),
		"exp":  now.Add(s.ttl).Unix(),
		"iat":  now.Unix(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature and expiry and returns the bound address
func (s *Service) Verify(tokenString string) (common.Address, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return common.Address{}, lib.WrapError(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return common.Address{}, ErrInvalidToken
	}

	addrHex, ok := claims["addr"].(string)
	if !ok || !common.IsHexAddress(addrHex) {
		return common.Address{}, lib.WrapError(ErrInvalidToken, fmt.Errorf("missing or malformed addr claim"))
	}

	return common.HexToAddress(addrHex), nil
}
