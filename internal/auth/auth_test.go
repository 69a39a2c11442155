package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
)

func TestMintVerifyRoundtrip(t *testing.T) {
	s := NewService("secret", time.Hour)
	addr := lib.GetRandomAddr()

	token, err := s.Mint(addr)
	require.NoError(t, err)

	verified, err := s.Verify(token)
	require.NoError(t, err)
	require.Equal(t, addr, verified)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	addr := lib.GetRandomAddr()
	token, err := NewService("one", time.Hour).Mint(addr)
	require.NoError(t, err)

	_, err = NewService("two", time.Hour).Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	s := NewService("secret", -time.Minute)
	token, err := s.Mint(lib.GetRandomAddr())
	require.NoError(t, err)

	_, err = s.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s := NewService("secret", time.Hour)

	_, err := s.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMissingAddrClaim(t *testing.T) {
	s := NewService("secret", time.Hour)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = s.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsUnsignedAlgorithm(t *testing.T) {
	s := NewService("secret", time.Hour)

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"addr": lib.GetRandomAddr().Hex(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}
