package httphandlers

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// CreateToken mints a bearer token for an address without any proof of
// key ownership. Development convenience only, disabled outside the
// development environment.
func (h *HTTPHandler) CreateToken(ctx *gin.Context) {
	if h.config.Environment != "development" {
		ctx.JSON(403, gin.H{"error": "token minting is disabled outside development"})
		return
	}

	var req TokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if !common.IsHexAddress(req.Address) {
		ctx.JSON(400, gin.H{"error": "invalid address"})
		return
	}

	addr := common.HexToAddress(req.Address)
	token, err := h.auth.Mint(addr)
	if err != nil {
		ctx.JSON(500, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(200, TokenResponse{
		Address:   addr.Hex(),
		Token:     token,
		ExpiresAt: time.Now().Add(h.config.Auth.TokenTTL).UTC().Format(time.RFC3339),
	})
}
