package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/auth"
)

// Nonce starts a wallet login: the client signs the returned message.
func (s *Server) Nonce(c *gin.Context) {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}

	addr := common.HexToAddress(req.Address)
	nonce := s.nonces.Issue(addr.Hex())
	c.JSON(http.StatusOK, gin.H{
		"nonce":   nonce,
		"message": auth.LoginMessage(addr, nonce),
	})
}

// Login exchanges a signed nonce for a session token. Only the contract
// owner gets one.
func (s *Server) Login(c *gin.Context) {
	if !s.auth.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token auth is not configured"})
		return
	}

	var req struct {
		Address   string `json:"address"`
		Nonce     string `json:"nonce"`
		Signature string `json:"signature"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !common.IsHexAddress(req.Address) || req.Nonce == "" || req.Signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}
	addr := common.HexToAddress(req.Address)

	if !s.nonces.Consume(addr.Hex(), req.Nonce) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired nonce"})
		return
	}
	signer, err := auth.RecoverAddress(auth.LoginMessage(addr, req.Nonce), req.Signature)
	if err != nil || signer != addr {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	owner, err := s.game.Owner(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if addr != owner {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the contract owner can log in"})
		return
	}

	token, err := s.auth.GenerateToken(addr)
	if err != nil {
		s.log.Error("sign token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	s.log.Info("owner logged in", zap.String("address", addr.Hex()))

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"address": addr.Hex(),
	})
}
