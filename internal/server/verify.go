package server

import (
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReconcilePool reports where the contract and the streams index disagree
// about one pool.
func (s *Server) ReconcilePool(c *gin.Context) {
	poolID, ok := new(big.Int).SetString(c.Param("id"), 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pool id"})
		return
	}

	report, err := s.game.Reconcile(c.Request.Context(), poolID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
