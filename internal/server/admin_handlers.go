package server

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/database"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

func pageSize(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("limit", strconv.Itoa(defaultPageSize))
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, false
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return limit, true
}

func (s *Server) Leaderboard(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "leaderboard is not available"})
		return
	}

	timeframe := c.DefaultQuery("timeframe", "all")
	if !database.ValidTimeframe(timeframe) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timeframe"})
		return
	}
	limit, ok := pageSize(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	board, err := s.db.GetLeaderboard(c.Request.Context(), timeframe, limit)
	if err != nil {
		s.log.Error("leaderboard query", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get leaderboard"})
		return
	}
	players, err := s.db.CountPlayers(c.Request.Context(), timeframe)
	if err != nil {
		s.log.Error("player count query", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get leaderboard"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": board, "totalPlayers": players})
}

func (s *Server) PlayerActivity(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "activity is not available"})
		return
	}

	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	limit, ok := pageSize(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	activity, err := s.db.GetActivity(c.Request.Context(), common.HexToAddress(address), limit)
	if err != nil {
		s.log.Error("activity query", zap.String("address", address), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get activity"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": activity})
}
