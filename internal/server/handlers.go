package server

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/errs"
	"github.com/Kali-Decoder/somnia-data-stream-dice-roll/internal/models"
)

// value holds a request field that clients send either as a JSON string
// or a JSON number. Absent, null and "" all read as empty.
type value string

func (v *value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = value(strings.TrimSpace(s))
	default:
		*v = value(data)
	}
	return nil
}

func (v value) empty() bool { return v == "" }

func (v value) integer(name string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(string(v), 10)
	if !ok {
		return nil, errs.Invalidf("Invalid %s: %q is not an integer", name, string(v))
	}
	return n, nil
}

type poolRequest struct {
	Action         string `json:"action"`
	PoolID         value  `json:"poolId"`
	TotalPlayers   value  `json:"totalPlayers"`
	BaseAmount     value  `json:"baseAmount"`
	UserAddress    value  `json:"userAddress"`
	Amount         value  `json:"amount"`
	TargetValue    value  `json:"targetValue"`
	Reward         value  `json:"reward"`
	ResultValue    value  `json:"resultValue"`
	TotalPoolCount value  `json:"totalPoolCount"`
}

type poolAction func(c *gin.Context, req *poolRequest) (any, error)

// Actions that change the contract or set outcomes need the owner token.
var ownerActions = map[string]bool{
	"createPool": true,
	"setResult":  true,
	"rollResult": true,
}

func (s *Server) poolActions() map[string]poolAction {
	return map[string]poolAction{
		"createPool":  s.createPool,
		"placeBet":    s.placeBet,
		"claimBet":    s.claimBet,
		"setResult":   s.setResult,
		"rollResult":  s.rollResult,
		"getAllPools": s.getAllPools,
		"getPoolById": s.getPoolByID,
		"getPoolBets": s.getPoolBets,
	}
}

// Pool dispatches POST /api/pool on the body's action field.
func (s *Server) Pool(c *gin.Context) {
	var req poolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	c.Set(ctxAction, req.Action)

	handle, ok := s.poolActions()[req.Action]
	if !ok {
		c.Set(ctxAction, "unknown")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action: " + req.Action})
		return
	}
	if ownerActions[req.Action] && !s.requireOwner(c) {
		return
	}

	resp, err := handle(c, &req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func missing(fields ...string) error {
	if len(fields) == 1 {
		return errs.Invalidf("Missing required field: %s", fields[0])
	}
	return errs.Invalidf("Missing required fields: %s", strings.Join(fields, ", "))
}

func anyEmpty(vs ...value) bool {
	for _, v := range vs {
		if v.empty() {
			return true
		}
	}
	return false
}

func parseAddress(v value) (common.Address, error) {
	if !common.IsHexAddress(string(v)) {
		return common.Address{}, errs.Invalidf("Invalid userAddress: %q", string(v))
	}
	return common.HexToAddress(string(v)), nil
}

func (s *Server) createPool(c *gin.Context, req *poolRequest) (any, error) {
	if anyEmpty(req.PoolID, req.TotalPlayers, req.BaseAmount) {
		return nil, missing("poolId", "totalPlayers", "baseAmount")
	}
	poolID, err := req.PoolID.integer("poolId")
	if err != nil {
		return nil, err
	}
	players, err := req.TotalPlayers.integer("totalPlayers")
	if err != nil {
		return nil, err
	}
	base, err := models.ParseEther(string(req.BaseAmount))
	if err != nil {
		return nil, errs.Invalidf("Invalid baseAmount: %v", err)
	}

	s.log.Info("creating pool",
		zap.String("pool", poolID.String()),
		zap.String("players", players.String()),
		zap.String("base_wei", base.String()))
	return s.game.CreatePool(c.Request.Context(), poolID, players, base.Big())
}

func (s *Server) placeBet(c *gin.Context, req *poolRequest) (any, error) {
	if anyEmpty(req.PoolID, req.UserAddress, req.Amount, req.TargetValue) {
		return nil, missing("poolId", "userAddress", "amount", "targetValue")
	}
	poolID, err := req.PoolID.integer("poolId")
	if err != nil {
		return nil, err
	}
	user, err := parseAddress(req.UserAddress)
	if err != nil {
		return nil, err
	}
	amount, err := req.Amount.integer("amount")
	if err != nil {
		return nil, err
	}
	target, err := req.TargetValue.integer("targetValue")
	if err != nil {
		return nil, err
	}
	return s.game.PlaceBet(c.Request.Context(), poolID, user, amount, target)
}

func (s *Server) claimBet(c *gin.Context, req *poolRequest) (any, error) {
	if anyEmpty(req.PoolID, req.UserAddress, req.Reward) {
		return nil, missing("poolId", "userAddress", "reward")
	}
	poolID, err := req.PoolID.integer("poolId")
	if err != nil {
		return nil, err
	}
	user, err := parseAddress(req.UserAddress)
	if err != nil {
		return nil, err
	}
	reward, err := req.Reward.integer("reward")
	if err != nil {
		return nil, err
	}
	return s.game.ClaimBet(c.Request.Context(), poolID, user, reward)
}

func (s *Server) setResult(c *gin.Context, req *poolRequest) (any, error) {
	if anyEmpty(req.PoolID, req.ResultValue) {
		return nil, missing("poolId", "resultValue")
	}
	poolID, err := req.PoolID.integer("poolId")
	if err != nil {
		return nil, err
	}
	result, err := req.ResultValue.integer("resultValue")
	if err != nil {
		return nil, err
	}
	return s.game.SetResult(c.Request.Context(), poolID, result)
}

func (s *Server) rollResult(c *gin.Context, req *poolRequest) (any, error) {
	if req.PoolID.empty() {
		return nil, missing("poolId")
	}
	poolID, err := req.PoolID.integer("poolId")
	if err != nil {
		return nil, err
	}
	return s.game.RollResult(c.Request.Context(), poolID)
}

func (s *Server) getAllPools(c *gin.Context, req *poolRequest) (any, error) {
	var limit *int
	if !req.TotalPoolCount.empty() {
		n, err := strconv.Atoi(string(req.TotalPoolCount))
		if err != nil || n < 0 {
			return nil, errs.Invalidf("Invalid totalPoolCount value")
		}
		if n == 0 {
			return gin.H{"pools": []models.Pool{}}, nil
		}
		limit = &n
	}

	pools, err := s.game.GetPools(c.Request.Context(), limit)
	if err != nil {
		return nil, err
	}
	return gin.H{"pools": pools}, nil
}

func (s *Server) getPoolByID(c *gin.Context, req *poolRequest) (any, error) {
	if req.PoolID.empty() {
		return nil, missing("poolId")
	}
	poolID, err := req.PoolID.integer("poolId")
	if err != nil {
		return nil, err
	}
	pool, err := s.game.GetPoolByID(c.Request.Context(), poolID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, errs.NotFoundf("Pool not found")
	}
	return gin.H{"pool": pool}, nil
}

func (s *Server) getPoolBets(c *gin.Context, req *poolRequest) (any, error) {
	if req.PoolID.empty() {
		return nil, missing("poolId")
	}
	poolID, err := req.PoolID.integer("poolId")
	if err != nil {
		return nil, err
	}
	return gin.H{"bets": s.game.GetPoolBets(c.Request.Context(), poolID)}, nil
}

// Points serves POST /api/points.
func (s *Server) Points(c *gin.Context) {
	var req struct {
		Action      string `json:"action"`
		UserAddress value  `json:"userAddress"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	c.Set(ctxAction, req.Action)

	if req.Action != "getUserPoints" {
		c.Set(ctxAction, "unknown")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action: " + req.Action})
		return
	}
	if req.UserAddress.empty() {
		s.fail(c, missing("userAddress"))
		return
	}
	user, err := parseAddress(req.UserAddress)
	if err != nil {
		s.fail(c, err)
		return
	}

	points, err := s.game.GetUserPoints(c.Request.Context(), user)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"points":      points.String(),
		"totalPoints": points.String(),
	})
}

// Stats serves GET and POST /api/stats.
func (s *Server) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stats": s.game.GetStats(c.Request.Context())})
}

// fail writes err as {"error": ...} with the status its kind maps to.
func (s *Server) fail(c *gin.Context, err error) {
	code := errs.StatusCode(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("action", c.GetString(ctxAction)),
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(code, gin.H{"error": errs.Message(err)})
}
