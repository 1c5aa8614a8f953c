// Package httpapi is the operator service: POST /claim,
// POST /transfer, GET /health, plus a read-only debug route for inspecting
// in-flight payments. It is deliberately unauthenticated and meant to be
// bound to localhost only — accepted as the bridge's trust model rather
// than papered over with invented auth.
package httpapi

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/protocolbridge/ln-escrow-bridge/internal/chain"
	"github.com/protocolbridge/ln-escrow-bridge/internal/escrow"
	"github.com/protocolbridge/ln-escrow-bridge/internal/store"
)

// Server wires the operator routes onto a gin.Engine.
type Server struct {
	Router *gin.Engine

	chainGW *chain.Gateway
	store   *store.Store
	log     *zap.Logger
}

// New builds the operator HTTP server.
func New(chainGW *chain.Gateway, st *store.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginZapLogger(log))

	s := &Server{Router: router, chainGW: chainGW, store: st, log: log}
	router.POST("/claim", s.handleClaim)
	router.POST("/transfer", s.handleTransfer)
	router.GET("/health", s.handleHealth)
	router.GET("/internal/debug/payments/:hash", s.handleDebugPayment)
	return s
}

// ginZapLogger gives each request a structured log line in the style of a
// logging middleware (teslacoil's build.GinLoggingMiddleWare), using zap
// instead of logrus.
func ginZapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

type claimRequest struct {
	PaymentHash string `json:"payment_hash" binding:"required"`
	PreimageHex string `json:"preimage_hex" binding:"required"`
}

func (s *Server) handleClaim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_request", "error": err.Error()})
		return
	}

	hashWord, err := escrow.Word256FromHex(req.PaymentHash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_payment_hash"})
		return
	}
	preimage, err := hex.DecodeString(trimHex(req.PreimageHex))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_preimage"})
		return
	}

	txHash, err := s.chainGW.SubmitClaim(c.Request.Context(), hashWord, preimage)
	if err != nil {
		s.log.Error("operator claim failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "claim_failed", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "claimed", "tx_hash": txHash})
}

type transferRequest struct {
	RecipientAddress string `json:"recipient_address" binding:"required"`
	AmountSats       int64  `json:"amount_sats" binding:"required"`
}

func (s *Server) handleTransfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_request", "error": err.Error()})
		return
	}
	if req.AmountSats <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_amount_sats"})
		return
	}

	txHash, units, err := s.chainGW.SubmitTransfer(c.Request.Context(), req.RecipientAddress, req.AmountSats)
	if err != nil {
		s.log.Error("operator transfer failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "transfer_failed", "error": err.Error()})
		return
	}
	amountUnits := ""
	if units != nil {
		amountUnits = units.String()
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent", "tx_hash": txHash, "amount_units": amountUnits})
}

// handleHealth reports readiness: the escrow RPC is
// reachable. The nonce lane and the Lightning node are not checked.
// ErrNotLockedOnchain from a
// zero-hash probe counts as reachable — the RPC round-tripped, it simply
// found nothing locked at that hash.
func (s *Server) handleHealth(c *gin.Context) {
	ready := true
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if s.chainGW != nil {
		_, err := s.chainGW.LoadEscrow(ctx, escrow.Word256{})
		if err != nil && !errors.Is(err, chain.ErrNotLockedOnchain) {
			ready = false
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "ready": ready})
}

// handleDebugPayment serves the full payment record, including its
// audit-trail history, operator-only, not a user-facing surface.
func (s *Server) handleDebugPayment(c *gin.Context) {
	hash := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Param("hash"))), "0x")
	rec, ok, err := s.store.GetPayment(hash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func trimHex(s string) string {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}
