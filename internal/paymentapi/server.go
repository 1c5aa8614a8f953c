// Package paymentapi is the user-facing trigger for PaymentOrchestrator
// (the orchestrator's single public operation), bound to its own listen_port
// rather than the operator service's port so the two trust boundaries —
// "anyone can ask us to settle their payment" versus "only the operator
// calls /claim and /transfer directly" — stay on separate listeners.
package paymentapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/protocolbridge/ln-escrow-bridge/internal/orchestrator"
)

// Orchestrator is the subset of *orchestrator.Orchestrator this server
// drives.
type Orchestrator interface {
	ProcessPaymentRequest(ctx context.Context, paymentHash string, bolt11Invoice string) (orchestrator.PayResult, error)
}

// Server wires the public payment-request route onto a gin.Engine.
type Server struct {
	Router *gin.Engine

	orch Orchestrator
	log  *zap.Logger
}

// New builds the payment-request server.
func New(orch Orchestrator, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	s := &Server{Router: router, orch: orch, log: log}
	router.POST("/pay", s.handlePay)
	router.GET("/health", s.handleHealth)
	return s
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
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

type payRequest struct {
	PaymentHash string `json:"payment_hash" binding:"required"`
	Bolt11      string `json:"bolt11"`
}

// handlePay drives process_payment_request. Status mapping
// follows orchestrator.StatusClass's taxonomy.
func (s *Server) handlePay(c *gin.Context) {
	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_request", "error": err.Error()})
		return
	}

	result, err := s.orch.ProcessPaymentRequest(c.Request.Context(), req.PaymentHash, req.Bolt11)
	if err != nil {
		status := orchestrator.StatusClass(err)
		s.log.Warn("process payment request failed", zap.String("payment_hash", req.PaymentHash), zap.Error(err))
		c.JSON(status, gin.H{"status": errorCode(err), "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": result.Status, "tx_hash": result.TxHash, "payment_hash": result.Hash})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ready": true})
}

// errorCode unwraps to the root sentinel's message, which doubles as the
// stable machine-readable code.
func errorCode(err error) string {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err.Error()
		}
		err = unwrapped
	}
}
