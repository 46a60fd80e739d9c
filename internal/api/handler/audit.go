package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ZakatLedger/internal/audit"
	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/digest"
	"github.com/jmerrifield20/ZakatLedger/internal/merkle"
	"go.uber.org/zap"
)

// AuditHandler serves the batch-integrity views of the ledger: the Merkle
// root over every committed fingerprint and per-block inclusion proofs.
type AuditHandler struct {
	ledger  *chain.Ledger
	monitor *audit.Monitor // nil = no background monitor
	logger  *zap.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(ledger *chain.Ledger, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{ledger: ledger, logger: logger}
}

// SetMonitor exposes the background monitor's last report on /audit/status.
func (h *AuditHandler) SetMonitor(m *audit.Monitor) {
	h.monitor = m
}

// Register mounts the audit routes on the given router group.
func (h *AuditHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/audit")
	{
		a.GET("/merkle", h.Merkle)
		a.GET("/proof/:idx", h.Proof)
		a.GET("/status", h.Status)
	}
}

// Merkle handles GET /audit/merkle. root is null for an empty ledger.
func (h *AuditHandler) Merkle(c *gin.Context) {
	leaves, err := h.ledger.Fingerprints(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger Fingerprints", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}
	if leaves == nil {
		leaves = []digest.Hash{}
	}

	var root *digest.Hash
	if r, ok := merkle.ComputeRoot(leaves); ok {
		root = &r
	}
	c.JSON(http.StatusOK, gin.H{
		"root":      root,
		"leafCount": len(leaves),
		"leaves":    leaves,
	})
}

// Proof handles GET /audit/proof/:idx and returns the inclusion proof of the
// fingerprint committed in block idx, together with the current root.
func (h *AuditHandler) Proof(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	leaves, err := h.ledger.Fingerprints(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger Fingerprints", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}
	tree := merkle.Build(leaves)
	if tree == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ledger is empty"})
		return
	}
	proof, err := tree.Proof(idx)
	if errors.Is(err, merkle.ErrLeafOutOfRange) {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build proof"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"root":  tree.Root(),
		"proof": proof,
	})
}

// Status handles GET /audit/status and returns the last background check.
func (h *AuditHandler) Status(c *gin.Context) {
	if h.monitor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "integrity monitor not running"})
		return
	}
	r, ok := h.monitor.Last()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no integrity check has completed yet"})
		return
	}
	c.JSON(http.StatusOK, r)
}
