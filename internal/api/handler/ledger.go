package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/chainfile"
	"go.uber.org/zap"
)

// LedgerHandler exposes read-only HTTP endpoints for the donation ledger.
type LedgerHandler struct {
	ledger *chain.Ledger
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger *chain.Ledger, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/blocks", h.Blocks)
		l.GET("/blocks/:idx", h.GetBlock)
		l.GET("/verify", h.Verify)
		l.GET("/export", h.Export)
	}
}

// Overview handles GET /ledger and returns the chain length and tip.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	n, err := h.ledger.Len(ctx)
	if err != nil {
		h.logger.Error("ledger Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	tip, err := h.ledger.Tip(ctx)
	if err != nil {
		h.logger.Error("ledger Tip", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger tip"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"length": n,
		"tip":    tip,
	})
}

// Blocks handles GET /ledger/blocks and returns the raw ordered chain.
func (h *LedgerHandler) Blocks(c *gin.Context) {
	blocks, ok := h.snapshot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, blocks)
}

// GetBlock handles GET /ledger/blocks/:idx.
func (h *LedgerHandler) GetBlock(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	b, err := h.ledger.Get(c.Request.Context(), idx)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
			return
		}
		h.logger.Error("ledger Get", zap.Int("idx", idx), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get block"})
		return
	}
	c.JSON(http.StatusOK, b)
}

// Verify handles GET /ledger/verify. A broken chain is still a 200: the
// result body carries the first violation.
func (h *LedgerHandler) Verify(c *gin.Context) {
	res, err := h.ledger.Verify(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger Verify", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}
	if !res.Valid {
		h.logger.Warn("ledger integrity check failed", zap.Error(res.Err()))
	}
	RecordLedgerCheck(res.Valid, res.Length)
	c.JSON(http.StatusOK, res)
}

// Export handles GET /ledger/export?format=json|cbor and streams the chain as
// a downloadable file.
func (h *LedgerHandler) Export(c *gin.Context) {
	format, err := chainfile.ParseFormat(c.DefaultQuery("format", string(chainfile.JSON)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	blocks, ok := h.snapshot(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := chainfile.Encode(&buf, blocks, format); err != nil {
		if errors.Is(err, chainfile.ErrMalformedBlock) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("export ledger", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export ledger"})
		return
	}

	contentType := "application/json"
	if format == chainfile.CBOR {
		contentType = "application/cbor"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="ledger.%s"`, format))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *LedgerHandler) snapshot(c *gin.Context) ([]chain.Block, bool) {
	blocks, err := h.ledger.Blocks(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger Blocks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return nil, false
	}
	if blocks == nil {
		blocks = []chain.Block{}
	}
	return blocks, true
}
