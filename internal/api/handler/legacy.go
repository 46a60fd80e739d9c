package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ZakatLedger/internal/donation"
	"go.uber.org/zap"
)

// LegacyHandler keeps the root-level routes of the first backend working for
// existing frontends: GET /, POST /donate, GET /donations and
// GET /blockchain-log.
type LegacyHandler struct {
	donations *DonationHandler
	ledger    *LedgerHandler
	logger    *zap.Logger
}

// NewLegacyHandler creates a LegacyHandler that delegates to the v1 handlers.
func NewLegacyHandler(donations *DonationHandler, ledger *LedgerHandler, logger *zap.Logger) *LegacyHandler {
	return &LegacyHandler{donations: donations, ledger: ledger, logger: logger}
}

// Register mounts the legacy routes at the router root.
func (h *LegacyHandler) Register(r gin.IRoutes) {
	r.GET("/", h.Index)
	r.POST("/donate", h.Donate)
	r.GET("/donations", h.donations.readGuard(), h.Donations)
	r.GET("/blockchain-log", h.ledger.Blocks)
}

// Index handles GET /.
func (h *LegacyHandler) Index(c *gin.Context) {
	c.String(http.StatusOK, "Zakat backend is running with storage + hash-linked ledger")
}

// Donate handles POST /donate with the pre-v1 response shape.
func (h *LegacyHandler) Donate(c *gin.Context) {
	rec, ok := h.donations.record(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"metadataHash": rec.Donation.MetadataHash,
		"receipt":      rec.Donation.Receipt,
		"block":        rec.Block,
		"message":      "Donation recorded, stored, and hash appended to the ledger.",
	})
}

// Donations handles GET /donations and returns the bare array.
func (h *LegacyHandler) Donations(c *gin.Context) {
	list, err := h.donations.svc.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list donations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	if list == nil {
		list = []*donation.Donation{}
	}
	c.JSON(http.StatusOK, list)
}
