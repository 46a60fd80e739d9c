package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/ZakatLedger/internal/auth"
	"github.com/jmerrifield20/ZakatLedger/internal/donation"
	"go.uber.org/zap"
)

// DonationHandler handles HTTP requests for recording and listing donations.
type DonationHandler struct {
	svc     *donation.Service
	tokens  *auth.TokenIssuer // nil = reads are public
	protect bool
	logger  *zap.Logger
}

// NewDonationHandler creates a new DonationHandler.
func NewDonationHandler(svc *donation.Service, logger *zap.Logger) *DonationHandler {
	return &DonationHandler{svc: svc, logger: logger}
}

// ProtectReads requires an admin token on the donation listing and lookup
// routes. Recording stays public.
func (h *DonationHandler) ProtectReads(tokens *auth.TokenIssuer) {
	h.tokens = tokens
	h.protect = tokens != nil
}

func (h *DonationHandler) readGuard() gin.HandlerFunc {
	if !h.protect {
		return func(c *gin.Context) { c.Next() }
	}
	return auth.RequireAdmin(h.tokens)
}

// Register mounts the donation routes on the given router group.
func (h *DonationHandler) Register(rg *gin.RouterGroup) {
	d := rg.Group("/donations")
	{
		d.POST("", h.Create)
		d.GET("", h.readGuard(), h.List)
		d.GET("/:id", h.readGuard(), h.Get)
	}
}

// Create handles POST /donations.
func (h *DonationHandler) Create(c *gin.Context) {
	rec, ok := h.record(c)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"donation":     rec.Donation,
		"block":        rec.Block,
		"metadataHash": rec.Donation.MetadataHash,
	})
}

// record binds and records a donation, writing the error response itself
// when it fails.
func (h *DonationHandler) record(c *gin.Context) (*donation.Recorded, bool) {
	var req donation.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	rec, err := h.svc.Record(c.Request.Context(), &req)
	if err != nil {
		var valErr *donation.ErrValidation
		if errors.As(err, &valErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Msg})
			return nil, false
		}
		h.logger.Error("record donation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record donation"})
		return nil, false
	}
	return rec, true
}

// List handles GET /donations.
func (h *DonationHandler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list donations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list donations"})
		return
	}
	if list == nil {
		list = []*donation.Donation{}
	}
	c.JSON(http.StatusOK, gin.H{"donations": list, "count": len(list)})
}

// Get handles GET /donations/:id. The response reports whether the stored
// receipt still reproduces its committed fingerprint.
func (h *DonationHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid donation ID"})
		return
	}

	d, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, donation.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "donation not found"})
			return
		}
		h.logger.Error("get donation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get donation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"donation":           d,
		"fingerprintMatches": d.FingerprintMatches(),
	})
}
