package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/subrat243/DeCent-Pay/internal/http/middleware"
	"github.com/subrat243/DeCent-Pay/internal/model"
	"github.com/subrat243/DeCent-Pay/internal/service"
)

type StatementRenderer interface {
	Generate(st model.EscrowStatement) ([]byte, error)
}

type ExportRenderer interface {
	Generate(export model.AccountExport) ([]byte, error)
}

type Handler struct {
	escrows    *service.EscrowService
	admin      *service.AdminService
	market     *service.MarketplaceService
	reputation *service.ReputationService
	statements StatementRenderer
	exports    ExportRenderer
	log        zerolog.Logger
}

type Services struct {
	Escrows    *service.EscrowService
	Admin      *service.AdminService
	Market     *service.MarketplaceService
	Reputation *service.ReputationService
}

func NewHandler(services Services, statements StatementRenderer, exports ExportRenderer, log zerolog.Logger) *Handler {
	return &Handler{
		escrows:    services.Escrows,
		admin:      services.Admin,
		market:     services.Market,
		reputation: services.Reputation,
		statements: statements,
		exports:    exports,
		log:        log,
	}
}

func (h *Handler) Register(router *gin.Engine, middlewares ...gin.HandlerFunc) {
	router.GET("/healthz", h.health)

	protected := router.Group("/")
	protected.Use(middlewares...)

	protected.POST("/escrows", h.createEscrow)
	protected.GET("/escrows/:id", h.getEscrow)
	protected.GET("/escrows/:id/milestones", h.getMilestones)
	protected.GET("/escrows/:id/milestones/:index", h.getMilestone)
	protected.POST("/escrows/:id/start", h.startWork)
	protected.POST("/escrows/:id/milestones/:index/submit", h.submitMilestone)
	protected.POST("/escrows/:id/milestones/:index/resubmit", h.resubmitMilestone)
	protected.POST("/escrows/:id/milestones/:index/approve", h.approveMilestone)
	protected.POST("/escrows/:id/milestones/:index/reject", h.rejectMilestone)
	protected.POST("/escrows/:id/milestones/:index/dispute", h.disputeMilestone)
	protected.POST("/escrows/:id/milestones/:index/resolve", h.resolveDispute)
	protected.POST("/escrows/:id/refund", h.refundEscrow)
	protected.POST("/escrows/:id/emergency-refund", h.emergencyRefund)
	protected.POST("/escrows/:id/extend", h.extendDeadline)
	protected.GET("/escrows/:id/statement.pdf", h.statementPDF)

	protected.POST("/escrows/:id/applications", h.applyToJob)
	protected.GET("/escrows/:id/applications", h.getApplications)
	protected.POST("/escrows/:id/accept", h.acceptFreelancer)
	protected.POST("/escrows/:id/rating", h.submitRating)
	protected.GET("/escrows/:id/rating", h.getRating)

	protected.GET("/accounts/:account/escrows", h.getUserEscrows)
	protected.GET("/accounts/:account/escrows/export.xlsx", h.exportAccountEscrows)
	protected.GET("/accounts/:account/reputation", h.getReputation)
	protected.GET("/accounts/:account/balances/:asset", h.getBalance)
	protected.GET("/custody/:asset", h.getCustody)

	admin := protected.Group("/admin")
	admin.GET("/settings", h.getSettings)
	admin.PUT("/fee", h.setPlatformFee)
	admin.PUT("/fee-collector", h.setFeeCollector)
	admin.PUT("/owner", h.setOwner)
	admin.POST("/tokens", h.whitelistToken)
	admin.POST("/arbiters", h.authorizeArbiter)
	admin.POST("/pause", h.pauseJobCreation)
	admin.POST("/unpause", h.unpauseJobCreation)
	admin.POST("/deposits", h.deposit)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createEscrowRequest struct {
	Beneficiary           *string        `json:"beneficiary"`
	Arbiters              []string       `json:"arbiters"`
	RequiredConfirmations uint32         `json:"required_confirmations"`
	MilestoneAmounts      []model.Amount `json:"milestone_amounts"`
	MilestoneDescriptions []string       `json:"milestone_descriptions"`
	Asset                 *string        `json:"asset"`
	TotalAmount           model.Amount   `json:"total_amount"`
	DurationSeconds       uint32         `json:"duration_seconds"`
	Title                 string         `json:"title"`
	Description           string         `json:"description"`
}

func (h *Handler) createEscrow(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req createEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	escrow, err := h.escrows.CreateEscrow(c.Request.Context(), service.CreateEscrowInput{
		Principal:             principal,
		Beneficiary:           req.Beneficiary,
		Arbiters:              req.Arbiters,
		RequiredConfirmations: req.RequiredConfirmations,
		MilestoneAmounts:      req.MilestoneAmounts,
		MilestoneDescriptions: req.MilestoneDescriptions,
		Asset:                 req.Asset,
		TotalAmount:           req.TotalAmount,
		DurationSeconds:       req.DurationSeconds,
		Title:                 req.Title,
		Description:           req.Description,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, escrow)
}

func (h *Handler) getEscrow(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}
	escrow, err := h.escrows.GetEscrow(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, escrow)
}

func (h *Handler) getMilestones(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}
	milestones, err := h.escrows.GetMilestones(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

func (h *Handler) getMilestone(c *gin.Context) {
	id, index, ok := h.milestoneRef(c)
	if !ok {
		return
	}
	milestone, err := h.escrows.GetMilestone(c.Request.Context(), id, index)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}

func (h *Handler) startWork(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.escrowID(c)
	if !ok {
		return
	}
	escrow, err := h.escrows.StartWork(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, escrow)
}

type milestoneTextRequest struct {
	Description string `json:"description"`
	Reason      string `json:"reason"`
}

func (h *Handler) submitMilestone(c *gin.Context) {
	h.milestoneText(c, h.escrows.SubmitMilestone, func(r milestoneTextRequest) string { return r.Description })
}

func (h *Handler) resubmitMilestone(c *gin.Context) {
	h.milestoneText(c, h.escrows.ResubmitMilestone, func(r milestoneTextRequest) string { return r.Description })
}

func (h *Handler) rejectMilestone(c *gin.Context) {
	h.milestoneText(c, h.escrows.RejectMilestone, func(r milestoneTextRequest) string { return r.Reason })
}

func (h *Handler) disputeMilestone(c *gin.Context) {
	h.milestoneText(c, h.escrows.DisputeMilestone, func(r milestoneTextRequest) string { return r.Reason })
}

type milestoneTextOp func(ctx context.Context, principal model.Principal, escrowID, index uint32, text string) (*model.Milestone, error)

func (h *Handler) milestoneText(c *gin.Context, op milestoneTextOp, text func(milestoneTextRequest) string) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, index, ok := h.milestoneRef(c)
	if !ok {
		return
	}
	var req milestoneTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	milestone, err := op(c.Request.Context(), principal, id, index, text(req))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}

func (h *Handler) approveMilestone(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, index, ok := h.milestoneRef(c)
	if !ok {
		return
	}
	escrow, err := h.escrows.ApproveMilestone(c.Request.Context(), principal, id, index)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, escrow)
}

type resolveDisputeRequest struct {
	Outcome          string       `json:"outcome" binding:"required"`
	BeneficiaryShare model.Amount `json:"beneficiary_share"`
}

func (h *Handler) resolveDispute(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, index, ok := h.milestoneRef(c)
	if !ok {
		return
	}
	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	milestone, err := h.escrows.ResolveDispute(c.Request.Context(), service.ResolveDisputeInput{
		Principal:        principal,
		EscrowID:         id,
		MilestoneIndex:   index,
		Outcome:          model.DisputeOutcome(strings.ToUpper(strings.TrimSpace(req.Outcome))),
		BeneficiaryShare: req.BeneficiaryShare,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}

func (h *Handler) refundEscrow(c *gin.Context) {
	h.escrowAction(c, h.escrows.RefundEscrow)
}

func (h *Handler) emergencyRefund(c *gin.Context) {
	h.escrowAction(c, h.escrows.EmergencyRefund)
}

type escrowActionOp func(ctx context.Context, principal model.Principal, escrowID uint32) (*model.Escrow, error)

func (h *Handler) escrowAction(c *gin.Context, op escrowActionOp) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.escrowID(c)
	if !ok {
		return
	}
	escrow, err := op(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, escrow)
}

type extendDeadlineRequest struct {
	ExtraSeconds uint32 `json:"extra_seconds"`
}

func (h *Handler) extendDeadline(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.escrowID(c)
	if !ok {
		return
	}
	var req extendDeadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	escrow, err := h.escrows.ExtendDeadline(c.Request.Context(), principal, id, req.ExtraSeconds)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, escrow)
}

func (h *Handler) statementPDF(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}
	statement, err := h.escrows.Statement(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	content, err := h.statements.Generate(statement)
	if err != nil {
		h.handleError(c, fmt.Errorf("render statement: %w", err))
		return
	}
	fileName := fmt.Sprintf("escrow-%d-statement.pdf", id)
	c.Header("Content-Disposition", "attachment; filename=\""+fileName+"\"")
	c.Data(http.StatusOK, "application/pdf", content)
}

type applyRequest struct {
	CoverLetter      string `json:"cover_letter"`
	ProposedTimeline uint32 `json:"proposed_timeline"`
}

func (h *Handler) applyToJob(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.escrowID(c)
	if !ok {
		return
	}
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	app, err := h.market.ApplyToJob(c.Request.Context(), service.ApplyInput{
		Principal:        principal,
		EscrowID:         id,
		CoverLetter:      req.CoverLetter,
		ProposedTimeline: req.ProposedTimeline,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

func (h *Handler) getApplications(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}
	apps, err := h.market.GetApplications(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps, "count": len(apps)})
}

type acceptRequest struct {
	Freelancer string `json:"freelancer" binding:"required"`
}

func (h *Handler) acceptFreelancer(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.escrowID(c)
	if !ok {
		return
	}
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	escrow, err := h.market.AcceptFreelancer(c.Request.Context(), principal, id, strings.TrimSpace(req.Freelancer))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, escrow)
}

type ratingRequest struct {
	Rating uint32 `json:"rating"`
	Review string `json:"review"`
}

func (h *Handler) submitRating(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.escrowID(c)
	if !ok {
		return
	}
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rating, err := h.reputation.SubmitRating(c.Request.Context(), service.RatingInput{
		Principal: principal,
		EscrowID:  id,
		Rating:    req.Rating,
		Review:    req.Review,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rating)
}

func (h *Handler) getRating(c *gin.Context) {
	id, ok := h.escrowID(c)
	if !ok {
		return
	}
	rating, err := h.reputation.GetRating(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rating)
}

func (h *Handler) getUserEscrows(c *gin.Context) {
	account := strings.TrimSpace(c.Param("account"))
	ids, err := h.escrows.GetUserEscrows(c.Request.Context(), account)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if ids == nil {
		ids = []uint32{}
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "escrow_ids": ids})
}

func (h *Handler) exportAccountEscrows(c *gin.Context) {
	account := strings.TrimSpace(c.Param("account"))
	export, err := h.escrows.AccountEscrows(c.Request.Context(), account)
	if err != nil {
		h.handleError(c, err)
		return
	}
	content, err := h.exports.Generate(export)
	if err != nil {
		h.handleError(c, fmt.Errorf("render export: %w", err))
		return
	}
	const contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	c.Header("Content-Disposition", "attachment; filename=\"escrows-"+account+".xlsx\"")
	c.Data(http.StatusOK, contentType, content)
}

func (h *Handler) getReputation(c *gin.Context) {
	summary, err := h.reputation.Summary(c.Request.Context(), strings.TrimSpace(c.Param("account")))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) getBalance(c *gin.Context) {
	account := strings.TrimSpace(c.Param("account"))
	asset := assetParam(c.Param("asset"))
	balance, err := h.admin.Balance(c.Request.Context(), account, asset)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "asset": c.Param("asset"), "balance": balance})
}

func (h *Handler) getCustody(c *gin.Context) {
	balance, err := h.escrows.AssetCustody(c.Request.Context(), assetParam(c.Param("asset")))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (h *Handler) getSettings(c *gin.Context) {
	settings, err := h.admin.GetSettings(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type feeRequest struct {
	FeeBP *uint32 `json:"fee_bp" binding:"required"`
}

func (h *Handler) setPlatformFee(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	var req feeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings, err := h.admin.SetPlatformFeeBP(c.Request.Context(), principal, *req.FeeBP)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type accountRequest struct {
	Account string `json:"account" binding:"required"`
}

func (h *Handler) setFeeCollector(c *gin.Context) {
	h.settingsAccount(c, h.admin.SetFeeCollector)
}

func (h *Handler) setOwner(c *gin.Context) {
	h.settingsAccount(c, h.admin.SetOwner)
}

func (h *Handler) settingsAccount(c *gin.Context, op func(ctx context.Context, principal model.Principal, account string) (*model.Settings, error)) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings, err := op(c.Request.Context(), principal, strings.TrimSpace(req.Account))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) whitelistToken(c *gin.Context) {
	h.registryAccount(c, h.admin.WhitelistToken)
}

func (h *Handler) authorizeArbiter(c *gin.Context) {
	h.registryAccount(c, h.admin.AuthorizeArbiter)
}

func (h *Handler) registryAccount(c *gin.Context, op func(ctx context.Context, principal model.Principal, account string) error) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	account := strings.TrimSpace(req.Account)
	if err := op(c.Request.Context(), principal, account); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

func (h *Handler) pauseJobCreation(c *gin.Context) {
	h.setPaused(c, true)
}

func (h *Handler) unpauseJobCreation(c *gin.Context) {
	h.setPaused(c, false)
}

func (h *Handler) setPaused(c *gin.Context, paused bool) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	settings, err := h.admin.SetJobCreationPaused(c.Request.Context(), principal, paused)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

type depositRequest struct {
	Account string       `json:"account" binding:"required"`
	Asset   *string      `json:"asset"`
	Amount  model.Amount `json:"amount"`
}

func (h *Handler) deposit(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	balance, err := h.admin.Deposit(c.Request.Context(), principal, strings.TrimSpace(req.Account), req.Asset, req.Amount)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": req.Account, "balance": balance})
}

func (h *Handler) principal(c *gin.Context) (model.Principal, bool) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		h.handleError(c, service.ErrUnauthorized)
		return model.Principal{}, false
	}
	return principal, true
}

func (h *Handler) escrowID(c *gin.Context) (uint32, bool) {
	id, err := parseUint32(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid escrow id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) milestoneRef(c *gin.Context) (uint32, uint32, bool) {
	id, ok := h.escrowID(c)
	if !ok {
		return 0, 0, false
	}
	index, err := parseUint32(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone index"})
		return 0, 0, false
	}
	return id, index, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status := statusFor(err)
	if coded, ok := service.AsError(err); ok {
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Str("path", c.FullPath()).Msg("invariant violated")
		}
		c.JSON(status, gin.H{"error": coded.Name, "code": coded.Code})
		return
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrEconomic):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrTransferFailed):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func parseUint32(raw string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// assetParam maps the path segment "native" to the native asset.
func assetParam(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, service.NativeAssetKey) {
		return nil
	}
	return &raw
}
