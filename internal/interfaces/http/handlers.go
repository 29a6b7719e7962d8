package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	directory service.DirectoryService
	claims    service.ClaimService
	health    HealthChecker
	logger    Logger
	now       func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(directory service.DirectoryService, claims service.ClaimService, health HealthChecker, logger Logger) *Handlers {
	return &Handlers{
		directory: directory,
		claims:    claims,
		health:    health,
		logger:    logger,
		now:       time.Now,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// CreateUserRequest is the body of POST /users
type CreateUserRequest struct {
	Email             string `json:"email" binding:"required"`
	Name              string `json:"name" binding:"required"`
	Role              string `json:"role" binding:"required"`
	ManagerID         *int64 `json:"manager_id"`
	IsManagerApprover bool   `json:"is_manager_approver"`
	LarkOpenID        string `json:"lark_open_id"`
}

// UpdateUserRequest is the body of PUT /users/:id. Omitted fields are kept.
type UpdateUserRequest struct {
	Name              *string `json:"name"`
	Role              *string `json:"role"`
	ManagerID         *int64  `json:"manager_id"`
	IsManagerApprover *bool   `json:"is_manager_approver"`
	LarkOpenID        *string `json:"lark_open_id"`
}

// SubmitClaimRequest is the body of POST /claims
type SubmitClaimRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category" binding:"required"`
	Description string          `json:"description"`
	ExpenseDate string          `json:"expense_date"` // YYYY-MM-DD
}

// VoteRequest is the body of PUT /claims/:id/vote
type VoteRequest struct {
	Decision string `json:"decision" binding:"required"`
	Comment  string `json:"comment"`
}

// RulesRequest is the body of PUT /claims/:id/rules
type RulesRequest struct {
	Approvers          []int64 `json:"approvers"`
	Percentage         float64 `json:"percentage"`
	OverrideApproverID *int64  `json:"override_approver_id"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.health != nil {
		resp.Components = make(map[string]string)
		for name, err := range h.health.Health(c.Request.Context()) {
			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// Me handles GET /api/v1/me
func (h *Handlers) Me(c *gin.Context) {
	user, _ := currentUser(c)
	respondOK(c, http.StatusOK, user)
}

// CreateUser handles POST /api/v1/users
func (h *Handlers) CreateUser(c *gin.Context) {
	actor, _ := currentUser(c)

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	user, err := h.directory.CreateUser(c.Request.Context(), actor.ID, service.CreateUserInput{
		Email:             req.Email,
		Name:              req.Name,
		Role:              entity.Role(strings.ToUpper(strings.TrimSpace(req.Role))),
		ManagerID:         req.ManagerID,
		IsManagerApprover: req.IsManagerApprover,
		LarkOpenID:        req.LarkOpenID,
	})
	if err != nil {
		h.respondError(c, "create user", err)
		return
	}
	respondOK(c, http.StatusCreated, user)
}

// UpdateUser handles PUT /api/v1/users/:id
func (h *Handlers) UpdateUser(c *gin.Context) {
	actor, _ := currentUser(c)
	id, ok := pathID(c, "user")
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	input := service.UpdateUserInput{
		Name:              req.Name,
		ManagerID:         req.ManagerID,
		IsManagerApprover: req.IsManagerApprover,
		LarkOpenID:        req.LarkOpenID,
	}
	if req.Role != nil {
		role := entity.Role(strings.ToUpper(strings.TrimSpace(*req.Role)))
		input.Role = &role
	}

	user, err := h.directory.UpdateUser(c.Request.Context(), actor.ID, id, input)
	if err != nil {
		h.respondError(c, "update user", err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// ListUsers handles GET /api/v1/users
func (h *Handlers) ListUsers(c *gin.Context) {
	actor, _ := currentUser(c)

	users, err := h.directory.ListUsers(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, "list users", err)
		return
	}
	respondOK(c, http.StatusOK, users)
}

// SubmitClaim handles POST /api/v1/claims
func (h *Handlers) SubmitClaim(c *gin.Context) {
	actor, _ := currentUser(c)

	var req SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var expenseDate time.Time
	if req.ExpenseDate != "" {
		d, err := time.Parse(time.DateOnly, req.ExpenseDate)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "expense_date must be YYYY-MM-DD")
			return
		}
		expenseDate = d
	}

	claim, err := h.claims.Submit(c.Request.Context(), service.SubmitClaimInput{
		SubmitterID: actor.ID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
		ExpenseDate: expenseDate,
	})
	if err != nil {
		h.respondError(c, "submit claim", err)
		return
	}
	respondOK(c, http.StatusCreated, claim)
}

// ListAllClaims handles GET /api/v1/claims
func (h *Handlers) ListAllClaims(c *gin.Context) {
	actor, _ := currentUser(c)

	claims, err := h.claims.ListAll(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, "list claims", err)
		return
	}
	respondOK(c, http.StatusOK, claims)
}

// ListMyClaims handles GET /api/v1/claims/mine
func (h *Handlers) ListMyClaims(c *gin.Context) {
	actor, _ := currentUser(c)

	claims, err := h.claims.ListMine(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, "list claims", err)
		return
	}
	respondOK(c, http.StatusOK, claims)
}

// ListPendingClaims handles GET /api/v1/claims/pending
func (h *Handlers) ListPendingClaims(c *gin.Context) {
	actor, _ := currentUser(c)

	claims, err := h.claims.ListPendingFor(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, "list pending claims", err)
		return
	}
	respondOK(c, http.StatusOK, claims)
}

// GetClaim handles GET /api/v1/claims/:id
func (h *Handlers) GetClaim(c *gin.Context) {
	actor, _ := currentUser(c)
	id, ok := claimID(c)
	if !ok {
		return
	}

	claim, err := h.claims.Get(c.Request.Context(), actor.ID, id)
	if err != nil {
		h.respondError(c, "get claim", err)
		return
	}
	respondOK(c, http.StatusOK, claim)
}

// ClaimHistory handles GET /api/v1/claims/:id/history
func (h *Handlers) ClaimHistory(c *gin.Context) {
	actor, _ := currentUser(c)
	id, ok := claimID(c)
	if !ok {
		return
	}

	history, err := h.claims.History(c.Request.Context(), actor.ID, id)
	if err != nil {
		h.respondError(c, "get claim history", err)
		return
	}
	respondOK(c, http.StatusOK, history)
}

// Vote handles PUT /api/v1/claims/:id/vote
func (h *Handlers) Vote(c *gin.Context) {
	actor, _ := currentUser(c)
	id, ok := claimID(c)
	if !ok {
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	claim, err := h.claims.Vote(c.Request.Context(), id, actor.ID, parseDecision(req.Decision), req.Comment)
	if err != nil {
		h.respondError(c, "vote", err)
		return
	}
	respondOK(c, http.StatusOK, claim)
}

// Reconfigure handles PUT /api/v1/claims/:id/rules
func (h *Handlers) Reconfigure(c *gin.Context) {
	actor, _ := currentUser(c)
	id, ok := claimID(c)
	if !ok {
		return
	}

	var req RulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	claim, err := h.claims.Reconfigure(c.Request.Context(), actor.ID, id, service.RuleInput{
		Approvers:          req.Approvers,
		Percentage:         req.Percentage,
		OverrideApproverID: req.OverrideApproverID,
	})
	if err != nil {
		h.respondError(c, "reconfigure claim", err)
		return
	}
	respondOK(c, http.StatusOK, claim)
}

// ExportClaims handles GET /api/v1/claims/export
func (h *Handlers) ExportClaims(c *gin.Context) {
	actor, _ := currentUser(c)

	var buf bytes.Buffer
	archivePath, err := h.claims.Export(c.Request.Context(), actor.ID, &buf)
	if err != nil {
		h.respondError(c, "export claims", err)
		return
	}

	filename := fmt.Sprintf("claims_%s.xlsx", h.now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	if archivePath != "" {
		c.Header("X-Archive-Path", archivePath)
	}
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func claimID(c *gin.Context) (int64, bool) {
	return pathID(c, "claim")
}

func pathID(c *gin.Context, kind string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusBadRequest, "invalid "+kind+" ID")
		return 0, false
	}
	return id, true
}

// parseDecision accepts approve/approved and reject/rejected in any case.
// Anything else is passed through and rejected by the workflow.
func parseDecision(raw string) entity.Decision {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "APPROVE", "APPROVED":
		return entity.DecisionApproved
	case "REJECT", "REJECTED":
		return entity.DecisionRejected
	default:
		return entity.Decision(strings.ToUpper(strings.TrimSpace(raw)))
	}
}
