package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/AnTengye/leaseflow/lifecycle"
	"github.com/AnTengye/leaseflow/middleware"
	"github.com/AnTengye/leaseflow/model"
	"github.com/AnTengye/leaseflow/service"
	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

type ContractHandler struct {
	orch *service.Orchestrator
	// confirmations holds one *lifecycle.Confirmations per signed-in user.
	confirmations sync.Map
}

func NewContractHandler(orch *service.Orchestrator) *ContractHandler {
	return &ContractHandler{orch: orch}
}

func (h *ContractHandler) confirmationsFor(c *gin.Context) *lifecycle.Confirmations {
	key := middleware.GetAccount(c) + "/" + middleware.GetUsername(c)
	v, _ := h.confirmations.LoadOrStore(key, lifecycle.NewConfirmations())
	return v.(*lifecycle.Confirmations)
}

// ContractResponse is a contract with its derived values and eligible actions.
type ContractResponse struct {
	*model.Contract
	InForce    bool               `json:"in_force"`
	Editable   bool               `json:"editable"`
	CanDisable bool               `json:"can_disable"`
	Actions    []lifecycle.Action `json:"actions"`
}

func newContractResponse(contract *model.Contract) ContractResponse {
	return ContractResponse{
		Contract:   contract,
		InForce:    contract.IsInForce(),
		Editable:   contract.IsEditable(),
		CanDisable: contract.CanDisable(),
		Actions:    lifecycle.EligibleActions(contract),
	}
}

type CreateContractRequest struct {
	ID           string `json:"id"`
	BuildingID   string `json:"building_id"`
	RoomID       string `json:"room_id"`
	TenantName   string `json:"tenant_name" binding:"required"`
	TenantEmail  string `json:"tenant_email"`
	LandlordName string `json:"landlord_name"`
	MonthlyRent  int64  `json:"monthly_rent"`
	Deposit      int64  `json:"deposit"`
	Terms        string `json:"terms"`
	StartDate    string `json:"start_date"` // YYYY-MM-DD
	EndDate      string `json:"end_date"`   // YYYY-MM-DD
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

// Create stores a new draft contract for the caller's account
func (h *ContractHandler) Create(c *gin.Context) {
	var req CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	contract, err := h.orch.CreateDraft(c.Request.Context(), middleware.GetAccount(c), &model.Contract{
		ID:           req.ID,
		BuildingID:   req.BuildingID,
		RoomID:       req.RoomID,
		TenantName:   req.TenantName,
		TenantEmail:  req.TenantEmail,
		LandlordName: req.LandlordName,
		MonthlyRent:  req.MonthlyRent,
		Deposit:      req.Deposit,
		Terms:        req.Terms,
		StartDate:    start,
		EndDate:      end,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newContractResponse(contract))
}

type ListResponse struct {
	Contracts []ContractResponse `json:"contracts"`
	Total     int                `json:"total"`
	Page      int                `json:"page"`
	Limit     int                `json:"limit"`
}

// List returns the caller's contracts, filtered and paginated
func (h *ContractHandler) List(c *gin.Context) {
	page := service.Page{}
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, "page must be a number")
			return
		}
		page.Page = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, "limit must be a number")
			return
		}
		page.Limit = n
	}
	page = page.Normalize()

	filter := service.ListFilter{
		Account:       middleware.GetAccount(c),
		BuildingID:    c.Query("building_id"),
		Status:        model.Status(c.Query("status")),
		RequestStatus: c.Query("request_status"),
		Workflow:      c.Query("workflow"),
	}
	if err := filter.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	contracts, total, err := h.orch.List(c.Request.Context(), filter, page)
	if err != nil {
		respondError(c, err)
		return
	}

	result := make([]ContractResponse, len(contracts))
	for i, contract := range contracts {
		result[i] = newContractResponse(contract)
	}
	c.JSON(http.StatusOK, ListResponse{Contracts: result, Total: total, Page: page.Page, Limit: page.Limit})
}

// Get returns a single contract
func (h *ContractHandler) Get(c *gin.Context) {
	contract, err := h.orch.Get(c.Request.Context(), middleware.GetAccount(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newContractResponse(contract))
}

// Actions returns the actions the caller may invoke right now
func (h *ContractHandler) Actions(c *gin.Context) {
	contract, actions, err := h.orch.EligibleActions(c.Request.Context(), middleware.GetAccount(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      contract.ID,
		"status":  contract.Status,
		"actions": actions,
	})
}

// readSignature takes the image from a multipart "file" field or the raw body.
func readSignature(c *gin.Context) ([]byte, error) {
	var r io.Reader = c.Request.Body
	if file, _, err := c.Request.FormFile("file"); err == nil {
		defer file.Close()
		r = file
	}
	data, err := io.ReadAll(io.LimitReader(r, service.MaxSignatureSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read signature: %w", err)
	}
	return data, nil
}

// CaptureSignature uploads a landlord signature image without changing the
// contract. The returned url is committed with the sign action.
func (h *ContractHandler) CaptureSignature(c *gin.Context) {
	image, err := readSignature(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	url, err := h.orch.CaptureSignature(c.Request.Context(), middleware.GetAccount(c), c.Param("id"), image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature_url": url})
}

type ActionRequest struct {
	SignatureURL string `json:"signature_url"`
	Reason       string `json:"reason"`
	Months       int    `json:"months"`
	Confirm      bool   `json:"confirm"`
}

func (r ActionRequest) payload() lifecycle.Payload {
	return lifecycle.Payload{
		SignatureURL: r.SignatureURL,
		Reason:       r.Reason,
		Months:       r.Months,
		Confirmed:    r.Confirm,
	}
}

// Perform runs an action on a contract
func (h *ContractHandler) Perform(c *gin.Context) {
	action, err := lifecycle.ParseAction(c.Param("action"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	var req ActionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
	}

	id := c.Param("id")
	contract, err := h.orch.Perform(c.Request.Context(), middleware.GetAccount(c), id, action, req.payload())
	if err != nil {
		respondError(c, err)
		return
	}
	if action.RequiresConfirmation() {
		h.confirmationsFor(c).Cancel(id)
	}

	status := http.StatusOK
	if action == lifecycle.ActionClone {
		status = http.StatusCreated
	}
	c.JSON(status, newContractResponse(contract))
}

type ConfirmationRequest struct {
	Action string `json:"action" binding:"required"`
}

func confirmationBody(id string, phase lifecycle.Phase, action lifecycle.Action) gin.H {
	body := gin.H{"contract_id": id, "phase": phase}
	if action != "" {
		body["action"] = action
	}
	return body
}

// OpenConfirmation starts the confirm step of a gated action
func (h *ContractHandler) OpenConfirmation(c *gin.Context) {
	var req ConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request")
		return
	}
	action, err := lifecycle.ParseAction(req.Action)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if !action.RequiresConfirmation() {
		badRequest(c, fmt.Sprintf("action %s does not need confirmation", action))
		return
	}

	id := c.Param("id")
	contract, err := h.orch.Get(c.Request.Context(), middleware.GetAccount(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := lifecycle.CheckEligible(contract, action); err != nil {
		respondError(c, err)
		return
	}

	confirmations := h.confirmationsFor(c)
	if err := confirmations.Open(id, action); err != nil {
		badRequest(c, err.Error())
		return
	}
	phase, open := confirmations.Phase(id)
	c.JSON(http.StatusOK, confirmationBody(id, phase, open))
}

// GetConfirmation reports the caller's confirmation phase for a contract
func (h *ContractHandler) GetConfirmation(c *gin.Context) {
	id := c.Param("id")
	phase, action := h.confirmationsFor(c).Phase(id)
	c.JSON(http.StatusOK, confirmationBody(id, phase, action))
}

// CommitConfirmation performs the action opened for confirmation
func (h *ContractHandler) CommitConfirmation(c *gin.Context) {
	var req ActionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
	}

	id := c.Param("id")
	action, err := h.confirmationsFor(c).Commit(id)
	if err != nil {
		respondError(c, err)
		return
	}

	p := req.payload()
	p.Confirmed = true
	contract, err := h.orch.Perform(c.Request.Context(), middleware.GetAccount(c), id, action, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newContractResponse(contract))
}

// CancelConfirmation discards an open confirmation
func (h *ContractHandler) CancelConfirmation(c *gin.Context) {
	id := c.Param("id")
	confirmations := h.confirmationsFor(c)
	confirmations.Cancel(id)
	phase, _ := confirmations.Phase(id)
	c.JSON(http.StatusOK, confirmationBody(id, phase, ""))
}
