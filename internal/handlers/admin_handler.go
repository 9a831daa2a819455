package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/replywave/backend/internal/services"
)

// AdminHandler accepts named admin actions against a target customer.
// Every money-moving action goes through the same ledger operations the
// pipeline uses; there is no separate path that mutates a balance.
type AdminHandler struct {
	wallet    *services.WalletService
	validator *services.ValidationHelper
}

func NewAdminHandler(wallet *services.WalletService) *AdminHandler {
	return &AdminHandler{
		wallet:    wallet,
		validator: services.NewValidationHelper(),
	}
}

type adminActionRequest struct {
	Action     string `json:"action" validate:"required,oneof=credit_wallet debit_wallet"`
	CustomerID int    `json:"customerId" validate:"required,gt=0"`
	Payload    struct {
		AmountCents int64  `json:"amountCents" validate:"required,gt=0"`
		Description string `json:"description" validate:"required,max=200"`
		ReferenceID string `json:"referenceId,omitempty"`
	} `json:"payload"`
}

// HandleAction executes an admin action against a customer
// @Summary Execute admin action
// @Description Run a named admin action (wallet credit/debit) against a customer
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body adminActionRequest true "Action request"
// @Success 200 {object} object{success=bool,balance_cents=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/actions [post]
func (h *AdminHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req adminActionRequest
	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Admin actions without an explicit reference still get one, so a
	// retried request cannot apply twice.
	referenceID := req.Payload.ReferenceID
	if referenceID == "" {
		referenceID = fmt.Sprintf("admin:%s", uuid.NewString())
	}

	var balance int64
	var err error
	switch req.Action {
	case "credit_wallet":
		balance, err = h.wallet.Credit(r.Context(), req.CustomerID, req.Payload.AmountCents, req.Payload.Description, referenceID)
	case "debit_wallet":
		balance, err = h.wallet.Debit(r.Context(), req.CustomerID, req.Payload.AmountCents, req.Payload.Description, referenceID)
	}

	if err != nil {
		switch err {
		case services.ErrWalletNotFound:
			services.SendErrorResponse(w, "Wallet not found", http.StatusNotFound, nil)
		case services.ErrInsufficientFunds:
			services.SendErrorResponse(w, "Insufficient funds", http.StatusBadRequest, nil)
		default:
			log.Printf("[ADMIN] Action %s failed for customer %d: %v", req.Action, req.CustomerID, err)
			services.SendErrorResponse(w, "Action failed", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[ADMIN] Action %s applied to customer %d, reference %s", req.Action, req.CustomerID, referenceID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":       true,
		"balance_cents": balance,
	})
}
