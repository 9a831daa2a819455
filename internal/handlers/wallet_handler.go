package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/replywave/backend/internal/services"
)

// WalletHandler exposes the read-only wallet API for the dashboard.
type WalletHandler struct {
	wallet *services.WalletService
}

func NewWalletHandler(wallet *services.WalletService) *WalletHandler {
	return &WalletHandler{wallet: wallet}
}

func customerIDFromContext(r *http.Request) (int, bool) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		return 0, false
	}
	id, err := strconv.Atoi(userID)
	if err != nil {
		return 0, false
	}
	return id, true
}

// GetBalance returns the current wallet balance
// @Summary Get wallet balance
// @Description Current prepaid balance for the authenticated customer
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{balance_cents=int64,currency=string}
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customerIDFromContext(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, currency, err := h.wallet.Balance(r.Context(), customerID)
	if err != nil {
		if err == services.ErrWalletNotFound {
			services.SendErrorResponse(w, "Wallet not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[WALLET] Failed to fetch balance for customer %d: %v", customerID, err)
			services.SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"balance_cents": balance,
		"currency":      currency,
	})
}

// ListTransactions returns a page of the wallet's transaction log
// @Summary List wallet transactions
// @Description Bounded, newest-first page of the transaction log
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (default 50, max 100)"
// @Param before query int false "Return rows older than this transaction id"
// @Success 200 {object} object{transactions=[]models.WalletTransaction,count=int}
// @Failure 401 {object} services.ErrorResponse
// @Router /wallet/transactions [get]
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customerIDFromContext(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	before := 0
	if b, err := strconv.Atoi(r.URL.Query().Get("before")); err == nil && b > 0 {
		before = b
	}

	transactions, err := h.wallet.Transactions(r.Context(), customerID, limit, before)
	if err != nil {
		log.Printf("[WALLET] Failed to fetch transactions for customer %d: %v", customerID, err)
		services.SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}
