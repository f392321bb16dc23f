package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/qrdesk/qrdesk/pkg/domain"
)

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Ledger handlers ---

const dateLayout = "2006-01-02"

type createItemRequest struct {
	Name          string `json:"name"`
	Category      string `json:"category"`
	ClientName    string `json:"client_name"`
	ClientPhone   string `json:"client_phone"`
	ClientEmail   string `json:"client_email"`
	DepositDate   string `json:"deposit_date"`
	PickupDate    string `json:"pickup_date"`
	DepositAmount int64  `json:"deposit_amount"`
	PickupAmount  int64  `json:"pickup_amount"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(field, v string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, domain.InvalidField(field)
	}

	return t.UTC(), nil
}

func (req *createItemRequest) draft() (domain.ItemDraft, error) {
	d := domain.ItemDraft{
		Name:          req.Name,
		Category:      domain.Category(req.Category),
		ClientName:    req.ClientName,
		ClientPhone:   req.ClientPhone,
		ClientEmail:   req.ClientEmail,
		DepositAmount: req.DepositAmount,
		PickupAmount:  req.PickupAmount,
	}

	if req.DepositDate != "" {
		t, err := parseDate("depositDate", req.DepositDate)
		if err != nil {
			return d, err
		}

		d.DepositDate = t
	}

	if req.PickupDate != "" {
		t, err := parseDate("pickupDate", req.PickupDate)
		if err != nil {
			return d, err
		}

		d.PickupDate = &t
	}

	return d, nil
}

// handleListItems returns the active items visible to the session.
func (s *server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.ledger.VisibleItems(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, items)
}

// handleListArchive returns the archived items visible to the session.
func (s *server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	items, err := s.ledger.VisibleArchive(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, items)
}

// handleCreateItem accepts a new item into storage.
func (s *server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{Error: "invalid request body"})

		return
	}

	draft, err := req.draft()
	if err != nil {
		s.writeError(w, err)

		return
	}

	item, err := s.ledger.CreateItem(r.Context(), sessionFromContext(r.Context()), draft)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// handleIssueItem hands an item to its owner.
func (s *server) handleIssueItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.ledger.IssueItem(
		r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "id"),
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, item)
}

// handleReturnItem puts an issued item back into storage.
func (s *server) handleReturnItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.ledger.ReturnItem(
		r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "id"),
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, item)
}

// handleFindByQRCode resolves a scanned QR token.
func (s *server) handleFindByQRCode(w http.ResponseWriter, r *http.Request) {
	item, err := s.ledger.FindByQRCode(
		r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "code"),
	)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, item)
}
