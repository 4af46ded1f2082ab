/**
 * @description
 * This file contains the HTTP handlers for the raffle-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/splraffle/raffle-service/internal/app"
	"github.com/splraffle/raffle-service/internal/domain"
	"github.com/splraffle/raffle-service/internal/store"
)

// RaffleHandlers holds the application service that handlers will use.
type RaffleHandlers struct {
	service *app.Service
}

// NewRaffleHandlers creates a new instance of RaffleHandlers.
func NewRaffleHandlers(service *app.Service) *RaffleHandlers {
	return &RaffleHandlers{service: service}
}

// purchaseResponse is sent back after a committed ticket purchase.
type purchaseResponse struct {
	TicketID       string `json:"ticket_id"`
	RaffleID       string `json:"raffle_id"`
	TicketsGranted int    `json:"tickets_granted"`
	Partial        bool   `json:"partial"`
	RaffleClosed   bool   `json:"raffle_closed"`
}

type errorResponse struct {
	Error string `json:"error"`
	Check string `json:"check,omitempty"` // failing validation check, when applicable
}

func (h *RaffleHandlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *RaffleHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// PurchaseTicketHandler handles ticket purchase submissions.
func (h *RaffleHandlers) PurchaseTicketHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// JWT callers purchase as themselves; the body username is only honored for
	// administrative (static token) callers.
	if principal, ok := GetPrincipal(r.Context()); ok && principal.Username != "" {
		req.Username = principal.Username
	}

	req.Username = strings.TrimSpace(req.Username)
	req.PaymentReference = strings.TrimSpace(req.PaymentReference)
	if req.RaffleID == uuid.Nil || req.Username == "" || req.PaymentReference == "" {
		h.writeError(w, http.StatusBadRequest, "raffle_id, username and payment_reference are required")
		return
	}

	result, err := h.service.SubmitPurchase(r.Context(), req)
	if err != nil {
		h.writePurchaseError(w, req, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, purchaseResponse{
		TicketID:       result.Ticket.ID.String(),
		RaffleID:       result.Ticket.RaffleID.String(),
		TicketsGranted: result.TicketsGranted,
		Partial:        result.Partial,
		RaffleClosed:   result.RaffleClosed,
	})
}

func (h *RaffleHandlers) writePurchaseError(w http.ResponseWriter, req domain.PurchaseTicketRequest, err error) {
	var validationErr *app.ValidationError
	switch {
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many purchase attempts; slow down")
	case errors.Is(err, app.ErrPaymentLookupFailed):
		h.writeError(w, http.StatusBadGateway, "Payment lookup failed")
	case errors.As(err, &validationErr):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: validationErr.Message, Check: validationErr.Check})
	case errors.Is(err, app.ErrNoCapacity):
		h.writeError(w, http.StatusConflict, "Raffle is sold out")
	case errors.Is(err, app.ErrZeroAllocation):
		h.writeError(w, http.StatusUnprocessableEntity, "Payment amount yields zero tickets")
	case errors.Is(err, store.ErrRaffleNotFound):
		h.writeError(w, http.StatusNotFound, "Raffle not found")
	default:
		log.Printf("level=error component=api msg=\"purchase failed\" raffle_id=%s username=%s err=%v", req.RaffleID, req.Username, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to process purchase")
	}
}

// CreateRaffleHandler handles raffle creation.
func (h *RaffleHandlers) CreateRaffleHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRaffleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	raffle, err := h.service.CreateRaffle(r.Context(), req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, raffle)
}

// ListRafflesHandler returns all raffles.
func (h *RaffleHandlers) ListRafflesHandler(w http.ResponseWriter, r *http.Request) {
	raffles, err := h.service.ListRaffles(r.Context())
	if err != nil {
		log.Printf("level=error component=api msg=\"raffle list failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list raffles")
		return
	}
	if raffles == nil {
		raffles = []domain.Raffle{}
	}
	h.writeJSON(w, http.StatusOK, raffles)
}

// GetRaffleHandler returns one raffle by id.
func (h *RaffleHandlers) GetRaffleHandler(w http.ResponseWriter, r *http.Request) {
	raffleID, ok := h.parseID(w, r, "raffleID")
	if !ok {
		return
	}

	raffle, err := h.service.GetRaffle(r.Context(), raffleID)
	if err != nil {
		if errors.Is(err, store.ErrRaffleNotFound) {
			h.writeError(w, http.StatusNotFound, "Raffle not found")
			return
		}
		log.Printf("level=error component=api msg=\"raffle fetch failed\" raffle_id=%s err=%v", raffleID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch raffle")
		return
	}
	h.writeJSON(w, http.StatusOK, raffle)
}

// updateRafflePayload accepts a description change and/or a status transition.
type updateRafflePayload struct {
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// UpdateRaffleHandler updates the mutable raffle attributes.
func (h *RaffleHandlers) UpdateRaffleHandler(w http.ResponseWriter, r *http.Request) {
	raffleID, ok := h.parseID(w, r, "raffleID")
	if !ok {
		return
	}

	var payload updateRafflePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.Description == nil && payload.Status == nil {
		h.writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	if payload.Description != nil {
		if err := h.service.UpdateRaffleDescription(r.Context(), raffleID, *payload.Description); err != nil {
			if errors.Is(err, store.ErrRaffleNotFound) {
				h.writeError(w, http.StatusNotFound, "Raffle not found")
				return
			}
			log.Printf("level=error component=api msg=\"raffle update failed\" raffle_id=%s err=%v", raffleID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to update raffle")
			return
		}
	}

	if payload.Status != nil {
		if err := h.service.TransitionRaffleStatus(r.Context(), raffleID, *payload.Status); err != nil {
			switch {
			case errors.Is(err, store.ErrRaffleNotFound):
				h.writeError(w, http.StatusNotFound, "Raffle not found")
			case errors.Is(err, app.ErrInvalidStatusTransition):
				h.writeError(w, http.StatusConflict, "Raffle status cannot move backwards")
			default:
				h.writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
	}

	raffle, err := h.service.GetRaffle(r.Context(), raffleID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch updated raffle")
		return
	}
	h.writeJSON(w, http.StatusOK, raffle)
}

// DeleteRaffleHandler removes a raffle and its tickets.
func (h *RaffleHandlers) DeleteRaffleHandler(w http.ResponseWriter, r *http.Request) {
	raffleID, ok := h.parseID(w, r, "raffleID")
	if !ok {
		return
	}

	if err := h.service.DeleteRaffle(r.Context(), raffleID); err != nil {
		if errors.Is(err, store.ErrRaffleNotFound) {
			h.writeError(w, http.StatusNotFound, "Raffle not found")
			return
		}
		log.Printf("level=error component=api msg=\"raffle delete failed\" raffle_id=%s err=%v", raffleID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to delete raffle")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRaffleTicketsHandler returns all tickets committed against one raffle.
func (h *RaffleHandlers) ListRaffleTicketsHandler(w http.ResponseWriter, r *http.Request) {
	raffleID, ok := h.parseID(w, r, "raffleID")
	if !ok {
		return
	}

	tickets, err := h.service.ListRaffleTickets(r.Context(), raffleID)
	if err != nil {
		log.Printf("level=error component=api msg=\"ticket list failed\" raffle_id=%s err=%v", raffleID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list tickets")
		return
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	h.writeJSON(w, http.StatusOK, tickets)
}

// GetTicketHandler returns one ticket by id.
func (h *RaffleHandlers) GetTicketHandler(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := h.parseID(w, r, "ticketID")
	if !ok {
		return
	}

	ticket, err := h.service.GetTicket(r.Context(), ticketID)
	if err != nil {
		if errors.Is(err, store.ErrTicketNotFound) {
			h.writeError(w, http.StatusNotFound, "Ticket not found")
			return
		}
		log.Printf("level=error component=api msg=\"ticket fetch failed\" ticket_id=%s err=%v", ticketID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to fetch ticket")
		return
	}
	h.writeJSON(w, http.StatusOK, ticket)
}

// ListTicketsHandler returns all tickets.
func (h *RaffleHandlers) ListTicketsHandler(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.service.ListTickets(r.Context())
	if err != nil {
		log.Printf("level=error component=api msg=\"ticket list failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list tickets")
		return
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	h.writeJSON(w, http.StatusOK, tickets)
}

// DeleteTicketHandler removes a ticket.
func (h *RaffleHandlers) DeleteTicketHandler(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := h.parseID(w, r, "ticketID")
	if !ok {
		return
	}

	if err := h.service.DeleteTicket(r.Context(), ticketID); err != nil {
		if errors.Is(err, store.ErrTicketNotFound) {
			h.writeError(w, http.StatusNotFound, "Ticket not found")
			return
		}
		log.Printf("level=error component=api msg=\"ticket delete failed\" ticket_id=%s err=%v", ticketID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to delete ticket")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RaffleHandlers) parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}
