package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"curry2cakes/pkg/audit"
	"curry2cakes/pkg/bus"
	"curry2cakes/pkg/invite"
)

type requestCodeRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	UserName string `json:"userName"`
}

type requestCodeResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	InviteCode string `json:"inviteCode,omitempty"`
}

type redeemCodeRequest struct {
	Code string `json:"code"`
}

type redeemCodeResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type redeemFailureResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error"`
}

func (a *API) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, requestCodeResponse{Error: err.Error()})
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		respondJSON(w, http.StatusBadRequest, requestCodeResponse{Error: "Email address is required"})
		return
	}
	name := req.Name
	if name == "" {
		name = req.UserName
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.config.DispatchTimeout)
	defer cancel()

	issued, err := a.registry.Request(ctx, req.Email, name)
	result := resultLabel(err)
	a.metrics.requests.WithLabelValues(result).Inc()

	if issued.Code != "" {
		a.sideEffects(r, audit.Event{
			Action:   audit.ActionRequest,
			Result:   result,
			Email:    issued.Email,
			CodeHint: audit.CodeHint(issued.Code),
			Metadata: map[string]any{"expires_at": issued.ExpiresAt.UTC().Format(time.RFC3339)},
		}, bus.SubjectInviteIssued, map[string]any{
			"email":      issued.Email,
			"name":       issued.Name,
			"code_hint":  audit.CodeHint(issued.Code),
			"expires_at": issued.ExpiresAt.UTC(),
			"notified":   err == nil,
		})
	} else {
		a.sideEffects(r, audit.Event{Action: audit.ActionRequest, Result: result, Email: req.Email}, "", nil)
	}

	if err != nil {
		status := requestStatus(err)
		if status == http.StatusInternalServerError {
			a.logger.Error().Err(err).Str("email", req.Email).Msg("invite request failed")
		}
		respondJSON(w, status, requestCodeResponse{Error: invite.Message(err)})
		return
	}

	resp := requestCodeResponse{Success: true, Message: issued.Message}
	if a.config.ExposeInviteCodes {
		resp.InviteCode = issued.Code
	}
	respondJSON(w, http.StatusOK, resp)
}

func requestStatus(err error) int {
	switch {
	case errors.Is(err, invite.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, invite.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, invite.ErrDispatchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) handleRedeemCode(w http.ResponseWriter, r *http.Request) {
	var req redeemCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, redeemFailureResponse{Error: err.Error()})
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		respondJSON(w, http.StatusBadRequest, redeemFailureResponse{Error: "Invite code is required"})
		return
	}

	red, err := a.registry.Redeem(r.Context(), code)
	result := resultLabel(err)
	a.metrics.redemptions.WithLabelValues(result).Inc()

	ev := audit.Event{Action: audit.ActionRedeem, Result: result, CodeHint: audit.CodeHint(code)}
	if err != nil {
		a.sideEffects(r, ev, "", nil)
		status := redeemStatus(err)
		if status == http.StatusInternalServerError {
			a.logger.Error().Err(err).Msg("invite redemption failed")
		}
		respondJSON(w, status, redeemFailureResponse{Error: invite.Message(err)})
		return
	}

	ev.Email = red.Email
	a.sideEffects(r, ev, bus.SubjectInviteRedeemed, map[string]any{
		"email":       red.Email,
		"name":        red.Name,
		"code_hint":   audit.CodeHint(code),
		"redeemed_at": red.RedeemedAt.UTC(),
	})

	respondJSON(w, http.StatusOK, redeemCodeResponse{Valid: true, Email: red.Email, Name: red.Name})
}

func redeemStatus(err error) int {
	switch {
	case errors.Is(err, invite.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, invite.ErrAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, invite.ErrExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, a.registry.Stats())
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": a.now().UTC().Format(time.RFC3339),
		"service":   serviceName,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.store.Ready != nil {
		if err := a.store.Ready(r.Context()); err != nil {
			a.logger.Warn().Err(err).Msg("readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
