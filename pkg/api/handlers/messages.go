package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"chatrelay/pkg/auth"
	"chatrelay/pkg/models"
	"chatrelay/pkg/presence"
	"chatrelay/pkg/utils"
)

func (h *Handlers) createMessage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFrom(r.Context())
	groupID := mux.Vars(r)["id"]
	var req models.MessagePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	m, err := h.Gateway.SubmitMessage(r.Context(), userID, groupID, req.Content, req.Attachments, req.ParentID)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFrom(r.Context())
	groupID := mux.Vars(r)["id"]
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	msgs, err := h.Gateway.History(r.Context(), userID, groupID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		GroupID  string           `json:"group_id"`
		Messages []models.Message `json:"messages"`
	}{GroupID: groupID, Messages: msgs})
}

func (h *Handlers) updateReaction(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFrom(r.Context())
	vars := mux.Vars(r)
	var req struct {
		Kind string `json:"kind"`
		Add  bool   `json:"add"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	reactions, err := h.Gateway.SubmitReaction(r.Context(), userID, vars["id"], vars["msgID"], req.Kind, req.Add)
	if err != nil {
		writeError(w, err)
		return
	}
	if reactions == nil {
		reactions = map[string][]string{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, models.ReactionUpdate{MessageID: vars["msgID"], Reactions: reactions})
}

func (h *Handlers) postTyping(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFrom(r.Context())
	groupID := mux.Vars(r)["id"]
	var req models.TypingPayload
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.DisplayName == "" {
		req.DisplayName = userID
	}
	if err := h.Gateway.SubmitTyping(r.Context(), userID, groupID, req.DisplayName); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) getTyping(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["id"]
	typers := h.Gateway.CurrentTypers(groupID)
	out := struct {
		Typers    []presence.Typer `json:"typers"`
		Indicator string           `json:"indicator"`
	}{Typers: typers, Indicator: presence.FormatTypers(typers)}
	if out.Typers == nil {
		out.Typers = []presence.Typer{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}
