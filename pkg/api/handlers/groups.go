package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"chatrelay/pkg/auth"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/utils"
)

type createGroupRequest struct {
	Name    string   `json:"name"`
	Type    string   `json:"type,omitempty"`
	Private bool     `json:"private,omitempty"`
	Members []string `json:"members,omitempty"`
}

func (h *Handlers) createGroup(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFrom(r.Context())
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" && req.Type != models.GroupTypeDirect {
		utils.JSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	members := req.Members
	found := false
	for _, m := range members {
		if m == userID {
			found = true
			break
		}
	}
	if !found {
		members = append(members, userID)
	}
	g, err := h.Groups.SaveGroup(r.Context(), models.Group{
		Name:      req.Name,
		Type:      req.Type,
		Private:   req.Private,
		Members:   members,
		CreatorID: userID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info("group_created", "group", g.ID, "creator", userID, "members", len(g.Members))
	_ = utils.JSONWrite(w, http.StatusCreated, g)
}

func (h *Handlers) listGroups(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFrom(r.Context())
	groups, err := h.Groups.ListGroupsForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, groups)
}

func (h *Handlers) getGroup(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFrom(r.Context())
	g, err := h.Groups.GetGroup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if !g.HasMember(userID) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, g)
}

type memberRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handlers) addMember(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFrom(r.Context())
	groupID := mux.Vars(r)["id"]
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		utils.JSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	g, err := h.Groups.GetGroup(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !g.HasMember(userID) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	g, err = h.Groups.AddMember(r.Context(), groupID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info("member_added", "group", groupID, "user", req.UserID, "by", userID)
	_ = utils.JSONWrite(w, http.StatusOK, g)
}

// removeMember revokes membership and force-unsubscribes the user's live
// connections as part of the same operation. Members may leave; only the
// creator removes others.
func (h *Handlers) removeMember(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserFrom(r.Context())
	vars := mux.Vars(r)
	groupID, target := vars["id"], vars["userID"]
	g, err := h.Groups.GetGroup(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	if target != userID && g.CreatorID != userID {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	g, err = h.Groups.RemoveMember(r.Context(), groupID, target)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Reg.OnMembershipRevoked(groupID, target)
	logger.Info("member_removed", "group", groupID, "user", target, "by", userID)
	_ = utils.JSONWrite(w, http.StatusOK, g)
}
