// Package handlers exposes the REST surface of the server: group
// management and the message history / submit endpoints backing clients
// that are not on a live socket.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"chatrelay/pkg/gateway"
	"chatrelay/pkg/models"
	"chatrelay/pkg/registry"
	"chatrelay/pkg/store"
	"chatrelay/pkg/utils"
)

// Handlers bundles the collaborators the REST endpoints need.
type Handlers struct {
	Gateway *gateway.Gateway
	Groups  store.Directory
	Reg     *registry.Registry
}

// Register mounts all REST routes on r. Identity middleware is applied
// by the caller.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/groups", h.createGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups", h.listGroups).Methods(http.MethodGet)
	r.HandleFunc("/groups/{id}", h.getGroup).Methods(http.MethodGet)
	r.HandleFunc("/groups/{id}/members", h.addMember).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/members/{userID}", h.removeMember).Methods(http.MethodDelete)

	r.HandleFunc("/groups/{id}/messages", h.createMessage).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/groups/{id}/messages/{msgID}/reactions", h.updateReaction).Methods(http.MethodPost)

	r.HandleFunc("/groups/{id}/typing", h.postTyping).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/typing", h.getTyping).Methods(http.MethodGet)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrForbidden):
		utils.JSONError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, models.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrInvalid):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}
