package ws

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"chatrelay/pkg/auth"
	"chatrelay/pkg/gateway"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/registry"
	"chatrelay/pkg/utils"
)

// Handler upgrades websocket requests and binds each connection to the
// registry and gateway.
type Handler struct {
	reg        *registry.Registry
	gw         *gateway.Gateway
	limiter    Limiter
	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewHandler builds the upgrade handler. allowedOrigins of nil or
// containing "*" allows any origin.
func NewHandler(reg *registry.Registry, gw *gateway.Gateway, limiter Limiter, sendBuffer int, allowedOrigins []string) *Handler {
	h := &Handler{reg: reg, gw: gw, limiter: limiter, sendBuffer: sendBuffer}
	allowed, allowAll := normalizeOrigins(allowedOrigins)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients send no Origin header
				return true
			}
			norm, ok := normalizeOrigin(origin)
			if !ok {
				return false
			}
			if _, ok := allowed[norm]; ok {
				return true
			}
			logger.Warn("ws_origin_blocked", "origin", origin)
			return false
		},
	}
	return h
}

// ServeHTTP resolves the caller identity, upgrades the connection,
// registers it and runs the pumps. The socket closing (or a delivery
// failure) translates into Unregister.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.ResolveUser(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := NewClient(conn, userID, h.reg, h.gw, h.limiter, h.sendBuffer)
	if err := h.reg.Register(c.ID(), userID, c); err != nil {
		logger.Error("ws_register_failed", "conn", c.ID(), "error", err)
		c.Close()
		return
	}
	go c.WritePump()
	// the request context dies when ServeHTTP returns; the connection
	// lives until the socket closes
	go c.ReadPump(context.Background())
}

func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	if len(origins) == 0 {
		return nil, true
	}
	out := make(map[string]struct{})
	allowAll := false
	for _, o := range origins {
		t := strings.TrimSpace(o)
		if t == "" {
			continue
		}
		if t == "*" {
			allowAll = true
			continue
		}
		if n, ok := normalizeOrigin(t); ok {
			out[n] = struct{}{}
		} else {
			logger.Warn("ignoring_invalid_origin", "origin", o)
		}
	}
	return out, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
