package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"chatrelay/pkg/api/handlers"
	"chatrelay/pkg/auth"
	"chatrelay/pkg/ws"
)

// router assembles all HTTP routes: the REST surface under /v1, the
// websocket endpoint, and the operational endpoints.
func (a *App) router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))

	wsHandler := ws.NewHandler(a.reg, a.gw, a.pool, a.cfg.Fanout.SendBuffer, a.cfg.Server.AllowedOrigins)
	r.Handle("/ws", wsHandler)

	h := &handlers.Handlers{Gateway: a.gw, Groups: a.st, Reg: a.reg}
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth.RequireUser)
	h.Register(v1)

	return r
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !a.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
