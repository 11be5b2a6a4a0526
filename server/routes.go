package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter 注册 WebSocket 接入、管理与监控接口
func NewRouter(a *Arena) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/controller", a.HandleController).Methods(http.MethodGet)
	router.HandleFunc("/view", a.HandleView).Methods(http.MethodGet)

	router.HandleFunc("/admin/config", a.HandleAdminConfig).Methods(http.MethodGet)
	router.HandleFunc("/admin/relay", a.HandleRelayStatus).Methods(http.MethodGet)
	router.HandleFunc("/admin/viewport", a.HandleViewport).Methods(http.MethodPost)
	router.HandleFunc("/admin/journal", a.HandleJournal).Methods(http.MethodGet)
	router.HandleFunc("/metrics", a.HandleMetrics).Methods(http.MethodGet)
	router.HandleFunc("/protocol/schema", a.HandleSchema).Methods(http.MethodGet)
	router.HandleFunc("/pair.png", a.HandlePair).Methods(http.MethodGet)
	router.HandleFunc("/healthz", HandleHealthz)

	return router
}
