package handlers

import (
	"github.com/gorilla/mux"
)

func RegisterRoutes(r *mux.Router, h *MediaHandler) {
	r.HandleFunc("/", h.Info).Methods("GET")
	r.HandleFunc("/api", h.API).Methods("GET")
	r.HandleFunc("/api/health", h.Health).Methods("GET")

	for _, route := range h.catalog.Routes() {
		r.HandleFunc("/"+route, h.Generate(route)).Methods("GET")
	}
}
