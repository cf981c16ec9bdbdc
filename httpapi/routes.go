package httpapi

import "net/http"

// notImplemented serves an endpoint named by §6 that this codebase
// treats as an external collaborator per §1 (widget rendering, the
// entity-sidebar Wikipedia parser, the schema.org/thesaurus widget
// subsystem, spellcheck suggestion rendering) — the route exists so
// the API surface documented in §6 is addressable, but the handler
// itself is out of core scope.
func notImplemented(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotImplemented)
	_, _ = w.Write([]byte(`{"success":false,"error":{"code":"NOT_IMPLEMENTED","message":"out of core scope"}}`))
}

// Register mounts the §6 JSON HTTP surface on mux: the fully
// implemented /beta/api/search, and stub routes for the endpoints §1
// names as external collaborators.
func Register(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("POST /beta/api/search", h.ServeHTTP)
	mux.HandleFunc("/beta/api/search/widget", notImplemented)
	mux.HandleFunc("/search/sidebar", notImplemented)
	mux.HandleFunc("/search/spellcheck", notImplemented)
	mux.HandleFunc("/entity_image", notImplemented)
}
