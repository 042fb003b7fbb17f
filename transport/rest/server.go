package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the match routes. watch serves the live updates of one match.
func NewRouter(h Handlers, watch http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ping", h.PingHandler)
	r.Post("/newgame", h.NewGame)
	r.Post("/playwith", h.PlayWith)

	r.Route("/game/{id}", func(r chi.Router) {
		r.Get("/", h.GetGame)
		r.Delete("/", h.DeleteGame)
		r.Patch("/serverstarts", h.ServerStarts)
		r.Get("/watch", watch)

		r.Post("/move", h.SubmitMove)
		r.Put("/move/{moveId}", h.EditMove)
		r.Delete("/move/{moveId}", h.DeleteMove)
	})

	return r
}

func NewServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}
