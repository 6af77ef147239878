package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type watchlistRequest struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

type symbolRequest struct {
	Symbol string `json:"symbol"`
}

func (s *Server) handleListWatchlists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.deps.Watchlists.List(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	out := make([]watchlistView, len(lists))
	for i, l := range lists {
		out[i] = newWatchlistView(l)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateWatchlist(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	list, err := s.deps.Watchlists.Create(r.Context(), userFrom(r.Context()).ID, req.Name, req.Symbols)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newWatchlistView(*list))
}

func (s *Server) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Watchlists.Get(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "watchlistID"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newWatchlistView(*list))
}

func (s *Server) handleDeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Watchlists.Delete(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "watchlistID")); err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddWatchlistSymbol(w http.ResponseWriter, r *http.Request) {
	var req symbolRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	list, err := s.deps.Watchlists.AddSymbol(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "watchlistID"), req.Symbol)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newWatchlistView(*list))
}

func (s *Server) handleRemoveWatchlistSymbol(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Watchlists.RemoveSymbol(r.Context(), userFrom(r.Context()).ID,
		chi.URLParam(r, "watchlistID"), chi.URLParam(r, "symbol"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newWatchlistView(*list))
}

func (s *Server) handleWatchlistQuotes(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Watchlists.Quotes(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "watchlistID"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newWatchlistQuotesView(snap))
}
