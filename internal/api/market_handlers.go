package api

import (
	"net/http"
	"strconv"
	"strings"

	"portfolio-tracker/internal/portfolio"
	"portfolio-tracker/internal/quotes"
	"github.com/go-chi/chi/v5"
)

const maxListLimit = 50

// queryLimit reads the "limit" query parameter, capped at maxListLimit.
func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &portfolio.ValidationError{Field: "limit", Message: "must be a positive integer"}
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := quotes.NormalizeSymbol(chi.URLParam(r, "symbol"))
	q, err := s.deps.Quotes.GetQuote(r.Context(), symbol)
	if err == nil {
		err = quotes.Validate(q)
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newQuoteView(q))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.respondErr(w, r, &portfolio.ValidationError{Field: "q", Message: "must not be empty"})
		return
	}
	limit, err := queryLimit(r, 10)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	results, err := s.deps.Market.Search(r.Context(), query, limit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.Market.GetProfile(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		symbols = strings.Split(raw, ",")
	}
	limit, err := queryLimit(r, 20)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	articles, err := s.deps.Market.GetNews(r.Context(), symbols, limit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, articles)
}
