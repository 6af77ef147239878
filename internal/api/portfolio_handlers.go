package api

import (
	"net/http"
	"strings"
	"time"

	"portfolio-tracker/internal/portfolio"
	"github.com/go-chi/chi/v5"
)

type portfolioRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type positionRequest struct {
	Symbol        *string  `json:"symbol"`
	Shares        *float64 `json:"shares"`
	PurchasePrice *float64 `json:"purchase_price"`
	PurchaseDate  *string  `json:"purchase_date"`
	Notes         *string  `json:"notes"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &portfolio.ValidationError{Field: field, Message: "expected YYYY-MM-DD or RFC 3339 timestamp"}
	}
	return t, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, newUserView(*userFrom(r.Context())))
}

func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Portfolios.List(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	out := make([]portfolioView, len(list))
	for i, p := range list {
		out[i] = newPortfolioView(p, nil)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	p, err := s.deps.Portfolios.Create(r.Context(), userFrom(r.Context()).ID, deref(req.Name), deref(req.Description))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newPortfolioView(*p, nil))
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, id := userFrom(ctx).ID, chi.URLParam(r, "portfolioID")

	p, err := s.deps.Portfolios.Get(ctx, userID, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	positions, err := s.deps.Portfolios.Positions(ctx, userID, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newPortfolioView(*p, positions))
}

func (s *Server) handleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	p, err := s.deps.Portfolios.Update(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "portfolioID"),
		portfolio.PortfolioUpdate{Name: req.Name, Description: req.Description})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newPortfolioView(*p, nil))
}

func (s *Server) handleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Portfolios.Delete(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "portfolioID")); err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValuation(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Portfolios.Valuate(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "portfolioID"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newValuationView(report))
}

func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Portfolios.Allocation(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "portfolioID"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newAllocationView(report))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	points, err := s.deps.Portfolios.Timeline(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "portfolioID"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newTimelineView(points))
}

func (s *Server) handleAddPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	date, err := parseDate("purchase_date", deref(req.PurchaseDate))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	in := portfolio.PositionInput{
		Symbol:        deref(req.Symbol),
		Shares:        deref(req.Shares),
		PurchasePrice: deref(req.PurchasePrice),
		PurchaseDate:  date,
		Notes:         deref(req.Notes),
	}
	p, err := s.deps.Portfolios.AddPosition(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "portfolioID"), in)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newPositionView(*p))
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}

	upd := portfolio.PositionUpdate{
		Symbol:        req.Symbol,
		Shares:        req.Shares,
		PurchasePrice: req.PurchasePrice,
		Notes:         req.Notes,
	}
	if req.PurchaseDate != nil {
		date, err := parseDate("purchase_date", *req.PurchaseDate)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		upd.PurchaseDate = &date
	}

	p, err := s.deps.Portfolios.UpdatePosition(r.Context(), userFrom(r.Context()).ID,
		chi.URLParam(r, "portfolioID"), chi.URLParam(r, "positionID"), upd)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newPositionView(*p))
}

func (s *Server) handleRemovePosition(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Portfolios.RemovePosition(r.Context(), userFrom(r.Context()).ID,
		chi.URLParam(r, "portfolioID"), chi.URLParam(r, "positionID"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
