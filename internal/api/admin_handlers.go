package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

type settingRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Users.List(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	out := make([]userView, len(users))
	for i, u := range users {
		out[i] = newUserView(u)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleCreateUser returns the new user's API token. It is not shown again.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	created, err := s.deps.Users.Create(r.Context(), req.Username, req.Email, req.IsAdmin)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createdUserView{userView: newUserView(created.User), APIToken: created.Token})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Users.Delete(r.Context(), userFrom(r.Context()).ID, chi.URLParam(r, "userID")); err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.deps.Settings.List(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := s.deps.Settings.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, setting)
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	setting, err := s.deps.Settings.Put(r.Context(), chi.URLParam(r, "key"), req.Value)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, setting)
}

func (s *Server) handlePurgeQuoteCache(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cache != nil {
		s.deps.Cache.Purge()
	}
	w.WriteHeader(http.StatusNoContent)
}
