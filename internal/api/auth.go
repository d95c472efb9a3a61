package api

import (
	"net/http"
	"time"

	httpmiddleware "github.com/wolfeidau/foundreg/internal/http"
	"github.com/wolfeidau/foundreg/internal/login"
	"github.com/wolfeidau/foundreg/internal/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type officeResponse struct {
	ID              string `json:"id"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	VoivodeshipName string `json:"voivodeship_name,omitempty"`
	CountyCode      string `json:"county_code,omitempty"`
}

type meResponse struct {
	userResponse
	Offices []officeResponse `json:"offices"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func newUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:        user.UserID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req login.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.login.Register(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, tokens, err := s.login.Login(r.Context(), req.Email, req.Password,
		r.UserAgent(), httpmiddleware.ClientIPFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.login.SetCookies(w, tokens)
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := login.RefreshToken(r)
	if refreshToken == "" {
		writeError(w, r, login.ErrInvalidToken)
		return
	}

	tokens, err := s.login.Refresh(r.Context(), refreshToken)
	if err != nil {
		s.login.ClearCookies(w)
		writeError(w, r, err)
		return
	}

	s.login.SetCookies(w, tokens)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Token refreshed"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.login.Logout(r.Context(), login.RefreshToken(r)); err != nil {
		writeError(w, r, err)
		return
	}

	s.login.ClearCookies(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := login.UserFromContext(r.Context())

	offices, err := s.forms.Offices(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := meResponse{userResponse: newUserResponse(user), Offices: make([]officeResponse, 0, len(offices))}
	for _, office := range offices {
		resp.Offices = append(resp.Offices, officeResponse{
			ID:              office.OfficeID.String(),
			Code:            office.Code,
			Name:            office.Name,
			VoivodeshipName: office.VoivodeshipName,
			CountyCode:      office.CountyCode,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	user, _ := login.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Hello " + user.FirstName,
		"user_id": user.UserID,
	})
}
