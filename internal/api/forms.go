package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfeidau/foundreg/internal/export"
	"github.com/wolfeidau/foundreg/internal/forms"
	"github.com/wolfeidau/foundreg/internal/login"
	"github.com/wolfeidau/foundreg/internal/models"
	"github.com/wolfeidau/foundreg/internal/store"
)

type formResponse struct {
	ID                 string    `json:"id"`
	RegistryNumber     string    `json:"registry_number"`
	OfficeID           string    `json:"office_id"`
	UserID             int64     `json:"user_id"`
	ItemName           string    `json:"item_name"`
	ItemColor          *string   `json:"item_color"`
	ItemBrand          *string   `json:"item_brand"`
	FoundLocation      string    `json:"found_location"`
	FoundDate          string    `json:"found_date"`
	FoundTime          *string   `json:"found_time"`
	Circumstances      *string   `json:"circumstances"`
	FoundByFirstName   *string   `json:"found_by_firstname"`
	FoundByLastName    *string   `json:"found_by_lastname"`
	FoundByPhoneNumber *string   `json:"found_by_phonenumber"`
	CreatedAt          time.Time `json:"created_at"`
}

func newFormResponse(item *models.FoundItem) formResponse {
	return formResponse{
		ID:                 item.ItemID.String(),
		RegistryNumber:     item.RegistryNumber,
		OfficeID:           item.OfficeID.String(),
		UserID:             item.UserID,
		ItemName:           item.ItemName,
		ItemColor:          item.ItemColor,
		ItemBrand:          item.ItemBrand,
		FoundLocation:      item.FoundLocation,
		FoundDate:          item.FoundAt.Format(time.DateOnly),
		FoundTime:          item.FoundTime,
		Circumstances:      item.Circumstances,
		FoundByFirstName:   item.FoundByFirstName,
		FoundByLastName:    item.FoundByLastName,
		FoundByPhoneNumber: item.FoundByPhoneNumber,
		CreatedAt:          item.CreatedAt,
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user, _ := login.UserFromContext(r.Context())

	var req forms.SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	item, err := s.forms.Submit(r.Context(), user, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newFormResponse(item))
}

func (s *Server) handleListMine(w http.ResponseWriter, r *http.Request) {
	user, _ := login.UserFromContext(r.Context())

	items, err := s.forms.ListMine(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]formResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, newFormResponse(item))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := login.UserFromContext(r.Context())

	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		// not a form ID, so no such form
		writeError(w, r, store.ErrFoundItemNotFound)
		return
	}

	item, err := s.forms.Get(r.Context(), user, itemID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newFormResponse(item))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	user, _ := login.UserFromContext(r.Context())

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	// buffered so a failed export still gets an error response
	var buf bytes.Buffer
	if err := s.forms.Export(r.Context(), user, format, &buf); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", format.Filename()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
