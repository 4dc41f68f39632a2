package http

import (
	"net/http"

	"delat/internal/log"
)

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	g, err := s.household.CreateGroup(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err, nil)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/groups/"+g.ID).
		Body(groupJSON{ID: g.ID, Name: g.Name}).
		Write(w)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.household.Members(r.Context(), r.PathValue("group"))
	if err != nil {
		writeServiceError(w, r, log.OpList, err, nil)
		return
	}
	NewJSONResponse().Body(toMembersJSON(members)).Write(w)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	m, err := s.household.AddMember(r.Context(), r.PathValue("group"), sanitizeInput(req.Name))
	if err != nil {
		writeServiceError(w, r, log.OpCreate, err, nil)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(memberJSON{ID: m.ID, Name: m.Name}).
		Write(w)
}
