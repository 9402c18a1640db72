package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/asaidimu/go-sieve/core/filter"
	"github.com/asaidimu/go-sieve/core/persistence"
	"github.com/julienschmidt/httprouter"
)

// InsertDocumentsRequest is the body of POST /api/collections/:collection/documents.
type InsertDocumentsRequest struct {
	Documents []filter.Document `json:"documents"`
}

// FilterRequest is the body of POST /api/collections/:collection/filter.
// Rules are tagged rule objects; omitting them returns every document.
type FilterRequest struct {
	Rules json.RawMessage `json:"rules,omitempty"`
}

// RuleSetRequest is the body for creating or replacing a rule set.
type RuleSetRequest struct {
	Name       string          `json:"name"`
	Collection string          `json:"collection"`
	Rules      json.RawMessage `json:"rules"`
}

// DeleteResponse is the data of a successful delete.
type DeleteResponse struct {
	Deleted string `json:"deleted"`
}

func (s *Server) handleInsertDocuments(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req InsertDocumentsRequest
	if !s.parseJSONBody(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		s.writeErrorResponse(w, http.StatusBadRequest, CodeValidation, "At least one document is required", nil)
		return
	}

	stored, err := s.persistence.Insert(r.Context(), ps.ByName("collection"), req.Documents)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, http.StatusCreated, stored)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	docs, err := s.persistence.Documents(r.Context(), ps.ByName("collection"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, http.StatusOK, docs)
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req FilterRequest
	if !s.parseJSONBody(w, r, &req) {
		return
	}
	rules, err := decodeRules(req.Rules)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.persistence.Query(r.Context(), ps.ByName("collection"), rules)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, http.StatusOK, result)
}

func (s *Server) handleCreateRuleSet(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.saveRuleSet(w, r, "", http.StatusCreated)
}

func (s *Server) handleUpdateRuleSet(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.saveRuleSet(w, r, ps.ByName("id"), http.StatusOK)
}

func (s *Server) saveRuleSet(w http.ResponseWriter, r *http.Request, id string, status int) {
	var req RuleSetRequest
	if !s.parseJSONBody(w, r, &req) {
		return
	}
	rules, err := decodeRules(req.Rules)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	saved, err := s.persistence.SaveRuleSet(r.Context(), persistence.RuleSet{
		ID:         id,
		Name:       req.Name,
		Collection: req.Collection,
		Rules:      rules,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, status, saved)
}

func (s *Server) handleListRuleSets(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sets, err := s.persistence.RuleSets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, http.StatusOK, sets)
}

func (s *Server) handleGetRuleSet(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rs, err := s.persistence.RuleSet(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, http.StatusOK, rs)
}

func (s *Server) handleDeleteRuleSet(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if err := s.persistence.DeleteRuleSet(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, http.StatusOK, DeleteResponse{Deleted: id})
}

func (s *Server) handleApplyRuleSet(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	result, err := s.persistence.ApplyRuleSet(r.Context(), ps.ByName("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSuccessResponse(w, http.StatusOK, result)
}

// parseJSONBody decodes the request body into v, writing the error response
// and returning false on failure.
func (s *Server) parseJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	decoder.DisallowUnknownFields()

	err := decoder.Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return true
	case errors.As(err, &tooLarge):
		s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, CodeValidation,
			fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), nil)
	case errors.Is(err, io.EOF):
		s.writeErrorResponse(w, http.StatusBadRequest, CodeInvalidJSON, "Request body is empty", nil)
	default:
		s.writeErrorResponse(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON in request body", err.Error())
	}
	return false
}

// decodeRules turns a raw "rules" field into rules. An absent or null field
// is no rules.
func decodeRules(raw json.RawMessage) (filter.Rules, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var inputs []map[string]any
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil, &validationError{message: "Rules must be an array of objects", err: err}
	}
	rules, err := filter.DecodeRules(inputs)
	if err != nil {
		return nil, &validationError{message: "Invalid rules", err: err}
	}
	return rules, nil
}
