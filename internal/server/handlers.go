package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shahjoyal/view-bunker/internal/blend"
)

var errBadRequest = errors.New("bad request")

// maxBodyBytes bounds request bodies; a blend sheet is a few KB.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// Coals

func (s *Server) handleListCoals(w http.ResponseWriter, r *http.Request) {
	coals, err := s.store.ListCoals()
	if err != nil {
		writeError(w, err)
		return
	}
	if coals == nil {
		coals = []blend.Coal{}
	}
	writeJSON(w, http.StatusOK, coals)
}

func (s *Server) handleCreateCoal(w http.ResponseWriter, r *http.Request) {
	var c blend.Coal
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, err)
		return
	}
	c.ID = ""
	if err := s.store.SaveCoal(&c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCoal(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCoal(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCoal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetCoal(id); err != nil {
		writeError(w, err)
		return
	}
	var c blend.Coal
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, err)
		return
	}
	c.ID = id
	if err := s.store.SaveCoal(&c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCoal(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCoal(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSuggestCoals(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, fmt.Errorf("%w: missing 'name' parameter", errBadRequest))
		return
	}
	catalog, err := s.store.Catalog()
	if err != nil {
		writeError(w, err)
		return
	}
	resp := struct {
		Name        string   `json:"name"`
		Known       bool     `json:"known"`
		Suggestions []string `json:"suggestions"`
	}{Name: name, Suggestions: []string{}}
	if _, ok := catalog.Lookup(name); ok {
		resp.Known = true
	} else if names := catalog.Suggest(name, 5); names != nil {
		resp.Suggestions = names
	}
	writeJSON(w, http.StatusOK, resp)
}

// Blends

func (s *Server) handleRecordBlend(w http.ResponseWriter, r *http.Request) {
	var in blend.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	b, err := s.monitor.Record(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handlePreviewBlend(w http.ResponseWriter, r *http.Request) {
	var in blend.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	b, err := s.monitor.Preview(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleListBlends(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, fmt.Errorf("%w: invalid 'limit' parameter %q", errBadRequest, l))
			return
		}
		limit = n
	}
	blends, err := s.store.ListBlends(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if blends == nil {
		blends = []blend.Blend{}
	}
	writeJSON(w, http.StatusOK, blends)
}

func (s *Server) handleLatestBlend(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.LatestBlend()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleGetBlend(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBlend(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleDeleteBlend removes the record and its layers from the live bunkers.
func (s *Server) handleDeleteBlend(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.DeleteBlend(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
