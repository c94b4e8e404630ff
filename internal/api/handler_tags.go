package api

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/plotly/falcon/internal/domain"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

func (h *Handler) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.deps.Tags.GetAll()
	if err != nil {
		writeError(w, err)
		return
	}
	if tags == nil {
		tags = []domain.Tag{}
	}
	writeJSON(w, http.StatusOK, tags)
}

func (h *Handler) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var tag domain.Tag
	if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	if tag.Name == "" {
		writeError(w, domain.ErrValidation("tag name is required"))
		return
	}
	if len(tag.Name) > domain.MaxTagLength {
		writeError(w, domain.ErrInvalidName("tag name must be at most %d characters", domain.MaxTagLength))
		return
	}
	if tag.Color != "" && !hexColor.MatchString(tag.Color) {
		writeError(w, domain.ErrValidation("tag color must be a hex color like #aa10ee"))
		return
	}
	existing, err := h.deps.Tags.GetAll()
	if err != nil {
		writeError(w, err)
		return
	}
	for _, t := range existing {
		if t.Name == tag.Name {
			writeError(w, domain.ErrConflict("tag with name %q already exists", tag.Name))
			return
		}
	}
	stored, err := h.deps.Tags.Save(&tag)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tag, err := h.deps.Tags.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if tag == nil {
		writeError(w, domain.ErrNotFound("no tag with id %s", id))
		return
	}
	if err := h.deps.Tags.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	if err := h.scrubTag(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// scrubTag removes a deleted tag id from every stored query definition so
// lists never reference dead tags.
func (h *Handler) scrubTag(id string) error {
	defs, err := h.deps.Queries.GetAll()
	if err != nil {
		return err
	}
	for i := range defs {
		def := &defs[i]
		kept := def.Tags[:0]
		changed := false
		for _, t := range def.Tags {
			if t == id {
				changed = true
				continue
			}
			kept = append(kept, t)
		}
		if !changed {
			continue
		}
		if len(kept) == 0 {
			def.Tags = nil
		} else {
			def.Tags = kept
		}
		if err := h.deps.Queries.Save(def); err != nil {
			return err
		}
	}
	return nil
}
