package rest

import (
	"net/http"
)

func (h *Handlers) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.lifecycle.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, categories)
}

func (h *Handlers) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.lifecycle.GetCategory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (h *Handlers) createCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.lifecycle.CreateCategory(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "category created", c)
}
