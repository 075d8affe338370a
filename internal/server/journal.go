package server

import (
	"net/http"
	"strconv"

	"github.com/tjfontaine/webapi-sample/internal/storage"
)

// JournalHandler lists recent journal entries, newest first.
// GET /_journal?limit=N (default 50, max 500).
func JournalHandler(j storage.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				WriteError(w, http.StatusBadRequest, ErrorTypeBadRequest, "limit must be an integer")
				return
			}
			limit = n
		}

		entries, err := j.Recent(r.Context(), storage.ClampLimit(limit))
		if err != nil {
			AddError(r.Context(), err)
			WriteError(w, http.StatusInternalServerError, ErrorTypeServer, "failed to read journal")
			return
		}
		if entries == nil {
			entries = []storage.Entry{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
	}
}
