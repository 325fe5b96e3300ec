package api

import (
	"net/http"
	"time"

	"apsplan/internal/buildinfo"
)

// DebugJSON handles GET /debug/vars.json
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build":  buildinfo.Info(),
		"time":   time.Now().UTC().Format(time.RFC3339),
		"config": s.Config.Public(),
		"catalog": map[string]any{
			"lines":           len(s.Catalog.Lines()),
			"wireRates":       len(s.Catalog.Rates()),
			"wireDrawingLine": s.Catalog.WireDrawingLine(),
		},
	})
}
