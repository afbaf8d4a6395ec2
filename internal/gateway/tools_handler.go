package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/voicebridge/voice-gateway/internal/tools"
)

// ToolsHandler serves the enabled tool list for the client's settings panel
func ToolsHandler(registry *tools.Registry, enabled []string) http.HandlerFunc {
	type toolInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		specs := registry.Specs(enabled)
		infos := make([]toolInfo, 0, len(specs))
		for _, spec := range specs {
			infos = append(infos, toolInfo{Name: spec.Name, Description: spec.Description})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"tools": infos})
	}
}
