package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/tools"
)

type toolList struct {
	Tools []schema.ToolDescriptor `json:"tools"`
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	descs := s.tools.ListTools()
	if descs == nil {
		descs = []schema.ToolDescriptor{}
	}
	writeJSON(w, http.StatusOK, toolList{Tools: descs})
}

// handleDeleteTool removes a tool and records it in the deletion ledger so it
// is never synthesized again.
func (s *Server) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	desc, err := s.tools.DeleteTool(name)
	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		writeError(w, http.StatusNotFound, "tool not found: "+name)
		return
	case err != nil:
		s.logger.Error("delete tool failed", zap.String("tool", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("tool deleted over http", zap.String("tool", desc.Name))
	w.WriteHeader(http.StatusNoContent)
}
