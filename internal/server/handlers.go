package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/FlowRegSuite/flowreg-session-gui/internal/journal"
	"github.com/FlowRegSuite/flowreg-session-gui/internal/runner"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/schema"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.snapshot()
	s.writeJSON(w, http.StatusOK, cfg.Values())
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cfg, err := session.New(values)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	saved := false
	if s.configPath != "" {
		if err := session.Save(cfg, s.configPath); err != nil {
			s.logger.Error("save config", "path", s.configPath, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to save configuration")
			return
		}
		saved = true
	}
	s.replace(cfg)
	s.logger.Info("configuration updated", "path", s.configPath, "saved", saved)
	s.writeJSON(w, http.StatusOK, map[string]any{"saved": saved, "path": s.configPath})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeJSON(w, http.StatusOK, []journal.Record{})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	records, err := s.journal.Recent(limit)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	// An empty body means "run everything".
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Mode == "" {
		body.Mode = string(runner.ModeAll)
	}
	mode, err := runner.ParseMode(body.Mode)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.runner.Start(s.runCtx, s.snapshot(), mode)
	if errors.Is(err, runner.ErrRunInProgress) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("start run", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.journal.RecordStart(journal.Record{
		ID:         run.ID,
		Mode:       string(run.Mode),
		ConfigPath: run.ConfigPath,
		LogPath:    journal.LogPath(s.logsDir, run.ID),
		StartedAt:  run.StartedAt,
	}); err != nil {
		s.logger.Warn("record run start", "run_id", run.ID, "error", err)
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":      run.ID,
		"mode":        string(run.Mode),
		"config_path": run.ConfigPath,
		"started_at":  run.StartedAt,
	})
}

func (s *Server) handleKillRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	active := s.runner.Active()
	if active == nil || active.ID != id {
		s.writeError(w, http.StatusNotFound, "no such active run")
		return
	}
	active.Kill()
	s.logger.Info("kill requested", "run_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsubscribe := s.runner.Subscribe()
	defer unsubscribe()
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.RunID != id {
				continue
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			if evt.Kind == runner.EventFinished {
				return
			}
		}
	}
}

func (s *Server) handleRunSocket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.runner.Subscribe()
	defer unsubscribe()

	// Drain client frames so close frames and pings are handled.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.RunID != id {
				continue
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			if evt.Kind == runner.EventFinished {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
				_ = conn.WriteMessage(websocket.CloseMessage, msg)
				return
			}
		}
	}
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	form, err := s.formModel()
	if err != nil {
		s.logger.Error("build form model", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to build form model")
		return
	}
	doc, err := schema.Export(form, schema.Info{
		Title:       formTitle,
		Version:     "1.0.0",
		Description: formDescription,
	})
	if err != nil {
		s.logger.Error("export schema", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to export schema")
		return
	}

	if r.URL.Query().Get("format") == "yaml" {
		payload, err := schema.MarshalYAML(doc)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to marshal schema")
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(payload)
		return
	}
	payload, err := schema.MarshalJSON(doc)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to marshal schema")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}
