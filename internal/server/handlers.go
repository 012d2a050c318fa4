/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/volund_bench/internal/events"
	"github.com/friendsincode/volund_bench/internal/link"
	"github.com/friendsincode/volund_bench/internal/logbuffer"
	"github.com/friendsincode/volund_bench/internal/models"
	"github.com/friendsincode/volund_bench/internal/store"
	"github.com/friendsincode/volund_bench/internal/waveform"
)

const maxBodyBytes = 4 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// channelView is the wire shape of one projected channel.
type channelView struct {
	Name     string               `json:"name"`
	Kind     waveform.ChannelKind `json:"kind"`
	GPIO     int                  `json:"gpio"`
	Points   []models.StepPoint   `json:"points"`
	Display  [][2]float64         `json:"display,omitempty"`
	HasRamps bool                 `json:"has_ramps"`
}

type compileResponse struct {
	Profile       *models.Profile `json:"profile"`
	TotalMs       float64         `json:"total_ms"`
	BlockEndTimes []float64       `json:"block_end_times"`
	Channels      []channelView   `json:"channels"`
}

// handleCompile compiles a profile document and returns the canonical
// profile together with the projected per-position channels for
// preview. Nothing is persisted and nothing touches the device.
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	in, err := s.readProfileBody(w, r)
	if err != nil {
		s.metrics.CompilesTotal.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	prof, err := waveform.RecompileProfile(in)
	if err != nil {
		s.metrics.CompilesTotal.WithLabelValues("error").Inc()
		s.writeCompileError(w, err)
		return
	}
	seq, err := waveform.SequenceBlocks(prof.Blocks, prof.WaveformTimeUnits, prof.AuxiliaryOutputs)
	if err != nil {
		s.metrics.CompilesTotal.WithLabelValues("error").Inc()
		s.writeCompileError(w, err)
		return
	}
	s.metrics.CompilesTotal.WithLabelValues("ok").Inc()

	channels := waveform.ProjectChannels(prof.Positions, prof.RowDelayMs, prof.AuxiliaryOutputs, seq)
	views := make([]channelView, 0, len(channels))
	for _, ch := range channels {
		view := channelView{
			Name:     ch.Name,
			Kind:     ch.Kind,
			GPIO:     ch.GPIO,
			Points:   ch.Points,
			HasRamps: ch.HasRamps,
		}
		for _, p := range ch.Display {
			view.Display = append(view.Display, [2]float64{p.TimeMs, p.Value})
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, compileResponse{
		Profile:       prof,
		TotalMs:       seq.TotalLengthMs,
		BlockEndTimes: seq.BlockEndTimes,
		Channels:      views,
	})
}

// handleAvailableEvents returns the schedule event vocabulary. With a
// profile_id query parameter the stored profile's auxiliary outputs
// extend the base set.
func (s *Server) handleAvailableEvents(w http.ResponseWriter, r *http.Request) {
	var aux []models.AuxiliaryOutput
	if id := r.URL.Query().Get("profile_id"); id != "" {
		_, prof, err := s.store.Get(id)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		aux = prof.AuxiliaryOutputs
	}
	writeJSON(w, http.StatusOK, map[string][]string{"events": models.AvailableEvents(aux)})
}

type profileSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type profileResponse struct {
	profileSummary
	Profile *models.Profile `json:"profile"`
}

func (s *Server) handleProfilesList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	out := make([]profileSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, profileSummary{ID: rec.ID, Name: rec.Name, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": out})
}

func (s *Server) handleProfilesCreate(w http.ResponseWriter, r *http.Request) {
	s.saveProfile(w, r, "")
}

func (s *Server) handleProfilesUpdate(w http.ResponseWriter, r *http.Request) {
	s.saveProfile(w, r, chi.URLParam(r, "profileID"))
}

// saveProfile recompiles the submitted document before storing it, so
// the library only ever holds profiles whose derived waveforms match
// their blocks.
func (s *Server) saveProfile(w http.ResponseWriter, r *http.Request, id string) {
	in, err := s.readProfileBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	prof, err := waveform.RecompileProfile(in)
	if err != nil {
		s.writeCompileError(w, err)
		return
	}

	rec, err := s.store.Save(id, prof)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.bus.Publish(events.EventProfileSaved, events.Payload{"profile_id": rec.ID, "name": rec.Name})

	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, profileResponse{
		profileSummary: profileSummary{ID: rec.ID, Name: rec.Name, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt},
		Profile:        prof,
	})
}

func (s *Server) handleProfilesGet(w http.ResponseWriter, r *http.Request) {
	rec, prof, err := s.store.Get(chi.URLParam(r, "profileID"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		profileSummary: profileSummary{ID: rec.ID, Name: rec.Name, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt},
		Profile:        prof,
	})
}

func (s *Server) handleProfilesDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileID")
	if err := s.store.Delete(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.bus.Publish(events.EventProfileDeleted, events.Payload{"profile_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeviceConnect(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.controllerFor()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if err := ctrl.Connect(); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Status())
}

func (s *Server) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	ctrl := s.currentController()
	if ctrl == nil {
		writeJSON(w, http.StatusOK, link.DeviceStatus{State: link.StateIdle})
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Status())
}

type deployRequest struct {
	ProfileID string          `json:"profile_id,omitempty"`
	Filename  string          `json:"filename,omitempty"`
	Profile   json.RawMessage `json:"profile,omitempty"`
}

// handleDeviceDeploy uploads a profile to the device and starts it.
// The profile comes either from the library by id or inline.
func (s *Server) handleDeviceDeploy(w http.ResponseWriter, r *http.Request) {
	ctrl := s.currentController()
	if ctrl == nil {
		writeError(w, http.StatusConflict, "device_not_connected")
		return
	}

	var req deployRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	var in *models.Profile
	switch {
	case req.ProfileID != "":
		_, stored, err := s.store.Get(req.ProfileID)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		in = stored
	case len(req.Profile) > 0:
		decoded, err := models.DecodeProfile(req.Profile)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		in = decoded
	default:
		writeError(w, http.StatusBadRequest, "profile_id_or_profile_required")
		return
	}

	prof, err := waveform.RecompileProfile(in)
	if err != nil {
		s.writeCompileError(w, err)
		return
	}

	runID, err := ctrl.Deploy(prof, req.Filename)
	if err != nil {
		if errors.Is(err, link.ErrBusy) {
			writeError(w, http.StatusConflict, "run_in_progress")
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) handleDevicePause(w http.ResponseWriter, r *http.Request) {
	s.deviceControl(w, func(ctrl *link.Controller) error { return ctrl.Pause() })
}

func (s *Server) handleDeviceResume(w http.ResponseWriter, r *http.Request) {
	s.deviceControl(w, func(ctrl *link.Controller) error { return ctrl.Resume() })
}

func (s *Server) handleDeviceStop(w http.ResponseWriter, r *http.Request) {
	s.deviceControl(w, func(ctrl *link.Controller) error { return ctrl.Stop() })
}

func (s *Server) deviceControl(w http.ResponseWriter, call func(*link.Controller) error) {
	ctrl := s.currentController()
	if ctrl == nil {
		writeError(w, http.StatusConflict, "device_not_connected")
		return
	}
	if err := call(ctrl); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Status())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		RunID:      q.Get("run_id"),
		Search:     q.Get("q"),
		Limit:      200,
		Descending: q.Get("order") != "asc",
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			params.Limit = n
		}
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = t
	}

	entries := s.logBuffer.Query(params)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleLogComponents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"components": s.logBuffer.GetComponents()})
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.logBuffer.Stats())
}

// readProfileBody reads and decodes a profile document from the body.
func (s *Server) readProfileBody(w http.ResponseWriter, r *http.Request) (*models.Profile, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return models.DecodeProfile(data)
}

func (s *Server) writeCompileError(w http.ResponseWriter, err error) {
	var verr *waveform.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": verr.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "profile_not_found")
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
