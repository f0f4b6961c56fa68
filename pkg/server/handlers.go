package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/skip2/go-qrcode"

	"github.com/1F47E/porto-climate-map/pkg/controls"
	"github.com/1F47E/porto-climate-map/pkg/models"
	"github.com/1F47E/porto-climate-map/pkg/surface"
)

const qrSize = 256

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response_encode_failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(s.index)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ParseBBox reads "minLat,minLng,maxLat,maxLng".
func ParseBBox(raw string) (models.BoundingBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return models.BoundingBox{}, fmt.Errorf("bbox: want 4 comma separated numbers, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.BoundingBox{}, fmt.Errorf("bbox: %w", err)
		}
		v[i] = f
	}
	return models.BoundingBox{
		BottomLeft: models.Location{Lat: v[0], Lon: v[1]},
		TopRight:   models.Location{Lat: v[2], Lon: v[3]},
	}, nil
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	var box *models.BoundingBox
	if raw := r.URL.Query().Get("bbox"); raw != "" {
		b, err := ParseBBox(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		box = &b
	}
	scene, err := s.surface.Scene(box)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, scene)
}

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg)
}

func (s *Server) handleSensors(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.surface.Sensors())
}

const (
	defaultNearest = 3
	maxNearest     = 50
)

// handleNearest answers either the n closest sensors or, with ?radius=
// in meters, every sensor inside that circle.
func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("lat: %w", err))
		return
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("lng: %w", err))
		return
	}
	if raw := q.Get("radius"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("radius: %w", err))
			return
		}
		found, err := s.surface.SensorsWithin(models.LatLng{lat, lng}, radius)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeJSON(w, http.StatusOK, found)
		return
	}

	n := defaultNearest
	if raw := q.Get("n"); raw != "" {
		n, err = strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("n: want a positive integer, got %q", raw))
			return
		}
	}
	s.writeJSON(w, http.StatusOK, s.surface.NearestSensors(models.LatLng{lat, lng}, min(n, maxNearest)))
}

func (s *Server) handleGreenZones(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.surface.GreenZones())
}

func (s *Server) handleHeatPoints(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.surface.HeatPoints())
}

func (s *Server) handleLayers(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.surface.Visibility())
}

type layerRequest struct {
	Visible *bool `json:"visible"`
}

func (s *Server) handleSetLayer(w http.ResponseWriter, r *http.Request) {
	key := models.LayerKey(mux.Vars(r)["key"])

	var req layerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if req.Visible == nil {
		s.writeError(w, http.StatusBadRequest, errors.New(`missing "visible"`))
		return
	}

	if err := s.surface.SetLayerVisible(key, *req.Visible); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.surface.Visibility())
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var action controls.Action
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
			return
		}
	}

	res, err := s.surface.InvokeControl(id, action)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type refreshResponse struct {
	Sensors    int `json:"sensors"`
	GreenZones int `json:"greenzones"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// A dropped client must not abort a refresh half way: the surface would
	// keep the empty lists of the cancelled fetch.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.Data.Timeout())
	defer cancel()
	if err := s.surface.Refresh(ctx); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, refreshResponse{
		Sensors:    len(s.surface.Sensors()),
		GreenZones: len(s.surface.GreenZones()),
	})
}

// handleShare renders a QR code of the dashboard link. Without ?url= the
// link is rebuilt from the request.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	link := r.URL.Query().Get("url")
	if link == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		link = (&url.URL{Scheme: scheme, Host: r.Host, Path: "/"}).String()
	}
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("encode qr: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, surface.ErrUnknownLayer), errors.Is(err, controls.ErrUnknownWidget):
		return http.StatusNotFound
	case errors.Is(err, controls.ErrUnknownToggle):
		return http.StatusBadRequest
	case errors.Is(err, surface.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
