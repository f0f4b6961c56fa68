// Package server exposes the map surface over HTTP: the scene the page
// draws, the layer and control actions, and the embedded page itself.
package server

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/1F47E/porto-climate-map/pkg/logger"
	"github.com/1F47E/porto-climate-map/pkg/metrics"
	"github.com/1F47E/porto-climate-map/pkg/settings"
	"github.com/1F47E/porto-climate-map/pkg/surface"
)

//go:embed web
var webFiles embed.FS

// Server holds what the handlers need. Build it with New.
type Server struct {
	cfg     *settings.Settings
	surface *surface.Surface
	log     *slog.Logger
	index   []byte
}

// New returns a server for s.
func New(cfg *settings.Settings, s *surface.Surface, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	index, err := webFiles.ReadFile("web/index.html")
	if err != nil {
		return nil, err
	}
	return &Server{cfg: cfg, surface: s, log: log, index: index}, nil
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(logger.AccessMiddleware(s.log))

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scene", s.handleScene).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleSettings).Methods(http.MethodGet)
	api.HandleFunc("/sensors", s.handleSensors).Methods(http.MethodGet)
	api.HandleFunc("/sensors/nearest", s.handleNearest).Methods(http.MethodGet)
	api.HandleFunc("/greenzones", s.handleGreenZones).Methods(http.MethodGet)
	api.HandleFunc("/heatpoints", s.handleHeatPoints).Methods(http.MethodGet)
	api.HandleFunc("/layers", s.handleLayers).Methods(http.MethodGet)
	api.HandleFunc("/layers/{key}", s.handleSetLayer).Methods(http.MethodPut)
	api.HandleFunc("/controls/{id}/invoke", s.handleInvoke).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/share.png", s.handleShare).Methods(http.MethodGet)

	static, _ := fs.Sub(webFiles, "web")
	r.PathPrefix("/data/").Handler(http.FileServer(http.FS(static))).Methods(http.MethodGet)

	return r
}

// Handler is the router wrapped with panic recovery, CORS and compression.
func (s *Server) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelError)),
		handlers.PrintRecoveryStack(true),
	)
	return recovery(cors(handlers.CompressHandler(s.Router())))
}
