package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/porto-climate-map/pkg/canvas"
	"github.com/1F47E/porto-climate-map/pkg/controls"
	"github.com/1F47E/porto-climate-map/pkg/fetch"
	"github.com/1F47E/porto-climate-map/pkg/models"
	"github.com/1F47E/porto-climate-map/pkg/settings"
	"github.com/1F47E/porto-climate-map/pkg/surface"
)

type fixture struct {
	srv     *Server
	ts      *httptest.Server
	surface *surface.Surface
}

// newFixture serves the dashboard and points the fetchers at the sample
// data the same server embeds.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg, err := settings.Resolve(settings.EnvDev, nil)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := fetch.NewClient(cfg, nil, log)
	s := surface.New(cfg, client, surface.NewCanvas(cfg), surface.Options{Logger: log})
	t.Cleanup(s.Close)

	srv, err := New(cfg, s, log)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg.Data.Sensors = ts.URL + "/data/sensors.json"
	cfg.Data.GreenZones = ts.URL + "/data/greenzones.json"
	require.NoError(t, s.Activate(context.Background()))

	return &fixture{srv: srv, ts: ts, surface: s}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func overlayKinds(scene canvas.Scene) []canvas.OverlayKind {
	var out []canvas.OverlayKind
	for _, o := range scene.Overlays {
		out = append(out, o.Kind)
	}
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIndexPage(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/api/scene")
}

func TestSampleDataLoaded(t *testing.T) {
	f := newFixture(t)

	sensors := decode[[]models.SensorRecord](t, f.do(t, http.MethodGet, "/api/sensors", nil))
	assert.Len(t, sensors, 6)

	zones := decode[[]models.GreenZoneRecord](t, f.do(t, http.MethodGet, "/api/greenzones", nil))
	assert.Len(t, zones, 4)

	// one sensor reports no temperature
	points := decode[[]models.HeatPoint](t, f.do(t, http.MethodGet, "/api/heatpoints", nil))
	assert.Len(t, points, 5)
}

func TestScene(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/scene", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	scene := decode[canvas.Scene](t, resp)
	assert.Equal(t, []canvas.OverlayKind{canvas.KindHeat, canvas.KindPolygons, canvas.KindMarkers}, overlayKinds(scene))
	assert.Len(t, scene.Widgets, 4)
	require.NotNil(t, scene.ZoomControl)
	assert.Equal(t, canvas.TopRight, *scene.ZoomControl)
}

func TestSceneBBox(t *testing.T) {
	f := newFixture(t)

	// around Foz do Douro only
	resp := f.do(t, http.MethodGet, "/api/scene?bbox=41.14,-8.68,41.155,-8.67", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	scene := decode[canvas.Scene](t, resp)
	for _, o := range scene.Overlays {
		if o.Kind == canvas.KindMarkers {
			require.Len(t, o.Markers, 1)
			assert.Equal(t, "porto-foz-04", o.Markers[0].Key)
		}
	}

	resp = f.do(t, http.MethodGet, "/api/scene?bbox=1,2,3", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/scene?bbox=42,-8,41,-9", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetLayer(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/layers/heatmap", map[string]bool{"visible": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	vis := decode[models.LayerVisibility](t, resp)
	assert.False(t, vis[models.LayerHeatmap])
	assert.True(t, vis[models.LayerSensors])

	scene := decode[canvas.Scene](t, f.do(t, http.MethodGet, "/api/scene", nil))
	assert.Equal(t, []canvas.OverlayKind{canvas.KindPolygons, canvas.KindMarkers}, overlayKinds(scene))

	resp = f.do(t, http.MethodPut, "/api/layers/heatmap", map[string]bool{"visible": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	scene = decode[canvas.Scene](t, f.do(t, http.MethodGet, "/api/scene", nil))
	assert.Len(t, scene.Overlays, 3)
}

func TestSetLayerErrors(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/layers/traffic", map[string]bool{"visible": false})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/layers/heatmap", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/layers", nil)
	assert.Len(t, decode[models.LayerVisibility](t, resp), 3)
}

func widgetID(t *testing.T, f *fixture, kind controls.Kind) string {
	t.Helper()
	scene := decode[canvas.Scene](t, f.do(t, http.MethodGet, "/api/scene", nil))
	for _, w := range scene.Widgets {
		if w.Kind == string(kind) {
			return w.ID
		}
	}
	t.Fatalf("no %s widget", kind)
	return ""
}

func TestInvokeControls(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/controls/"+widgetID(t, f, controls.KindDraw)+"/invoke", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Drawing tools would be implemented here", decode[controls.Result](t, resp).Alert)

	resp = f.do(t, http.MethodPost, "/api/controls/"+widgetID(t, f, controls.KindLayerToggle)+"/invoke",
		controls.Action{Layer: models.LayerGreenZones, Checked: false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, f.surface.Visibility()[models.LayerGreenZones])

	resp = f.do(t, http.MethodPost, "/api/controls/nope/invoke", controls.Action{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[refreshResponse](t, resp)
	assert.Equal(t, refreshResponse{Sensors: 6, GreenZones: 4}, got)
}

func TestRefreshOutlivesClient(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	f.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.surface.Sensors(), 6)
	assert.Len(t, f.surface.GreenZones(), 4)
}

func TestSettingsEndpoint(t *testing.T) {
	f := newFixture(t)
	got := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/settings", nil))
	assert.Equal(t, "DEV", got["env"])
	assert.Contains(t, got, "mapControls")
}

func TestShareQR(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/share.png?url=https://porto-climate.example/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))

	resp = f.do(t, http.MethodGet, "/api/share.png", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "porto_climate_fetch_requests_total"))
}

func TestParseBBox(t *testing.T) {
	box, err := ParseBBox("41.1, -8.7, 41.2, -8.5")
	require.NoError(t, err)
	assert.Equal(t, models.BoundingBox{
		BottomLeft: models.Location{Lat: 41.1, Lon: -8.7},
		TopRight:   models.Location{Lat: 41.2, Lon: -8.5},
	}, box)

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "1,2,3,4,5"} {
		_, err := ParseBBox(bad)
		assert.Error(t, err, bad)
	}
}

func TestNearestSensors(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/sensors/nearest?lat=41.1406&lng=-8.6111&n=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[[]surface.NearbySensor](t, resp)
	require.Len(t, got, 2)
	assert.Equal(t, "porto-ribeira-01", got[0].ID)
	assert.Equal(t, "porto-aliados-02", got[1].ID)

	resp = f.do(t, http.MethodGet, "/api/sensors/nearest?lat=41.14", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/sensors/nearest?lat=41.14&lng=-8.61&n=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSensorsWithinRadius(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/sensors/nearest?lat=41.1406&lng=-8.6111&radius=1000", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[[]surface.NearbySensor](t, resp)
	require.Len(t, got, 2)
	assert.Equal(t, "porto-ribeira-01", got[0].ID)

	resp = f.do(t, http.MethodGet, "/api/sensors/nearest?lat=41.1406&lng=-8.6111&radius=-5", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
