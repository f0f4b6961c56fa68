package controls

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1F47E/porto-climate-map/pkg/canvas"
	"github.com/1F47E/porto-climate-map/pkg/models"
	"github.com/1F47E/porto-climate-map/pkg/settings"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSettings() *settings.Settings {
	return &settings.Settings{
		Features: settings.Features{EnableHeatmap: true, EnableGreenZones: true, EnableSensors: true},
		MapControls: settings.MapControls{
			EnableZoomControls: true,
			Position:           "topright",
			Controls: []settings.ControlDescriptor{
				{Type: "layerToggle", Enabled: true},
				{Type: "draw", Enabled: true},
				{Type: "measurement", Enabled: true},
				{Type: "fullscreen", Enabled: true},
				{Type: "custom", Enabled: true, Title: "Export"},
			},
		},
	}
}

func widgetOfKind(t *testing.T, c *canvas.Canvas, kind Kind) canvas.Widget {
	t.Helper()
	for _, w := range c.Snapshot().Widgets {
		if w.Kind == string(kind) {
			return w
		}
	}
	t.Fatalf("no %s widget", kind)
	return canvas.Widget{}
}

func TestMountUnmount(t *testing.T) {
	c := canvas.New(canvas.View{})
	p := New(c, testSettings(), Callbacks{}, quietLog())

	p.Mount(models.DefaultVisibility())
	scene := c.Snapshot()
	assert.Len(t, scene.Widgets, 5)
	require.NotNil(t, scene.ZoomControl)
	assert.Equal(t, canvas.TopRight, *scene.ZoomControl)
	assert.True(t, p.Mounted())

	p.Unmount()
	assert.Empty(t, c.Snapshot().Widgets)
	assert.False(t, p.Mounted())

	// a second unmount has nothing left to release
	p.Unmount()
	assert.Empty(t, c.Snapshot().Widgets)
}

func TestMountTwiceDoesNotDuplicate(t *testing.T) {
	c := canvas.New(canvas.View{})
	p := New(c, testSettings(), Callbacks{}, quietLog())

	p.Mount(models.DefaultVisibility())
	p.Remount(models.DefaultVisibility())
	assert.Len(t, c.Snapshot().Widgets, 5)
}

func TestUnmountToleratesExternalDetach(t *testing.T) {
	c := canvas.New(canvas.View{})
	p := New(c, testSettings(), Callbacks{}, quietLog())
	p.Mount(models.DefaultVisibility())

	w := widgetOfKind(t, c, KindDraw)
	require.NoError(t, c.Detach(w.ID))

	p.Unmount()
	assert.Empty(t, c.Snapshot().Widgets)
}

func TestZoomControlsDisabled(t *testing.T) {
	cfg := testSettings()
	cfg.MapControls.EnableZoomControls = false
	c := canvas.New(canvas.View{})
	p := New(c, cfg, Callbacks{}, quietLog())

	p.Mount(models.DefaultVisibility())
	assert.Nil(t, c.Snapshot().ZoomControl)

	// removing an already removed zoom control is tolerated
	p.Remount(models.DefaultVisibility())
	assert.Nil(t, c.Snapshot().ZoomControl)
}

func TestLayerTogglesReflectVisibility(t *testing.T) {
	c := canvas.New(canvas.View{})
	p := New(c, testSettings(), Callbacks{}, quietLog())

	vis := models.DefaultVisibility()
	vis[models.LayerGreenZones] = false
	p.Mount(vis)

	w := widgetOfKind(t, c, KindLayerToggle)
	assert.Equal(t, []canvas.Toggle{
		{Key: models.LayerHeatmap, Label: "Heatmap", Checked: true},
		{Key: models.LayerGreenZones, Label: "Green Zones", Checked: false},
		{Key: models.LayerSensors, Label: "Sensors", Checked: true},
	}, w.Toggles)
}

func TestLayerTogglesFollowFeatureFlags(t *testing.T) {
	cfg := testSettings()
	cfg.Features.EnableHeatmap = false
	cfg.Features.EnableSensors = false
	c := canvas.New(canvas.View{})
	p := New(c, cfg, Callbacks{}, quietLog())
	p.Mount(models.DefaultVisibility())

	w := widgetOfKind(t, c, KindLayerToggle)
	require.Len(t, w.Toggles, 2)
	assert.Equal(t, models.LayerGreenZones, w.Toggles[0].Key)
	assert.Equal(t, models.LayerSensors, w.Toggles[1].Key)
}

func TestInvokeLayerToggle(t *testing.T) {
	var gotKey models.LayerKey
	gotVisible := true
	c := canvas.New(canvas.View{})
	p := New(c, testSettings(), Callbacks{
		OnLayerToggle: func(key models.LayerKey, visible bool) error {
			gotKey, gotVisible = key, visible
			return nil
		},
	}, quietLog())
	p.Mount(models.DefaultVisibility())

	w := widgetOfKind(t, c, KindLayerToggle)
	res, err := p.Invoke(w.ID, Action{Layer: models.LayerHeatmap, Checked: false})
	require.NoError(t, err)
	assert.True(t, res.Handled)
	assert.Equal(t, KindLayerToggle, res.Kind)
	assert.Equal(t, models.LayerHeatmap, gotKey)
	assert.False(t, gotVisible)
}

func TestInvokeLayerToggleErrors(t *testing.T) {
	boom := errors.New("boom")
	cfg := testSettings()
	cfg.Features.EnableHeatmap = false
	c := canvas.New(canvas.View{})
	p := New(c, cfg, Callbacks{
		OnLayerToggle: func(models.LayerKey, bool) error { return boom },
	}, quietLog())
	p.Mount(models.DefaultVisibility())
	w := widgetOfKind(t, c, KindLayerToggle)

	_, err := p.Invoke(w.ID, Action{Layer: models.LayerHeatmap})
	assert.ErrorIs(t, err, ErrUnknownToggle)

	_, err = p.Invoke(w.ID, Action{Layer: models.LayerSensors})
	assert.ErrorIs(t, err, boom)

	_, err = p.Invoke("missing", Action{})
	assert.ErrorIs(t, err, ErrUnknownWidget)
}

func TestInvokeStubs(t *testing.T) {
	c := canvas.New(canvas.View{})
	p := New(c, testSettings(), Callbacks{}, quietLog())
	p.Mount(models.DefaultVisibility())

	res, err := p.Invoke(widgetOfKind(t, c, KindDraw).ID, Action{})
	require.NoError(t, err)
	assert.Equal(t, "Drawing tools would be implemented here", res.Alert)

	res, err = p.Invoke(widgetOfKind(t, c, KindMeasurement).ID, Action{})
	require.NoError(t, err)
	assert.Equal(t, "Measurement tools would be implemented here", res.Alert)

	res, err = p.Invoke(widgetOfKind(t, c, KindCustom).ID, Action{})
	require.NoError(t, err)
	assert.Equal(t, "Export would be implemented here", res.Alert)

	res, err = p.Invoke(widgetOfKind(t, c, KindFullscreen).ID, Action{})
	require.NoError(t, err)
	require.NotNil(t, res.Fullscreen)
	assert.True(t, *res.Fullscreen)
	assert.True(t, c.Snapshot().Fullscreen)
}

func TestInvokeCallbacks(t *testing.T) {
	var calls []string
	c := canvas.New(canvas.View{})
	p := New(c, testSettings(), Callbacks{
		OnDraw:       func() { calls = append(calls, "draw") },
		OnMeasure:    func() { calls = append(calls, "measure") },
		OnFullscreen: func() { calls = append(calls, "fullscreen") },
		OnCustom:     func(name string) { calls = append(calls, "custom:"+name) },
	}, quietLog())
	p.Mount(models.DefaultVisibility())

	for _, k := range []Kind{KindDraw, KindMeasurement, KindFullscreen, KindCustom} {
		res, err := p.Invoke(widgetOfKind(t, c, k).ID, Action{})
		require.NoError(t, err)
		assert.Empty(t, res.Alert)
	}
	assert.Equal(t, []string{"draw", "measure", "fullscreen", "custom:Export"}, calls)
	assert.False(t, c.Snapshot().Fullscreen)
}
