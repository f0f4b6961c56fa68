package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/1F47E/porto-climate-map/pkg/fetch"
	"github.com/1F47E/porto-climate-map/pkg/models"
	"github.com/1F47E/porto-climate-map/pkg/server"
	"github.com/1F47E/porto-climate-map/pkg/surface"
)

var snapshotBBox string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Fetch once and print the scene as JSON",
	Long: `Run both fetchers, render the scene and print it to stdout. A failed fetch
leaves its layer empty; the command still prints.`,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringVarP(&snapshotBBox, "bbox", "b", "", "Viewport: minLat,minLng,maxLat,maxLng")
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	var box *models.BoundingBox
	if snapshotBBox != "" {
		b, err := server.ParseBBox(snapshotBBox)
		if err != nil {
			return err
		}
		box = &b
	}

	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	s := surface.New(cfg, fetch.NewClient(cfg, nil, log), surface.NewCanvas(cfg), surface.Options{Logger: log})
	defer s.Close()

	if err := s.Activate(cmd.Context()); err != nil {
		return err
	}
	scene, err := s.Scene(box)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(scene); err != nil {
		return err
	}
	// stdout stays plain JSON for pipes
	if isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintln(os.Stderr, renderSceneSummary(scene))
	}
	return nil
}
