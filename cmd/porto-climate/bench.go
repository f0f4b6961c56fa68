package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/1F47E/porto-climate-map/pkg/geo"
	"github.com/1F47E/porto-climate-map/pkg/models"
)

var benchOpts benchOptions

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark viewport queries on the map index",
	Long: `Index synthetic sensors spread over the Porto metropolitan area and run
concurrent viewport queries against them, the way the scene endpoint does
for a bbox.`,
	RunE: runBench,
}

// Rough extent of the Porto metropolitan area.
var portoArea = models.BoundingBox{
	BottomLeft: models.Location{Lat: 41.05, Lon: -8.75},
	TopRight:   models.Location{Lat: 41.30, Lon: -8.45},
}

type benchOptions struct {
	sensors int
	queries int
	workers int
	verbose bool
	seed    int64
}

type benchResult struct {
	Sensors  int64
	LoadTime time.Duration
	Elapsed  time.Duration
	Queries  int64
	Results  int64
}

func (r benchResult) QueriesPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Queries) / r.Elapsed.Seconds()
}

func (r benchResult) AverageQuery() time.Duration {
	if r.Queries == 0 {
		return 0
	}
	return r.Elapsed / time.Duration(r.Queries)
}

func (r benchResult) PerViewport() float64 {
	if r.Queries == 0 {
		return 0
	}
	return float64(r.Results) / float64(r.Queries)
}

func init() {
	benchCmd.Flags().IntVarP(&benchOpts.sensors, "sensors", "s", 100000, "Number of synthetic sensors")
	benchCmd.Flags().IntVarP(&benchOpts.queries, "queries", "q", 10000, "Number of viewport queries")
	benchCmd.Flags().IntVarP(&benchOpts.workers, "workers", "w", runtime.NumCPU(), "Number of worker goroutines")
	benchCmd.Flags().BoolVarP(&benchOpts.verbose, "verbose", "v", false, "Verbose output")
	benchCmd.Flags().Int64Var(&benchOpts.seed, "seed", 0, "Random seed (0 picks one from the clock)")
}

func runBench(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		report := func(msg tea.Msg) {
			switch msg := msg.(type) {
			case phaseMsg:
				fmt.Printf("%s...\n", msg)
			case logMsg:
				fmt.Println(msg)
			}
		}
		res, err := benchmark(ctx, benchOpts, report)
		if err != nil {
			return err
		}
		fmt.Println(renderBenchResult(res))
		return nil
	}

	p := tea.NewProgram(newBenchModel(cancel))
	go func() {
		res, err := benchmark(ctx, benchOpts, p.Send)
		p.Send(benchDone{result: res, err: err})
	}()
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(benchModel); ok {
		return m.err
	}
	return nil
}

// benchmark indexes o.sensors random points and runs o.queries viewport
// queries over o.workers goroutines. Progress goes to report, which must be
// safe for concurrent use.
func benchmark(ctx context.Context, o benchOptions, report func(tea.Msg)) (benchResult, error) {
	if o.sensors < 1 || o.queries < 1 {
		return benchResult{}, errors.New("sensors and queries must be positive")
	}
	workers := max(o.workers, 1)
	seed := o.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))
	latSpan := portoArea.TopRight.Lat - portoArea.BottomLeft.Lat
	lonSpan := portoArea.TopRight.Lon - portoArea.BottomLeft.Lon

	report(phaseMsg(fmt.Sprintf("Indexing %d sensors", o.sensors)))
	features := make([]geo.Feature, o.sensors)
	for i := range features {
		features[i] = geo.PointFeature("bench-"+strconv.Itoa(i), models.LatLng{
			portoArea.BottomLeft.Lat + r.Float64()*latSpan,
			portoArea.BottomLeft.Lon + r.Float64()*lonSpan,
		})
	}
	index := geo.NewIndex()
	start := time.Now()
	if err := index.Replace(features); err != nil {
		return benchResult{}, err
	}
	res := benchResult{Sensors: index.Size(), LoadTime: time.Since(start)}
	report(logMsg(fmt.Sprintf("Indexed %d sensors in %v", res.Sensors, res.LoadTime)))
	if err := ctx.Err(); err != nil {
		return res, err
	}

	// viewports from street level up to the whole city
	boxes := make([]models.BoundingBox, o.queries)
	for i := range boxes {
		size := r.Float64()*0.05 + 0.002
		lat := portoArea.BottomLeft.Lat + r.Float64()*latSpan
		lon := portoArea.BottomLeft.Lon + r.Float64()*lonSpan
		boxes[i] = models.BoundingBox{
			BottomLeft: models.Location{Lat: lat - size/2, Lon: lon - size/2},
			TopRight:   models.Location{Lat: lat + size/2, Lon: lon + size/2},
		}
	}

	report(phaseMsg(fmt.Sprintf("Running %d viewport queries on %d workers", o.queries, workers)))
	var totalResults, queryCount atomic.Int64
	step := int64(max(o.queries/100, 1))

	start = time.Now()
	var wg sync.WaitGroup
	perWorker := o.queries / workers
	for w := 0; w < workers; w++ {
		lo := w * perWorker
		hi := lo + perWorker
		if w == workers-1 {
			hi = o.queries
		}
		wg.Add(1)
		go func(workerID, lo, hi int) {
			defer wg.Done()
			local := 0
			for i := lo; i < hi; i++ {
				if ctx.Err() != nil {
					break
				}
				ids, err := index.QueryBox(boxes[i])
				if err != nil {
					report(logMsg(fmt.Sprintf("Worker %d: query error: %v", workerID, err)))
					continue
				}
				local += len(ids)
				if n := queryCount.Add(1); n%step == 0 {
					report(progressMsg(float64(n) / float64(o.queries)))
				}
				if o.verbose && i%1000 == 0 {
					report(logMsg(fmt.Sprintf("Worker %d: query %d found %d sensors", workerID, i, len(ids))))
				}
			}
			totalResults.Add(int64(local))
		}(w, lo, hi)
	}
	wg.Wait()
	res.Elapsed = time.Since(start)
	res.Queries = queryCount.Load()
	res.Results = totalResults.Load()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if res.Queries == 0 {
		return res, errors.New("no query completed")
	}
	return res, nil
}
