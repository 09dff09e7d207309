// Package departures polls departure boards and appends them to the live
// store, one file per station.
package departures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hookdeck/railpipe/internal/ldbws"
	"github.com/hookdeck/railpipe/internal/livestore"
	"github.com/hookdeck/railpipe/internal/resourcelock"
	"github.com/hookdeck/railpipe/internal/worker"
	"go.uber.org/zap"
)

var ErrNoServices = errors.New("no services currently scheduled")

// Source fetches the departure board for one station.
type Source interface {
	DepartureBoard(ctx context.Context, crs string) (*ldbws.StationBoard, error)
}

// Report lists the stations a tick wrote departures for and those it could
// not.
type Report struct {
	Succeeded []string
	Failed    []string
}

// Ingester is the worker.Task that polls every configured station on each
// tick. A failure for one station never affects the others or the tick.
type Ingester struct {
	source   Source
	stations []string
	dir      string
	liveLock *resourcelock.Lock
	logger   worker.Logger

	paths map[string]string

	mu   sync.Mutex
	last Report
}

var _ worker.Task = (*Ingester)(nil)

func New(source Source, stations []string, dir string, liveLock *resourcelock.Lock, logger worker.Logger) *Ingester {
	return &Ingester{
		source:   source,
		stations: slices.Clone(stations),
		dir:      dir,
		liveLock: liveLock,
		logger:   logger,
	}
}

func (i *Ingester) Setup(ctx context.Context) error {
	i.logger.Debug("setting up departures ingester", zap.String("dir", i.dir))

	if err := i.liveLock.Do(func() error {
		return livestore.EnsureDir(i.dir)
	}); err != nil {
		return err
	}

	i.paths = make(map[string]string, len(i.stations))
	for _, crs := range i.stations {
		i.paths[crs] = livestore.Path(i.dir, crs)
	}

	i.logger.Debug("departures ingester set up", zap.Strings("stations", i.stations))
	return nil
}

func (i *Ingester) Loop(ctx context.Context) error {
	report := i.Ingest(ctx)

	if len(report.Failed) > 0 {
		i.logger.Warn("failed to get departures", zap.Strings("stations", report.Failed))
	}
	i.logger.Info("got new departures", zap.Strings("stations", report.Succeeded))
	return nil
}

func (i *Ingester) Teardown(ctx context.Context) error {
	return nil
}

// LastReport returns the report of the most recent tick.
func (i *Ingester) LastReport() Report {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.last
}

// Ingest polls every station once and appends the results.
func (i *Ingester) Ingest(ctx context.Context) Report {
	report := Report{
		Succeeded: []string{},
		Failed:    []string{},
	}

	for _, crs := range i.stations {
		if err := i.ingestStation(ctx, crs); err != nil {
			i.logger.Error("departures ingest failed",
				zap.String("crs", crs),
				zap.Error(err))
			report.Failed = append(report.Failed, crs)
			continue
		}
		report.Succeeded = append(report.Succeeded, crs)
	}

	i.mu.Lock()
	i.last = report
	i.mu.Unlock()
	return report
}

func (i *Ingester) ingestStation(ctx context.Context, crs string) error {
	board, err := i.source.DepartureBoard(ctx, crs)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if err := ldbws.Validate(board); err != nil {
		return err
	}
	if len(board.Services) == 0 {
		return ErrNoServices
	}

	rows, err := Flatten(board)
	if err != nil {
		return err
	}

	path, ok := i.paths[crs]
	if !ok {
		path = livestore.Path(i.dir, crs)
	}
	if err := i.liveLock.Do(func() error {
		return livestore.Append(path, rows)
	}); err != nil {
		return err
	}

	i.logger.Debug("wrote departures",
		zap.String("crs", crs),
		zap.Int("rows", len(rows)),
		zap.String("path", path))
	return nil
}

type callingPoint struct {
	Name        string `json:"name"`
	IsCancelled bool   `json:"is_cancelled"`
	SchedTime   string `json:"sched_time"`
	EstTime     string `json:"est_time"`
}

// Flatten turns a validated board into one row per service. Only the first
// origin, destination and calling point list of a service are kept.
func Flatten(board *ldbws.StationBoard) ([]livestore.Row, error) {
	rows := make([]livestore.Row, 0, len(board.Services))
	for _, svc := range board.Services {
		points := []callingPoint{}
		if len(svc.SubsequentCallingPoints) > 0 {
			for _, cp := range svc.SubsequentCallingPoints[0].CallingPoints {
				points = append(points, callingPoint{
					Name:        cp.LocationName,
					IsCancelled: cp.IsCancelled,
					SchedTime:   cp.ST,
					EstTime:     cp.ET,
				})
			}
		}
		encoded, err := json.Marshal(points)
		if err != nil {
			return nil, fmt.Errorf("encode calling points for %s: %w", svc.ServiceID, err)
		}

		rows = append(rows, livestore.Row{
			ServiceFrom:        board.LocationName,
			Timestamp:          board.GeneratedAt,
			Origin:             firstName(svc.Origin),
			Destination:        firstName(svc.Destination),
			ScheduledDeparture: svc.STD,
			CurrentDeparture:   svc.ETD,
			Platform:           svc.Platform,
			Operator:           svc.Operator,
			Length:             svc.Length,
			ID:                 svc.ServiceID,
			CallingPoints:      string(encoded),
		})
	}
	return rows, nil
}

func firstName(locations []ldbws.Location) string {
	if len(locations) == 0 {
		return ""
	}
	return locations[0].LocationName
}
