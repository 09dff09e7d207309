// Package livestore appends departure rows to per-station CSV files.
//
// Files are append-only and get a header row when they are first written.
// Callers serialise access to a directory with the live-area lock; this
// package does no locking of its own.
package livestore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Ext is the extension of every live store file.
const Ext = ".csv"

var ErrNoRows = errors.New("livestore: no rows to append")

// Columns is the header row of every store file.
var Columns = []string{
	"service_from",
	"dt_timestamp",
	"origin",
	"destination",
	"sched_dep",
	"curr_dep",
	"platform",
	"operator",
	"length",
	"id",
	"calling_points",
}

// Row is one departure as written to a store file.
type Row struct {
	ServiceFrom        string
	Timestamp          string
	Origin             string
	Destination        string
	ScheduledDeparture string
	CurrentDeparture   string
	Platform           string
	Operator           string
	Length             string
	ID                 string
	// CallingPoints is a JSON array of the downstream stops.
	CallingPoints string
}

// Record returns the row's fields in Columns order.
func (r Row) Record() []string {
	return []string{
		r.ServiceFrom,
		r.Timestamp,
		r.Origin,
		r.Destination,
		r.ScheduledDeparture,
		r.CurrentDeparture,
		r.Platform,
		r.Operator,
		r.Length,
		r.ID,
		r.CallingPoints,
	}
}

// Path returns the store file for key inside dir.
func Path(dir, key string) string {
	return filepath.Join(dir, key+Ext)
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("livestore: create %s: %w", dir, err)
	}
	return nil
}

// Append writes rows to the file at path, creating it with a header row if
// it does not exist or is empty.
func Append(path string, rows []Row) (err error) {
	if len(rows) == 0 {
		return ErrNoRows
	}

	writeHeader := false
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeHeader = true
	case err != nil:
		return fmt.Errorf("livestore: stat %s: %w", path, err)
	case info.Size() == 0:
		writeHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("livestore: open %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(Columns); err != nil {
			return fmt.Errorf("livestore: write header: %w", err)
		}
	}
	for _, row := range rows {
		if err := w.Write(row.Record()); err != nil {
			return fmt.Errorf("livestore: write row %s: %w", row.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("livestore: flush %s: %w", path, err)
	}
	return nil
}

// ReadAll returns every record in the file at path, header included.
func ReadAll(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csv.NewReader(f).ReadAll()
}
