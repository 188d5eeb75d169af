package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const markerFile = "last_export.txt"

// writeJSON writes the artifact atomically: the destination either keeps
// its previous content or holds the complete new document, never a
// partial write.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling artifact: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publishing artifact: %w", err)
	}

	return nil
}

// ExportGraph writes one view's snapshot as
// cytoscape_<view>_<window>.json in dir.
func (e *Engine) ExportGraph(ctx context.Context, view ViewKind, window time.Duration, dir string) error {
	elements, err := e.BuildGraph(ctx, view, window)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, fmt.Sprintf("cytoscape_%v_%v.json", view, WindowLabel(window)))
	if err := writeJSON(path, elements); err != nil {
		return err
	}

	e.log.Info("wrote %v (%v elements)", path, len(elements))
	return nil
}

// ExportSeries writes the hourly message and unique-senders series for one
// horizon, named by its day count (e.g. messages_hourly_7d.json).
func (e *Engine) ExportSeries(ctx context.Context, horizonDays int, dir string) error {
	hourly, senders, err := e.BuildHourlySeries(ctx, horizonDays*24)
	if err != nil {
		return err
	}

	hourlyPath := filepath.Join(dir, fmt.Sprintf("messages_hourly_%dd.json", horizonDays))
	if err := writeJSON(hourlyPath, hourly); err != nil {
		return err
	}

	sendersPath := filepath.Join(dir, fmt.Sprintf("unique_senders_%dd.json", horizonDays))
	if err := writeJSON(sendersPath, senders); err != nil {
		return err
	}

	e.log.Info("wrote %v and %v", hourlyPath, sendersPath)
	return nil
}

// WriteMarker records the last export time so the visualization can show
// data freshness.
func (e *Engine) WriteMarker(dir string) error {
	path := filepath.Join(dir, markerFile)
	return os.WriteFile(path, []byte(e.now().Format(timeFormat)+"\n"), 0644)
}

// WindowLabel renders a window for artifact file names: 15min, 30min, 1h,
// 3h, 24h.
func WindowLabel(window time.Duration) string {
	if window < time.Hour || window%time.Hour != 0 {
		return fmt.Sprintf("%dmin", int(window.Minutes()))
	}
	return fmt.Sprintf("%dh", int(window.Hours()))
}

// StandardWindows is the snapshot window set the visualization links to.
var StandardWindows = []time.Duration{
	15 * time.Minute,
	30 * time.Minute,
	time.Hour,
	3 * time.Hour,
	24 * time.Hour,
}

// StandardHorizons are the series horizons in days.
var StandardHorizons = []int{1, 7, 14, 30}
