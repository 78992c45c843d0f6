package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic counter.
var Stats = &stats{}

type stats struct {
	ObexSent  atomic.Int64 // bytes written to the OBEX transport
	ObexRecv  atomic.Int64 // bytes read from the OBEX transport
	Files     atomic.Int64 // files and listings fully received
	Reports   atomic.Int64 // capture reports read from HID
	Segments  atomic.Int64 // ink segments emitted by the segmenter
	RelaySent atomic.Int64 // bytes written to the relay DataChannel
	RelayRecv atomic.Int64 // bytes read from the relay DataChannel
}

func (s *stats) AddObexSent(n int)  { s.ObexSent.Add(int64(n)) }
func (s *stats) AddObexRecv(n int)  { s.ObexRecv.Add(int64(n)) }
func (s *stats) AddFile()           { s.Files.Add(1) }
func (s *stats) AddReport()         { s.Reports.Add(1) }
func (s *stats) AddSegments(n int)  { s.Segments.Add(int64(n)) }
func (s *stats) AddRelaySent(n int) { s.RelaySent.Add(int64(n)) }
func (s *stats) AddRelayRecv(n int) { s.RelayRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs traffic statistics every
// interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevObex, prevRelay, prevReports, prevSegments int64
		for {
			select {
			case <-ticker.C:
				obex := Stats.ObexSent.Load() + Stats.ObexRecv.Load()
				relay := Stats.RelaySent.Load() + Stats.RelayRecv.Load()
				reports := Stats.Reports.Load()
				segments := Stats.Segments.Load()

				obexS := float64(obex-prevObex) / secs
				relayS := float64(relay-prevRelay) / secs
				reportS := float64(reports-prevReports) / secs
				segs := segments - prevSegments

				if obexS > 10 || relayS > 10 || reportS > 0 {
					pterm.DefaultLogger.Info(formatStats(obexS, relayS, reportS, segs))
				}

				prevObex = obex
				prevRelay = relay
				prevReports = reports
				prevSegments = segments

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(obexS, relayS, reportS float64, segments int64) string {
	return fmt.Sprintf("OBEX: %s/s | Relay: %s/s | Pen: %5.1f rep/s %4d seg",
		formatBytes(obexS),
		formatBytes(relayS),
		reportS,
		segments,
	)
}
