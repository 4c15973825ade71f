// Package writer persists downloaded bar series to tabular files the
// backtest loader can read back.
package writer

import "github.com/openquant-lab/trendtest/internal/types"

// BarWriter writes a bar stream to durable storage. Initialize must be
// called before the first Write; Finalize flushes everything and returns the
// written path.
type BarWriter interface {
	Initialize() error
	Write(bar types.Bar) error
	Finalize() (path string, err error)
	Close() error
}
