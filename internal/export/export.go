// Package export writes snapshots of the current correlation state to a
// local directory or a Cloud Storage bucket.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/vchan-in/vuln-correlator/internal/config"
	"github.com/vchan-in/vuln-correlator/internal/database"
	"github.com/vchan-in/vuln-correlator/internal/types"
)

// Source provides the data that goes into a report
type Source interface {
	DashboardStats(ctx context.Context) (*types.DashboardStats, error)
	ListMatches(ctx context.Context, filter types.MatchFilter) (*types.MatchPage, error)
}

// Sink stores a finished report under name and returns its location
type Sink interface {
	Write(ctx context.Context, name string, data []byte, contentEncoding string) (string, error)
}

// Report is the exported document
type Report struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Stats       *types.DashboardStats `json:"stats"`
	Matches     []types.MatchDetail   `json:"matches"`
}

// Result describes a written report
type Result struct {
	Location string `json:"location"`
	Matches  int    `json:"matches"`
	Bytes    int    `json:"bytes"`
}

// Exporter builds reports and hands them to a sink
type Exporter struct {
	source   Source
	sink     Sink
	prefix   string
	compress bool
	now      func() time.Time
}

// NewExporter creates an exporter for the given configuration
func NewExporter(source Source, sink Sink, cfg config.ExportConfig) *Exporter {
	return &Exporter{
		source:   source,
		sink:     sink,
		prefix:   cfg.Prefix,
		compress: cfg.Compress,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Export writes one report containing every stored match
func (e *Exporter) Export(ctx context.Context) (*Result, error) {
	report, err := e.build(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", e.prefix, report.GeneratedAt.Format("20060102T150405Z"))
	encoding := ""
	if e.compress {
		if data, err = compress(data); err != nil {
			return nil, err
		}
		name += ".gz"
		encoding = "gzip"
	}

	location, err := e.sink.Write(ctx, name, data, encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	log.Info().
		Str("location", location).
		Int("matches", len(report.Matches)).
		Int("bytes", len(data)).
		Msg("match report exported")

	return &Result{Location: location, Matches: len(report.Matches), Bytes: len(data)}, nil
}

func (e *Exporter) build(ctx context.Context) (*Report, error) {
	stats, err := e.source.DashboardStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard stats: %w", err)
	}

	report := &Report{
		GeneratedAt: e.now(),
		Stats:       stats,
		Matches:     make([]types.MatchDetail, 0, stats.TotalMatches),
	}

	for page := 1; ; page++ {
		result, err := e.source.ListMatches(ctx, types.MatchFilter{Page: page, PageSize: database.MaxPageSize})
		if err != nil {
			return nil, fmt.Errorf("failed to load matches page %d: %w", page, err)
		}

		report.Matches = append(report.Matches, result.Items...)
		if len(result.Items) < result.PageSize || len(report.Matches) >= result.Total {
			break
		}
	}

	return report, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress report: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish compressed report: %w", err)
	}

	return buf.Bytes(), nil
}

// NewSink creates the sink selected by the configuration
func NewSink(ctx context.Context, cfg config.ExportConfig) (Sink, error) {
	switch cfg.Sink {
	case config.SinkFile:
		return NewFileSink(cfg.Dir), nil
	case config.SinkGCS:
		return NewGCSSink(ctx, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unsupported export sink %q", cfg.Sink)
	}
}
