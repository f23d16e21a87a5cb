// Package importer loads conversation files into the insight store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/errs"
	"github.com/lazypower/recall/internal/insight"
	"github.com/lazypower/recall/internal/transcript"
)

// Namespace seeds deterministic import ids, so importing the same file
// twice overwrites instead of duplicating.
var Namespace = uuid.MustParse("6f0c2a4e-3f1d-5b8a-9c47-2e1d8b5a7c30")

// Ingester stores drafts. *engine.Engine implements it.
type Ingester interface {
	Ingest(ctx context.Context, d insight.Draft) (string, error)
}

// Report summarizes an import run.
type Report struct {
	Files    int `json:"files"`
	Segments int `json:"segments"`
	Insights int `json:"insights"`
	Errors   int `json:"errors"`
}

func (r *Report) add(o Report) {
	r.Files += o.Files
	r.Segments += o.Segments
	r.Insights += o.Insights
	r.Errors += o.Errors
}

// Importer parses conversation files, extracts insights per segment and
// ingests them.
type Importer struct {
	ing Ingester
	ext engine.Extractor
	log *slog.Logger
}

func New(ing Ingester, ext engine.Extractor, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{ing: ing, ext: ext, log: log}
}

// DraftID is the id an imported insight gets: a name-based UUID over the
// source file name, segment index and content.
func DraftID(source string, segment int, content string) string {
	key := source + "|" + strconv.Itoa(segment) + "|" + content
	return uuid.NewSHA1(Namespace, []byte(key)).String()
}

// ImportFile imports one conversation file. Drafts that fail validation
// are counted as errors and skipped; a storage failure stops the file.
func (im *Importer) ImportFile(ctx context.Context, path string) (Report, error) {
	rep := Report{}
	conv, err := transcript.ParseFile(path)
	if err != nil {
		return rep, err
	}
	rep.Files = 1
	rep.Segments = len(conv.Segments)

	for _, seg := range conv.Segments {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		drafts, err := im.ext.Extract(ctx, seg.Text)
		if err != nil {
			return rep, fmt.Errorf("extract %s: %w", conv.Ref(seg), err)
		}
		for _, d := range drafts {
			d.ID = DraftID(conv.Name, seg.Index, d.Content)
			d.Timestamp = conv.Date
			d.Source = conv.Name
			d.Context = conv.Ref(seg)

			if _, err := im.ing.Ingest(ctx, d); err != nil {
				if errors.Is(err, errs.ErrValidation) {
					rep.Errors++
					im.log.Warn("import: skipping insight", "ref", d.Context, "err", err)
					continue
				}
				return rep, fmt.Errorf("ingest %s: %w", d.Context, err)
			}
			rep.Insights++
		}
	}
	im.log.Info("imported", "file", conv.Name, "segments", rep.Segments, "insights", rep.Insights)
	return rep, nil
}

// ImportPaths imports files and directory trees. Unsupported files and
// "summaries" directories are skipped. A file that fails is counted and
// logged and the run continues; only cancellation stops it early.
func (im *Importer) ImportPaths(ctx context.Context, paths []string) (Report, error) {
	var total Report
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				im.log.Warn("import: cannot read", "path", path, "err", err)
				total.Errors++
				return nil
			}
			if d.IsDir() {
				if path != root && (d.Name() == "summaries" || strings.HasPrefix(d.Name(), ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if !transcript.Supported(path) {
				return nil
			}

			rep, err := im.ImportFile(ctx, path)
			total.add(rep)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				total.Errors++
				im.log.Warn("import failed", "path", path, "err", err)
			}
			return nil
		})
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
