// Package transfer exports the journal to a portable JSON file and imports
// such files back, either replacing the journal or merging into it.
package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mesh-intelligence/moji/internal/logging"
	"github.com/mesh-intelligence/moji/internal/metrics"
	"github.com/mesh-intelligence/moji/pkg/types"
)

// Mode selects how an import combines with the existing journal.
type Mode string

// Import modes.
const (
	ModeMerge   Mode = "merge"
	ModeReplace Mode = "replace"
)

// ParseMode returns the mode named by s.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMerge:
		return ModeMerge, nil
	case ModeReplace:
		return ModeReplace, nil
	}
	return "", fmt.Errorf("%w: %q", types.ErrInvalidMode, s)
}

// maxImportBytes bounds how much of an import file is read.
const maxImportBytes = 64 << 20

// exportSchema describes the top-level shape of an export file: a list of
// entry objects. Entry fields are checked when each object is decoded.
const exportSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "schemaVersion": {"type": "integer", "minimum": 0},
      "id": {"type": ["string", "number"]},
      "timestamp": {"type": "string"},
      "textContent": {"type": "string"},
      "images": {"type": "array", "items": {"type": "string"}},
      "mood": {"type": "string"}
    }
  }
}`

// Store is the primary log store as seen by the bridge.
type Store interface {
	Load(ctx context.Context) (types.Collection, error)
	Save(ctx context.Context, coll types.Collection) error
}

// Options configures a Bridge.
type Options struct {
	Logger *slog.Logger
	Clock  func() time.Time
}

// Bridge moves collections between the primary store and export files.
type Bridge struct {
	store  Store
	schema *gojsonschema.Schema
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Bridge over store.
func New(store Store, opts Options) (*Bridge, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(exportSchema))
	if err != nil {
		return nil, fmt.Errorf("compile export schema: %w", err)
	}
	b := &Bridge{
		store:  store,
		schema: schema,
		logger: logging.Component(opts.Logger, "transfer"),
		now:    opts.Clock,
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

// Export returns the collection as indented JSON. An empty journal fails
// with types.ErrEmptyCollection.
func (b *Bridge) Export(ctx context.Context) ([]byte, error) {
	data, _, err := b.export(ctx)
	return data, err
}

// ExportTo writes the export followed by a newline to w and returns the
// number of entries written.
func (b *Bridge) ExportTo(ctx context.Context, w io.Writer) (int, error) {
	data, n, err := b.export(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}
	return n, nil
}

func (b *Bridge) export(ctx context.Context) ([]byte, int, error) {
	coll, err := b.store.Load(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(coll) == 0 {
		return nil, 0, types.ErrEmptyCollection
	}
	data, err := json.MarshalIndent(coll, "", "  ")
	if err != nil {
		return nil, 0, fmt.Errorf("encode export: %w", err)
	}
	b.logger.Info("exported journal", "entries", len(coll), "bytes", len(data))
	return data, len(coll), nil
}

// Import reads an export file from r and applies it in mode. It returns
// the number of entries added: every valid entry for replace, only entries
// with unseen ids for merge. Any failure leaves the journal unchanged.
func (b *Bridge) Import(ctx context.Context, r io.Reader, mode Mode) (int, error) {
	if mode != ModeMerge && mode != ModeReplace {
		return 0, fmt.Errorf("%w: %q", types.ErrInvalidMode, mode)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxImportBytes+1))
	if err != nil {
		return 0, fmt.Errorf("read import: %w", err)
	}
	if len(data) > maxImportBytes {
		return 0, fmt.Errorf("%w: file larger than %d bytes", types.ErrInvalidFormat, maxImportBytes)
	}

	imported, err := b.decode(data)
	if err != nil {
		return 0, err
	}

	var next types.Collection
	added := 0
	switch mode {
	case ModeReplace:
		next = imported
		added = len(imported)
	case ModeMerge:
		existing, err := b.store.Load(ctx)
		if err != nil {
			return 0, err
		}
		seen := existing.IDs()
		next = append(types.Collection{}, existing...)
		for _, e := range imported {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			next = append(next, e)
			added++
		}
		next.SortNewestFirst()
	}

	if err := b.store.Save(ctx, next); err != nil {
		return 0, err
	}
	metrics.Imported(string(mode), added)
	b.logger.Info("imported journal", "mode", mode, "read", len(imported), "added", added)
	return added, nil
}

// decode validates the file shape and decodes its entries. Entries without
// an id get a fresh one, entries without a timestamp get the import time,
// and repeated ids keep only their first entry.
func (b *Bridge) decode(data []byte) (types.Collection, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: not JSON", types.ErrInvalidFormat)
	}
	result, err := b.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidFormat, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.Field()+": "+e.Description())
		}
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidFormat, strings.Join(msgs, "; "))
	}

	var coll types.Collection
	if err := json.Unmarshal(data, &coll); err != nil {
		if errors.Is(err, types.ErrUnsupportedSchema) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidFormat, err)
	}

	now := b.now().UTC()
	seen := make(map[string]struct{}, len(coll))
	out := make(types.Collection, 0, len(coll))
	for _, e := range coll {
		if e.ID == "" {
			e.ID = types.NewID()
		}
		if _, dup := seen[e.ID]; dup {
			b.logger.Debug("skipping repeated id in import", "id", e.ID)
			continue
		}
		seen[e.ID] = struct{}{}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
			e.Normalize()
		}
		out = append(out, e)
	}
	return out, nil
}
