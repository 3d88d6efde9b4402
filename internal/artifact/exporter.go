package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"labplanner/internal/construction"
	"labplanner/internal/core"
	"labplanner/internal/inventory"
	"labplanner/internal/labpacket"
	"labplanner/internal/oligo"
)

const (
	contentTypeText     = "text/plain; charset=utf-8"
	contentTypeTSV      = "text/tab-separated-values"
	contentTypeMarkdown = "text/markdown; charset=utf-8"
	contentTypeJSON     = "application/json"
	contentTypeFASTA    = "text/x-fasta"

	defaultConcurrency = 4
	manifestName       = "manifest.json"
)

// Exporter writes the files of a planned experiment below "<slug>/", where
// slug is the experiment name passed through Slug.
type Exporter struct {
	store       Store
	logger      *zap.Logger
	overwrite   bool
	concurrency int
}

// ExporterOption customises an Exporter.
type ExporterOption func(*Exporter)

// WithOverwrite replaces artifacts left by an earlier export of the same name.
func WithOverwrite() ExporterOption {
	return func(e *Exporter) { e.overwrite = true }
}

// WithConcurrency bounds the number of uploads in flight.
func WithConcurrency(n int) ExporterOption {
	return func(e *Exporter) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewExporter returns an exporter writing to store.
func NewExporter(store Store, logger *zap.Logger, opts ...ExporterOption) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exporter{store: store, logger: logger, concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type rendered struct {
	key         string
	source      string
	contentType string
	payload     []byte
}

// Manifest lists the artifacts of one export.
type Manifest struct {
	Experiment   string          `json:"experiment"`
	ExperimentID int             `json:"experiment_id"`
	Artifacts    []ManifestEntry `json:"artifacts"`
}

// ManifestEntry describes one exported file. Source names the construction
// or box a per-item file was rendered from.
type ManifestEntry struct {
	Key         string `json:"key"`
	Source      string `json:"source,omitempty"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size_bytes"`
}

// Export renders exp and uploads every file, then the manifest. The result
// is ordered by key.
func (e *Exporter) Export(ctx context.Context, exp core.Experiment) ([]Info, error) {
	if strings.TrimSpace(exp.Name) == "" {
		return nil, errors.New("export: experiment name required")
	}
	files, err := materialize(exp)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", exp.Name, err)
	}
	meta := map[string]string{
		"experiment":    exp.Name,
		"experiment-id": strconv.Itoa(exp.ID),
	}

	infos := make([]Info, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, f := range files {
		g.Go(func() error {
			info, err := e.put(gctx, f, meta)
			if err != nil {
				return err
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Warn("artifact export failed", zap.String("experiment", exp.Name), zap.Error(err))
		return nil, err
	}

	manifest, err := buildManifest(exp, files)
	if err != nil {
		return nil, err
	}
	info, err := e.put(ctx, manifest, meta)
	if err != nil {
		return nil, err
	}
	infos = append(infos, info)
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	e.logger.Info("artifacts exported",
		zap.String("experiment", exp.Name),
		zap.String("driver", string(e.store.Driver())),
		zap.Int("artifacts", len(infos)),
	)
	return infos, nil
}

func (e *Exporter) put(ctx context.Context, f rendered, meta map[string]string) (Info, error) {
	info, err := e.store.Put(ctx, f.key, bytes.NewReader(f.payload), PutOptions{
		ContentType: f.contentType,
		Metadata:    meta,
		Overwrite:   e.overwrite,
	})
	if err != nil {
		return Info{}, fmt.Errorf("store %s: %w", f.key, err)
	}
	e.logger.Debug("artifact stored", zap.String("key", f.key), zap.Int64("size", info.Size))
	return info, nil
}

// materialize renders every file of exp. Names that slug to a key already
// taken get a numeric suffix, so no file of the export overwrites another.
func materialize(exp core.Experiment) ([]rendered, error) {
	prefix := Slug(exp.Name) + "/"
	var (
		files []rendered
		taken = make(map[string]bool)
	)
	addFrom := func(source, key, contentType string, write func(io.Writer) error) error {
		key = uniqueKey(taken, prefix+key)
		var buf bytes.Buffer
		if err := write(&buf); err != nil {
			return fmt.Errorf("render %s: %w", key, err)
		}
		files = append(files, rendered{key: key, source: source, contentType: contentType, payload: buf.Bytes()})
		return nil
	}
	add := func(key, contentType string, write func(io.Writer) error) error {
		return addFrom("", key, contentType, write)
	}

	for _, c := range exp.Constructions {
		if err := addFrom(c.Product, "constructions/"+Slug(c.Product)+".txt", contentTypeText, func(w io.Writer) error {
			return construction.Write(w, c)
		}); err != nil {
			return nil, err
		}
	}
	if len(exp.Sequences) > 0 {
		if err := add("sequences.fasta", contentTypeFASTA, func(w io.Writer) error {
			return construction.WriteSequences(w, exp.Sequences)
		}); err != nil {
			return nil, err
		}
	}
	if len(exp.Oligos) > 0 {
		if err := add("oligos.tsv", contentTypeTSV, func(w io.Writer) error {
			return oligo.WriteOrder(w, exp.Oligos)
		}); err != nil {
			return nil, err
		}
	}
	for _, box := range exp.Inventory.Boxes() {
		if err := addFrom(box.Name, "boxes/"+Slug(box.Name)+".txt", contentTypeText, func(w io.Writer) error {
			return inventory.WriteBox(w, box)
		}); err != nil {
			return nil, err
		}
	}
	for i, sheet := range exp.Packet.Sheets {
		key := fmt.Sprintf("sheets/%02d-%s.md", i+1, Slug(string(sheet.Kind)))
		if err := add(key, contentTypeMarkdown, func(w io.Writer) error {
			return labpacket.Render(w, sheet)
		}); err != nil {
			return nil, err
		}
	}
	if len(exp.Packet.Sheets) > 0 {
		if err := add("packet.md", contentTypeMarkdown, func(w io.Writer) error {
			return labpacket.RenderPacket(w, exp.Packet)
		}); err != nil {
			return nil, err
		}
	}
	return files, nil
}

// uniqueKey claims key in taken, inserting "-2", "-3", ... before the
// extension while the key is already used.
func uniqueKey(taken map[string]bool, key string) string {
	ext := path.Ext(key)
	base := strings.TrimSuffix(key, ext)
	candidate := key
	for n := 2; taken[candidate]; n++ {
		candidate = base + "-" + strconv.Itoa(n) + ext
	}
	taken[candidate] = true
	return candidate
}

func buildManifest(exp core.Experiment, files []rendered) (rendered, error) {
	m := Manifest{Experiment: exp.Name, ExperimentID: exp.ID, Artifacts: make([]ManifestEntry, 0, len(files))}
	for _, f := range files {
		m.Artifacts = append(m.Artifacts, ManifestEntry{Key: f.key, Source: f.source, ContentType: f.contentType, Size: len(f.payload)})
	}
	sort.Slice(m.Artifacts, func(i, j int) bool { return m.Artifacts[i].Key < m.Artifacts[j].Key })
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return rendered{}, fmt.Errorf("marshal manifest: %w", err)
	}
	return rendered{key: Slug(exp.Name) + "/" + manifestName, contentType: contentTypeJSON, payload: append(payload, '\n')}, nil
}

// Slug lowercases s and collapses every run of characters other than
// letters, digits and '_' into a single '-'.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "unnamed"
	}
	return out
}
