package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"labplanner/internal/core"
	s3infra "labplanner/internal/infra/artifact/s3"
	"labplanner/pkg/domain"
)

func knockout() domain.Construction {
	return domain.Construction{
		Product: "pKO",
		Steps: []domain.Step{
			domain.PCR{Oligo1: "F1", Oligo2: "R1", Templates: []string{"pT"}, Output: "ipcr"},
			domain.Digestion{Substrate: "ipcr", Enzymes: []string{"SpeI"}, Output: "dig"},
			domain.Ligation{Fragments: []string{"dig"}, Output: "lig"},
			domain.Transformation{DNA: "lig", Strain: "Mach1", Antibiotic: "Spec", Output: "pKO"},
		},
		Sequences: map[string]domain.Polynucleotide{
			"F1": {Sequence: "ccaaaACTAGTgcttcgtagcc"},
			"R1": {Sequence: "ctcgtACTAGTgacctggcatgt"},
		},
	}
}

func plannedExperiment(t *testing.T) core.Experiment {
	t.Helper()
	planner, err := core.NewPlanner()
	require.NoError(t, err)
	exp, err := planner.Plan(context.Background(), core.Request{Name: "exp", ID: 7, Constructions: []domain.Construction{knockout()}})
	require.NoError(t, err)
	return exp
}

var knockoutKeys = []string{
	"exp/boxes/exp.txt",
	"exp/constructions/pko.txt",
	"exp/manifest.json",
	"exp/oligos.tsv",
	"exp/packet.md",
	"exp/sequences.fasta",
	"exp/sheets/01-pcr.md",
	"exp/sheets/02-gel.md",
	"exp/sheets/03-cleanup.md",
	"exp/sheets/04-digest.md",
	"exp/sheets/05-gel.md",
	"exp/sheets/06-cleanup.md",
	"exp/sheets/07-ligate.md",
	"exp/sheets/08-transform.md",
	"exp/sheets/09-pick.md",
	"exp/sheets/10-miniprep.md",
}

func keys(infos []Info) []string {
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Key)
	}
	return out
}

func read(t *testing.T, store Store, key string) string {
	t.Helper()
	_, rc, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(body)
}

func TestExportKnockout(t *testing.T) {
	defer goleak.VerifyNone(t)
	exp := plannedExperiment(t)
	store := NewMemory()
	obsCore, logs := observer.New(zap.InfoLevel)

	infos, err := NewExporter(store, zap.New(obsCore), WithConcurrency(3)).Export(context.Background(), exp)
	require.NoError(t, err)
	assert.Equal(t, knockoutKeys, keys(infos))
	for _, info := range infos {
		assert.Equal(t, "exp", info.Metadata["experiment"], info.Key)
		assert.Equal(t, "7", info.Metadata["experiment-id"], info.Key)
	}

	assert.True(t, strings.HasPrefix(read(t, store, "exp/sheets/01-pcr.md"), "# exp: PCR\n"))
	assert.True(t, strings.HasPrefix(read(t, store, "exp/constructions/pko.txt"), ">Construction of pKO\n"))
	assert.Contains(t, read(t, store, "exp/oligos.tsv"), "F1\tccaaaACTAGTgcttcgtagcc\t")
	assert.Contains(t, read(t, store, "exp/packet.md"), "\n---\n\n# exp: Gel\n")

	var manifest Manifest
	require.NoError(t, json.Unmarshal([]byte(read(t, store, "exp/manifest.json")), &manifest))
	assert.Equal(t, "exp", manifest.Experiment)
	assert.Equal(t, 7, manifest.ExperimentID)
	require.Len(t, manifest.Artifacts, len(knockoutKeys)-1)
	assert.Equal(t, "exp/boxes/exp.txt", manifest.Artifacts[0].Key)
	assert.Equal(t, contentTypeMarkdown, manifest.Artifacts[len(manifest.Artifacts)-1].ContentType)

	entries := logs.FilterMessage("artifacts exported").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(len(knockoutKeys)), entries[0].ContextMap()["artifacts"])
	assert.Equal(t, "memory", entries[0].ContextMap()["driver"])
}

func TestExportSuffixesCollidingNames(t *testing.T) {
	defer goleak.VerifyNone(t)
	inv, err := domain.NewInventory(
		domain.NewBox("Exp 1", "Materials for Exp 1", "minus20", 9, 9),
		domain.NewBox("exp-1", "Materials for exp-1", "minus20", 9, 9),
	)
	require.NoError(t, err)
	exp := core.Experiment{Name: "exp", ID: 2, Constructions: []domain.Construction{knockout(), knockout()}, Inventory: inv}
	store := NewMemory()

	infos, err := NewExporter(store, nil).Export(context.Background(), exp)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"exp/boxes/exp-1-2.txt",
		"exp/boxes/exp-1.txt",
		"exp/constructions/pko-2.txt",
		"exp/constructions/pko.txt",
		"exp/manifest.json",
	}, keys(infos))
	assert.Contains(t, read(t, store, "exp/boxes/exp-1.txt"), "Exp 1")
	assert.Contains(t, read(t, store, "exp/boxes/exp-1-2.txt"), "exp-1")

	var manifest Manifest
	require.NoError(t, json.Unmarshal([]byte(read(t, store, "exp/manifest.json")), &manifest))
	sources := make(map[string]string)
	for _, entry := range manifest.Artifacts {
		sources[entry.Key] = entry.Source
	}
	assert.Equal(t, "Exp 1", sources["exp/boxes/exp-1.txt"])
	assert.Equal(t, "exp-1", sources["exp/boxes/exp-1-2.txt"])
	assert.Equal(t, "pKO", sources["exp/constructions/pko-2.txt"])
}

func TestUniqueKey(t *testing.T) {
	taken := make(map[string]bool)
	assert.Equal(t, "a/b.txt", uniqueKey(taken, "a/b.txt"))
	assert.Equal(t, "a/b-2.txt", uniqueKey(taken, "a/b.txt"))
	assert.Equal(t, "a/b-3.txt", uniqueKey(taken, "a/b.txt"))
	assert.Equal(t, "a/b-2-2.txt", uniqueKey(taken, "a/b-2.txt"))
	assert.Equal(t, "a/noext", uniqueKey(taken, "a/noext"))
	assert.Equal(t, "a/noext-2", uniqueKey(taken, "a/noext"))
}

func TestExportRefusesToClobber(t *testing.T) {
	defer goleak.VerifyNone(t)
	exp := plannedExperiment(t)
	store := NewMemory()
	_, err := NewExporter(store, nil).Export(context.Background(), exp)
	require.NoError(t, err)

	_, err = NewExporter(store, nil).Export(context.Background(), exp)
	assert.ErrorIs(t, err, ErrExists)

	infos, err := NewExporter(store, nil, WithOverwrite()).Export(context.Background(), exp)
	require.NoError(t, err)
	assert.Len(t, infos, len(knockoutKeys))
}

type failingStore struct {
	Store
	calls atomic.Int32
}

func (f *failingStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if f.calls.Add(1) == 2 {
		return Info{}, errors.New("disk full")
	}
	return f.Store.Put(ctx, key, r, opts)
}

func TestExportStopsOnStoreFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := &failingStore{Store: NewMemory()}
	_, err := NewExporter(store, nil, WithConcurrency(1)).Export(context.Background(), plannedExperiment(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	_, _, err = store.Get(context.Background(), "exp/manifest.json")
	assert.ErrorIs(t, err, ErrNotFound, "manifest is written only after every artifact")
}

func TestExportHonorsCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExporter(NewMemory(), nil).Export(ctx, plannedExperiment(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExportRequiresName(t *testing.T) {
	_, err := NewExporter(NewMemory(), nil).Export(context.Background(), core.Experiment{Name: "  "})
	assert.Error(t, err)
}

func TestExportSkipsEmptySections(t *testing.T) {
	infos, err := NewExporter(NewMemory(), nil).Export(context.Background(), core.Experiment{Name: "Empty Run"})
	require.NoError(t, err)
	assert.Equal(t, []string{"empty-run/manifest.json"}, keys(infos))
}

func TestExportToFilesystemAndS3(t *testing.T) {
	exp := plannedExperiment(t)

	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	infos, err := NewExporter(fsStore, nil).Export(context.Background(), exp)
	require.NoError(t, err)
	assert.Equal(t, knockoutKeys, keys(infos))
	listed, err := fsStore.List(context.Background(), "exp/sheets/")
	require.NoError(t, err)
	assert.Len(t, listed, 10)

	s3Store := s3infra.NewMockForTests(4)
	infos, err = NewExporter(s3Store, nil).Export(context.Background(), exp)
	require.NoError(t, err)
	assert.Equal(t, knockoutKeys, keys(infos))
	listed, err = s3Store.List(context.Background(), "exp/")
	require.NoError(t, err)
	assert.Equal(t, knockoutKeys, keys(listed))
	assert.True(t, strings.HasPrefix(read(t, s3Store, "exp/sheets/07-ligate.md"), "# exp: Ligation\n"))
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"pKO":             "pko",
		"Exp 12 / Run A":  "exp-12-run-a",
		"../../etc":       "etc",
		"  under_score  ": "under_score",
		"!!!":             "unnamed",
		"":                "unnamed",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slug(in), in)
	}
}
