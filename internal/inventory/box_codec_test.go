package inventory

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labplanner/pkg/domain"
)

func exampleBox(t *testing.T) *domain.Box {
	t.Helper()
	box := domain.NewBox("Lyc6", "Materials for Lyc6", "minus20", 9, 9)
	require.NoError(t, box.Place(0, 0, domain.Sample{Label: "F1", Concentration: domain.ConcentrationStock100uM, Construct: "F1"}))
	require.NoError(t, box.Place(0, 1, domain.Sample{Label: "z6", SideLabel: "z6 - ipcr", Concentration: domain.ConcentrationCleanedUp, Construct: "ipcr"}))
	require.NoError(t, box.Place(4, 7, domain.Sample{
		Label: "pKO 6A", SideLabel: "pKO 6A", Concentration: domain.ConcentrationMiniprep,
		Construct: "pKO", Clone: "6A", Culture: domain.CulturePrimary,
	}))
	return box
}

func TestWriteBox(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBox(&buf, exampleBox(t)))
	want := ">name: Lyc6\n" +
		">description: Materials for Lyc6\n" +
		">location: minus20\n" +
		"\n" +
		">>well\tconstruct\tlabel\tside-label\tconcentration\tclone\tculture\n" +
		"A1\tF1\tF1\t\tuM100\tnull\tnull\n" +
		"A2\tipcr\tz6\tz6 - ipcr\tzymo\tnull\tnull\n" +
		"E8\tpKO\tpKO 6A\tpKO 6A\tminiprep\t6A\tprimary\n"
	assert.Equal(t, want, buf.String())
}

func TestBoxRoundTrip(t *testing.T) {
	box := exampleBox(t)
	var buf bytes.Buffer
	require.NoError(t, WriteBox(&buf, box))

	parsed, err := ParseBox(&buf, 9, 9)
	require.NoError(t, err)
	assert.Equal(t, box.Name, parsed.Name)
	assert.Equal(t, box.Description, parsed.Description)
	assert.Equal(t, box.Location, parsed.Location)
	assert.Equal(t, box.Rows(), parsed.Rows())
	assert.Equal(t, box.Cols(), parsed.Cols())
	assert.Equal(t, box.Wells(), parsed.Wells())
}

func TestParseBoxGrowsGridAndToleratesShortRows(t *testing.T) {
	text := ">name: big\r\n>description: \r\n>location: fridge\r\n\r\n" +
		">>well\tconstruct\tlabel\tside-label\tconcentration\tclone\tculture\r\n" +
		"K12\tpX\tpX\t\tdil20x\r\n\r\n"
	box, err := ParseBox(strings.NewReader(text), 9, 9)
	require.NoError(t, err)
	assert.Equal(t, "", box.Description)
	assert.Equal(t, 11, box.Rows())
	assert.Equal(t, 12, box.Cols())
	s, ok := box.Sample(10, 11)
	require.True(t, ok)
	assert.Equal(t, domain.Sample{Label: "pX", Concentration: domain.ConcentrationDilution20x, Construct: "pX"}, s)
}

func TestParseBoxErrors(t *testing.T) {
	header := ">name: b\n>description: d\n>location: l\n\n"
	table := ">>well\tconstruct\tlabel\tside-label\tconcentration\tclone\tculture\n"
	cases := map[string]string{
		"missing name":    ">description: d\n",
		"bad table":       header + ">>well\tconstruct\n",
		"no table":        header,
		"empty":           "",
		"bad well":        header + table + "a1\tx\tx\t\tzymo\tnull\tnull\n",
		"bad state":       header + table + "A1\tx\tx\t\tfrozen\tnull\tnull\n",
		"bad culture":     header + table + "A1\tx\tx\t\tzymo\tnull\tovernight\n",
		"too few columns": header + table + "A1\tx\tx\n",
		"duplicate well":  header + table + "A1\tx\tx\t\tzymo\n" + "A1\ty\ty\t\tzymo\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBox(strings.NewReader(text), 9, 9)
			assert.Error(t, err)
		})
	}
}

func TestReadInventoryFiles(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a", "b"} {
		box := domain.NewBox(name, "", "minus20", 9, 9)
		require.NoError(t, box.Place(0, 0, domain.Sample{Label: "10 uM F1", Concentration: domain.ConcentrationWorking10uM, Construct: "F1"}))
		var buf bytes.Buffer
		require.NoError(t, WriteBox(&buf, box))
		path := filepath.Join(dir, name+".txt")
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
		paths = append(paths, path)
	}

	inv, err := ReadInventoryFiles(9, 9, paths...)
	require.NoError(t, err)
	locs := inv.Locations("F1")
	require.Len(t, locs, 2)
	assert.Equal(t, "a", locs[0].Box)
	assert.Equal(t, "b", locs[1].Box)

	_, err = ReadInventoryFiles(9, 9, paths[0], paths[0])
	assert.Error(t, err, "duplicate box names")

	_, err = ReadInventoryFiles(9, 9, filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
