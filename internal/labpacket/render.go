package labpacket

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"labplanner/pkg/domain"
)

// Render writes sheet as a Markdown document.
func Render(w io.Writer, sheet domain.LabSheet) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n\n", sheet.Title)

	meta := [][2]string{{"Program", sheet.Program}, {"Protocol", sheet.Protocol}, {"Instrument", sheet.Instrument}}
	wrote := false
	for _, m := range meta {
		if m[1] != "" {
			fmt.Fprintf(bw, "- **%s:** %s\n", m[0], m[1])
			wrote = true
		}
	}
	if wrote {
		bw.WriteByte('\n')
	}

	if len(sheet.Items) > 0 {
		header, _ := itemRow(sheet.Items[0])
		rows := make([][]string, len(sheet.Items))
		for i, item := range sheet.Items {
			_, rows[i] = itemRow(item)
		}
		writeSection(bw, "Items", header, rows)
	}
	if sheet.Recipe != nil {
		if len(sheet.Recipe.Mastermix) > 0 {
			writeSection(bw, "Mastermix", []string{"Reagent", "Volume (uL)"}, recipeRows(sheet.Recipe.Mastermix))
		}
		rows := recipeRows(sheet.Recipe.Reaction)
		rows = append(rows, []string{"**Total**", volume(sheet.Recipe.Total())})
		writeSection(bw, "Recipe (per reaction)", []string{"Reagent", "Volume (uL)"}, rows)
	}
	if len(sheet.Sources) > 0 {
		writeSection(bw, "Sources", locationHeader, locationRows(sheet.Sources))
	}
	if len(sheet.Destinations) > 0 {
		writeSection(bw, "Destinations", locationHeader, locationRows(sheet.Destinations))
	}
	if len(sheet.Notes) > 0 {
		bw.WriteString("## Notes\n\n")
		for _, n := range sheet.Notes {
			fmt.Fprintf(bw, "- %s\n", n)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// RenderPacket writes every sheet of p, separated by horizontal rules.
func RenderPacket(w io.Writer, p domain.LabPacket) error {
	for i, sheet := range p.Sheets {
		if i > 0 {
			if _, err := io.WriteString(w, "---\n\n"); err != nil {
				return err
			}
		}
		if err := Render(w, sheet); err != nil {
			return err
		}
	}
	return nil
}

var locationHeader = []string{"Box", "Well", "Label", "Side label"}

func locationRows(locs []domain.Location) [][]string {
	rows := make([][]string, len(locs))
	for i, l := range locs {
		rows[i] = []string{l.Box, l.Well(), l.Label, l.SideLabel}
	}
	return rows
}

func recipeRows(entries []domain.ReagentVolume) [][]string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{string(e.Reagent), volume(e.Volume)}
	}
	return rows
}

func itemRow(item domain.SheetItem) ([]string, []string) {
	switch it := item.(type) {
	case domain.StepItem:
		return []string{"Product", "Operation", "Inputs"},
			[]string{it.Step.Product(), string(it.Step.Operation()), strings.Join(it.Step.Inputs(), ", ")}
	case domain.GelLane:
		return []string{"Sample", "Expected size (bp)"}, []string{it.Sample, strconv.Itoa(it.Size)}
	case domain.CleanupItem:
		return []string{"Sample", "Elution (uL)"}, []string{it.Sample, volume(it.Elution)}
	case domain.PickItem:
		return []string{"Sample", "Clone", "Plate"}, []string{it.Sample, it.Clone, string(it.Antibiotic)}
	case domain.MiniprepItem:
		return []string{"Sample", "Clone", "Elution (uL)"}, []string{it.Sample, it.Clone, volume(it.Elution)}
	default:
		return []string{"Item"}, []string{item.Label()}
	}
}

func writeSection(w *bufio.Writer, title string, header []string, rows [][]string) {
	fmt.Fprintf(w, "## %s\n\n", title)
	writeRow(w, header)
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(w, sep)
	for _, r := range rows {
		writeRow(w, r)
	}
	w.WriteByte('\n')
}

func writeRow(w *bufio.Writer, cells []string) {
	escaped := make([]string, len(cells))
	for i, c := range cells {
		escaped[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(escaped, " | "))
}

func volume(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
