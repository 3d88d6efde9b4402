package inventory

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"labplanner/pkg/domain"
)

const (
	nameHeader        = ">name: "
	descriptionHeader = ">description: "
	locationHeader    = ">location: "
	tableHeader       = ">>well\tconstruct\tlabel\tside-label\tconcentration\tclone\tculture"
	nullToken         = "null"
)

// WriteBox renders box as tab-separated text: three header lines, a blank
// line, the column header and one row per occupied well in row-major order.
func WriteBox(w io.Writer, box *domain.Box) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s%s\n%s%s\n%s%s\n\n", nameHeader, box.Name, descriptionHeader, box.Description, locationHeader, box.Location)
	bw.WriteString(tableHeader)
	bw.WriteByte('\n')
	for _, well := range box.Wells() {
		s := well.Sample
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			domain.WellLabel(well.Row, well.Col), s.Construct, s.Label, s.SideLabel,
			s.Concentration, orNull(s.Clone), orNull(string(s.Culture)))
	}
	return bw.Flush()
}

func orNull(s string) string {
	if s == "" {
		return nullToken
	}
	return s
}

type boxRow struct {
	line   int
	row    int
	col    int
	sample domain.Sample
}

// ParseBox reads a box written by WriteBox. The grid is rows x cols, grown to
// fit the highest well listed. Clone and culture columns may be missing or
// "null".
func ParseBox(r io.Reader, rows, cols int) (*domain.Box, error) {
	scanner := bufio.NewScanner(r)
	headers := []string{nameHeader, descriptionHeader, locationHeader}
	values := make([]string, 0, len(headers))
	sawTable := false
	var parsed []boxRow

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch {
		case len(values) < len(headers):
			prefix := headers[len(values)]
			if !strings.HasPrefix(line, prefix) {
				return nil, fmt.Errorf("line %d: expected %q header", lineNo, strings.TrimSpace(prefix))
			}
			values = append(values, strings.TrimPrefix(line, prefix))
		case !sawTable:
			if line != tableHeader {
				return nil, fmt.Errorf("line %d: invalid sample table header", lineNo)
			}
			sawTable = true
		default:
			row, err := parseBoxRow(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			row.line = lineNo
			parsed = append(parsed, row)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawTable {
		return nil, errors.New("box text is missing its headers")
	}

	for _, p := range parsed {
		rows = max(rows, p.row+1)
		cols = max(cols, p.col+1)
	}
	box := domain.NewBox(values[0], values[1], values[2], rows, cols)
	for _, p := range parsed {
		if err := box.Place(p.row, p.col, p.sample); err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line, err)
		}
	}
	return box, nil
}

func parseBoxRow(line string) (boxRow, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 5 {
		return boxRow{}, fmt.Errorf("expected at least 5 columns, found %d", len(fields))
	}
	for len(fields) < 7 {
		fields = append(fields, nullToken)
	}
	row, col, err := domain.ParseWell(fields[0])
	if err != nil {
		return boxRow{}, err
	}
	conc, err := domain.ParseConcentration(fields[4])
	if err != nil {
		return boxRow{}, err
	}
	culture, err := domain.ParseCulture(fields[6])
	if err != nil {
		return boxRow{}, err
	}
	clone := strings.TrimSpace(fields[5])
	if clone == nullToken {
		clone = ""
	}
	return boxRow{row: row, col: col, sample: domain.Sample{
		Label:         fields[2],
		SideLabel:     fields[3],
		Concentration: conc,
		Construct:     fields[1],
		Clone:         clone,
		Culture:       culture,
	}}, nil
}

// ReadInventoryFiles parses one box per path and indexes them together.
func ReadInventoryFiles(rows, cols int, paths ...string) (*domain.Inventory, error) {
	boxes := make([]*domain.Box, 0, len(paths))
	for _, path := range paths {
		box, err := readBoxFile(path, rows, cols)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, box)
	}
	return domain.NewInventory(boxes...)
}

func readBoxFile(path string, rows, cols int) (*domain.Box, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open box: %w", err)
	}
	defer f.Close()
	box, err := ParseBox(f, rows, cols)
	if err != nil {
		return nil, fmt.Errorf("parse box %s: %w", path, err)
	}
	return box, nil
}
