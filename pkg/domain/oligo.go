package domain

// Oligo synthesis parameters.
const (
	ShortOligoMaxLength  = 59
	ScaleShort           = "25nm"
	ScaleLong            = "100nm"
	PurificationStandard = "STD"
)

// Oligo is a primer or single-stranded template to be ordered for synthesis.
type Oligo struct {
	Name        string `json:"name"`
	Sequence    string `json:"sequence"`
	Description string `json:"description"`
}

// Scale returns the synthesis scale for the oligo length.
func (o Oligo) Scale() string {
	if len(o.Sequence) <= ShortOligoMaxLength {
		return ScaleShort
	}
	return ScaleLong
}

// Purification returns the purification grade; always standard desalting.
func (Oligo) Purification() string { return PurificationStandard }
