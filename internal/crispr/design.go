// Package crispr designs guide oligos for pTargetF-based knock-outs and
// builds the matching construction.
package crispr

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"labplanner/pkg/domain"
)

// SpacerLength is the guide spacer length preceding the NGG PAM.
const SpacerLength = 20

const (
	forwardTail = "ccataACTAGT"
	guideAnneal = "gttttagagctagaaatagcaag"
	// SpeI tail plus the J23119 promoter anneal.
	reverseOligo = "ctcagACTAGTattatacctaggactgagctag"
)

// DesignOligos picks the first NGG PAM at least SpacerLength+2 bases into cds
// and returns the forward and reverse oligos that insert its spacer into
// pTargetF.
func DesignOligos(cds string) (forward, reverse string, err error) {
	if n := utf8.RuneCountInString(cds); n < SpacerLength+3 {
		return "", "", domain.InvalidSequenceError{Reason: fmt.Sprintf("%d bases is too short to contain a target site", n)}
	}
	cds = strings.ToUpper(cds)
	pos := 0
	for _, r := range cds {
		pos++
		if !strings.ContainsRune("ACGT", r) {
			return "", "", domain.InvalidSequenceError{Reason: fmt.Sprintf("non-DNA character %q at %d", r, pos)}
		}
	}
	gg := strings.Index(cds[SpacerLength+2:], "GG")
	if gg < 0 {
		return "", "", domain.InvalidSequenceError{Reason: "no NGG target site on this strand"}
	}
	pam := gg + SpacerLength + 2 - 1
	spacer := cds[pam-SpacerLength : pam]
	return forwardTail + spacer + guideAnneal, reverseOligo, nil
}
