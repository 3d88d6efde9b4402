// Package labpacket turns allocated constructions into printable lab sheets:
// reaction sheets with per-reaction recipes, gel checks, cleanups, and the
// pick and miniprep sheets that follow a transformation.
package labpacket

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"labplanner/internal/config"
	"labplanner/internal/logging"
	"labplanner/pkg/domain"
)

// Fixed reagent volumes in microliters.
const (
	slotVolume          = 1.0
	pcrBufferVolume     = 10.0
	pcrDNTPVolume       = 4.0
	polymeraseVolume    = 1.0
	digestBufferVolume  = 2.0
	ligaseVolume        = 1.0
	ligaseBufferVolume  = 2.0
	transformDNAVolume  = 2.0
	competentCellVolume = 50.0
	maxLigationInputs   = 4
)

const enzymeNote = "Never let enzymes warm up! Only take the enzyme cooler out of the freezer " +
	"when you are actively using it, and only take the tubes out of it when actively " +
	"dispensing. Hold the enzyme tube by the top of the tube while dispensing " +
	"and do not place it in a rack."

// Generator builds lab packets from constructions and an allocated inventory.
type Generator struct {
	policy config.Policy
	tables tables
	logger *zap.Logger
}

// NewGenerator returns a generator using policy for reaction totals, elution
// volumes and reagent lookups.
func NewGenerator(policy config.Policy, logger *zap.Logger) *Generator {
	return &Generator{policy: policy, tables: newTables(policy), logger: logging.OrNop(logger)}
}

// reaction is one step with its resolved sources and recipe.
type reaction struct {
	step    domain.Step
	recipe  *domain.Recipe
	sources []domain.Location
	notes   []string
}

// Generate emits sheets for PCR, digestion, ligation, assembly and
// transformation steps, in that order. Inputs resolve against the whole
// inventory; the tubes a step fills are taken only from alloc.Placed. Any
// unresolved input or unknown reagent aborts the whole packet.
func (g *Generator) Generate(ctx context.Context, experiment string, constructions []domain.Construction, alloc domain.Allocation) (domain.LabPacket, error) {
	inv := alloc.Inventory
	own := newDestinations(inv, alloc.Placed)
	byOp := domain.StepsByOperation(constructions)
	inTube := make(map[string]bool)
	for _, op := range []domain.Operation{domain.OperationLigate, domain.OperationAssemble} {
		for _, step := range byOp[op] {
			inTube[step.Product()] = true
		}
	}

	var packet domain.LabPacket
	for _, op := range domain.Operations {
		steps := byOp[op]
		if len(steps) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return domain.LabPacket{}, err
		}
		var (
			sheets []domain.LabSheet
			err    error
		)
		switch op {
		case domain.OperationPCR:
			sheets, err = g.pcrSheets(experiment, steps, inv, own)
		case domain.OperationDigest:
			sheets, err = g.digestSheets(experiment, steps, inv, own)
		case domain.OperationLigate:
			sheets, err = g.ligateSheets(experiment, steps, inv, own)
		case domain.OperationAssemble:
			sheets, err = g.assembleSheets(experiment, steps, inv, own)
		case domain.OperationTransform:
			sheets, err = g.transformSheets(experiment, steps, inv, own, inTube)
		}
		if err != nil {
			return domain.LabPacket{}, fmt.Errorf("%s sheets: %w", op, err)
		}
		g.logger.Debug("generated sheets", zap.String("operation", string(op)), zap.Int("steps", len(steps)), zap.Int("sheets", len(sheets)))
		packet.Sheets = append(packet.Sheets, sheets...)
	}
	g.logger.Info("generated lab packet", zap.String("experiment", experiment), zap.Int("sheets", len(packet.Sheets)))
	return packet, nil
}

func (g *Generator) pcrSheets(experiment string, steps []domain.Step, inv *domain.Inventory, own *destinations) ([]domain.LabSheet, error) {
	r := g.policy.Reactions
	var reactions []reaction
	for _, step := range steps {
		pcr := step.(domain.PCR)
		var sources []domain.Location
		for _, oligo := range []string{pcr.Oligo1, pcr.Oligo2} {
			loc, err := resolve(inv, oligo, acceptPrimer)
			if err != nil {
				return nil, err
			}
			sources = append(sources, loc)
		}
		entries := []domain.ReagentVolume{
			{Reagent: domain.ReagentGXLBuffer, Volume: pcrBufferVolume},
			{Reagent: domain.ReagentGXLdNTP, Volume: pcrDNTPVolume},
			{Reagent: domain.ReagentPrimer1, Volume: slotVolume},
			{Reagent: domain.ReagentPrimer2, Volume: slotVolume},
		}
		for i, tmpl := range pcr.Templates {
			loc, err := resolve(inv, tmpl, acceptTemplate)
			if err != nil {
				return nil, err
			}
			sources = append(sources, loc)
			entries = append(entries, domain.ReagentVolume{Reagent: slot(domain.ReagentTemplate, i, len(pcr.Templates)), Volume: slotVolume})
		}
		entries = append(entries, domain.ReagentVolume{Reagent: domain.ReagentGXLPolymerase, Volume: polymeraseVolume})
		recipe, err := balanced(pcr.Output, r.PCRTotal, domain.ReagentWater, entries, true)
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, reaction{step: step, recipe: recipe, sources: sources})
	}

	sheets := groupSheets(domain.LabSheet{
		Title:      experiment + ": PCR",
		Kind:       domain.SheetPCR,
		Program:    r.PCRProgram,
		Protocol:   r.PCRProtocol,
		Instrument: r.PCRInstrument,
		Notes:      []string{enzymeNote},
	}, reactions)
	cleanups, err := g.cleanupSheets(experiment, steps, own, r.PCRElution, true)
	if err != nil {
		return nil, err
	}
	return append(sheets, cleanups...), nil
}

func (g *Generator) digestSheets(experiment string, steps []domain.Step, inv *domain.Inventory, own *destinations) ([]domain.LabSheet, error) {
	r := g.policy.Reactions
	var reactions []reaction
	for _, step := range steps {
		dig := step.(domain.Digestion)
		loc, err := resolve(inv, dig.Substrate, acceptSubstrate)
		if err != nil {
			return nil, err
		}
		entries := []domain.ReagentVolume{{Reagent: domain.ReagentTemplate, Volume: slotVolume}}
		for _, enzyme := range dig.Enzymes {
			reagent, err := g.tables.enzymes.lookup(enzyme)
			if err != nil {
				return nil, err
			}
			entries = append(entries, domain.ReagentVolume{Reagent: reagent, Volume: slotVolume})
		}
		entries = append(entries, domain.ReagentVolume{Reagent: domain.ReagentNEBBuffer2, Volume: digestBufferVolume})
		recipe, err := balanced(dig.Output, r.DigestTotal, domain.ReagentWater, entries, false)
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, reaction{step: step, recipe: recipe, sources: []domain.Location{loc}})
	}

	sheets := groupSheets(domain.LabSheet{Title: experiment + ": Digest", Kind: domain.SheetDigest}, reactions)
	cleanups, err := g.cleanupSheets(experiment, steps, own, r.DigestElution, true)
	if err != nil {
		return nil, err
	}
	return append(sheets, cleanups...), nil
}

func (g *Generator) ligateSheets(experiment string, steps []domain.Step, inv *domain.Inventory, own *destinations) ([]domain.LabSheet, error) {
	r := g.policy.Reactions
	var reactions []reaction
	for _, step := range steps {
		lig := step.(domain.Ligation)
		if len(lig.Fragments) > maxLigationInputs {
			return nil, domain.MalformedRecipeError{
				Construct: lig.Output,
				Reason:    fmt.Sprintf("ligation of %d fragments, at most %d are supported", len(lig.Fragments), maxLigationInputs),
			}
		}
		var (
			sources []domain.Location
			entries []domain.ReagentVolume
		)
		for i, frag := range lig.Fragments {
			loc, err := resolve(inv, frag, acceptSubstrate)
			if err != nil {
				return nil, err
			}
			sources = append(sources, loc)
			entries = append(entries, domain.ReagentVolume{Reagent: slot(domain.ReagentFragmentTemplate, i, 0), Volume: slotVolume})
		}
		entries = append(entries,
			domain.ReagentVolume{Reagent: domain.ReagentT4Ligase, Volume: ligaseVolume},
			domain.ReagentVolume{Reagent: domain.ReagentT4LigaseBuffer, Volume: ligaseBufferVolume})
		recipe, err := balanced(lig.Output, r.LigateTotal, domain.ReagentWater, entries, false)
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, reaction{step: step, recipe: recipe, sources: sources})
	}

	sheets := groupSheets(domain.LabSheet{Title: experiment + ": Ligation", Kind: domain.SheetLigate}, reactions)
	cleanups, err := g.cleanupSheets(experiment, steps, own, r.LigateElution, false)
	if err != nil {
		return nil, err
	}
	return append(sheets, cleanups...), nil
}

func (g *Generator) assembleSheets(experiment string, steps []domain.Step, inv *domain.Inventory, own *destinations) ([]domain.LabSheet, error) {
	tmpl := domain.LabSheet{
		Title:      experiment + ": Assembly",
		Kind:       domain.SheetAssemble,
		Instrument: g.policy.Reactions.PCRInstrument,
		Notes:      []string{enzymeNote},
	}
	a := g.policy.Assembly
	if a == nil {
		tmpl.Notes = append(tmpl.Notes, "Assembly chemistry is not configured; no recipe is given.")
	}

	var reactions []reaction
	for _, step := range steps {
		asm := step.(domain.Assembly)
		var sources []domain.Location
		for _, frag := range asm.Fragments {
			loc, err := resolve(inv, frag, acceptFragment)
			if err != nil {
				return nil, err
			}
			sources = append(sources, loc)
		}
		rx := reaction{step: step, sources: sources}
		if a != nil {
			entries := make([]domain.ReagentVolume, 0, len(a.Reagents)+len(asm.Fragments))
			for _, rv := range a.Reagents {
				entries = append(entries, domain.ReagentVolume{Reagent: domain.Reagent(rv.Reagent), Volume: rv.Volume})
			}
			for i := range asm.Fragments {
				entries = append(entries, domain.ReagentVolume{Reagent: slot(domain.ReagentFragmentTemplate, i, 0), Volume: a.FragmentVolume})
			}
			filler := domain.ReagentWater
			if a.Balance != "" {
				filler = domain.Reagent(a.Balance)
			}
			recipe, err := balanced(asm.Output, a.Total, filler, entries, false)
			if err != nil {
				return nil, err
			}
			rx.recipe = recipe
		}
		reactions = append(reactions, rx)
	}

	sheets := groupSheets(tmpl, reactions)
	cleanups, err := g.cleanupSheets(experiment, steps, own, g.policy.Reactions.LigateElution, false)
	if err != nil {
		return nil, err
	}
	return append(sheets, cleanups...), nil
}

func (g *Generator) transformSheets(experiment string, steps []domain.Step, inv *domain.Inventory, own *destinations, inTube map[string]bool) ([]domain.LabSheet, error) {
	r := g.policy.Reactions
	var (
		reactions []reaction
		picks     []domain.SheetItem
		minipreps []domain.SheetItem
		clones    []domain.Location
	)
	for _, step := range steps {
		tf := step.(domain.Transformation)
		cells, err := g.tables.strains.lookup(tf.Strain)
		if err != nil {
			return nil, err
		}
		plate, err := g.tables.antibiotics.lookup(tf.Antibiotic)
		if err != nil {
			return nil, err
		}

		rx := reaction{step: step, notes: []string{fmt.Sprintf("Plate %s on %s.", tf.Output, plate)}}
		switch loc, ok := find(inv, tf.DNA, acceptCleaned); {
		case ok:
			rx.sources = []domain.Location{loc}
		case inTube[tf.DNA]:
			rx.notes = append(rx.notes, fmt.Sprintf("Transform %s directly from its reaction tube.", tf.DNA))
		default:
			loc, err := resolve(inv, tf.DNA, acceptSubstrate)
			if err != nil {
				return nil, err
			}
			rx.sources = []domain.Location{loc}
		}

		entries := []domain.ReagentVolume{
			{Reagent: domain.ReagentDNA, Volume: transformDNAVolume},
			{Reagent: cells, Volume: competentCellVolume},
		}
		if rx.recipe, err = balanced(tf.Output, r.TransformTotal, domain.ReagentSOC, entries, false); err != nil {
			return nil, err
		}
		reactions = append(reactions, rx)

		for _, loc := range own.takeAll(tf.Output, domain.ConcentrationMiniprep, g.policy.Minipreps) {
			st, _ := inv.State(loc)
			picks = append(picks, domain.PickItem{Sample: loc.Label, Clone: st.Clone, Antibiotic: plate})
			minipreps = append(minipreps, domain.MiniprepItem{Sample: loc.Label, Clone: st.Clone, Elution: r.MiniprepElution})
			clones = append(clones, loc)
		}
	}

	sheets := groupSheets(domain.LabSheet{Title: experiment + ": Transform", Kind: domain.SheetTransform}, reactions)
	if len(picks) == 0 {
		g.logger.Debug("no miniprep samples allocated; skipping pick and miniprep sheets", zap.String("experiment", experiment))
		return sheets, nil
	}
	return append(sheets,
		domain.LabSheet{Title: experiment + ": Pick", Kind: domain.SheetPick, Items: picks},
		domain.LabSheet{Title: experiment + ": Miniprep", Kind: domain.SheetMiniprep, Items: minipreps, Destinations: clones},
	), nil
}

// cleanupSheets emits a gel sheet and a cleanup sheet over the cleaned-up
// tube this run allocated for each step product. When required is false,
// products without one are skipped.
func (g *Generator) cleanupSheets(experiment string, steps []domain.Step, own *destinations, elution float64, required bool) ([]domain.LabSheet, error) {
	var locs []domain.Location
	for _, step := range steps {
		if !required {
			loc, ok := own.take(step.Product(), acceptCleaned)
			if !ok {
				g.logger.Debug("product has no cleanup sample", zap.String("product", step.Product()))
				continue
			}
			locs = append(locs, loc)
			continue
		}
		loc, ok := own.take(step.Product(), acceptCleaned)
		if !ok {
			return nil, domain.UnresolvedLocationError{Name: step.Product(), Accept: acceptCleaned}
		}
		locs = append(locs, loc)
	}
	if len(locs) == 0 {
		return nil, nil
	}

	gel := domain.LabSheet{Title: experiment + ": Gel", Kind: domain.SheetGel}
	cleanup := domain.LabSheet{Title: experiment + ": Cleanup", Kind: domain.SheetCleanup, Destinations: locs}
	for _, loc := range locs {
		gel.Items = append(gel.Items, domain.GelLane{Sample: loc.Label, Size: g.policy.Reactions.GelSize})
		cleanup.Items = append(cleanup.Items, domain.CleanupItem{Sample: loc.Label, Elution: elution})
	}
	return []domain.LabSheet{gel, cleanup}, nil
}

// groupSheets emits one reaction sheet per distinct recipe, in order of first
// appearance. Every sheet copies the metadata of tmpl.
func groupSheets(tmpl domain.LabSheet, reactions []reaction) []domain.LabSheet {
	var (
		order  []string
		groups = make(map[string][]reaction)
	)
	for _, rx := range reactions {
		sig := signature(rx.recipe)
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], rx)
	}

	sheets := make([]domain.LabSheet, 0, len(order))
	for i, sig := range order {
		sheet := tmpl
		if i > 0 {
			sheet.Title = fmt.Sprintf("%s (%d)", tmpl.Title, i+1)
		}
		sheet.Notes = append([]string(nil), tmpl.Notes...)
		seen := make(map[string]bool)
		for _, rx := range groups[sig] {
			sheet.Items = append(sheet.Items, domain.StepItem{Step: rx.step})
			sheet.Sources = append(sheet.Sources, rx.sources...)
			for _, n := range rx.notes {
				if !seen[n] {
					seen[n] = true
					sheet.Notes = append(sheet.Notes, n)
				}
			}
		}
		sheet.Recipe = groups[sig][0].recipe
		sheets = append(sheets, sheet)
	}
	return sheets
}

func signature(r *domain.Recipe) string {
	if r == nil {
		return ""
	}
	parts := make([]string, len(r.Reaction))
	for i, rv := range r.Reaction {
		parts[i] = string(rv.Reagent) + "=" + strconv.FormatFloat(rv.Volume, 'g', -1, 64)
	}
	return strings.Join(parts, ";")
}

// slot names the i-th input slot of a reagent. A lone slot keeps the bare
// name when n is 1; n of 0 always numbers the slot.
func slot(base domain.Reagent, i, n int) domain.Reagent {
	if n == 1 {
		return base
	}
	return domain.Reagent(string(base) + strconv.Itoa(i+1))
}

// balanced completes entries with filler up to total. The filler leads the
// reaction when first is set and closes it otherwise.
func balanced(product string, total float64, filler domain.Reagent, entries []domain.ReagentVolume, first bool) (*domain.Recipe, error) {
	var sum float64
	for _, e := range entries {
		sum += e.Volume
	}
	rest := total - sum
	if rest < 0 {
		return nil, domain.MalformedRecipeError{
			Construct: product,
			Reason:    fmt.Sprintf("reagents need %g uL, more than the %g uL reaction", sum, total),
		}
	}
	fill := domain.ReagentVolume{Reagent: filler, Volume: rest}
	reaction := make([]domain.ReagentVolume, 0, len(entries)+1)
	if first {
		reaction = append(reaction, fill)
	}
	reaction = append(reaction, entries...)
	if !first {
		reaction = append(reaction, fill)
	}
	return &domain.Recipe{Reaction: reaction}, nil
}
