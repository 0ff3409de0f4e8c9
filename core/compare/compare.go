package compare

import (
	"strconv"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/openagreements/redline/core/docx"
	"github.com/openagreements/redline/core/errors"
	"github.com/openagreements/redline/core/ooxml"
	"github.com/openagreements/redline/core/xml"
	"github.com/openagreements/redline/internal/logging"
)

// Mode selects the reconstruction strategy.
type Mode string

const (
	// ModeRebuild synthesizes a fresh output tree. Always available.
	ModeRebuild Mode = "rebuild"
	// ModeInPlace mutates the revised tree, preserving untouched markup.
	// Falls back to rebuild when the round-trip safety checks fail.
	ModeInPlace Mode = "inplace"
)

// Engine selects the comparison granularity.
type Engine string

const (
	// EngineAtom compares at text-fragment granularity.
	EngineAtom Engine = "atom"
	// EngineParagraph compares whole paragraphs, trading precision for
	// speed and chunkier markup.
	EngineParagraph Engine = "paragraph"
)

// Options configure one comparison run. The zero value compares at atom
// granularity in rebuild mode with default thresholds.
type Options struct {
	// Author and Date attribute every generated revision element.
	Author string
	Date   time.Time

	Mode   Mode
	Engine Engine

	// IgnoreFormatting disables format-change detection; text-identical
	// pairs stay Equal regardless of run properties.
	IgnoreFormatting bool

	// MergeAdjacentRuns merges identically-formatted sibling runs in both
	// inputs before comparison, which collapses editor fragmentation noise.
	MergeAdjacentRuns bool

	// Move detection thresholds; zero means the package defaults.
	MoveMinWords   int
	MoveSimilarity float64

	// CheckRebuild runs the round-trip safety checks on rebuild output too
	// and records the diagnostics. Rebuild output is used either way.
	CheckRebuild bool
}

// Stats summarizes the classified differences. Counts are contiguous
// changed regions, not atoms: deleting a sentence is one deletion.
type Stats struct {
	Insertions    int `json:"insertions"`
	Deletions     int `json:"deletions"`
	Moves         int `json:"moves"`
	FormatChanges int `json:"format_changes"`

	OriginalAtoms int `json:"original_atoms"`
	RevisedAtoms  int `json:"revised_atoms"`
}

// Result is the outcome of one comparison.
type Result struct {
	// Output is the full OPC package with the reconstructed main part, or
	// just the main part XML when the inputs had no container.
	Output []byte

	// DocumentXML is the reconstructed main part on its own.
	DocumentXML []byte

	Stats  Stats
	Engine Engine

	// ModeRequested is what the caller asked for; ModeUsed is what
	// actually produced the output.
	ModeRequested Mode
	ModeUsed      Mode

	// FallbackReason is set when ModeUsed differs from ModeRequested.
	FallbackReason string

	// Diagnostics holds the safety-check outcome of every reconstruction
	// attempt, including failed in-place attempts.
	Diagnostics []AttemptDiagnostics
}

// Compare classifies the differences between the two documents and produces
// a tracked-changes output package.
func Compare(original, revised *docx.Document, opts Options) (*Result, error) {
	if opts.Mode == "" {
		opts.Mode = ModeRebuild
	}
	if opts.Engine == "" {
		opts.Engine = EngineAtom
	}
	switch opts.Mode {
	case ModeRebuild, ModeInPlace:
	default:
		return nil, errors.NewValidation("mode", "must be rebuild or inplace, got "+string(opts.Mode))
	}
	switch opts.Engine {
	case EngineAtom, EngineParagraph:
	default:
		return nil, errors.NewValidation("engine", "must be atom or paragraph, got "+string(opts.Engine))
	}

	if opts.MergeAdjacentRuns {
		mergeAdjacentRuns(original.Body)
		mergeAdjacentRuns(revised.Body)
	}

	start := time.Now()
	res := &Result{Engine: opts.Engine, ModeRequested: opts.Mode, ModeUsed: opts.Mode}

	var tree *xmlquery.Node
	switch opts.Engine {
	case EngineParagraph:
		tree = compareParagraphs(original, revised, &opts, res)
	default:
		tree = compareAtoms(original, revised, &opts, res)
	}

	res.DocumentXML = xml.Serialize(tree)
	out, err := revised.Repackage(res.DocumentXML)
	if err != nil {
		return nil, err
	}
	res.Output = out

	logging.Comparison(original.Path, revised.Path, string(res.ModeUsed),
		res.Stats.Insertions, res.Stats.Deletions, res.Stats.Moves,
		res.Stats.FormatChanges, time.Since(start),
		"engine", string(res.Engine), "fallback", res.FallbackReason)
	return res, nil
}

// inPlaceAttempts are the atomization configurations tried for in-place
// reconstruction, in order. Word splitting gives finer markup but maps less
// cleanly onto existing runs; run-level granularity is the safer retry.
var inPlaceAttempts = []struct {
	name string
	opts AtomizeOptions
}{
	{"word_split_aware", AtomizeOptions{MergeAcrossRuns: true, MergePunctAcrossRuns: true, SplitWords: true}},
	{"run_level", AtomizeOptions{MergeAcrossRuns: false, MergePunctAcrossRuns: false, SplitWords: false}},
}

func compareAtoms(original, revised *docx.Document, opts *Options, res *Result) *xmlquery.Node {
	if opts.Mode == ModeInPlace {
		for _, attempt := range inPlaceAttempts {
			clone := xml.Clone(revised.Tree)
			cloneBody := bodyOf(clone)
			oa, ra := runPipeline(original.Body, cloneBody, attempt.opts, opts)
			at := newAttribution(opts.Author, opts.Date, ooxml.NewRevisionIDs(nextRevisionID(revised.Tree)))
			applyInPlace(oa, ra, at)
			checks := runSafetyChecks(clone, oa, ra)
			res.Diagnostics = append(res.Diagnostics, AttemptDiagnostics{Attempt: attempt.name, Checks: *checks})
			if checks.Passed() {
				res.Stats = computeStats(oa, ra)
				return clone
			}
			logging.Debug("in-place attempt failed safety checks",
				"attempt", attempt.name, "mismatches", len(checks.Mismatches))
		}
		res.ModeUsed = ModeRebuild
		res.FallbackReason = "round_trip_safety_check_failed"
	}

	oa, ra := runPipeline(original.Body, revised.Body, DefaultAtomizeOptions(), opts)
	at := newAttribution(opts.Author, opts.Date, ooxml.NewRevisionIDs(nextRevisionID(revised.Tree)))
	tree := Rebuild(oa, ra, revised.Tree, at)
	if opts.CheckRebuild {
		checks := runSafetyChecks(tree, oa, ra)
		res.Diagnostics = append(res.Diagnostics, AttemptDiagnostics{Attempt: "rebuild", Checks: *checks})
	}
	res.Stats = computeStats(oa, ra)
	return tree
}

// runPipeline executes the classification phases on the two bodies.
func runPipeline(originalBody, revisedBody *xmlquery.Node, aopts AtomizeOptions, opts *Options) ([]*Atom, []*Atom) {
	oa := Atomize(originalBody, ooxml.PartDocument, aopts).Atoms
	ra := Atomize(revisedBody, ooxml.PartDocument, aopts).Atoms
	Correlate(oa, ra)
	DetectMoves(oa, ra, opts.MoveMinWords, opts.MoveSimilarity)
	if !opts.IgnoreFormatting {
		DetectFormatChanges(oa)
	}
	return oa, ra
}

// computeStats counts contiguous changed regions in the merged stream and
// distinct move groups.
func computeStats(original, revised []*Atom) Stats {
	s := Stats{OriginalAtoms: len(original), RevisedAtoms: len(revised)}

	var prev Status = StatusUnknown
	prevOriginal := false
	for _, it := range mergedStream(original, revised) {
		st := it.atom.Status
		if st != prev || it.fromOriginal != prevOriginal {
			switch st {
			case StatusDeleted:
				s.Deletions++
			case StatusInserted:
				s.Insertions++
			case StatusFormatChanged:
				if !it.fromOriginal {
					s.FormatChanges++
				}
			}
		}
		prev = st
		prevOriginal = it.fromOriginal
	}

	for _, a := range original {
		if a.MoveGroup > s.Moves {
			s.Moves = a.MoveGroup
		}
	}
	return s
}

// nextRevisionID returns one past the highest numeric w:id on existing
// revision elements, so generated ids never collide with pre-existing ones.
func nextRevisionID(tree *xmlquery.Node) int {
	next := 1
	nodes, err := xml.Query(tree,
		"//*[local-name()='ins' or local-name()='del' or local-name()='moveFrom' or local-name()='moveTo' or local-name()='rPrChange' or local-name()='pPrChange']")
	if err != nil {
		return next
	}
	for _, n := range nodes {
		if id, err := strconv.Atoi(n.SelectAttr("w:id")); err == nil && id >= next {
			next = id + 1
		}
	}
	return next
}

// mergeAdjacentRuns joins sibling runs whose properties canonicalize
// identically, moving the second run's content into the first. Editors
// fragment runs aggressively; merging first keeps the diff readable.
func mergeAdjacentRuns(body *xmlquery.Node) {
	paras, err := xml.Query(body, "//*[local-name()='p']")
	if err != nil {
		return
	}
	for _, p := range paras {
		var prev *xmlquery.Node
		for _, c := range xml.Children(p) {
			if !ooxml.IsRun(c) {
				prev = nil
				continue
			}
			if prev != nil && runPropsEqual(prev, c) {
				for _, gc := range xml.Children(c) {
					if gc.Data == "rPr" {
						continue
					}
					xml.Remove(gc)
					xml.AppendChild(prev, gc)
				}
				xml.Remove(c)
				continue
			}
			prev = c
		}
	}
}

func runPropsEqual(a, b *xmlquery.Node) bool {
	return canonicalRunProps(xml.FirstChildNamed(a, "w:rPr")) ==
		canonicalRunProps(xml.FirstChildNamed(b, "w:rPr"))
}
