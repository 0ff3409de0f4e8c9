package compare

import (
	"strings"

	"github.com/openagreements/redline/core/ooxml"
)

// Defaults for move detection. Shorter runs are too ambiguous to call a
// move; lower similarity scores are more likely coincidental wording.
const (
	DefaultMoveMinWords   = 5
	DefaultMoveSimilarity = 0.8
)

// AtomBlock is a maximal run of consecutive same-status atoms within one
// paragraph (Deleted or Inserted only), used only within move detection.
type AtomBlock struct {
	Atoms  []*Atom
	Status Status
	Text   string
	Words  []string

	claimed bool
}

// DetectMoves groups same-status runs into blocks, matches Deleted blocks
// against Inserted blocks by case-insensitive Jaccard word-set similarity,
// and reclassifies accepted pairs as MovedSource/MovedDestination sharing a
// move-group id and name.
//
// Deleted blocks are processed in encounter order and claim greedily; on an
// exact similarity tie the first-encountered Inserted block wins.
func DetectMoves(original, revised []*Atom, minWords int, minSimilarity float64) int {
	if minWords <= 0 {
		minWords = DefaultMoveMinWords
	}
	if minSimilarity <= 0 {
		minSimilarity = DefaultMoveSimilarity
	}

	deleted := buildBlocks(original, StatusDeleted, minWords)
	inserted := buildBlocks(revised, StatusInserted, minWords)
	if len(deleted) == 0 || len(inserted) == 0 {
		return 0
	}

	group := 0
	for _, d := range deleted {
		dset := wordSet(d.Words)
		var best *AtomBlock
		bestScore := 0.0
		for _, ins := range inserted {
			if ins.claimed {
				continue
			}
			score := jaccard(dset, wordSet(ins.Words))
			if score > bestScore {
				bestScore = score
				best = ins
			}
		}
		if best == nil || bestScore < minSimilarity {
			continue
		}
		d.claimed = true
		best.claimed = true
		group++
		name := ooxml.NewMoveName()
		reclassify(d, StatusMovedSource, group, name)
		reclassify(best, StatusMovedDestination, group, name)
	}
	return group
}

// buildBlocks splits the atom stream into maximal same-status runs, breaking
// at every status change and at every paragraph boundary, and keeps only
// blocks of the wanted status with at least minWords words. The paragraph
// break keeps a relocated paragraph from fusing with an adjacent new one,
// which would dilute its similarity score.
func buildBlocks(atoms []*Atom, want Status, minWords int) []*AtomBlock {
	var blocks []*AtomBlock
	var cur *AtomBlock
	for _, a := range atoms {
		if cur != nil && a.Status == cur.Status &&
			a.Paragraph == cur.Atoms[len(cur.Atoms)-1].Paragraph {
			cur.Atoms = append(cur.Atoms, a)
			continue
		}
		cur = &AtomBlock{Status: a.Status, Atoms: []*Atom{a}}
		blocks = append(blocks, cur)
	}

	var out []*AtomBlock
	for _, b := range blocks {
		if b.Status != want {
			continue
		}
		var sb strings.Builder
		for _, a := range b.Atoms {
			sb.WriteString(a.Text())
		}
		b.Text = sb.String()
		b.Words = strings.Fields(strings.ToLower(b.Text))
		if len(b.Words) < minWords {
			continue
		}
		out = append(out, b)
	}
	return out
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// jaccard returns |intersection| / |union| of the two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func reclassify(b *AtomBlock, status Status, group int, name string) {
	for _, a := range b.Atoms {
		a.Status = status
		a.MoveGroup = group
		a.MoveName = name
	}
}
