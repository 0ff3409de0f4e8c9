package compare

import "sort"

// Correlate runs LCS over the two atom streams using fingerprint equality as
// the atom-equality test. Atoms in the common subsequence become Equal and
// are cross-linked; the remainder become Deleted (original-only) or Inserted
// (revised-only). Atoms whose status was seeded from pre-existing revision
// markup are left untouched.
func Correlate(original, revised []*Atom) {
	a := candidates(original)
	b := candidates(revised)

	fa := make([]Fingerprint, len(a))
	for i, atom := range a {
		fa[i] = atom.Fingerprint
	}
	fb := make([]Fingerprint, len(b))
	for j, atom := range b {
		fb[j] = atom.Fingerprint
	}

	for _, pr := range lcsPairs(fa, fb) {
		oa, ra := a[pr[0]], b[pr[1]]
		oa.Status = StatusEqual
		ra.Status = StatusEqual
		oa.Counterpart = ra
		ra.Counterpart = oa
	}

	for _, atom := range a {
		if atom.Status == StatusUnknown {
			atom.Status = StatusDeleted
		}
	}
	for _, atom := range b {
		if atom.Status == StatusUnknown {
			atom.Status = StatusInserted
		}
	}
}

// candidates filters the atoms the correlator may classify: everything not
// already seeded from pre-existing revision markup.
func candidates(atoms []*Atom) []*Atom {
	out := make([]*Atom, 0, len(atoms))
	for _, a := range atoms {
		if a.Status == StatusUnknown {
			out = append(out, a)
		}
	}
	return out
}

// lcsPairs computes a longest common subsequence of the two fingerprint
// sequences and returns the matched index pairs in ascending order.
//
// The algorithm is Hunt–Szymanski: O((r + n) log n) where r is the number of
// matching position pairs, which is what realistic documents need. A naive
// O(n·m) table would be correct but does not scale.
func lcsPairs(a, b []Fingerprint) [][2]int {
	occ := make(map[Fingerprint][]int, len(b))
	for j, fp := range b {
		occ[fp] = append(occ[fp], j)
	}

	type link struct {
		ai, bj int
		prev   *link
	}

	// thresh[k] holds the smallest b-index that ends a common subsequence
	// of length k+1; it is strictly increasing.
	var thresh []int
	var tails []*link

	for i, fp := range a {
		matches := occ[fp]
		// descending order so earlier threshold slots are not consumed
		// by later positions of the same element within one row
		for m := len(matches) - 1; m >= 0; m-- {
			j := matches[m]
			k := sort.SearchInts(thresh, j)
			if k == len(thresh) {
				thresh = append(thresh, j)
				tails = append(tails, nil)
			} else if thresh[k] == j {
				continue
			} else {
				thresh[k] = j
			}
			var prev *link
			if k > 0 {
				prev = tails[k-1]
			}
			tails[k] = &link{ai: i, bj: j, prev: prev}
		}
	}

	if len(tails) == 0 {
		return nil
	}
	var pairs [][2]int
	for l := tails[len(tails)-1]; l != nil; l = l.prev {
		pairs = append(pairs, [2]int{l.ai, l.bj})
	}
	for i, j := 0, len(pairs)-1; i < j; i, j = i+1, j-1 {
		pairs[i], pairs[j] = pairs[j], pairs[i]
	}
	return pairs
}
