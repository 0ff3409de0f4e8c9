package compare

import (
	"sort"

	"github.com/antchfx/xmlquery"

	"github.com/openagreements/redline/core/ooxml"
	"github.com/openagreements/redline/core/xml"
)

// DetectFormatChanges reclassifies Equal atom pairs whose text is identical
// but whose run formatting differs. Both sides of the pair move to
// FormatChanged and share one FormatChange record (Old is the original
// side's formatting, New the revised side's).
//
// Running the detector twice is a no-op: it only examines Equal atoms.
func DetectFormatChanges(original []*Atom) int {
	changed := 0
	for _, a := range original {
		if a.Status != StatusEqual || a.Counterpart == nil {
			continue
		}
		oldProps := runPropsCanonical(a)
		newProps := runPropsCanonical(a.Counterpart)
		if oldProps == newProps {
			continue
		}
		// Absent on exactly one side counts as changed only if the
		// present side declares at least one non-empty property;
		// canonicalRunProps already collapses empty w:rPr to "".
		props := changedProperties(a, a.Counterpart)
		fc := &FormatChange{Old: oldProps, New: newProps, Properties: props}
		a.Status = StatusFormatChanged
		a.Counterpart.Status = StatusFormatChanged
		a.Format = fc
		a.Counterpart.Format = fc
		changed++
	}
	return changed
}

// changedProperties names the run properties that were added, removed, or
// changed between the two sides, using the fixed property-name table.
func changedProperties(orig, rev *Atom) []string {
	oldByName := propIndex(runPropsNode(orig))
	newByName := propIndex(runPropsNode(rev))

	seen := make(map[string]bool)
	var names []string
	add := func(local string) {
		name := ooxml.RunPropertyName(local)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for local, oldSer := range oldByName {
		newSer, ok := newByName[local]
		if !ok || newSer != oldSer {
			add(local)
		}
	}
	for local := range newByName {
		if _, ok := oldByName[local]; !ok {
			add(local)
		}
	}
	sort.Strings(names)
	return names
}

func runPropsNode(a *Atom) *xmlquery.Node {
	run := a.RunNode()
	if run == nil {
		return nil
	}
	return xml.FirstChildNamed(run, "w:rPr")
}

// propIndex maps each property element's local name to its canonical
// serialization. Revision residue inside rPr is ignored.
func propIndex(rPr *xmlquery.Node) map[string]string {
	out := make(map[string]string)
	if rPr == nil {
		return out
	}
	for _, c := range xml.Children(rPr) {
		switch c.Data {
		case "rPrChange", "ins", "del":
			continue
		}
		out[c.Data] = xml.CanonicalString(c)
	}
	return out
}
