package ooxml

// runPropertyNames maps w:rPr child element local names to the human-readable
// property names reported in format-change records. The table is fixed and
// exhaustive for the run properties defined by WordprocessingML; unknown
// elements fall back to their local name.
var runPropertyNames = map[string]string{
	"rStyle":          "character style",
	"rFonts":          "font",
	"b":               "bold",
	"bCs":             "bold (complex script)",
	"i":               "italic",
	"iCs":             "italic (complex script)",
	"caps":            "all caps",
	"smallCaps":       "small caps",
	"strike":          "strikethrough",
	"dstrike":         "double strikethrough",
	"outline":         "outline",
	"shadow":          "shadow",
	"emboss":          "emboss",
	"imprint":         "imprint",
	"noProof":         "no proofing",
	"snapToGrid":      "snap to grid",
	"vanish":          "hidden",
	"webHidden":       "web hidden",
	"color":           "color",
	"spacing":         "character spacing",
	"w":               "character scale",
	"kern":            "kerning",
	"position":        "position",
	"sz":              "font size",
	"szCs":            "font size (complex script)",
	"highlight":       "highlight",
	"u":               "underline",
	"effect":          "text effect",
	"bdr":             "border",
	"shd":             "shading",
	"fitText":         "fit text",
	"vertAlign":       "vertical alignment",
	"rtl":             "right-to-left",
	"cs":              "complex script",
	"em":              "emphasis mark",
	"lang":            "language",
	"eastAsianLayout": "east asian layout",
	"specVanish":      "paragraph mark hidden",
	"oMath":           "office math",
}

// RunPropertyName returns the display name for a w:rPr child element local
// name.
func RunPropertyName(local string) string {
	if name, ok := runPropertyNames[local]; ok {
		return name
	}
	return local
}
