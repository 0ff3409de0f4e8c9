package ooxml

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// FieldCode is a parsed field instruction, e.g.
// ` MERGEFIELD ClientName \* MERGEFORMAT ` or ` REF Recitals \h `.
type FieldCode struct {
	// Name is the field type keyword, uppercased (PAGE, REF, MERGEFIELD, ...).
	Name string
	// Args are the positional arguments before the first switch.
	Args []string
	// Switches are the backslash switches with their optional arguments.
	Switches []FieldSwitch
}

// FieldSwitch is a single backslash switch in a field instruction.
type FieldSwitch struct {
	Flag string // including the leading backslash, e.g. `\*` or `\h`
	Arg  string // optional argument, unquoted
}

// fieldGrammar is the participle grammar for field instruction codes.
//
//nolint:govet // participle grammar tags are not standard struct tags
type fieldGrammar struct {
	Name     string        `parser:"@Word"`
	Args     []string      `parser:"( @String | @Word )*"`
	Switches []*switchPart `parser:"@@*"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type switchPart struct {
	Flag string  `parser:"@Switch"`
	Arg  *string `parser:"( @String | @Word )?"`
}

// fieldLexer tokenizes field instructions: switches are a backslash followed
// by one character, strings are double-quoted with backslash escapes, words
// are any other run of non-space characters.
var fieldLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Switch", Pattern: `\\.`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Word", Pattern: `[^\s"\\]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var fieldParser = participle.MustBuild[fieldGrammar](
	participle.Lexer(fieldLexer),
	participle.Elide("Whitespace"),
)

// ParseFieldCode parses a field instruction string. Leading and trailing
// whitespace is ignored. An empty instruction returns an error.
func ParseFieldCode(instr string) (*FieldCode, error) {
	g, err := fieldParser.ParseString("", strings.TrimSpace(instr))
	if err != nil {
		return nil, err
	}
	fc := &FieldCode{Name: strings.ToUpper(g.Name)}
	for _, a := range g.Args {
		fc.Args = append(fc.Args, unquote(a))
	}
	for _, s := range g.Switches {
		sw := FieldSwitch{Flag: s.Flag}
		if s.Arg != nil {
			sw.Arg = unquote(*s.Arg)
		}
		fc.Switches = append(fc.Switches, sw)
	}
	return fc, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		inner := s[1 : len(s)-1]
		inner = strings.ReplaceAll(inner, `\"`, `"`)
		inner = strings.ReplaceAll(inner, `\\`, `\`)
		return inner
	}
	return s
}

// volatileFields are field types whose rendered result changes between saves
// (page numbers, dates, times). Their results still participate in comparison,
// but callers may want to treat differences in them as noise.
var volatileFields = map[string]bool{
	"PAGE":      true,
	"NUMPAGES":  true,
	"PAGEREF":   true,
	"DATE":      true,
	"TIME":      true,
	"SAVEDATE":  true,
	"PRINTDATE": true,
	"FILENAME":  true,
}

// IsVolatile reports whether the field's rendered result is expected to
// change between saves without an authoring edit.
func (f *FieldCode) IsVolatile() bool {
	return volatileFields[f.Name]
}
