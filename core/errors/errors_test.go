package errors

import (
	stderrors "errors"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewNotFound("run", "abc"), "run not found: abc"},
		{NewNotFound("run", ""), "run not found"},
		{NewValidation("mode", "must be rebuild or inplace"), "validation failed for mode: must be rebuild or inplace"},
		{NewParse("XML", "word/document.xml", "w:body missing"), "failed to parse XML at word/document.xml: w:body missing"},
		{NewParse("field code", "", "empty instruction"), "failed to parse field code: empty instruction"},
		{NewUnsupported("nested tables", "revision splitting"), "unsupported nested tables: revision splitting"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestSentinelUnwrapping(t *testing.T) {
	if !Is(NewNotFound("run", "x"), ErrNotFound) {
		t.Error("NotFoundError should unwrap to ErrNotFound")
	}
	if !Is(NewValidation("f", "m"), ErrInvalidInput) {
		t.Error("ValidationError should unwrap to ErrInvalidInput")
	}
	if !Is(NewParse("XML", "", "m"), ErrInvalidInput) {
		t.Error("ParseError should unwrap to ErrInvalidInput")
	}
	if !Is(NewUnsupported("f", "r"), ErrUnsupported) {
		t.Error("UnsupportedError should unwrap to ErrUnsupported")
	}
}

func TestTypedPredicates(t *testing.T) {
	wrapped := Wrap(NewValidation("engine", "unknown"), "compare")
	if !IsValidation(wrapped) {
		t.Error("IsValidation should see through wrapping")
	}
	if IsParse(wrapped) {
		t.Error("IsParse matched a validation error")
	}
	if !IsParse(Wrapf(NewParse("OPC package", "", "not a zip"), "original %s", "a.docx")) {
		t.Error("IsParse should see through wrapping")
	}
	if !IsNotFound(NewNotFound("job", "j1")) {
		t.Error("IsNotFound failed on direct error")
	}
	if IsValidation(stderrors.New("plain")) {
		t.Error("plain error misclassified")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}
