package warehouse

import (
	"errors"
	"testing"
)

func TestClassifyTransientPatterns(t *testing.T) {
	cases := []string{"connection refused", "broken pipe", "read timeout", "unexpected EOF", "connection reset by peer"}
	for _, msg := range cases {
		got := classify(errors.New(msg))
		if got.Kind != KindTransient {
			t.Errorf("classify(%q).Kind = %q, want transient", msg, got.Kind)
		}
	}
}

func TestClassifyAuthPatterns(t *testing.T) {
	got := classify(errors.New("authentication failed for user"))
	if got.Kind != KindAuth {
		t.Errorf("Kind = %q, want auth", got.Kind)
	}
}

func TestClassifySyntaxPatterns(t *testing.T) {
	got := classify(errors.New("code: 62, message: Syntax error near token"))
	if got.Kind != KindSyntax {
		t.Errorf("Kind = %q, want syntax", got.Kind)
	}
}

func TestClassifyConstraintPatterns(t *testing.T) {
	got := classify(errors.New("table already exists"))
	if got.Kind != KindConstraint {
		t.Errorf("Kind = %q, want constraint", got.Kind)
	}
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	got := classify(errors.New("something completely unrecognized"))
	if got.Kind != KindTransient {
		t.Errorf("Kind = %q, want transient (unknown errors are treated conservatively)", got.Kind)
	}
}

func TestClassifyNilIsNil(t *testing.T) {
	if classify(nil) != nil {
		t.Fatalf("classify(nil) should return nil")
	}
}

func TestClassifyPreservesAlreadyClassifiedError(t *testing.T) {
	original := &WarehouseError{Kind: KindAuth, Err: errors.New("boom")}
	got := classify(original)
	if got != original {
		t.Fatalf("classify should pass through an already-classified *WarehouseError unchanged")
	}
}

func TestWarehouseErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	we := &WarehouseError{Kind: KindSyntax, Err: inner}
	if !errors.Is(we, inner) {
		t.Fatalf("errors.Is should see through WarehouseError.Unwrap to the inner error")
	}
}
