package pikerr

import (
	"errors"
	"testing"
)

func TestNew_SetsKindAndOp(t *testing.T) {
	err := New(KindMalformed, "pik.Test", "truncated section")
	if err.Kind != KindMalformed {
		t.Errorf("Kind = %v, want KindMalformed", err.Kind)
	}
	if err.Op != "pik.Test" {
		t.Errorf("Op = %q, want %q", err.Op, "pik.Test")
	}
}

func TestWrap_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindUnsupported, "pik.Test", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause via Unwrap")
	}
}

func TestIs_MatchesKindOnly(t *testing.T) {
	err := New(KindInvalidInput, "pik.Test", "bad")
	if !Is(err, KindInvalidInput) {
		t.Error("Is should report true for the matching kind")
	}
	if Is(err, KindMalformed) {
		t.Error("Is should report false for a different kind")
	}
	if Is(errors.New("plain"), KindInvalidInput) {
		t.Error("Is should report false for a non-*Error")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindInvalidInput:  "invalid input",
		KindMalformed:     "malformed bitstream",
		KindUnsupported:   "unsupported pathway",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", k, got, want)
		}
	}
}
