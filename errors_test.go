package ledb

import (
	"errors"
	"strings"
	"testing"
)

func TestDataError_ErrorAndUnwrap(t *testing.T) {
	t.Run("small data", func(t *testing.T) {
		inner := errors.New("inner")
		err := dataErrf([]byte{0xAA, 0xBB}, 1, inner, "oops")
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("err = %T, wanted *DataError", err)
		}
		if !errors.Is(err, inner) {
			t.Fatalf("errors.Is(err, inner) = false, wanted true")
		}
		s := err.Error()
		if !strings.Contains(s, "oops") || !strings.Contains(s, "inner") || !strings.Contains(s, "(2)") {
			t.Fatalf("err.Error() = %q, wanted message with oops/inner/(2)", s)
		}
	})

	t.Run("large data includes prefix+suffix", func(t *testing.T) {
		data := make([]byte, 200)
		for i := range data {
			data[i] = byte(i)
		}
		err := dataErrf(data, 0, nil, "oops")
		s := err.Error()
		if !strings.Contains(s, "(200)") || !strings.Contains(s, "...") {
			t.Fatalf("err.Error() = %q, wanted message with (200) and ...", s)
		}
	})
}

func TestError_KindAndIs(t *testing.T) {
	inner := errors.New("unique violation")
	err := newErr(ConstraintConflict, "Collection.Insert", inner, "email already indexed")

	if kind, ok := KindOf(err); !ok || kind != ConstraintConflict {
		t.Fatalf("KindOf(err) = (%v, %v), wanted (ConstraintConflict, true)", kind, ok)
	}
	if !errors.Is(err, ErrKind(ConstraintConflict)) {
		t.Fatalf("errors.Is(err, ErrKind(ConstraintConflict)) = false, wanted true")
	}
	if errors.Is(err, ErrKind(MissingIndex)) {
		t.Fatalf("errors.Is(err, ErrKind(MissingIndex)) = true, wanted false")
	}
	if !errors.Is(err, inner) {
		t.Fatalf("errors.Is(err, inner) = false, wanted true")
	}

	s := err.Error()
	if !strings.Contains(s, "Collection.Insert") || !strings.Contains(s, "ConstraintConflict") || !strings.Contains(s, "email already indexed") {
		t.Fatalf("err.Error() = %q, wanted op/kind/msg", s)
	}

	wrapped := errors.Join(err)
	if kind, ok := KindOf(wrapped); !ok || kind != ConstraintConflict {
		t.Fatalf("KindOf(wrapped) = (%v, %v), wanted (ConstraintConflict, true)", kind, ok)
	}
}

func TestErrorKind_String(t *testing.T) {
	cases := map[ErrorKind]string{
		IoFailure:          "IoFailure",
		CatalogCorrupt:     "CatalogCorrupt",
		ConstraintConflict: "ConstraintConflict",
		MissingIndex:       "MissingIndex",
		MissingDocument:    "MissingDocument",
		EncodingFailure:    "EncodingFailure",
		CoercionFailure:    "CoercionFailure",
		LockPoisoned:       "LockPoisoned",
		Cancelled:          "Cancelled",
		ErrorKind(0):       "Unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("ErrorKind(%d).String() = %q, wanted %q", kind, got, want)
		}
	}
}
