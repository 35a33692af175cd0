package tagtypes_test

import (
	"errors"
	"testing"

	"audiotagger/internal/services"
	"audiotagger/internal/tagtypes"
)

func TestEveryTypeHasFields(t *testing.T) {
	types := tagtypes.All()
	if len(types) != 23 {
		t.Fatalf("expected 23 tag types, got %d", len(types))
	}
	for _, typ := range types {
		fields := typ.Fields()
		if len(fields) == 0 {
			t.Fatalf("tag type %q has no fields", typ)
		}
		for _, f := range fields {
			if f.Name == "" || f.Repeat < 1 {
				t.Fatalf("tag type %q has invalid field %+v", typ, f)
			}
		}
	}
}

func TestParseNormalizesCase(t *testing.T) {
	got, err := tagtypes.Parse("  genre v2 ")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got != tagtypes.GenreV2 {
		t.Fatalf("expected GENRE V2, got %q", got)
	}
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := tagtypes.Parse("FOO")
	if err == nil {
		t.Fatal("expected error for unknown tag type")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseListDeduplicatesInOrder(t *testing.T) {
	got, err := tagtypes.ParseList([]string{"MOOD", "genre", "Mood", "BPM"})
	if err != nil {
		t.Fatalf("ParseList returned error: %v", err)
	}
	want := []tagtypes.Type{tagtypes.Mood, tagtypes.Genre, tagtypes.BPM}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestParseListRejectsEmptySelection(t *testing.T) {
	if _, err := tagtypes.ParseList(nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := tagtypes.ParseList([]string{"GENRE", "FOO"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for mixed selection, got %v", err)
	}
}

func TestSlotsExpandRepeats(t *testing.T) {
	slots := tagtypes.Slots([]tagtypes.Type{tagtypes.Genre, tagtypes.GenreV2})
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	wantFields := []string{"GENRE", "GENRE SECONDARY", "GENRE V2", "GENRE V2", "GENRE V2", "GENRE V2"}
	for i, slot := range slots {
		if slot.Field != wantFields[i] {
			t.Fatalf("slot %d: expected field %q, got %q", i, wantFields[i], slot.Field)
		}
	}
	if slots[0].Type != tagtypes.Genre || slots[5].Type != tagtypes.GenreV2 {
		t.Fatalf("unexpected slot owners: %+v", slots)
	}
}

func TestFieldsReturnsCopy(t *testing.T) {
	fields := tagtypes.Mood.Fields()
	fields[0].Name = "changed"
	if tagtypes.Mood.Fields()[0].Name != "MOOD" {
		t.Fatal("expected Fields to return a defensive copy")
	}
}
