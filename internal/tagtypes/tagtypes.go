package tagtypes

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"audiotagger/internal/services"
)

// Type names a tag category the analysis service can extract.
type Type string

const (
	ContentType        Type = "CONTENT TYPE"
	ContentTypeV2      Type = "CONTENT TYPE V2"
	Popularity         Type = "HIT POTENTIAL"
	Genre              Type = "GENRE"
	GenreV2            Type = "GENRE V2"
	GenreV3            Type = "GENRE V3"
	Mood               Type = "MOOD"
	MoodV3             Type = "MOOD V3"
	BPM                Type = "BPM"
	BPMV2              Type = "BPM V2"
	Key                Type = "KEY"
	KeySharp           Type = "KEY SHARP"
	KeyFlat            Type = "KEY FLAT"
	Energy             Type = "ENERGY"
	Instrumentation    Type = "INSTRUMENTATION"
	InstrumentationV2  Type = "INSTRUMENTATION V2"
	SilenceStartStop   Type = "SILENCE DETECTION GQ8EM03XB2"
	VocalStartStop     Type = "VOCAL DETECTION LX9DO2R0W3"
	MoodBMG            Type = "MOOD NKR57TJ6HU"
	ProfileBMG         Type = "PROFILE 6YCG3XQ2WU"
	GenreBMG           Type = "GENRE B2KBK7Q822"
	InstrumentationBMG Type = "INSTRUMENTATION 56R2ZUF6KX"
	UseCase            Type = "USE CASE"
)

// Field is one column group contributed by a tag type. Repeat is the maximum
// number of scored values the service returns for it.
type Field struct {
	Name   string
	Repeat int
}

var all = []Type{
	ContentType, ContentTypeV2, Popularity,
	Genre, GenreV2, GenreV3,
	Mood, MoodV3,
	BPM, BPMV2,
	Key, KeySharp, KeyFlat,
	Energy,
	Instrumentation, InstrumentationV2,
	SilenceStartStop, VocalStartStop,
	MoodBMG, ProfileBMG, GenreBMG, InstrumentationBMG,
	UseCase,
}

var content = map[Type][]Field{
	ContentType:        {{"CONTENT TYPE", 1}, {"QUALITY", 1}},
	ContentTypeV2:      {{"CONTENT TYPE V2", 1}, {"QUALITY", 1}},
	Popularity:         {{"HIT POTENTIAL", 1}},
	Genre:              {{"GENRE", 1}, {"GENRE SECONDARY", 1}},
	GenreV2:            {{"GENRE V2", 4}},
	GenreV3:            {{"GENRE V3", 4}},
	Mood:               {{"MOOD", 1}, {"MOOD SECONDARY", 1}, {"MOOD VALENCE", 1}},
	MoodV3:             {{"MOOD V3", 5}, {"MOOD V3 DESCRIPTOR", 5}},
	BPM:                {{"BPM", 1}, {"BPM ALT", 1}, {"BPM VARIATION", 1}},
	BPMV2:              {{"BPM", 1}, {"BPM ALT", 1}, {"BPM VARIATION V2", 1}},
	Energy:             {{"ENERGY", 1}, {"ENERGY VARIATION", 1}},
	Key:                {{"KEY", 1}, {"KEY SECONDARY", 1}},
	KeyFlat:            {{"KEY FLAT", 1}, {"KEY FLAT SECONDARY", 1}},
	KeySharp:           {{"KEY SHARP", 1}, {"KEY SHARP SECONDARY", 1}},
	Instrumentation:    {{"INSTRUMENTATION", 1}, {"VOCAL PRESENCE", 1}, {"VOCAL GENDER", 1}, {"INSTRUMENT", 5}},
	InstrumentationV2:  {{"INSTRUMENT V2", 5}},
	SilenceStartStop:   {{"SOUND START (-60DB)", 1}, {"SOUND START (-30DB)", 1}, {"SOUND STOP (-30DB)", 1}, {"SOUND STOP (-60DB)", 1}},
	VocalStartStop:     {{"VOCAL START", 1}, {"VOCAL STOP", 1}},
	MoodBMG:            {{"BMG MOOD", 7}},
	ProfileBMG:         {{"BMG PROFILE", 4}},
	GenreBMG:           {{"BMG GENRE", 3}},
	InstrumentationBMG: {{"BMG INSTRUMENT", 6}},
	UseCase:            {{"USE CASE", 4}},
}

// All returns every known tag type in catalogue order.
func All() []Type {
	out := make([]Type, len(all))
	copy(out, all)
	return out
}

// Valid reports whether t is a known tag type.
func (t Type) Valid() bool {
	_, ok := content[t]
	return ok
}

// Fields returns the ordered field specs for t, or nil for unknown types.
func (t Type) Fields() []Field {
	fields := content[t]
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

func (t Type) String() string { return string(t) }

// Parse resolves a user supplied tag type name. Matching ignores case and
// surrounding whitespace.
func Parse(name string) (Type, error) {
	// Casers are stateful; build one per call so Parse stays goroutine safe.
	normalized := Type(cases.Upper(language.Und).String(strings.TrimSpace(name)))
	if !normalized.Valid() {
		return "", services.Wrap(services.ErrValidation, "tags", "parse", fmt.Sprintf("%q is not a valid tag type", name), nil)
	}
	return normalized, nil
}

// ParseList resolves a requested tag selection. The result keeps request
// order and drops duplicates; an empty selection is invalid.
func ParseList(names []string) ([]Type, error) {
	if len(names) == 0 {
		return nil, services.Wrap(services.ErrValidation, "tags", "parse", "no tag types provided", nil)
	}
	seen := make(map[Type]struct{}, len(names))
	out := make([]Type, 0, len(names))
	for _, name := range names {
		t, err := Parse(name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

// Names converts types to the wire names the service expects.
func Names(types []Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// Entry is one scored tag returned by the extract call.
type Entry struct {
	Type  string      `json:"type"`
	Name  string      `json:"name"`
	Score json.Number `json:"score"`
}

// Slot is one (name, score) column pair in a flattened row.
type Slot struct {
	Type  Type
	Field string
}

// Matches reports whether e belongs in the slot by field name, which is how
// the service labels entries ("GENRE SECONDARY", "BPM ALT").
func (s Slot) Matches(e Entry) bool {
	return e.Type == s.Field
}

// MatchesOwner reports whether e carries the slot's owning tag type.
func (s Slot) MatchesOwner(e Entry) bool {
	return e.Type == string(s.Type)
}

// Slots expands the field specs of types into flat column slots, honouring
// each field's repeat count.
func Slots(types []Type) []Slot {
	var slots []Slot
	for _, t := range types {
		for _, field := range content[t] {
			for i := 0; i < field.Repeat; i++ {
				slots = append(slots, Slot{Type: t, Field: field.Name})
			}
		}
	}
	return slots
}
