// Package flatten turns stored per-asset tag results into a fixed-width table.
//
// Each requested tag type expands into (field, SCORE) column pairs according
// to the tagtypes catalogue. Every record is matched against those slots in
// order: a slot takes the first remaining entry labelled with its field name,
// falling back to the first entry labelled with the owning tag type, and
// consumes it so repeated slots (GENRE V2 1..4) pick up successive values.
// Unmatched slots stay empty.
package flatten

import (
	"context"
	"fmt"

	"audiotagger/internal/results"
	"audiotagger/internal/services"
	"audiotagger/internal/tagtypes"
)

// Leading columns of every table.
const (
	ColumnFileName = "URL_FILENAME"
	ColumnAssetID  = "ASSET_ID"
	ColumnScore    = "SCORE"
)

// Table is a header plus rows of equal width.
type Table struct {
	Header []string
	Rows   [][]string
}

// Width is the number of columns.
func (t Table) Width() int { return len(t.Header) }

// Header builds the column names for types.
func Header(types []tagtypes.Type) []string {
	slots := tagtypes.Slots(types)
	header := make([]string, 0, 2+2*len(slots))
	header = append(header, ColumnFileName, ColumnAssetID)
	for _, slot := range slots {
		header = append(header, slot.Field, ColumnScore)
	}
	return header
}

// Flatten loads every record from store and flattens it. Rows follow the
// store's enumeration order.
func Flatten(ctx context.Context, store results.Store, types []tagtypes.Type) (Table, error) {
	types, err := selection(types)
	if err != nil {
		return Table{}, err
	}
	records, err := store.List(ctx)
	if err != nil {
		return Table{}, err
	}
	if len(records) == 0 {
		return Table{}, services.Wrap(services.ErrValidation, "flatten", "", fmt.Sprintf("no results found in %s", store.Location()), nil)
	}
	return build(records, types), nil
}

// Records flattens already loaded records.
func Records(records []results.Record, types []tagtypes.Type) (Table, error) {
	types, err := selection(types)
	if err != nil {
		return Table{}, err
	}
	if len(records) == 0 {
		return Table{}, services.Wrap(services.ErrValidation, "flatten", "", "no results to flatten", nil)
	}
	return build(records, types), nil
}

func build(records []results.Record, types []tagtypes.Type) Table {
	slots := tagtypes.Slots(types)
	table := Table{Header: Header(types), Rows: make([][]string, 0, len(records))}
	for _, rec := range records {
		table.Rows = append(table.Rows, row(rec, slots))
	}
	return table
}

func row(rec results.Record, slots []tagtypes.Slot) []string {
	// Handle first, then name: the reverse of the header labels.
	out := make([]string, 0, 2+2*len(slots))
	out = append(out, rec.FeatureID, rec.FileName)

	remaining := make([]tagtypes.Entry, len(rec.Tags))
	copy(remaining, rec.Tags)
	for _, slot := range slots {
		idx := indexOf(remaining, slot.Matches)
		if idx < 0 {
			idx = indexOf(remaining, slot.MatchesOwner)
		}
		if idx < 0 {
			out = append(out, "", "")
			continue
		}
		entry := remaining[idx]
		remaining = append(remaining[:idx], remaining[idx+1:]...)
		out = append(out, entry.Name, entry.Score.String())
	}
	return out
}

func indexOf(entries []tagtypes.Entry, match func(tagtypes.Entry) bool) int {
	for i, e := range entries {
		if match(e) {
			return i
		}
	}
	return -1
}

// selection validates types and drops duplicates, keeping first occurrences.
func selection(types []tagtypes.Type) ([]tagtypes.Type, error) {
	if len(types) == 0 {
		return nil, services.Wrap(services.ErrValidation, "flatten", "", "no tag types requested", nil)
	}
	seen := make(map[tagtypes.Type]struct{}, len(types))
	out := make([]tagtypes.Type, 0, len(types))
	for _, t := range types {
		if !t.Valid() {
			return nil, services.Wrap(services.ErrValidation, "flatten", "", fmt.Sprintf("%q is not a valid tag type", t), nil)
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}
