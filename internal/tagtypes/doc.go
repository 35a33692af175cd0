// Package tagtypes holds the closed catalogue of tag categories the analysis
// service understands and the static shape each contributes to an export row.
//
// The catalogue maps every Type to an ordered list of Field specs; repeat
// counts describe how many scored values a category can yield (GENRE V2
// returns up to four genres). Slots expands a requested selection into the
// flat column order used by the flattener. Parse and ParseList validate user
// input up front so bad selections fail before any network traffic.
package tagtypes
