// Package pipeline drives assets through the analysis service.
//
// Processor handles a single asset: submit, extract, persist. Every call
// yields exactly one Outcome carrying either a stored result record or a
// failure record; it never returns an error. Runner fans a reference list
// out to a bounded worker pool, funnels outcomes through one collector
// goroutine that appends failures to the shared log and notifies observers,
// and returns a Summary once every dispatched asset has finished.
package pipeline
