// Package retry wraps fallible operations with bounded exponential backoff.
//
// Policy mirrors the backoff the analysis service expects from clients: up to
// five attempts, waits doubling from a two second multiplier, floored at four
// seconds and capped at one minute. Retry classification is pluggable;
// UnlessLocalResource excludes failures tagged services.ErrLocalResource
// because re-reading a missing or unreadable file cannot help.
//
// Exhausted retries surface the last error untouched. Tests inject Sleep to
// keep the suite fast.
package retry
