// Package analysis provides the REST client for the audio analysis service.
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.SubmitAsset: upload a local file (multipart "audio" field) or post a
// link to the audio-link or youtube-link endpoint; returns the asset handle.
// Client.ExtractTags: request tag types for a handle; returns scored entries
// in service order.
//
// # Retry Behaviour
//
// Both calls run under retry.Policy (five attempts, exponential backoff from
// four seconds capped at one minute by default). Submit never retries local
// file open failures. Exhausted retries return the last error unchanged, so
// callers still see *RemoteError with the status code and service message.
//
// # Test Mode
//
// The sandbox endpoint (TestBaseURL) is shared; Config.RatePerSecond paces
// requests through a token bucket when set.
package analysis
