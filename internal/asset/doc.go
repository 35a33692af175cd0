// Package asset models the audio items submitted for analysis.
//
// A Reference is a closed union of local file, audio link, and video platform
// link; Classify decides the variant from one line of input. Discover builds
// the asset list from either a directory (walked recursively for .mp3, .wav,
// and .m4a files) or a CSV listing paths and links in its first column. Probe
// reads embedded metadata from local files for the `assets` command.
package asset
