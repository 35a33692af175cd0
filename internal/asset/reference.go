package asset

import (
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind identifies how an asset is submitted to the analysis service.
type Kind int

const (
	KindLocalFile Kind = iota
	KindAudioURL
	KindVideoURL
)

func (k Kind) String() string {
	switch k {
	case KindLocalFile:
		return "local_file"
	case KindAudioURL:
		return "audio_link"
	case KindVideoURL:
		return "youtube_link"
	default:
		return "unknown"
	}
}

const fileScheme = "file://"

// Reference identifies one submission target. The zero value is not valid;
// build references with LocalFile, AudioURL, VideoURL, or Classify.
type Reference struct {
	kind     Kind
	location string
	raw      string
}

// LocalFile references an audio file on disk.
func LocalFile(path string) Reference {
	return Reference{kind: KindLocalFile, location: path, raw: fileScheme + path}
}

// AudioURL references a directly downloadable audio link.
func AudioURL(link string) Reference {
	return Reference{kind: KindAudioURL, location: link, raw: link}
}

// VideoURL references a video platform page the service extracts audio from.
func VideoURL(link string) Reference {
	return Reference{kind: KindVideoURL, location: link, raw: link}
}

// Classify turns one input line into a reference. file:// entries and
// scheme-less entries are local paths; links mentioning youtube (or the
// youtu.be short host) are video links; any other URL is an audio link.
func Classify(raw string) Reference {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, fileScheme) {
		return Reference{kind: KindLocalFile, location: strings.TrimPrefix(trimmed, fileScheme), raw: trimmed}
	}
	if !strings.Contains(trimmed, "://") {
		return Reference{kind: KindLocalFile, location: trimmed, raw: trimmed}
	}
	if isVideoPlatform(trimmed) {
		return VideoURL(trimmed)
	}
	return AudioURL(trimmed)
}

func isVideoPlatform(link string) bool {
	if strings.Contains(strings.ToLower(link), "youtube") {
		return true
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "youtu.be" || strings.HasSuffix(host, ".youtu.be")
}

// Kind returns the submission variant.
func (r Reference) Kind() Kind { return r.kind }

// Location is the filesystem path for local files and the link otherwise.
func (r Reference) Location() string { return r.location }

// String returns the identifier as it was supplied; failure logs use it.
func (r Reference) String() string { return r.raw }

// IsLocal reports whether the asset is read from disk.
func (r Reference) IsLocal() bool { return r.kind == KindLocalFile }

// SourceName is the name stored alongside extracted tags: the NFC-normalized
// basename for local files, the link verbatim otherwise.
func (r Reference) SourceName() string {
	if r.kind != KindLocalFile {
		return r.raw
	}
	return norm.NFC.String(filepath.Base(r.location))
}
