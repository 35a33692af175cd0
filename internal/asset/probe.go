package asset

import (
	"errors"
	"fmt"
	"os"

	"github.com/dhowden/tag"

	"audiotagger/internal/services"
)

// Metadata is the embedded tag information of a local audio file.
type Metadata struct {
	Title    string
	Artist   string
	Album    string
	Genre    string
	Year     int
	Format   string
	FileType string
}

// Probe reads embedded metadata from a local asset. Remote references report
// ok=false. Files without a recognised tag block yield empty metadata.
func Probe(ref Reference) (Metadata, bool, error) {
	if !ref.IsLocal() {
		return Metadata{}, false, nil
	}
	f, err := os.Open(ref.Location())
	if err != nil {
		return Metadata{}, true, services.Wrap(services.ErrLocalResource, "probe", "open file", ref.Location(), err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return Metadata{}, true, nil
		}
		return Metadata{}, true, fmt.Errorf("probe %s: %w", ref.Location(), err)
	}
	return Metadata{
		Title:    m.Title(),
		Artist:   m.Artist(),
		Album:    m.Album(),
		Genre:    m.Genre(),
		Year:     m.Year(),
		Format:   string(m.Format()),
		FileType: string(m.FileType()),
	}, true, nil
}
