package core

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the static set of genres the roulette draws from.
type Catalog struct {
	genres []Genre
}

type catalogFile struct {
	Genres []Genre `yaml:"genres"`
}

// LoadCatalog reads the genre catalog from a YAML file. The catalog must be
// non-empty and genre names must be unique.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genre catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse genre catalog: %w", err)
	}

	return NewCatalog(file.Genres)
}

// NewCatalog builds a catalog from the given genres, validating them.
func NewCatalog(genres []Genre) (*Catalog, error) {
	if len(genres) == 0 {
		return nil, fmt.Errorf("genre catalog is empty")
	}

	seen := make(map[string]struct{}, len(genres))
	for _, genre := range genres {
		if genre.Name == "" {
			return nil, fmt.Errorf("genre with empty name in catalog")
		}
		if genre.PlaylistID == "" {
			return nil, fmt.Errorf("genre %q has no playlist", genre.Name)
		}
		if _, dup := seen[genre.Name]; dup {
			return nil, fmt.Errorf("duplicate genre %q in catalog", genre.Name)
		}
		seen[genre.Name] = struct{}{}
	}

	out := make([]Genre, len(genres))
	copy(out, genres)
	return &Catalog{genres: out}, nil
}

// Len returns the number of genres in the catalog.
func (c *Catalog) Len() int {
	return len(c.genres)
}

// Genres returns a copy of the catalog entries.
func (c *Catalog) Genres() []Genre {
	out := make([]Genre, len(c.genres))
	copy(out, c.genres)
	return out
}

// Pick draws a uniformly random genre. With two or more entries it redraws
// until the name differs from previousName; with a single entry the
// no-repeat rule cannot hold and is skipped.
func (c *Catalog) Pick(rng *rand.Rand, previousName string) Genre {
	if len(c.genres) < 2 {
		return c.genres[0]
	}

	for {
		genre := c.genres[rng.Intn(len(c.genres))]
		if genre.Name != previousName {
			return genre
		}
	}
}
