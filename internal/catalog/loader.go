package catalog

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexivanou/citysearch/internal/model"
)

var (
	ErrNotFound    = errors.New("catalog source not found")
	ErrDecode      = errors.New("failed to decode catalog")
	ErrDuplicateID = errors.New("duplicate city id in catalog")
)

// Load reads the city catalog from a .json file or from the first .json
// entry of a .zip archive. The whole load fails on the first bad record.
func Load(path string) ([]model.City, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return loadFromZip(path)
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	return Parse(file)
}

func loadFromZip(zipPath string) ([]model.City, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, zipPath)
		}
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".json") {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open file in zip: %w", err)
			}
			defer rc.Close()
			return Parse(rc)
		}
	}

	return nil, fmt.Errorf("%w: no json file in %s", ErrNotFound, zipPath)
}

// Parse decodes a JSON array of catalog records
func Parse(reader io.Reader) ([]model.City, error) {
	dec := json.NewDecoder(reader)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("%w: expected array, got %v", ErrDecode, tok)
	}

	var cities []model.City
	seen := make(map[int]bool)

	for i := 0; dec.More(); i++ {
		var rec model.CatalogRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrDecode, i, err)
		}

		city, err := toCity(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrDecode, i, err)
		}
		if seen[city.ID] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, city.ID)
		}
		seen[city.ID] = true
		cities = append(cities, city)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return cities, nil
}

func toCity(rec model.CatalogRecord) (model.City, error) {
	id := rec.ID
	if id == nil {
		id = rec.LegacyID
	}
	if id == nil {
		return model.City{}, errors.New("missing id")
	}
	if rec.Name == "" {
		return model.City{}, errors.New("missing name")
	}
	if rec.Coord == nil {
		return model.City{}, errors.New("missing coord")
	}

	return model.City{
		ID:      *id,
		Name:    rec.Name,
		Country: rec.Country,
		Lat:     rec.Coord.Lat,
		Lon:     rec.Coord.Lon,
	}, nil
}

// CreateCityIDMap indexes cities by id
func CreateCityIDMap(cities []model.City) map[int]model.City {
	ids := make(map[int]model.City, len(cities))
	for _, c := range cities {
		ids[c.ID] = c
	}
	return ids
}
