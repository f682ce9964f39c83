package favorites

import (
	"encoding/json"

	"github.com/alexivanou/citysearch/internal/model"
)

func encode(cities []model.City) ([]byte, error) {
	records := make([]model.FavoriteRecord, len(cities))
	for i, c := range cities {
		records[i] = model.NewFavoriteRecord(c)
	}
	return json.Marshal(records)
}

// decode keeps the first occurrence of each id
func decode(data []byte) ([]model.City, error) {
	var records []model.FavoriteRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(records))
	cities := make([]model.City, 0, len(records))
	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		cities = append(cities, r.City())
	}
	return cities, nil
}
