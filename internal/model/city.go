package model

// City represents a city in the catalog
type City struct {
	ID      int     `json:"id" db:"id"`
	Name    string  `json:"name" db:"name"`
	Country string  `json:"country" db:"country"`
	Lat     float64 `json:"lat" db:"lat"`
	Lon     float64 `json:"lon" db:"lon"`
}

// Same reports whether c and other are the same city.
// Only the ID is part of a city's identity.
func (c City) Same(other City) bool {
	return c.ID == other.ID
}

// Coordinate represents geographic coordinates
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CatalogRecord is a single entry of the raw city list.
// Older city lists carry the identifier as "_id".
type CatalogRecord struct {
	ID       *int        `json:"id"`
	LegacyID *int        `json:"_id"`
	Name     string      `json:"name"`
	Country  string      `json:"country"`
	Coord    *Coordinate `json:"coord"`
}

// FavoriteRecord is the persisted form of a favorite city
type FavoriteRecord struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	ID        int     `json:"id"`
}

// NewFavoriteRecord converts a city into its persisted form
func NewFavoriteRecord(c City) FavoriteRecord {
	return FavoriteRecord{
		Name:      c.Name,
		Country:   c.Country,
		Latitude:  c.Lat,
		Longitude: c.Lon,
		ID:        c.ID,
	}
}

// City converts the record back into a City
func (r FavoriteRecord) City() City {
	return City{
		ID:      r.ID,
		Name:    r.Name,
		Country: r.Country,
		Lat:     r.Latitude,
		Lon:     r.Longitude,
	}
}
