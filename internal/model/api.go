package model

// SuggestRequest represents the request parameters for city search
type SuggestRequest struct {
	Query string
	Limit int
}

// SuggestResponse represents the response for city search
type SuggestResponse struct {
	Query   string `json:"query"`
	Results []City `json:"results"`
}

// FavoritesResponse represents the current favorite set
type FavoritesResponse struct {
	Cities []City `json:"cities"`
	Count  int    `json:"count"`
}

// FavoriteStatusResponse represents the membership of a single city
type FavoriteStatusResponse struct {
	City     City `json:"city"`
	Favorite bool `json:"favorite"`
}

// LiveMessage is a client message on the live search socket
type LiveMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	ID   int    `json:"id,omitempty"`
}

// LiveEvent is a server message on the live search socket
type LiveEvent struct {
	Type   string      `json:"type"`
	State  *QueryState `json:"state,omitempty"`
	Cities []City      `json:"cities,omitempty"`
	Error  string      `json:"error,omitempty"`
}
