package models

// CitationRecord is one literature-search result surfaced alongside the
// conversation. ID is the deduplication key: the provider identifier when the
// backend supplies one, otherwise a synthesized key. All other fields are
// optional and stay empty when the payload omits them.
type CitationRecord struct {
	ID       string   `json:"id"`
	Title    string   `json:"title,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
	Source   string   `json:"source,omitempty"`
	URL      string   `json:"url,omitempty"`
	Score    float64  `json:"score,omitempty"`
}
