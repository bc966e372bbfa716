package model

import "time"

// Book is a read-only snapshot of one catalog record.
type Book struct {
	ID           int               `json:"id"`
	Title        string            `json:"title"`
	SortTitle    string            `json:"sort"`
	Authors      []string          `json:"authors"`
	AuthorSort   string            `json:"author_sort"`
	Tags         []string          `json:"tags,omitempty"`
	Series       string            `json:"series,omitempty"`
	SeriesIndex  float64           `json:"series_index"`
	Publisher    string            `json:"publisher,omitempty"`
	Rating       int               `json:"rating,omitempty"`
	Languages    []string          `json:"languages,omitempty"`
	Identifiers  map[string]string `json:"identifiers,omitempty"`
	Comments     string            `json:"comments,omitempty"`
	Formats      []string          `json:"formats,omitempty"`
	Path         string            `json:"path"`
	Size         int64             `json:"size"`
	UUID         string            `json:"uuid"`
	TimeStamp    time.Time         `json:"timestamp"`
	PublishDate  time.Time         `json:"pubdate"`
	LastModified time.Time         `json:"last_modified"`
	// Custom holds user defined columns keyed by "#label".
	Custom map[string]any `json:"custom,omitempty"`
}
