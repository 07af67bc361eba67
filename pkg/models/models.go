// Package models holds the shared data types for scraped entities.
package models

import "time"

// Entity is one cat adoption profile and its associated images.
type Entity struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Details   map[string]string `json:"details,omitempty"`
	Images    []ImageRef        `json:"images"`
	ScrapedAt time.Time         `json:"scraped_at"`
}

// ImageRef is one image candidate discovered on a profile page. LocalPath
// is filled in once the image has been downloaded.
type ImageRef struct {
	URL       string `json:"url"`
	Alt       string `json:"alt,omitempty"`
	Title     string `json:"title,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
}
