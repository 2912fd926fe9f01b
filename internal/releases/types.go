package releases

import "time"

// channelIndex is the wire form of one channel's release index:
// GET <base_url>/<channel>.json
type channelIndex struct {
	Packages []indexEntry `json:"packages"`
}

type indexEntry struct {
	Name    string    `json:"name"`
	Version string    `json:"version"`
	Date    time.Time `json:"date"`
	URL     string    `json:"url"`
	Variant string    `json:"variant,omitempty"`
}
