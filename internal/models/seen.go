package models

import "time"

// ScanResult is a classifier verdict for one post.
type ScanResult struct {
	IsSpam  bool
	Reasons []string
	Why     string
}

// CompareInfo is what the seen-post store reports when a freshly fetched
// post is compared against the last state it saw for the same id.
type CompareInfo struct {
	// IsOlderOrUnchanged means the stored copy is at least as recent as the
	// fetched one and its content matches; no scan is needed this round.
	IsOlderOrUnchanged bool
	// PreviousReasons holds the reasons from the last recorded scan, used
	// to suppress re-reports when a rescan finds nothing new.
	PreviousReasons []string
	PreviouslySpam  bool
}

// SeenPost is one row in the seen-post store.
type SeenPost struct {
	Site      string
	PostID    int
	IsAnswer  bool
	BodyText  string
	Edited    bool
	IsSpam    bool
	Reasons   []string
	Why       string
	FetchedAt time.Time
}
