// Package model defines the data structures shared across the application.
package model

// Profile holds a user's identity and display attributes. All fields except
// Username are optional; empty strings mean "not set" rather than nullable
// pointers, which keeps them safe to render directly.
type Profile struct {
	Username      string `json:"username"`                // GitHub login, e.g. "sakif"
	Name          string `json:"name,omitempty"`          // display name (may be empty)
	AvatarURL     string `json:"avatarUrl,omitempty"`     // remote URL or data URI after embedding
	Bio           string `json:"bio,omitempty"`           // short biography
	Pronouns      string `json:"pronouns,omitempty"`      // e.g. "they/them"
	TwitterHandle string `json:"twitterHandle,omitempty"` // secondary handle (no leading @)
}

// Stats holds the aggregated counters for one user. All counters are sums over
// paginated upstream data and are never negative.
type Stats struct {
	Stars        int `json:"stars"`        // total stars across owned repos
	Repos        int `json:"repos"`        // owned, non-fork repo count
	PullRequests int `json:"pullRequests"` // open + closed + merged
	Issues       int `json:"issues"`       // open + closed
	Commits      int `json:"commits"`      // commit contributions this calendar year
}

// LanguageStat is one language's accumulated byte size and display color.
type LanguageStat struct {
	Name  string `json:"name"`
	Size  int    `json:"size"`  // bytes, accumulated across all repos
	Color string `json:"color"` // hex string, e.g. "#00ADD8"
}

// Snapshot is the unit of caching: the fully aggregated result of one upstream
// fetch. It is immutable once built — cache layers hand out the same value to
// every caller, so nothing may mutate it after construction.
type Snapshot struct {
	Profile   Profile        `json:"profile"`
	Stats     Stats          `json:"stats"`
	Languages []LanguageStat `json:"languages,omitempty"` // sorted by size desc, top 5
}
