package chat

import "sync/atomic"

// SaveStats is a snapshot of SaveMessages counters since startup.
type SaveStats struct {
	Batches       int64 `json:"batches"`
	Inserted      int64 `json:"inserted"`
	Duplicates    int64 `json:"duplicates"`
	InvalidRoles  int64 `json:"invalid_roles"`
	Failures      int64 `json:"failures"`
	TitlesSet     int64 `json:"titles_set"`
	TitleFailures int64 `json:"title_failures"`
}

type saveCounters struct {
	batches       atomic.Int64
	inserted      atomic.Int64
	duplicates    atomic.Int64
	invalidRoles  atomic.Int64
	failures      atomic.Int64
	titlesSet     atomic.Int64
	titleFailures atomic.Int64
}

func (c *saveCounters) recordResult(result *SaveResult) {
	c.batches.Add(1)
	c.inserted.Add(int64(len(result.Inserted)))
	c.duplicates.Add(int64(result.Duplicates))
	c.invalidRoles.Add(int64(result.InvalidRoles))
}

func (c *saveCounters) snapshot() SaveStats {
	return SaveStats{
		Batches:       c.batches.Load(),
		Inserted:      c.inserted.Load(),
		Duplicates:    c.duplicates.Load(),
		InvalidRoles:  c.invalidRoles.Load(),
		Failures:      c.failures.Load(),
		TitlesSet:     c.titlesSet.Load(),
		TitleFailures: c.titleFailures.Load(),
	}
}
