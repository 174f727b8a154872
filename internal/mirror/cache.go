package mirror

import (
	"sort"
	"sync"

	"warden/pkg/metrics"
	"warden/pkg/models"
)

// Cache is the reconciled in-memory copy of one owner's rules, split into two
// partitions: main holds every status except in_progress, which lives in its
// own partition. An id is present in at most one partition at a time.
//
// Writers are expected to be serialized by the owning Service; the internal
// lock only protects concurrent readers taking snapshots against a writer.
type Cache struct {
	ownerID string

	mu         sync.RWMutex
	main       map[string]models.Rule
	inProgress map[string]models.Rule
}

// Snapshot is a point-in-time copy of both partitions. Mutating it has no
// effect on the cache.
type Snapshot struct {
	Main       []models.Rule
	InProgress []models.Rule
}

// Get looks an id up across both partitions of the snapshot.
func (s Snapshot) Get(id string) (models.Rule, bool) {
	for _, rule := range s.Main {
		if rule.ID == id {
			return rule, true
		}
	}
	for _, rule := range s.InProgress {
		if rule.ID == id {
			return rule, true
		}
	}
	return models.Rule{}, false
}

func NewCache(ownerID string) *Cache {
	return &Cache{
		ownerID:    ownerID,
		main:       make(map[string]models.Rule),
		inProgress: make(map[string]models.Rule),
	}
}

// Upsert applies an insert or update event. The copy with the strictly newer
// UpdatedAt wins; on a tie the arriving copy wins, so redelivery of the
// current state is a no-op in effect but deterministic under reordering.
// Returns whether the cache changed.
func (c *Cache) Upsert(rule models.Rule) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.lookup(rule.ID)
	if ok && rule.UpdatedAt.Before(existing.UpdatedAt) {
		return false
	}

	// Remove from both partitions before placing, so a status change across
	// the partition boundary moves the rule in the same operation.
	delete(c.main, rule.ID)
	delete(c.inProgress, rule.ID)

	c.partitionFor(rule)[rule.ID] = rule
	c.publishGauges()
	return true
}

// Delete removes the rule from whichever partition holds it. Unknown ids are
// a no-op.
func (c *Cache) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.main[id]; ok {
		delete(c.main, id)
		c.publishGauges()
		return true
	}
	if _, ok := c.inProgress[id]; ok {
		delete(c.inProgress, id)
		c.publishGauges()
		return true
	}
	return false
}

// Replace discards the current contents and rebuilds both partitions from the
// authoritative list. Duplicated ids in the input resolve by UpdatedAt, same
// as Upsert.
func (c *Cache) Replace(rules []models.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.main = make(map[string]models.Rule, len(rules))
	c.inProgress = make(map[string]models.Rule)

	for _, rule := range rules {
		if existing, ok := c.lookup(rule.ID); ok && rule.UpdatedAt.Before(existing.UpdatedAt) {
			continue
		}
		delete(c.main, rule.ID)
		delete(c.inProgress, rule.ID)
		c.partitionFor(rule)[rule.ID] = rule
	}

	c.publishGauges()
}

// Get returns the live copy of a rule from whichever partition holds it.
func (c *Cache) Get(id string) (models.Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lookup(id)
}

// Snapshot returns a consistent copy of both partitions, ordered newest
// first with id as tiebreaker so output is deterministic.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Main:       sortedValues(c.main),
		InProgress: sortedValues(c.inProgress),
	}
}

// Len reports the sizes of the main and in-progress partitions.
func (c *Cache) Len() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.main), len(c.inProgress)
}

func (c *Cache) lookup(id string) (models.Rule, bool) {
	if rule, ok := c.main[id]; ok {
		return rule, true
	}
	rule, ok := c.inProgress[id]
	return rule, ok
}

func (c *Cache) partitionFor(rule models.Rule) map[string]models.Rule {
	if rule.InProgress() {
		return c.inProgress
	}
	return c.main
}

func (c *Cache) publishGauges() {
	metrics.SetMirrorRules(c.ownerID, "main", len(c.main))
	metrics.SetMirrorRules(c.ownerID, "in_progress", len(c.inProgress))
}

func sortedValues(partition map[string]models.Rule) []models.Rule {
	out := make([]models.Rule, 0, len(partition))
	for _, rule := range partition {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
