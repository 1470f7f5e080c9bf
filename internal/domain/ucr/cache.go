package ucr

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ruleSet is the immutable, ordered rule list of one organization
type ruleSet struct {
	rules    []Rule
	active   int
	loadedAt time.Time
}

func newRuleSet(rules []Rule, now time.Time) *ruleSet {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sortRules(sorted)
	set := &ruleSet{rules: sorted, loadedAt: now}
	for _, r := range sorted {
		if r.Active && !r.IsMalformed() {
			set.active++
		}
	}
	return set
}

// sortRules orders by descending priority, then ascending id
func sortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID.String() < rules[j].ID.String()
	})
}

// RuleCache holds per-organization rule sets. Readers never lock; writers
// publish a fresh map so a reader always sees a complete snapshot.
type RuleCache struct {
	mu   sync.Mutex
	sets atomic.Pointer[map[uuid.UUID]*ruleSet]
	ttl  time.Duration
}

// NewRuleCache creates a cache whose entries expire after ttl. A zero ttl never expires.
func NewRuleCache(ttl time.Duration) *RuleCache {
	c := &RuleCache{ttl: ttl}
	empty := map[uuid.UUID]*ruleSet{}
	c.sets.Store(&empty)
	return c
}

func (c *RuleCache) get(orgID uuid.UUID, now time.Time) (*ruleSet, bool) {
	set, ok := (*c.sets.Load())[orgID]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && now.Sub(set.loadedAt) >= c.ttl {
		return nil, false
	}
	return set, true
}

func (c *RuleCache) put(orgID uuid.UUID, set *ruleSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := *c.sets.Load()
	next := make(map[uuid.UUID]*ruleSet, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[orgID] = set
	c.sets.Store(&next)
}

// Invalidate drops the cached rules of an organization
func (c *RuleCache) Invalidate(orgID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := *c.sets.Load()
	if _, ok := cur[orgID]; !ok {
		return
	}
	next := make(map[uuid.UUID]*ruleSet, len(cur))
	for k, v := range cur {
		if k != orgID {
			next[k] = v
		}
	}
	c.sets.Store(&next)
}

// ActiveCounts returns the number of active, well-formed rules per cached organization
func (c *RuleCache) ActiveCounts() map[uuid.UUID]int {
	cur := *c.sets.Load()
	out := make(map[uuid.UUID]int, len(cur))
	for k, v := range cur {
		out[k] = v.active
	}
	return out
}
