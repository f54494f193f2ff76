package cache

// Policy configures retention of query slots.
type Policy struct {
	// MaxInactive is the number of query slots without subscribers kept
	// before the least recently used one is evicted.
	// If zero, inactive slots are kept until PruneInactive or Reset.
	MaxInactive int `toml:"max_inactive"`
}

// DefaultPolicy returns the default retention policy.
// MaxInactive: 256
func DefaultPolicy() Policy {
	return Policy{MaxInactive: 256}
}

// UnboundedPolicy returns a policy that never evicts on its own.
func UnboundedPolicy() Policy {
	return Policy{}
}

// Bounded returns true if inactive slots are evicted automatically.
func (p Policy) Bounded() bool {
	return p.MaxInactive > 0
}
