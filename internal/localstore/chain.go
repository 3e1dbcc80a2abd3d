package localstore

// Chain is a priority-ordered list of keys for one logical value.
//
// Profile prefill, last-purchase snapshots, and loyalty counters are
// stored redundantly under several identity keys (backend user ID,
// auth UID, global fallback) so that future sessions can read the
// value before authentication resolves. Reads take the first present
// key; writes go to every key. Call sites never special-case the
// fallback order themselves.
type Chain struct {
	store *Store
	keys  []string
}

// NewChain builds a chain over keys in priority order.
// Empty keys (an identity that has not resolved yet) are skipped.
func NewChain(store *Store, keys ...string) Chain {
	kept := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			kept = append(kept, k)
		}
	}
	return Chain{store: store, keys: kept}
}

// Keys returns the chain's keys in priority order.
func (c Chain) Keys() []string {
	return c.keys
}

// ReadFirst decodes the first present key into v.
// Returns the key that was hit and whether any key held a value.
func (c Chain) ReadFirst(v any) (string, bool) {
	for _, k := range c.keys {
		if c.store.Get(k, v) {
			return k, true
		}
	}
	return "", false
}

// WriteAll stores v under every key in the chain. Individual write
// failures are logged and skipped; the remaining keys still get the
// value.
func (c Chain) WriteAll(v any) {
	for _, k := range c.keys {
		c.store.PutLogged(k, v)
	}
}

// DeleteAll removes every key in the chain.
func (c Chain) DeleteAll() {
	for _, k := range c.keys {
		c.store.Delete(k)
	}
}
