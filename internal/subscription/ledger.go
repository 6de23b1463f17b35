// Package subscription tracks in-flight dataset subscriptions this
// assigner instance has issued, to short-circuit the duplicate-suppression
// check of spec.md §4.5 step 2 before ever calling out to DDM.
package subscription

import (
	"sync"
	"time"

	"github.com/gridassign/gridassign/internal/model"
)

// orderKey identifies one (dataset, owner) duplicate-suppression slot.
// Per spec.md §4.5 step 2's policy ("at most one in-flight subscription
// per (identity, dataset)"), the cloud is not part of the key: once an
// identity has an order in flight for a dataset to any cloud, a second
// order for that same dataset is suppressed regardless of destination.
type orderKey struct {
	dataset string
	owner   string
}

// Ledger is a process-local, lock-protected record of SubscriptionOrders
// this instance has issued and not yet seen age out. It complements, but
// never replaces, the DDM listSubscriptions() check: per spec.md §9 the
// DDM "already exists" response remains the authoritative deduplicator
// against a TOCTOU race with other assigner instances.
type Ledger struct {
	mu      sync.Mutex
	orders  map[orderKey]model.SubscriptionOrder
	maxAge  time.Duration
	nowFunc func() time.Time
}

// NewLedger returns an empty Ledger. Orders older than maxAge are treated
// as expired by Lookup so a long-since-completed subscription doesn't
// suppress a legitimate new one forever.
func NewLedger(maxAge time.Duration) *Ledger {
	return &Ledger{
		orders:  make(map[orderKey]model.SubscriptionOrder),
		maxAge:  maxAge,
		nowFunc: time.Now,
	}
}

// Lookup reports whether owner already has a live in-flight order for
// dataset, per this instance's local record.
func (l *Ledger) Lookup(dataset, owner string) (model.SubscriptionOrder, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.orders[orderKey{dataset: dataset, owner: owner}]
	if !ok {
		return model.SubscriptionOrder{}, false
	}
	if l.maxAge > 0 && l.nowFunc().UnixNano()-order.CreatedAtNs > int64(l.maxAge) {
		delete(l.orders, orderKey{dataset: dataset, owner: owner})
		return model.SubscriptionOrder{}, false
	}
	return order, true
}

// Record stores a newly issued order, overwriting any prior record for the
// same (dataset, owner).
func (l *Ledger) Record(order model.SubscriptionOrder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders[orderKey{dataset: order.Dataset, owner: order.OwnerDN}] = order
}

// Forget drops a ledger entry, e.g. once the caller confirms the
// replication completed and the dataset is no longer pending.
func (l *Ledger) Forget(dataset, owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.orders, orderKey{dataset: dataset, owner: owner})
}

// CanonicalizeDN strips the trailing proxy-certificate annotations a grid
// identity commonly carries, per spec.md §4.5 step 2: "canonicalised:
// strip trailing /CN=proxy repetitions and any /CN=limited proxy".
func CanonicalizeDN(dn string) string {
	const (
		proxySuffix        = "/CN=proxy"
		limitedProxySuffix = "/CN=limited proxy"
	)
	for {
		switch {
		case hasSuffixFold(dn, limitedProxySuffix):
			dn = dn[:len(dn)-len(limitedProxySuffix)]
		case hasSuffixFold(dn, proxySuffix):
			dn = dn[:len(dn)-len(proxySuffix)]
		default:
			return dn
		}
	}
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	return equalFold(tail, suffix)
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
