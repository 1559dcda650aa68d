package seat

import (
	"fmt"

	"github.com/emirpasic/gods/maps/hashmap"
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
	"go.uber.org/zap"

	"github.com/cgreenhalgh/timed-ticket-server/ticket"
)

// wildcardKey orders the overflow sequence by ascending ticket
// duration, label as tie-break. The long end of the tree is the
// eviction end: longest-duration holders are shed first so short
// sessions survive overflow.
type wildcardKey struct {
	durationSeconds float64
	label           string
}

func wildcardComparator(a, b interface{}) int {
	ka, kb := a.(wildcardKey), b.(wildcardKey)
	switch {
	case ka.durationSeconds < kb.durationSeconds:
		return -1
	case ka.durationSeconds > kb.durationSeconds:
		return 1
	}
	return utils.StringComparator(ka.label, kb.label)
}

// Registry is the single piece of mutable shared seat state. It is not
// goroutine safe on its own; the authenticator serializes every
// operation, including timer firings, behind one lock.
type Registry struct {
	maxSeats         int
	maxWildcardSeats int

	// Numbered seats. Key value: seat label -> *Assignment.
	numbered *hashmap.Map

	// Wildcard seats in eviction order. Key value: wildcardKey ->
	// *Assignment. A hashmap alongside for label lookup.
	wildcards        *redblacktree.Tree
	wildcardsByLabel *hashmap.Map

	// Per-label epoch, bumped on every occupancy change. An expiry
	// monitor captures the epoch it was armed under and no-ops if it
	// has advanced since.
	epochs *hashmap.Map

	nextWildcard uint64

	logger *zap.SugaredLogger
}

func NewRegistry(maxSeats, maxWildcardSeats int, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		maxSeats:         maxSeats,
		maxWildcardSeats: maxWildcardSeats,
		numbered:         hashmap.New(),
		wildcards:        redblacktree.NewWith(wildcardComparator),
		wildcardsByLabel: hashmap.New(),
		epochs:           hashmap.New(),
		nextWildcard:     1,
		logger:           logger,
	}
}

// Epoch returns the current epoch for a seat label. 0 means the label
// has never been occupied.
func (r *Registry) Epoch(label string) uint64 {
	if value, ok := r.epochs.Get(label); ok {
		return value.(uint64)
	}
	return 0
}

func (r *Registry) bumpEpoch(label string) uint64 {
	epoch := r.Epoch(label) + 1
	r.epochs.Put(label, epoch)
	return epoch
}

// NumberedCount returns the number of occupied numbered seats.
func (r *Registry) NumberedCount() int {
	return r.numbered.Size()
}

// WildcardCount returns the number of occupied wildcard seats.
func (r *Registry) WildcardCount() int {
	return r.wildcards.Size()
}

// Holder returns the current assignment for a label, numbered or
// wildcard, or nil.
func (r *Registry) Holder(label string) *Assignment {
	if value, ok := r.numbered.Get(label); ok {
		return value.(*Assignment)
	}
	if value, ok := r.wildcardsByLabel.Get(label); ok {
		return value.(*Assignment)
	}
	return nil
}

// WildcardAssignments returns the wildcard seats in ascending duration
// order.
func (r *Registry) WildcardAssignments() []*Assignment {
	out := make([]*Assignment, 0, r.wildcards.Size())
	it := r.wildcards.Iterator()
	for it.Next() {
		out = append(out, it.Value().(*Assignment))
	}
	return out
}

// AssignNumbered claims a specific seat label. An unoccupied label is
// taken outright. An occupied one follows the precedence rule: the
// incoming claim is rejected if the current holder's ticket has a
// strictly shorter duration, otherwise the holder is evicted and the
// seat reassigned. Numbered seats are never rejected for capacity;
// over-issuing tickets past maxSeats is an administrative choice, not
// one the registry second-guesses.
func (r *Registry) AssignNumbered(label string, t *ticket.Ticket, conn Conn) Result {
	assigned := &Assignment{Seat: label, Ticket: t, Conn: conn}

	value, ok := r.numbered.Get(label)
	if !ok {
		r.numbered.Put(label, assigned)
		r.bumpEpoch(label)
		r.logger.Infof("assigned new seat[%v] to conn[%v]", label, conn.ID())
		return Result{Assigned: assigned}
	}

	holder := value.(*Assignment)
	if holder.Ticket.DurationSeconds < t.DurationSeconds {
		r.logger.Infof("seat[%v] held by shorter ticket, rejecting conn[%v]", label, conn.ID())
		return Result{Reason: ReasonSeatInUse}
	}

	r.numbered.Put(label, assigned)
	r.bumpEpoch(label)
	r.logger.Infof("reassigned seat[%v] to conn[%v], evicting conn[%v]", label, conn.ID(), holder.Conn.ID())
	return Result{Assigned: assigned, Evicted: holder}
}

// AssignWildcard allocates a fresh overflow seat. When combined or
// wildcard occupancy is at its cap, one wildcard holder with a longer
// ticket than the incoming one may be shed to make room; if capacity
// is still exhausted after that, the claim is rejected.
func (r *Registry) AssignWildcard(t *ticket.Ticket, conn Conn) Result {
	var evicted *Assignment
	if r.atCapacity() {
		evicted = r.evictLongerThan(t.DurationSeconds)
	}
	if r.atCapacity() {
		r.logger.Infof("no wildcard space for conn[%v]", conn.ID())
		return Result{Evicted: evicted, Reason: ReasonNoSpace}
	}

	label := fmt.Sprintf("%s%d", ticket.Wildcard, r.nextWildcard)
	r.nextWildcard++

	assigned := &Assignment{Seat: label, Wildcard: true, Ticket: t, Conn: conn}
	r.wildcards.Put(wildcardKey{t.DurationSeconds, label}, assigned)
	r.wildcardsByLabel.Put(label, assigned)
	r.bumpEpoch(label)
	r.logger.Infof("assigned wildcard seat[%v] to conn[%v]", label, conn.ID())
	return Result{Assigned: assigned, Evicted: evicted}
}

func (r *Registry) atCapacity() bool {
	return r.numbered.Size()+r.wildcards.Size() >= r.maxSeats ||
		r.wildcards.Size() >= r.maxWildcardSeats
}

// evictLongerThan sheds the longest-duration wildcard holder, but only
// if its ticket is strictly longer than durationSeconds. Returns the
// evicted assignment or nil.
func (r *Registry) evictLongerThan(durationSeconds float64) *Assignment {
	node := r.wildcards.Right()
	if node == nil {
		return nil
	}
	longest := node.Value.(*Assignment)
	if longest.Ticket.DurationSeconds <= durationSeconds {
		return nil
	}
	r.removeWildcard(longest)
	r.logger.Infof("evicted wildcard seat[%v] (duration %v > %v)", longest.Seat, longest.Ticket.DurationSeconds, durationSeconds)
	return longest
}

// EvictWildcards removes up to count wildcard assignments from the
// long-duration end of the sequence, returning them, plus whether the
// full count was achieved.
func (r *Registry) EvictWildcards(count int) ([]*Assignment, bool) {
	evicted := make([]*Assignment, 0, count)
	for len(evicted) < count {
		node := r.wildcards.Right()
		if node == nil {
			break
		}
		a := node.Value.(*Assignment)
		r.removeWildcard(a)
		r.logger.Infof("evicted wildcard seat[%v]", a.Seat)
		evicted = append(evicted, a)
	}
	return evicted, len(evicted) == count
}

func (r *Registry) removeWildcard(a *Assignment) {
	r.wildcards.Remove(wildcardKey{a.Ticket.DurationSeconds, a.Seat})
	r.wildcardsByLabel.Remove(a.Seat)
	// Wildcard labels are never reused, so the epoch entry goes with
	// the assignment; a stale monitor sees epoch 0 and no-ops.
	r.epochs.Remove(a.Seat)
}

// Clear removes an assignment unconditionally. Used when the seat ends
// through normal lifecycle rather than eviction.
func (r *Registry) Clear(a *Assignment) {
	if a.Wildcard {
		r.removeWildcard(a)
		return
	}
	r.numbered.Remove(a.Seat)
	r.bumpEpoch(a.Seat)
}

// ClearIf removes the assignment for label only if the given
// connection is still the holder and the epoch has not advanced since
// it was captured. This is the staleness guard an expiry monitor fires
// through: a seat reassigned after the monitor was armed leaves the
// new holder untouched.
func (r *Registry) ClearIf(label string, conn Conn, epoch uint64) bool {
	if r.Epoch(label) != epoch {
		return false
	}
	holder := r.Holder(label)
	if holder == nil || holder.Conn != conn {
		return false
	}
	r.Clear(holder)
	return true
}

// Reconcile sweeps every assignment, clearing any whose connection is
// no longer authenticated or no longer present in the active set.
// Cached connection state must never be trusted immediately before a
// capacity-sensitive decision. Returns the cleared assignments.
func (r *Registry) Reconcile(presence Presence) []*Assignment {
	var stale []*Assignment

	for _, value := range r.numbered.Values() {
		a := value.(*Assignment)
		if !r.live(a, presence) {
			stale = append(stale, a)
		}
	}
	for _, value := range r.wildcardsByLabel.Values() {
		a := value.(*Assignment)
		if !r.live(a, presence) {
			stale = append(stale, a)
		}
	}

	for _, a := range stale {
		r.Clear(a)
		r.logger.Infof("reconcile cleared seat[%v] conn[%v]", a.Seat, a.Conn.ID())
	}
	return stale
}

func (r *Registry) live(a *Assignment, presence Presence) bool {
	return a.Conn != nil && a.Conn.Authenticated() && presence.Contains(a.Conn)
}
