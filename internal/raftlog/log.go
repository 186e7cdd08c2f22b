// Package raftlog implements the ordered log store the consensus core
// replicates. It is deliberately in-memory: durable persistence is an
// external concern the core does not depend on.
package raftlog

// Entry is one record in the replicated log. Entries are totally ordered
// by Index; two entries sharing an (Index, Term) pair are required by the
// Log Matching property to be identical, along with every entry preceding
// them.
type Entry struct {
	Index   uint64
	Term    uint64
	Payload []byte
}

// Log is an ordered sequence of entries, always starting with an implicit
// sentinel at index 0, term 0. It is not safe for concurrent use by
// itself — the consensus core serializes all access under its own mutex,
// and the replication driver may only read it while that mutex is held.
type Log struct {
	// entries[i] holds the entry at Index i+1. The index-0 sentinel is
	// never materialized; term_at(0) and last_index() of an empty log
	// both special-case it.
	entries []Entry
}

// New returns an empty log.
func New() *Log {
	return &Log{entries: make([]Entry, 0, 64)}
}

// LastIndex returns the highest index present, or 0 for an empty log.
func (l *Log) LastIndex() uint64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Index
}

// LastTerm returns the term of the last entry, or 0 for an empty log.
func (l *Log) LastTerm() uint64 {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

// TermAt returns the term of the entry at index. Index 0 always returns 0
// (the sentinel). Callers must not ask for an index beyond LastIndex; per
// the contract this is a precondition violation, not a recoverable error.
func (l *Log) TermAt(index uint64) uint64 {
	if index == 0 {
		return 0
	}
	if index > l.LastIndex() {
		panic("raftlog: TermAt called beyond last index")
	}
	return l.entries[index-1].Term
}

// At returns the entry at index, or ok=false if index is out of range
// (0 included, since the sentinel has no materialized Entry).
func (l *Log) At(index uint64) (Entry, bool) {
	if index == 0 || index > l.LastIndex() {
		return Entry{}, false
	}
	return l.entries[index-1], true
}

// FindConflict returns the first index within entries that either exceeds
// the local last index, or whose term disagrees with the local entry
// already stored at that index. It returns 0 if every supplied entry
// already matches the local log exactly.
func (l *Log) FindConflict(entries []Entry) uint64 {
	for _, e := range entries {
		if e.Index > l.LastIndex() {
			return e.Index
		}
		if l.TermAt(e.Index) != e.Term {
			return e.Index
		}
	}
	return 0
}

// AppendMayTruncate truncates the log to just before entries[0].Index if
// an entry already exists at that index (its term is not compared), then
// appends every supplied entry; existing entries past the supplied batch
// are dropped as well. It is a precondition, not checked here,
// that entries[0].Index is strictly greater than the caller's commit
// index; truncating committed entries is a programming fault in the
// caller.
func (l *Log) AppendMayTruncate(entries []Entry) {
	if len(entries) == 0 {
		return
	}

	first := entries[0].Index
	if first <= l.LastIndex() {
		l.entries = l.entries[:first-1]
	}
	l.entries = append(l.entries, entries...)
}

// EntriesFrom returns every entry with Index >= next, possibly empty. The
// returned slice must not be mutated by the caller; it is reused by the
// log's backing array.
func (l *Log) EntriesFrom(next uint64) []Entry {
	if next == 0 {
		next = 1
	}
	if next > l.LastIndex() {
		return nil
	}
	return l.entries[next-1:]
}
