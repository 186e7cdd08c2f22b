package raftlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyLog(t *testing.T) {
	l := New()
	assert.Equal(t, uint64(0), l.LastIndex())
	assert.Equal(t, uint64(0), l.LastTerm())
	assert.Equal(t, uint64(0), l.TermAt(0))
	assert.Nil(t, l.EntriesFrom(1))
}

func TestAppendAndConflict(t *testing.T) {
	l := New()
	l.AppendMayTruncate([]Entry{
		{Index: 1, Term: 1},
		{Index: 2, Term: 1},
		{Index: 3, Term: 2},
	})
	assert.Equal(t, uint64(3), l.LastIndex())
	assert.Equal(t, uint64(2), l.LastTerm())

	// Matches exactly -> no conflict.
	assert.Equal(t, uint64(0), l.FindConflict([]Entry{
		{Index: 1, Term: 1},
		{Index: 2, Term: 1},
	}))

	// Entry beyond last index is a conflict at that index.
	assert.Equal(t, uint64(4), l.FindConflict([]Entry{
		{Index: 4, Term: 2},
	}))

	// Disagreeing term at an existing index conflicts there.
	assert.Equal(t, uint64(3), l.FindConflict([]Entry{
		{Index: 3, Term: 4},
		{Index: 4, Term: 4},
	}))
}

func TestAppendMayTruncate(t *testing.T) {
	l := New()
	l.AppendMayTruncate([]Entry{
		{Index: 1, Term: 1},
		{Index: 2, Term: 1},
		{Index: 3, Term: 2},
	})

	// A new leader at term 4 overwrites the uncommitted tail from index 3.
	l.AppendMayTruncate([]Entry{
		{Index: 3, Term: 4},
		{Index: 4, Term: 4},
	})

	assert.Equal(t, uint64(4), l.LastIndex())
	assert.Equal(t, uint64(1), l.TermAt(1))
	assert.Equal(t, uint64(1), l.TermAt(2))
	assert.Equal(t, uint64(4), l.TermAt(3))
	assert.Equal(t, uint64(4), l.TermAt(4))
}

func TestEntriesFrom(t *testing.T) {
	l := New()
	l.AppendMayTruncate([]Entry{
		{Index: 1, Term: 1},
		{Index: 2, Term: 1},
		{Index: 3, Term: 1},
	})

	got := l.EntriesFrom(2)
	assert.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Index)
	assert.Equal(t, uint64(3), got[1].Index)

	assert.Nil(t, l.EntriesFrom(10))
}
