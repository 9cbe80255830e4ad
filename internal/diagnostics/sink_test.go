package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_RecordAndFlushDoesNotClear(t *testing.T) {
	s := NewSink(2)
	s.Record(Warning{Kind: WarningTypeMismatch, Call: "Send", Order: "pre", Detail: "x"})
	require.Len(t, s.Warnings(), 1)
	s.Flush("pass-a")
	assert.Len(t, s.Warnings(), 1, "Flush only logs; it does not discard the recorded warnings")
}

func TestSink_WarningsReturnsACopy(t *testing.T) {
	s := NewSink(0)
	s.Record(Warning{Kind: WarningMultipleReductions})
	got := s.Warnings()
	got[0].Kind = "mutated"
	assert.Equal(t, WarningMultipleReductions, s.Warnings()[0].Kind)
}

func TestErrorKinds_ErrorStrings(t *testing.T) {
	assert.Contains(t, NewParseError("f.xml", "bad", nil).Error(), "f.xml")
	assert.Contains(t, NewUnresolvedReferenceError("call", "Send").Error(), "Send")
	assert.Contains(t, NewConstraintViolationError("scope", "dup").Error(), "dup")
	assert.Contains(t, NewLayoutError("cycle").Error(), "cycle")
	assert.Contains(t, NewPlacementError("Send", "pre", "no host").Error(), "no host")
	assert.Contains(t, NewIoError("path", nil).Error(), "path")
}

func TestIoError_Unwrap(t *testing.T) {
	inner := assert.AnError
	err := NewIoError("path", inner)
	ioErr, ok := err.(*IoError)
	require.True(t, ok)
	assert.Same(t, inner, ioErr.Unwrap())
}
