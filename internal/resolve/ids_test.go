package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainID(t *testing.T) {
	assert.Equal(t, "1311001100100101", PlainID("13110011001001", 1))
	assert.Equal(t, "1234020000000000", PlainID("1234", 2))
	assert.Len(t, PlainID("13110011001001", 12), PlainWidth)
	assert.Equal(t, "1234000000000000", PadID("1234"))
}

func TestAllocatorScansExistingSuffixes(t *testing.T) {
	a := NewAllocator([]string{"123456789012301", "123456789012307", "555555555555999"})
	id := a.Next("12345678901234")
	assert.Equal(t, "123456789012308", id)
	assert.Equal(t, "123456789012309", a.Next("12345678901299"))
	assert.Equal(t, "999999999999001", a.Next("99999999999999"))
}

func TestAllocatorWidthAndUniqueness(t *testing.T) {
	a := NewAllocator(nil)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := a.Next("13110011001001")
		assert.Len(t, id, MergeWidth)
		assert.False(t, seen[id], id)
		seen[id] = true
	}
}

func TestAllocatorLongPrefixKeepsCounter(t *testing.T) {
	a := NewAllocator(nil)
	first := a.Next("1234567890123456789")
	second := a.Next("1234567890123456789")
	assert.Len(t, first, MergeWidth)
	assert.Equal(t, "123456789012001", first)
	assert.Equal(t, "123456789012002", second)
}

func TestAllocatorSkipsReserved(t *testing.T) {
	a := NewAllocator(nil)
	assert.Equal(t, "123456789012001", a.Next("12345678901200"))
	a.Reserve("123456789012002")
	assert.Equal(t, "123456789012003", a.Next("12345678901200"))
}
