package dialect

import (
	"strconv"
	"strings"
)

// Builder assembles statement text with chained writes.
type Builder struct {
	sb strings.Builder
}

// NewBuilder creates a builder with room for estimatedLength bytes.
func NewBuilder(estimatedLength int) *Builder {
	b := &Builder{}
	b.sb.Grow(estimatedLength)
	return b
}

// WriteQuery writes raw statement text.
func (b *Builder) WriteQuery(query string) *Builder {
	b.sb.WriteString(query)
	return b
}

// WriteChar writes a single byte.
func (b *Builder) WriteChar(c byte) *Builder {
	b.sb.WriteByte(c)
	return b
}

// WriteInt writes an integer value
func (b *Builder) WriteInt(value int64) *Builder {
	b.sb.WriteString(strconv.FormatInt(value, 10))
	return b
}

// String returns the built statement.
func (b *Builder) String() string {
	return b.sb.String()
}
