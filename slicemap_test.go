package mcap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlicemap(t *testing.T) {
	var s slicemap[Channel]
	assert.Nil(t, s.get(0))
	assert.Equal(t, 0, s.len())

	s.set(3, &Channel{ID: 3, Topic: "/foo"})
	assert.Equal(t, 1, s.len())
	assert.Equal(t, "/foo", s.get(3).Topic)
	assert.Nil(t, s.get(0))
	assert.Nil(t, s.get(10))

	s.set(0, &Channel{ID: 0, Topic: "/bar"})
	assert.Equal(t, 2, s.len())

	m := s.toMap()
	assert.Len(t, m, 2)
	assert.Equal(t, "/bar", m[0].Topic)
	assert.Equal(t, "/foo", m[3].Topic)
}
