package netloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLAN(t *testing.T) {
	assert.True(t, IsLAN("10.0.0.5:9000"))
	assert.True(t, IsLAN("127.0.0.1:9000"))
	assert.True(t, IsLAN("192.168.1.2"))
	assert.False(t, IsLAN("8.8.8.8:53"))
}

func TestSameSubnet(t *testing.T) {
	assert.True(t, SameSubnet("10.0.0.5:9000", "10.0.0.9:9001"))
	assert.False(t, SameSubnet("10.0.0.5:9000", "10.0.1.9:9001"))
	assert.False(t, SameSubnet("8.8.8.8:53", "8.8.4.4:53"))
}
