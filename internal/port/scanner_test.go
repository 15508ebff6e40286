package port

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listen occupies an OS-assigned port on the loopback interface for the
// rest of the test.
func listen(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to start test listener")
	t.Cleanup(func() { _ = ln.Close() })

	addr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}

func TestCheck_UsedPort(t *testing.T) {
	port := listen(t)

	s := NewScanner("127.0.0.1")
	assert.Error(t, s.Check(port))
	assert.False(t, s.IsAvailable(port))
}

func TestCheck_FreePort(t *testing.T) {
	s := NewScanner("127.0.0.1")

	port, err := s.FindAvailable(50000, 50100)
	require.NoError(t, err, "should find at least one free port in 50000-50100")
	assert.NoError(t, s.Check(port))
}

func TestCheck_OutOfRange(t *testing.T) {
	s := NewScanner("")

	for _, p := range []int{0, -1, MaxPort + 1} {
		err := s.Check(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	}
}

// TestFindAvailable_SkipsUsedPort occupies a port and verifies the search
// moves past it.
func TestFindAvailable_SkipsUsedPort(t *testing.T) {
	port := listen(t)
	if port == MaxPort {
		t.Skip("listener landed on the last port")
	}

	s := NewScanner("127.0.0.1")
	got, err := s.FindAvailable(port, port+50)
	require.NoError(t, err)
	assert.Greater(t, got, port)
}

func TestFindAvailable_NoneAvailable(t *testing.T) {
	port := listen(t)

	_, err := NewScanner("127.0.0.1").FindAvailable(port, port)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no available")
}
