package port

import (
	"fmt"
	"net"
	"strconv"
)

// MaxPort is the highest valid TCP port.
const MaxPort = 65535

// Scanner probes TCP ports on a single bind address.
type Scanner struct {
	host string
}

// NewScanner returns a Scanner bound to host. An empty host means all
// interfaces, which is also what "0.0.0.0" selects.
func NewScanner(host string) *Scanner {
	return &Scanner{host: host}
}

// Check tries to listen on port and returns the error the operating system
// reported, or nil when the port is free. The listener is closed before
// Check returns.
func (s *Scanner) Check(port int) error {
	if port < 1 || port > MaxPort {
		return fmt.Errorf("port %d out of range (1-%d)", port, MaxPort)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	_ = listener.Close()
	return nil
}

// IsAvailable reports whether port can currently be bound.
func (s *Scanner) IsAvailable(port int) bool {
	return s.Check(port) == nil
}

// FindAvailable returns the first free port in [start, end]. The search is
// sequential so the same suggestion comes back while the host is unchanged.
func (s *Scanner) FindAvailable(start, end int) (int, error) {
	if end > MaxPort {
		end = MaxPort
	}
	for p := start; p <= end; p++ {
		if s.IsAvailable(p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("no available tcp port found in range %d-%d", start, end)
}
