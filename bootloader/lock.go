// PortLock enforces the "only one Tockloader process may drive a
// given serial port at a time" concurrency gate from spec 4.3: a TCP
// listener bound to 127.0.0.1 on a port derived from a hash of the
// serial device's absolute path. This is plain stdlib networking with
// no ecosystem equivalent in the retrieval pack, so it is justified in
// the standard-library-only ledger rather than grounded on a
// third-party dependency.
package bootloader

import (
	"hash/fnv"
	"net"
	"path/filepath"
	"strconv"

	"github.com/tock/tockloader/errs"
)

// portBase and portMask implement "10000 + (hash & 0x7FFF)" from spec
// 4.3's concurrency gate.
const (
	portBase = 10000
	portMask = 0x7FFF
)

// PortLock holds the TCP listener that represents exclusive access to
// one serial device path for the life of the process.
type PortLock struct {
	listener net.Listener
}

// AcquirePortLock binds the deterministic lock port for path. A bind
// failure (because another tockloader process already holds it) is
// surfaced as a transport error naming the busy port.
func AcquirePortLock(path string) (*PortLock, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	port := lockPortFor(abs)
	ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, err,
			"serial port %s is already in use by another tockloader process (lock port %d)", path, port)
	}

	return &PortLock{listener: ln}, nil
}

// Release closes the lock listener, freeing the port for the next
// process that wants this serial device.
func (l *PortLock) Release() error {
	if l.listener == nil {
		return nil
	}
	err := l.listener.Close()
	l.listener = nil
	return err
}

func lockPortFor(absPath string) int {
	h := fnv.New32a()
	h.Write([]byte(absPath))
	return portBase + int(h.Sum32()&portMask)
}
