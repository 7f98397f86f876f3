package sensor

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/timeutil"
)

// LedCommander issues the remote LED on/off command. Implemented by
// remote.LedSwitch in production and by fakes in tests.
type LedCommander interface {
	LedOn() error
	LedOff() error
}

// LinkConfig configures a sensor link.
type LinkConfig struct {
	// Addr is the device's UDP acquisition endpoint (host:port).
	Addr string

	// SamplesPerBlock is the int16 sample count each block carries.
	SamplesPerBlock int

	// ReadTimeout bounds each socket receive. The device answers every
	// request within milliseconds when its acquisition process is alive, so
	// a deadline expiry means the link is dead and is treated as fatal.
	// Defaults to 5s.
	ReadTimeout time.Duration

	// Led is the remote LED commander; may be nil (LED commands become
	// no-ops, logged).
	Led LedCommander

	// Clock paces per-block requests; defaults to the real clock.
	Clock timeutil.Clock
}

// Link owns the UDP socket to one sensor and the remote LED command side
// channel. It is used by a single polling goroutine; only SetLed may be
// called concurrently.
type Link struct {
	cfg  LinkConfig
	conn *net.UDPConn

	// Learned from the handshake.
	headerBytes     int
	blockCount      int
	firstSyncedTime int
	localTimeSyncMs float64

	bufSize int

	// ledWG tracks in-flight LED command goroutines so Close can join them;
	// the terminal off command must land before the process exits.
	ledWG sync.WaitGroup

	statusMu sync.Mutex
	status   string
}

const (
	infoCommand  = "-i 1"
	blockCommand = "-a 1"

	// blockRequestPacing is the gap between consecutive block requests; the
	// device's server drops back-to-back datagrams without it.
	blockRequestPacing = time.Millisecond
)

// Dial connects the link's UDP socket to the configured device address. No
// datagrams are exchanged until RequestInfo.
func Dial(cfg LinkConfig) (*Link, error) {
	if cfg.SamplesPerBlock <= 0 {
		return nil, fmt.Errorf("samples per block must be positive, got %d", cfg.SamplesPerBlock)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolve sensor address %q: %w", cfg.Addr, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial sensor %q: %w", cfg.Addr, err)
	}

	l := &Link{
		cfg:  cfg,
		conn: conn,
		// Response datagrams are (samplesPerBlock + HeaderFloats) × 4 bytes
		// at most; samples are 2 bytes each so this over-allocates safely.
		bufSize: (cfg.SamplesPerBlock+HeaderFloats)*4 + 64,
	}
	l.setStatus("waiting to connect to sensor UDP server at " + cfg.Addr)
	return l, nil
}

// Close waits for any in-flight LED commands to finish, then releases the
// UDP socket.
func (l *Link) Close() error {
	l.ledWG.Wait()
	return l.conn.Close()
}

// Status returns the last human-readable link status message.
func (l *Link) Status() string {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	return l.status
}

func (l *Link) setStatus(s string) {
	l.statusMu.Lock()
	l.status = s
	l.statusMu.Unlock()
}

// BlockCount returns the per-frame block count learned from the handshake,
// or 0 before RequestInfo succeeds.
func (l *Link) BlockCount() int {
	return l.blockCount
}

func (l *Link) request(command string) ([]byte, error) {
	if _, err := l.conn.Write([]byte(command)); err != nil {
		return nil, fmt.Errorf("send %q: %w", command, err)
	}

	if err := l.conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	buf := make([]byte, l.bufSize)
	n, err := l.conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("receive reply to %q: %w", command, err)
	}
	return buf[:n], nil
}

// RequestInfo performs the one-shot handshake: it sends the info command,
// decodes the reply header, and records the device's synced timestamp
// against the local wall clock. It must succeed before RequestFrame is used.
func (l *Link) RequestInfo() (syncedTime int, header []float64, err error) {
	packet, err := l.request(infoCommand)
	if err != nil {
		return 0, nil, err
	}

	headerBytes, blockCount, synced, hdr, err := DecodeInfo(packet)
	if err != nil {
		return 0, nil, fmt.Errorf("decode handshake reply: %w", err)
	}

	l.headerBytes = headerBytes
	l.blockCount = blockCount
	l.firstSyncedTime = synced
	l.localTimeSyncMs = float64(l.cfg.Clock.Now().UnixNano()) / 1e6

	l.setStatus(fmt.Sprintf("sensor connected at %s (%d blocks/frame, %d-byte header)",
		l.cfg.Addr, blockCount, headerBytes))
	monitoring.Logf("sensor link: %s", l.Status())
	return synced, hdr, nil
}

// RequestFrame polls one complete reading: it issues one block request per
// expected block, receiving one reply each, and assembles the frame.
//
// A malformed reply (wrong block sequence, short sample count) is a broken
// reading: it is logged and RequestFrame returns (nil, nil) so the caller
// can count it and poll again immediately. A socket-level failure (timeout,
// refused) returns a non-nil error: the link is unusable and the caller
// should stop, not retry.
//
// startTimeMs offsets the frame's elapsed-time stamp, mirroring the device's
// session time base established at the handshake.
func (l *Link) RequestFrame(startTimeMs float64) (*Frame, error) {
	if l.blockCount == 0 {
		return nil, fmt.Errorf("handshake not performed: call RequestInfo first")
	}

	datagrams := make([][]byte, 0, l.blockCount)
	var elapsedMs float64

	for i := 0; i < l.blockCount; i++ {
		l.cfg.Clock.Sleep(blockRequestPacing)

		packet, err := l.request(blockCommand)
		if err != nil {
			l.setStatus(fmt.Sprintf("link failure: %v", err))
			return nil, err
		}

		if i == 0 {
			nowMs := float64(l.cfg.Clock.Now().UnixNano()) / 1e6
			elapsedMs = nowMs - l.localTimeSyncMs + startTimeMs
		}

		idx, err := headerFloat(packet, FieldBlockIndex)
		if err != nil {
			monitoring.Logf("sensor link: block %d: %v", i, err)
			l.setStatus(fmt.Sprintf("broken reading: %v", err))
			return nil, nil
		}
		if int(idx) != i {
			// Broken reading. Drain nothing: the device answers one reply
			// per request, so the sequence is already consistent again.
			monitoring.Logf("sensor link: expected block %d, received block %d", i, int(idx))
			l.setStatus(fmt.Sprintf("broken reading: expected block %d, received block %d", i, int(idx)))
			return nil, nil
		}

		datagrams = append(datagrams, packet)
		l.setStatus(fmt.Sprintf("block %d/%d received", i+1, l.blockCount))
	}

	frame, err := DecodeFrame(datagrams, l.blockCount, l.headerBytes, l.cfg.SamplesPerBlock)
	if err != nil {
		monitoring.Logf("sensor link: discarding frame: %v", err)
		l.setStatus(fmt.Sprintf("broken reading: %v", err))
		return nil, nil
	}

	frame.ElapsedMs = elapsedMs
	return frame, nil
}

// SetLed dispatches the remote LED command on its own goroutine and returns
// immediately. The remote round trip is orders of magnitude slower than one
// poll cycle, so the polling loop never waits on it; failures are logged and
// do not affect the caller's LED state tracking.
func (l *Link) SetLed(on bool) {
	if l.cfg.Led == nil {
		monitoring.Logf("sensor link: no LED commander configured, ignoring LED %v", on)
		return
	}
	l.ledWG.Add(1)
	go func() {
		defer l.ledWG.Done()
		var err error
		if on {
			err = l.cfg.Led.LedOn()
		} else {
			err = l.cfg.Led.LedOff()
		}
		if err != nil {
			monitoring.Logf("sensor link: LED command (on=%v) failed: %v", on, err)
		}
	}()
}
