package sensor

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/presence.report/internal/monitoring"
)

// SimulatorConfig configures the in-process device emulator.
type SimulatorConfig struct {
	// Addr is the UDP address to bind; use "127.0.0.1:0" for an ephemeral
	// port in tests.
	Addr string

	// Blocks is the number of block datagrams per frame.
	Blocks int

	// SamplesPerBlock is the int16 sample count carried by each block.
	SamplesPerBlock int

	// DistanceRaw is the value placed in the max-distance header field.
	// Subject to the firmware unit heuristic (<10 meters, ≥10 cm).
	DistanceRaw float32

	// SampleFunc generates the waveform; defaults to a deterministic ramp.
	SampleFunc func(block, index int) int16

	// CorruptBlock makes the simulator emit a wrong embedded block index at
	// frame position CorruptBlockAt so decode failures can be tested.
	CorruptBlock   bool
	CorruptBlockAt int

	// TruncateBlock makes the simulator cut the datagram short at frame
	// position TruncateBlockAt, before the block-index field, so unreadable
	// packets can be tested.
	TruncateBlock   bool
	TruncateBlockAt int
}

// Simulator emulates the device's UDP acquisition server: "-i 1" answers
// with a handshake block, "-a 1" with the next data block of the current
// frame. It serves a single client at a time, which matches the real
// device's behavior.
type Simulator struct {
	cfg       SimulatorConfig
	conn      *net.UDPConn
	nextBlock int
}

// NewSimulator binds the simulator's UDP socket.
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.Blocks <= 0 || cfg.SamplesPerBlock <= 0 {
		return nil, fmt.Errorf("simulator needs positive blocks and samples per block")
	}
	if cfg.SampleFunc == nil {
		cfg.SampleFunc = func(block, index int) int16 {
			return int16((block*cfg.SamplesPerBlock + index) % 4096)
		}
	}
	addr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolve simulator address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind simulator socket: %w", err)
	}
	return &Simulator{cfg: cfg, conn: conn}, nil
}

// Addr returns the bound UDP address.
func (s *Simulator) Addr() string {
	return s.conn.LocalAddr().String()
}

// Close releases the simulator socket.
func (s *Simulator) Close() error {
	return s.conn.Close()
}

// Serve answers requests until the context is canceled.
func (s *Simulator) Serve(ctx context.Context) error {
	buf := make([]byte, 64)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("simulator read: %w", err)
		}

		var reply []byte
		switch string(buf[:n]) {
		case "-i 1":
			s.nextBlock = 0
			reply, err = s.encodeBlock(0)
		case "-a 1":
			block := s.nextBlock
			s.nextBlock = (s.nextBlock + 1) % s.cfg.Blocks
			reply, err = s.encodeBlock(block)
			if err == nil && s.cfg.TruncateBlock && block == s.cfg.TruncateBlockAt {
				reply = reply[:8]
			}
		default:
			monitoring.Logf("simulator: unknown command %q from %v", string(buf[:n]), peer)
			continue
		}
		if err != nil {
			return fmt.Errorf("simulator encode: %w", err)
		}

		if _, err := s.conn.WriteToUDP(reply, peer); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("simulator write: %w", err)
		}
	}
}

func (s *Simulator) encodeBlock(block int) ([]byte, error) {
	header := make([]float32, HeaderFloats)
	header[FieldSyncedTime] = 500000
	header[FieldMaxDistance] = s.cfg.DistanceRaw
	header[FieldBlockCount] = float32(s.cfg.Blocks)
	header[FieldBlockIndex] = float32(block)
	header[FieldDeviceTime] = float32(1000 + block)

	if s.cfg.CorruptBlock && block == s.cfg.CorruptBlockAt {
		header[FieldBlockIndex] = float32(block + 3)
	}

	samples := make([]int16, s.cfg.SamplesPerBlock)
	for i := range samples {
		samples[i] = s.cfg.SampleFunc(block, i)
	}
	return EncodeBlock(header, samples)
}
