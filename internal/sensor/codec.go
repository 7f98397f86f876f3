package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/presence.report/internal/units"
)

/*
RedPitaya ultrasonic frame format

The acquisition server on the device answers each request with one fixed-size
binary datagram ("block"). A complete reading is assembled from
totalBlocks consecutive blocks. Every block carries the same header layout of
little-endian 32-bit floats at fixed byte offsets, followed by the raw ADC
samples as little-endian 16-bit signed integers:

	┌─ header (headerBytes, normally 17 × 4 = 68 bytes) ─────────────┐
	│ [0:4)   header length in bytes                                 │
	│ [20:24) device timestamp synced at handshake                   │
	│ [40:44) max-distance of the strongest echo (unit heuristic:    │
	│         <10 = meters, ≥10 = centimeters)                       │
	│ [56:60) total block count per frame                            │
	│ [60:64) index of this block within the frame                   │
	│ [64:68) device acquisition timestamp for this block            │
	└────────────────────────────────────────────────────────────────┘
	[headerBytes:) int16 ADC samples

Header metadata is authoritative only on the first block of a frame; later
blocks contribute samples and are checked for sequence position.
*/

// Header field positions, as float32 indices into the header region.
// Byte offsets are the index × 4.
const (
	FieldHeaderBytes = 0  // byte offset 0
	FieldSyncedTime  = 5  // byte offset 20
	FieldMaxDistance = 10 // byte offset 40
	FieldBlockCount  = 14 // byte offset 56
	FieldBlockIndex  = 15 // byte offset 60
	FieldDeviceTime  = 16 // byte offset 64

	// HeaderFloats is the number of float32 header fields per block.
	HeaderFloats = 17

	// HeaderBytes is the header region size in bytes.
	HeaderBytes = HeaderFloats * 4
)

// Decode failure taxonomy. Both are recoverable "broken reading" conditions:
// the caller discards the frame and polls again without delay.
var (
	// ErrBlockMismatch reports a block whose embedded index does not match
	// its position in the request sequence.
	ErrBlockMismatch = errors.New("block sequence mismatch")

	// ErrShortFrame reports a frame whose concatenated sample count is not
	// exactly blocks × samplesPerBlock.
	ErrShortFrame = errors.New("short frame")
)

// Frame is one complete sensor reading assembled from a sequence of block
// datagrams. Immutable once returned by DecodeFrame.
type Frame struct {
	// Header holds the float header fields echoed by the device on the
	// first block of the frame.
	Header []float64

	// Samples is the raw ADC waveform, blocks × samplesPerBlock values.
	Samples []int16

	// DistanceCm is the corrected max-distance reading in centimeters.
	DistanceCm int

	// DeviceTimestamp is the device acquisition timestamp of the first
	// block, in device time units.
	DeviceTimestamp int

	// ElapsedMs is the wall-clock position of this frame relative to the
	// session start, in milliseconds. Filled in by the link, not the codec.
	ElapsedMs float64
}

func headerFloat(datagram []byte, field int) (float32, error) {
	off := field * 4
	if off+4 > len(datagram) {
		return 0, fmt.Errorf("datagram too short for header field %d: %d bytes: %w", field, len(datagram), ErrShortFrame)
	}
	bits := binary.LittleEndian.Uint32(datagram[off : off+4])
	return math.Float32frombits(bits), nil
}

// DecodeInfo parses a handshake response datagram and returns the header
// length in bytes, the total block count per frame, the device's synced
// timestamp, and the raw header floats.
func DecodeInfo(datagram []byte) (headerBytes, blockCount, syncedTime int, header []float64, err error) {
	hb, err := headerFloat(datagram, FieldHeaderBytes)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	bc, err := headerFloat(datagram, FieldBlockCount)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	st, err := headerFloat(datagram, FieldSyncedTime)
	if err != nil {
		return 0, 0, 0, nil, err
	}

	headerBytes = int(hb)
	if headerBytes <= 0 || headerBytes%4 != 0 || headerBytes > len(datagram) {
		return 0, 0, 0, nil, fmt.Errorf("implausible header length %d in %d-byte datagram", headerBytes, len(datagram))
	}
	blockCount = int(bc)
	if blockCount <= 0 {
		return 0, 0, 0, nil, fmt.Errorf("implausible block count %d", blockCount)
	}

	header = decodeHeaderFloats(datagram[:headerBytes])
	return headerBytes, blockCount, int(st), header, nil
}

// DecodeFrame assembles a Frame from an ordered list of block datagrams.
// expectedBlocks is the number of datagrams a complete frame consists of,
// headerBytes the per-block header size, samplesPerBlock the int16 sample
// count each block carries.
//
// Header metadata (including the max-distance field) is parsed from the
// first datagram only. Every datagram's embedded block index must equal its
// position in the list or decoding fails with ErrBlockMismatch. A total
// sample count other than expectedBlocks × samplesPerBlock fails with
// ErrShortFrame.
func DecodeFrame(datagrams [][]byte, expectedBlocks, headerBytes, samplesPerBlock int) (*Frame, error) {
	if len(datagrams) != expectedBlocks {
		return nil, fmt.Errorf("got %d datagrams, expected %d blocks: %w", len(datagrams), expectedBlocks, ErrShortFrame)
	}

	frame := &Frame{
		Samples: make([]int16, 0, expectedBlocks*samplesPerBlock),
	}

	for i, datagram := range datagrams {
		if headerBytes > len(datagram) {
			return nil, fmt.Errorf("block %d datagram shorter than %d-byte header: %w", i, headerBytes, ErrShortFrame)
		}

		idx, err := headerFloat(datagram, FieldBlockIndex)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		if int(idx) != i {
			return nil, fmt.Errorf("expected block %d, received block %d: %w", i, int(idx), ErrBlockMismatch)
		}

		if i == 0 {
			frame.Header = decodeHeaderFloats(datagram[:headerBytes])

			dmax, err := headerFloat(datagram, FieldMaxDistance)
			if err != nil {
				return nil, err
			}
			frame.DistanceCm = units.CorrectDistance(float64(dmax))

			devTime, err := headerFloat(datagram, FieldDeviceTime)
			if err != nil {
				return nil, err
			}
			frame.DeviceTimestamp = int(devTime)
		}

		frame.Samples = appendSamples(frame.Samples, datagram[headerBytes:])
	}

	if len(frame.Samples) != expectedBlocks*samplesPerBlock {
		return nil, fmt.Errorf("assembled %d samples, expected %d: %w",
			len(frame.Samples), expectedBlocks*samplesPerBlock, ErrShortFrame)
	}

	return frame, nil
}

func decodeHeaderFloats(header []byte) []float64 {
	out := make([]float64, 0, len(header)/4)
	for off := 0; off+4 <= len(header); off += 4 {
		bits := binary.LittleEndian.Uint32(header[off : off+4])
		out = append(out, float64(math.Float32frombits(bits)))
	}
	return out
}

func appendSamples(dst []int16, payload []byte) []int16 {
	for off := 0; off+2 <= len(payload); off += 2 {
		dst = append(dst, int16(binary.LittleEndian.Uint16(payload[off:off+2])))
	}
	return dst
}

// EncodeBlock builds one block datagram from header floats and samples. The
// header slice must be HeaderFloats long with the field constants above at
// their positions; header[FieldHeaderBytes] is overwritten with the actual
// header size. Used by the device simulator and codec tests.
func EncodeBlock(header []float32, samples []int16) ([]byte, error) {
	if len(header) != HeaderFloats {
		return nil, fmt.Errorf("header must be %d floats, got %d", HeaderFloats, len(header))
	}

	buf := make([]byte, HeaderBytes+2*len(samples))
	header[FieldHeaderBytes] = float32(HeaderBytes)
	for i, f := range header {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[HeaderBytes+2*i:], uint16(s))
	}
	return buf, nil
}
