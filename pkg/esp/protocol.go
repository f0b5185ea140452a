// Package esp implements the binary control protocol spoken with the ESP
// board that drives the scale, display and LEDs of the robot.
//
// Host to board frames start with an opcode byte:
//
//	0x00 startRecipe  u8 len, name
//	0x01 doStep       f64 stable offset, f64 target delta, u8 len, text
//	0x02 finish
//	0x03 abort
//	0x04 zeroScale
//
// Board to host telemetry is a stream of fixed 9-byte frames: one id byte
// followed by a little-endian f64. Id 0x00 carries the current scale weight.
package esp

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Opcode identifies a host to board command.
type Opcode byte

const (
	OpStartRecipe Opcode = 0x00
	OpDoStep      Opcode = 0x01
	OpFinish      Opcode = 0x02
	OpAbort       Opcode = 0x03
	OpZeroScale   Opcode = 0x04
)

// String returns the command name.
func (o Opcode) String() string {
	switch o {
	case OpStartRecipe:
		return "startRecipe"
	case OpDoStep:
		return "doStep"
	case OpFinish:
		return "finishRecipe"
	case OpAbort:
		return "abortRecipe"
	case OpZeroScale:
		return "zeroScale"
	default:
		return fmt.Sprintf("opcode(0x%02x)", byte(o))
	}
}

// TelemetryID identifies a board to host frame.
type TelemetryID byte

// NotifyWeight carries the current scale reading in grams.
const NotifyWeight TelemetryID = 0x00

const (
	// FrameSize is the length of one telemetry frame.
	FrameSize = 9

	// Sentinel marks an absent float in a doStep frame. The board treats it
	// as "use your own zeroing" for the offset and "no target" for the delta.
	Sentinel = -10000.0

	// MaxStringLen is the longest string a length prefix can describe.
	MaxStringLen = 255
)

var umlauts = strings.NewReplacer(
	"Ä", "Ae",
	"Ö", "Oe",
	"Ü", "Ue",
	"ä", "ae",
	"ö", "oe",
	"ü", "ue",
	"ß", "ss",
)

// Transliterate replaces German umlauts and ß with ASCII digraphs.
// The board's display font has no glyphs for them.
func Transliterate(s string) string {
	return umlauts.Replace(s)
}

// appendString appends a length-prefixed, transliterated string.
// Strings longer than MaxStringLen bytes are cut at a rune boundary.
func appendString(b []byte, s string) []byte {
	s = Transliterate(s)
	if len(s) > MaxStringLen {
		cut := MaxStringLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	b = append(b, byte(len(s)))
	return append(b, s...)
}

func appendFloat(b []byte, f float64) []byte {
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(f))
}

// EncodeStartRecipe builds a startRecipe frame.
func EncodeStartRecipe(name string) []byte {
	b := []byte{byte(OpStartRecipe)}
	return appendString(b, name)
}

// EncodeStep builds a doStep frame.
func EncodeStep(stableOffset, deltaTarget float64, text string) []byte {
	b := make([]byte, 0, 1+16+1+len(text))
	b = append(b, byte(OpDoStep))
	b = appendFloat(b, stableOffset)
	b = appendFloat(b, deltaTarget)
	return appendString(b, text)
}

// EncodeCommand builds a frame for a command without payload.
func EncodeCommand(op Opcode) []byte {
	return []byte{byte(op)}
}

// Telemetry is one decoded board to host frame.
type Telemetry struct {
	ID    TelemetryID
	Value float64
}

// FrameDecoder reassembles telemetry frames from arbitrary chunks.
type FrameDecoder struct {
	buf []byte
}

// Feed appends p and returns every complete frame now available.
// Frames with an unknown id are consumed and reported through the error.
func (d *FrameDecoder) Feed(p []byte) ([]Telemetry, error) {
	d.buf = append(d.buf, p...)

	var (
		out     []Telemetry
		unknown []byte
	)
	for len(d.buf) >= FrameSize {
		frame := d.buf[:FrameSize]
		id := TelemetryID(frame[0])
		value := math.Float64frombits(binary.LittleEndian.Uint64(frame[1:]))
		d.buf = d.buf[FrameSize:]

		if id != NotifyWeight {
			unknown = append(unknown, byte(id))
			continue
		}
		out = append(out, Telemetry{ID: id, Value: value})
	}

	// Drop the consumed prefix so the buffer does not grow without bound.
	if len(d.buf) == 0 {
		d.buf = nil
	} else {
		d.buf = append([]byte(nil), d.buf...)
	}

	if len(unknown) > 0 {
		return out, &UnknownTelemetryError{IDs: unknown}
	}
	return out, nil
}

// Buffered returns the number of bytes waiting for a complete frame.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}

// EncodeTelemetry builds a telemetry frame. Used by the board simulator in tests.
func EncodeTelemetry(t Telemetry) []byte {
	b := make([]byte, 0, FrameSize)
	b = append(b, byte(t.ID))
	return appendFloat(b, t.Value)
}
