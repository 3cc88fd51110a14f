package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"
)

const envelopeHeaderSize = 16

// Envelope frames a stored value with a checksum and a write timestamp.
type Envelope struct {
	CRC32       uint32 // CRC32 checksum for integrity
	PayloadSize uint32 // Size of the payload in bytes
	Timestamp   uint64 // Unix timestamp in nanoseconds
	Payload     []byte
}

// NewEnvelope wraps payload with the current timestamp
func NewEnvelope(payload []byte) *Envelope {
	if len(payload) > int(^uint32(0)) {
		panic("payload too large")
	}
	e := &Envelope{
		PayloadSize: uint32(len(payload)),
		Timestamp:   uint64(time.Now().UnixNano()),
		Payload:     payload,
	}
	e.CRC32 = e.checksum()
	return e
}

// Encode serializes the envelope
// Format: [CRC32(4)][PayloadSize(4)][Timestamp(8)][Payload]
func (e *Envelope) Encode() []byte {
	buf := make([]byte, e.Size())
	binary.LittleEndian.PutUint32(buf[0:], e.CRC32)
	binary.LittleEndian.PutUint32(buf[4:], e.PayloadSize)
	binary.LittleEndian.PutUint64(buf[8:], e.Timestamp)
	copy(buf[envelopeHeaderSize:], e.Payload)
	return buf
}

// DecodeEnvelope parses an encoded envelope. The payload aliases data.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if len(data) < envelopeHeaderSize {
		return nil, fmt.Errorf("data too short for envelope header: %d bytes", len(data))
	}

	e := &Envelope{
		CRC32:       binary.LittleEndian.Uint32(data[0:4]),
		PayloadSize: binary.LittleEndian.Uint32(data[4:8]),
		Timestamp:   binary.LittleEndian.Uint64(data[8:16]),
	}
	if uint64(len(data)) != envelopeHeaderSize+uint64(e.PayloadSize) {
		return nil, fmt.Errorf("envelope size mismatch: %d != %d", len(data), envelopeHeaderSize+uint64(e.PayloadSize))
	}
	e.Payload = data[envelopeHeaderSize:]
	return e, nil
}

// Validate checks the payload against the checksum
func (e *Envelope) Validate() error {
	if sum := e.checksum(); e.CRC32 != sum {
		return fmt.Errorf("CRC32 mismatch: %d != %d", e.CRC32, sum)
	}
	return nil
}

// Size returns the encoded size
func (e *Envelope) Size() int {
	return envelopeHeaderSize + len(e.Payload)
}

// Time returns the write timestamp
func (e *Envelope) Time() time.Time {
	return time.Unix(0, int64(e.Timestamp))
}

// checksum covers everything but the CRC field itself
func (e *Envelope) checksum() uint32 {
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:], e.PayloadSize)
	binary.LittleEndian.PutUint64(hdr[4:], e.Timestamp)

	crc := crc32.NewIEEE()
	crc.Write(hdr[:])
	crc.Write(e.Payload)
	return crc.Sum32()
}
