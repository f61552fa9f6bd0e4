// Package batterystore persists the coulomb counter capacity between boots.
package batterystore

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"github.com/sigurn/crc8"
	"github.com/sirupsen/logrus"
)

const (
	CurrentCapacityKey = "mAh"
	MaxCapacityKey     = "mAhMax"
)

var log = logrus.New()

func SetLogger(l *logrus.Logger) {
	log = l
}

var errBadCRC = errors.New("bad crc")
var errBadLength = errors.New("bad value length")

var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
})

// encodeValue stores v as 8 big endian bytes followed by a CRC-8 of them.
func encodeValue(v float64) []byte {
	b := make([]byte, 9)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	b[8] = crc8.Checksum(b[:8], crcTable)
	return b
}

func decodeValue(b []byte) (float64, error) {
	if len(b) != 9 {
		return 0, errBadLength
	}
	if crc8.Checksum(b[:8], crcTable) != b[8] {
		return 0, errBadCRC
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b[:8])), nil
}

// Memory keeps the values in memory only. Useful for tests and for running
// without persistent storage.
type Memory struct {
	mu     sync.Mutex
	values map[string]float64
}

func NewMemory() *Memory {
	return &Memory{values: map[string]float64{}}
}

func (m *Memory) get(key string, def float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return def
	}
	return v
}

func (m *Memory) set(key string, v float64) {
	m.mu.Lock()
	m.values[key] = v
	m.mu.Unlock()
}

func (m *Memory) LastCapacity(def float64) float64 { return m.get(CurrentCapacityKey, def) }
func (m *Memory) SetLastCapacity(mAh float64)      { m.set(CurrentCapacityKey, mAh) }
func (m *Memory) MaxCapacity(def float64) float64  { return m.get(MaxCapacityKey, def) }
func (m *Memory) SetMaxCapacity(mAh float64)       { m.set(MaxCapacityKey, mAh) }
