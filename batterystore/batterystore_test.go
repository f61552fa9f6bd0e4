package batterystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/tc2-battery-gauge/lithium"
)

var (
	_ lithium.Storage = &Memory{}
	_ lithium.Storage = &Bolt{}
	_ lithium.Storage = &File{}
)

func TestValueCodec(t *testing.T) {
	for _, v := range []float64{0, 1000, 999.9, 1000.07067759, -0.5} {
		got, err := decodeValue(encodeValue(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	b := encodeValue(1000)
	b[3] ^= 0x01
	_, err := decodeValue(b)
	assert.Equal(t, errBadCRC, err)

	_, err = decodeValue([]byte{1, 2, 3})
	assert.Equal(t, errBadLength, err)
}

func TestMemoryDefaults(t *testing.T) {
	m := NewMemory()
	assert.Equal(t, 2000.0, m.LastCapacity(2000))
	assert.Equal(t, 2000.0, m.MaxCapacity(2000))

	m.SetLastCapacity(123.4)
	m.SetMaxCapacity(1900)
	assert.Equal(t, 123.4, m.LastCapacity(2000))
	assert.Equal(t, 1900.0, m.MaxCapacity(2000))
}

func TestBoltPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery.db")

	s, err := OpenBolt(path)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, s.LastCapacity(2000))
	assert.Equal(t, 2000.0, s.MaxCapacity(2000))
	s.SetLastCapacity(1500.25)
	s.SetMaxCapacity(2100.5)
	require.NoError(t, s.Close())

	s, err = OpenBolt(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 1500.25, s.LastCapacity(2000))
	assert.Equal(t, 2100.5, s.MaxCapacity(2000))
}

func TestBoltCorruptValueReadsAsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery.db")
	s, err := OpenBolt(path)
	require.NoError(t, err)
	defer s.Close()

	s.SetMaxCapacity(2100)
	err = s.db.Update(func(tx *bolt.Tx) error {
		raw := encodeValue(2100)
		raw[8]++
		return tx.Bucket(bucketName).Put([]byte(MaxCapacityKey), raw)
	})
	require.NoError(t, err)
	assert.Equal(t, 2000.0, s.MaxCapacity(2000))
}

func TestFilePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery_state.json")

	f := OpenFile(path)
	assert.Equal(t, 800.0, f.LastCapacity(800))
	f.SetLastCapacity(400)
	f.SetMaxCapacity(790)

	f = OpenFile(path)
	assert.Equal(t, 400.0, f.LastCapacity(800))
	assert.Equal(t, 790.0, f.MaxCapacity(800))
}

func TestFileIgnoresBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	f := OpenFile(path)
	assert.Equal(t, 800.0, f.LastCapacity(800))
	assert.Equal(t, 800.0, f.MaxCapacity(800))
}
