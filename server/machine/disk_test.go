package machine

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncDisk 包装 Disk, 每次请求等待完成中断
type syncDisk struct {
	*Disk
	done chan struct{}
}

func newSyncDisk(store BlockStore) *syncDisk {
	sd := &syncDisk{done: make(chan struct{}, 1)}
	sd.Disk = NewDisk(store, func() { sd.done <- struct{}{} })
	return sd
}

func (sd *syncDisk) read(n int) []byte {
	buf := make([]byte, sd.SectorSize())
	sd.ReadRequest(n, buf)
	<-sd.done
	return buf
}

func (sd *syncDisk) write(n int, data []byte) {
	sd.WriteRequest(n, data)
	<-sd.done
}

func TestDiskRequests(t *testing.T) {
	disk := newSyncDisk(NewMemStore(16, 8))
	data := bytes.Repeat([]byte{7}, 16)
	disk.write(3, data)
	assert.Equal(t, data, disk.read(3))

	reads, writes := disk.Counters()
	assert.Equal(t, int64(1), reads)
	assert.Equal(t, int64(1), writes)

	assert.Panics(t, func() { disk.ReadRequest(8, make([]byte, 16)) })
}

func TestFingerprintTracksContent(t *testing.T) {
	disk := newSyncDisk(NewMemStore(16, 8))
	before, err := disk.Fingerprint()
	require.NoError(t, err)

	disk.write(0, bytes.Repeat([]byte{1}, 16))
	after, err := disk.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	reads, _ := disk.Counters()
	assert.Zero(t, reads)
}

func TestSnapshotRestore(t *testing.T) {
	src := newSyncDisk(NewMemStore(16, 8))
	for i := 0; i < 8; i++ {
		src.write(i, bytes.Repeat([]byte{byte(i + 1)}, 16))
	}
	var image bytes.Buffer
	require.NoError(t, src.Snapshot(&image))

	dst := newSyncDisk(NewMemStore(16, 8))
	require.NoError(t, dst.Restore(bytes.NewReader(image.Bytes())))
	for i := 0; i < 8; i++ {
		assert.Equal(t, src.read(i), dst.read(i))
	}

	other := newSyncDisk(NewMemStore(32, 8))
	err := other.Restore(bytes.NewReader(image.Bytes()))
	assert.Equal(t, ErrGeometry, errors.Cause(err))
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DISK")
	store, err := OpenFileStore(path, 16, 4)
	require.NoError(t, err)
	disk := newSyncDisk(store)
	disk.write(2, bytes.Repeat([]byte{9}, 16))
	require.NoError(t, store.Sync())
	require.NoError(t, disk.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4+16*4), info.Size())

	store, err = OpenFileStore(path, 16, 4)
	require.NoError(t, err)
	disk = newSyncDisk(store)
	assert.Equal(t, bytes.Repeat([]byte{9}, 16), disk.read(2))
	require.NoError(t, disk.Close())

	require.NoError(t, os.WriteFile(path, make([]byte, 80), 0644))
	_, err = OpenFileStore(path, 16, 4)
	assert.Equal(t, ErrBadMagic, errors.Cause(err))
}
