package shm

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrRegionExists is returned by Create when the named region already
// exists and force was not requested.
var ErrRegionExists = errors.New("shm: region already exists")

// ErrSchemaMismatch is returned by Attach when the region's magic or
// version does not match what this build expects.
var ErrSchemaMismatch = errors.New("shm: magic/version mismatch")

// Region is a mapped shared-memory region: a Header followed by
// SlotCount fixed-size slots. A Region created via Create is
// producer-writable; one obtained via Attach is consumer-read-only,
// enforced by the mmap protection flags used to map it.
type Region struct {
	file     *os.File
	data     []byte
	hdr      *Header
	writable bool
	slotSize uint64
	slots    uint64
	mask     uint64
}

func shmPath(name string) string {
	return "/dev/shm/" + name
}

// CreateOptions configures Create.
type CreateOptions struct {
	SlotSize  uint16
	SlotCount uint32
	Force     bool
}

// Create creates a new writable region. It fails with ErrRegionExists if
// the named region already exists and Force is false. The header is
// initialized, all slots are zeroed, and write_cursor starts at 0.
func Create(name string, opts CreateOptions) (*Region, error) {
	if opts.SlotSize == 0 {
		opts.SlotSize = DefaultSlotSize
	}
	if opts.SlotCount == 0 {
		opts.SlotCount = DefaultSlotCount
	}
	if !isPowerOfTwo(opts.SlotCount) {
		return nil, fmt.Errorf("shm: slot count %d is not a power of two", opts.SlotCount)
	}
	if uint64(opts.SlotSize) < CacheLineSize || uint64(opts.SlotSize)%CacheLineSize != 0 {
		return nil, fmt.Errorf("shm: slot size %d must be a cache-line multiple of at least %d", opts.SlotSize, CacheLineSize)
	}

	path := shmPath(name)
	flags := os.O_RDWR | os.O_CREATE
	if !opts.Force {
		flags |= os.O_EXCL
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrRegionExists
		}
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}

	size := int64(HeaderSize) + int64(opts.SlotCount)*int64(opts.SlotSize)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: truncate: %w", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}

	r := &Region{
		file:     f,
		data:     data,
		hdr:      (*Header)(unsafe.Pointer(&data[0])),
		writable: true,
		slotSize: uint64(opts.SlotSize),
		slots:    uint64(opts.SlotCount),
		mask:     uint64(opts.SlotCount) - 1,
	}

	r.hdr.Magic = Magic
	r.hdr.Version = Version
	r.hdr.SlotSize = opts.SlotSize
	r.hdr.SlotCount = opts.SlotCount
	r.hdr.ProducerPid = uint32(os.Getpid())
	r.hdr.CreatedNs = uint64(time.Now().UnixNano())
	atomic.StoreUint64(&r.hdr.WriteCursor, 0)

	return r, nil
}

// Attach opens an existing region read-only. It fails with
// ErrSchemaMismatch if the header's magic or version does not match this
// build's expectations.
func Attach(name string) (*Region, error) {
	path := shmPath(name)
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: stat: %w", err)
	}
	if info.Size() < HeaderSize {
		f.Close()
		return nil, fmt.Errorf("shm: region %s too small to hold a header", name)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}

	hdr := (*Header)(unsafe.Pointer(&data[0]))
	if hdr.Magic != Magic || hdr.Version != Version {
		unix.Munmap(data)
		f.Close()
		return nil, ErrSchemaMismatch
	}

	slotSize := uint64(hdr.SlotSize)
	slots := uint64(hdr.SlotCount)
	wantSize := int64(HeaderSize) + int64(slots)*int64(slotSize)
	if info.Size() < wantSize {
		unix.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("shm: region %s truncated: have %d bytes, want %d", name, info.Size(), wantSize)
	}

	return &Region{
		file:     f,
		data:     data,
		hdr:      hdr,
		writable: false,
		slotSize: slotSize,
		slots:    slots,
		mask:     slots - 1,
	}, nil
}

// Close unmaps the region. On the last producer's Close the backing
// /dev/shm file may persist; naming discipline (picking a fresh name or
// passing Force on Create) is the caller's responsibility.
func (r *Region) Close() error {
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			return err
		}
		r.data = nil
	}
	return r.file.Close()
}

// SlotCount returns the region's fixed slot count.
func (r *Region) SlotCount() uint64 { return r.slots }

// SlotSize returns the region's fixed slot size.
func (r *Region) SlotSize() uint64 { return r.slotSize }

// PayloadCapacity returns the maximum payload bytes a slot can hold.
func (r *Region) PayloadCapacity() int { return int(r.slotSize) - slotHeaderSize }

func (r *Region) slotBytes(idx uint64) []byte {
	off := slotOffset(idx&r.mask, r.slotSize)
	return r.data[off : off+int64(r.slotSize)]
}

func (r *Region) loadWriteCursor() uint64 {
	return atomic.LoadUint64(&r.hdr.WriteCursor)
}

func (r *Region) storeWriteCursor(v uint64) {
	atomic.StoreUint64(&r.hdr.WriteCursor, v)
}
