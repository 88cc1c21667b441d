package page

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// BlockSize is the size of every on-disk page.
	BlockSize = 4096

	// HeaderSlots is the number of uint32 header slots at the start of
	// the file. Slot 1 holds the root page id, slot 2 the free-list head.
	HeaderSlots = 2

	headerSize = HeaderSlots * 4

	// RootSlot and FreeListSlot are the 1-based header slot indexes.
	RootSlot     = 1
	FreeListSlot = 2
)

// Pager owns a single paged file: an 8-byte header of uint32 slots
// followed by fixed-size pages addressed by 1-based ids. Freed pages are
// threaded into a singly-linked free list whose head lives in header
// slot 2; allocation pops the head or extends the file.
//
// The file handle is exclusively owned; opening the same file through two
// pagers at once yields undefined results.
type Pager struct {
	path string
	file *os.File
	log  *zap.Logger
}

// OpenPager opens the paged file at path, creating it with a zeroed
// header if it does not exist. A nil logger defaults to a no-op logger.
func OpenPager(path string, log *zap.Logger) (*Pager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open paged file %s", path)
	}
	p := &Pager{path: path, file: file, log: log}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "stat paged file %s", path)
	}
	if fi.Size() < headerSize {
		var header [headerSize]byte
		if _, err := file.WriteAt(header[:], 0); err != nil {
			file.Close()
			return nil, errors.Wrapf(err, "initialize header of %s", path)
		}
		log.Info("created paged file", zap.String("path", path))
	}
	return p, nil
}

// Path returns the file path the pager was opened with.
func (p *Pager) Path() string {
	return p.path
}

// ReadInfo reads the 1-based header slot.
func (p *Pager) ReadInfo(slot int) (uint32, error) {
	if slot < 1 || slot > HeaderSlots {
		return 0, errors.Errorf("header slot %d out of range [1, %d]", slot, HeaderSlots)
	}
	var buf [4]byte
	if _, err := p.file.ReadAt(buf[:], int64(slot-1)*4); err != nil {
		return 0, errors.Wrapf(err, "read header slot %d of %s", slot, p.path)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteInfo writes the 1-based header slot.
func (p *Pager) WriteInfo(slot int, value uint32) error {
	if slot < 1 || slot > HeaderSlots {
		return errors.Errorf("header slot %d out of range [1, %d]", slot, HeaderSlots)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	if _, err := p.file.WriteAt(buf[:], int64(slot-1)*4); err != nil {
		return errors.Wrapf(err, "write header slot %d of %s", slot, p.path)
	}
	return nil
}

func pageOffset(id uint32) int64 {
	return headerSize + int64(id-1)*BlockSize
}

// ReadPage reads page id into buf, which must be exactly BlockSize bytes.
func (p *Pager) ReadPage(id uint32, buf []byte) error {
	if id == 0 {
		return errors.New("read of page id 0")
	}
	if len(buf) != BlockSize {
		return errors.Errorf("page buffer must be %d bytes, got %d", BlockSize, len(buf))
	}
	if _, err := p.file.ReadAt(buf, pageOffset(id)); err != nil {
		return errors.Wrapf(err, "read page %d of %s", id, p.path)
	}
	return nil
}

// WritePage writes buf, which must be exactly BlockSize bytes, to page id.
func (p *Pager) WritePage(id uint32, buf []byte) error {
	if id == 0 {
		return errors.New("write to page id 0")
	}
	if len(buf) != BlockSize {
		return errors.Errorf("page buffer must be %d bytes, got %d", BlockSize, len(buf))
	}
	if _, err := p.file.WriteAt(buf, pageOffset(id)); err != nil {
		return errors.Wrapf(err, "write page %d of %s", id, p.path)
	}
	return nil
}

// AllocPage allocates a page and writes buf as its initial contents.
// The free-list head is reused when one exists; otherwise the file grows
// by one block. Returns the allocated page id.
func (p *Pager) AllocPage(buf []byte) (uint32, error) {
	if len(buf) != BlockSize {
		return 0, errors.Errorf("page buffer must be %d bytes, got %d", BlockSize, len(buf))
	}
	head, err := p.ReadInfo(FreeListSlot)
	if err != nil {
		return 0, err
	}

	var id uint32
	if head != 0 {
		// Pop the free-list head; its first 4 bytes hold the next free id.
		var next [4]byte
		if _, err := p.file.ReadAt(next[:], pageOffset(head)); err != nil {
			return 0, errors.Wrapf(err, "read free page %d of %s", head, p.path)
		}
		if err := p.WriteInfo(FreeListSlot, binary.LittleEndian.Uint32(next[:])); err != nil {
			return 0, err
		}
		id = head
	} else {
		fi, err := p.file.Stat()
		if err != nil {
			return 0, errors.Wrapf(err, "stat %s", p.path)
		}
		id = uint32((fi.Size()-headerSize)/BlockSize) + 1
	}

	if err := p.WritePage(id, buf); err != nil {
		return 0, err
	}
	p.log.Debug("allocated page", zap.Uint32("page", id), zap.Bool("reused", head != 0))
	return id, nil
}

// FreePage pushes page id onto the free list: the current head is stored
// in the page's first 4 bytes and the header head becomes id. The rest of
// the page's contents are left untouched.
func (p *Pager) FreePage(id uint32) error {
	if id == 0 {
		return errors.New("free of page id 0")
	}
	head, err := p.ReadInfo(FreeListSlot)
	if err != nil {
		return err
	}
	var next [4]byte
	binary.LittleEndian.PutUint32(next[:], head)
	if _, err := p.file.WriteAt(next[:], pageOffset(id)); err != nil {
		return errors.Wrapf(err, "link free page %d of %s", id, p.path)
	}
	if err := p.WriteInfo(FreeListSlot, id); err != nil {
		return err
	}
	p.log.Debug("freed page", zap.Uint32("page", id))
	return nil
}

// ReadFreeNext reads the next-free link stored in the first 4 bytes of a
// free page. Meaningful only for pages on the free list.
func (p *Pager) ReadFreeNext(id uint32) (uint32, error) {
	if id == 0 {
		return 0, errors.New("read of page id 0")
	}
	var buf [4]byte
	if _, err := p.file.ReadAt(buf[:], pageOffset(id)); err != nil {
		return 0, errors.Wrapf(err, "read free link of page %d of %s", id, p.path)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// NumPages returns the number of pages currently in the file, free or
// allocated.
func (p *Pager) NumPages() (uint32, error) {
	fi, err := p.file.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", p.path)
	}
	if fi.Size() < headerSize {
		return 0, nil
	}
	return uint32((fi.Size() - headerSize) / BlockSize), nil
}

// Sync flushes the file to stable storage.
func (p *Pager) Sync() error {
	return errors.Wrapf(p.file.Sync(), "sync %s", p.path)
}

// Close releases the file handle.
func (p *Pager) Close() error {
	return errors.Wrapf(p.file.Close(), "close %s", p.path)
}
