package transfer

import (
	"bytes"
	"io"
	"strconv"
	"time"

	gerrors "github.com/goliatone/go-errors"
)

// Single-file tape-archive container: one 512-byte ustar header, the raw file
// bytes NUL-padded to the next block boundary, and two all-zero trailer
// blocks. The receiving unpacker checks exact bytes, so the layout here is
// fixed.

const (
	archiveBlockSize = 512
	archiveNameLen   = 100
	archiveMaxSize   = 1<<33 - 1 // 11 octal digits

	archiveMagic   = "ustar\x00"
	archiveVersion = "00"
)

var (
	ErrArchiveNameTooLong = gerrors.New("archive entry name too long", gerrors.CategoryBadInput).
				WithCode(400).
				WithTextCode("ARCHIVE_NAME_TOO_LONG")

	ErrArchiveFieldOverflow = gerrors.New("archive header field overflow", gerrors.CategoryBadInput).
				WithCode(400).
				WithTextCode("ARCHIVE_FIELD_OVERFLOW")
)

type archiveHeader struct {
	mode    int64
	uid     int
	gid     int
	modTime time.Time
	uname   string
	gname   string
}

type ArchiveOption func(*archiveHeader)

func WithArchiveMode(mode int64) ArchiveOption {
	return func(h *archiveHeader) { h.mode = mode }
}

func WithArchiveModTime(t time.Time) ArchiveOption {
	return func(h *archiveHeader) { h.modTime = t }
}

func WithArchiveOwner(uid, gid int) ArchiveOption {
	return func(h *archiveHeader) {
		h.uid = uid
		h.gid = gid
	}
}

func WithArchiveUser(uname, gname string) ArchiveOption {
	return func(h *archiveHeader) {
		h.uname = uname
		h.gname = gname
	}
}

// EncodeArchive writes the archive container for a single regular file to w.
func EncodeArchive(w io.Writer, name string, data []byte, opts ...ArchiveOption) error {
	hdr := &archiveHeader{
		mode:    0o644,
		modTime: time.Now(),
	}
	for _, opt := range opts {
		opt(hdr)
	}

	block, err := encodeArchiveHeader(name, int64(len(data)), hdr)
	if err != nil {
		return err
	}

	if _, err := w.Write(block); err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return err
	}

	if pad := len(data) % archiveBlockSize; pad != 0 {
		if _, err := w.Write(make([]byte, archiveBlockSize-pad)); err != nil {
			return err
		}
	}

	_, err = w.Write(make([]byte, 2*archiveBlockSize))
	return err
}

// ArchiveBytes is a convenience wrapper returning the encoded stream.
func ArchiveBytes(name string, data []byte, opts ...ArchiveOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeArchive(&buf, name, data, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeArchiveHeader(name string, size int64, hdr *archiveHeader) ([]byte, error) {
	if len(name) > archiveNameLen {
		return nil, ErrArchiveNameTooLong
	}

	if size > archiveMaxSize {
		return nil, ErrArchiveFieldOverflow
	}

	block := make([]byte, archiveBlockSize)

	copy(block[0:], name)
	putOctal(block[100:108], hdr.mode&0o7777)
	putOctal(block[108:116], int64(hdr.uid))
	putOctal(block[116:124], int64(hdr.gid))
	putOctal(block[124:136], size)

	mtime := hdr.modTime.Unix()
	if mtime < 0 {
		mtime = 0
	}
	putOctal(block[136:148], mtime)

	// checksum is computed with its own field as all spaces
	copy(block[148:156], "        ")
	block[156] = '0' // regular file

	copy(block[257:], archiveMagic)
	copy(block[263:], archiveVersion)
	copy(block[265:], hdr.uname)
	copy(block[297:], hdr.gname)

	var sum int64
	for _, b := range block {
		sum += int64(b)
	}

	// six octal digits, NUL, space
	chk := strconv.FormatInt(sum, 8)
	for len(chk) < 6 {
		chk = "0" + chk
	}
	copy(block[148:], chk)
	block[154] = 0
	block[155] = ' '

	return block, nil
}

// putOctal writes v as zero-padded ASCII octal followed by a NUL terminator,
// filling the field exactly.
func putOctal(field []byte, v int64) {
	s := strconv.FormatInt(v, 8)
	digits := len(field) - 1
	for len(s) < digits {
		s = "0" + s
	}
	copy(field, s)
	field[len(field)-1] = 0
}
