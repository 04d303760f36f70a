package transfer

import (
	"io"

	gerrors "github.com/goliatone/go-errors"
)

// Chunk is one contiguous byte range of a file sized to the upload unit
// boundary. Ranges partition the file exactly; only the last chunk may be
// shorter than the plan's chunk size.
type Chunk struct {
	Index  int
	Offset int64
	Length int64
	Data   []byte
}

// Plan computes chunk boundaries for a file of a given size.
type Plan struct {
	totalSize int64
	chunkSize int64
}

// NewPlan builds a chunk plan. A zero-size file yields a plan with zero
// chunks.
func NewPlan(totalSize, chunkSize int64) (Plan, error) {
	if totalSize < 0 {
		return Plan{}, gerrors.NewValidation("chunk plan invalid",
			gerrors.FieldError{
				Field:   "total_size",
				Message: "cannot be negative",
				Value:   totalSize,
			},
		).WithCode(400).WithTextCode("INVALID_TOTAL_SIZE")
	}

	if chunkSize <= 0 {
		return Plan{}, gerrors.NewValidation("chunk plan invalid",
			gerrors.FieldError{
				Field:   "chunk_size",
				Message: "must be greater than zero",
				Value:   chunkSize,
			},
		).WithCode(400).WithTextCode("INVALID_CHUNK_SIZE")
	}

	return Plan{totalSize: totalSize, chunkSize: chunkSize}, nil
}

// Count returns ceil(totalSize / chunkSize).
func (p Plan) Count() int {
	if p.totalSize == 0 {
		return 0
	}
	return int((p.totalSize + p.chunkSize - 1) / p.chunkSize)
}

// TotalSize returns the file size the plan covers.
func (p Plan) TotalSize() int64 {
	return p.totalSize
}

// ChunkSize returns the nominal chunk size.
func (p Plan) ChunkSize() int64 {
	return p.chunkSize
}

// Range returns the byte range [offset, offset+length) of chunk i.
func (p Plan) Range(i int) (offset, length int64) {
	offset = int64(i) * p.chunkSize
	length = p.chunkSize
	if offset+length > p.totalSize {
		length = p.totalSize - offset
	}
	return offset, length
}

// Slice reads chunk i from r. The returned chunk owns its data buffer, so
// concurrent slices of the same reader are safe as long as r supports
// concurrent ReadAt.
func (p Plan) Slice(r io.ReaderAt, i int) (Chunk, error) {
	offset, length := p.Range(i)

	buf := make([]byte, length)
	n, err := r.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return Chunk{}, err
	}
	if int64(n) != length {
		return Chunk{}, io.ErrUnexpectedEOF
	}

	return Chunk{
		Index:  i,
		Offset: offset,
		Length: length,
		Data:   buf,
	}, nil
}
