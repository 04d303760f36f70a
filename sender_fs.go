package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	_ ChunkSender     = &FSSender{}
	_ SenderFinalizer = &FSSender{}
)

// FSSender lands chunks as numbered part files under a base directory and
// assembles them by index on finalize. Writing a part is idempotent, so
// re-delivery of a chunk index just overwrites the same file.
type FSSender struct {
	base   string
	logger Logger

	mu    sync.Mutex
	parts map[string]int
}

func NewFSSender(base string) *FSSender {
	return &FSSender{
		base:   base,
		logger: &DefaultLogger{},
		parts:  make(map[string]int),
	}
}

func (s *FSSender) WithLogger(l Logger) *FSSender {
	s.logger = l
	return s
}

func (s *FSSender) Send(ctx context.Context, req *ChunkRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	partPath := s.partPath(req.FileName, req.ChunkIndex)
	if err := os.MkdirAll(filepath.Dir(partPath), 0755); err != nil {
		return fmt.Errorf("fs sender: mkdir: %w", err)
	}

	if err := os.WriteFile(partPath, req.Bytes, 0644); err != nil {
		return fmt.Errorf("fs sender: write part: %w", err)
	}

	s.mu.Lock()
	s.parts[req.FileName] = req.TotalChunks
	s.mu.Unlock()

	return nil
}

// Finalize concatenates the part files in index order into the destination
// path and removes them.
func (s *FSSender) Finalize(ctx context.Context, fileName string) error {
	s.mu.Lock()
	total, ok := s.parts[fileName]
	delete(s.parts, fileName)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("fs sender: no chunks received for %s", fileName)
	}

	destPath := filepath.Join(s.base, filepath.Clean(fileName))
	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("fs sender: create destination: %w", err)
	}
	defer dest.Close()

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := os.ReadFile(s.partPath(fileName, i))
		if err != nil {
			return fmt.Errorf("fs sender: read part %d: %w", i, err)
		}

		if _, err := dest.Write(data); err != nil {
			return fmt.Errorf("fs sender: assemble part %d: %w", i, err)
		}
	}

	for i := 0; i < total; i++ {
		if err := os.Remove(s.partPath(fileName, i)); err != nil {
			s.logger.Error("remove part failed", "file", fileName, "part", i, "error", err)
		}
	}

	return nil
}

// Discard removes any parts written so far.
func (s *FSSender) Discard(ctx context.Context, fileName string) error {
	s.mu.Lock()
	total, ok := s.parts[fileName]
	delete(s.parts, fileName)
	s.mu.Unlock()

	if !ok {
		return nil
	}

	for i := 0; i < total; i++ {
		if err := os.Remove(s.partPath(fileName, i)); err != nil && !os.IsNotExist(err) {
			s.logger.Error("remove part failed", "file", fileName, "part", i, "error", err)
		}
	}

	return nil
}

func (s *FSSender) partPath(fileName string, index int) string {
	return filepath.Join(s.base, filepath.Clean(fileName)+fmt.Sprintf(".part%05d", index))
}
