package transfer

import (
	"bytes"
	"context"
	"io"
	"os"
)

// ChunkRequest carries one chunk to the sender.
type ChunkRequest struct {
	FileName    string
	FileSize    int64
	ChunkIndex  int
	TotalChunks int
	Bytes       []byte
}

// ChunkSender performs the actual network transmission of one chunk. Two
// chunks of the same batch may arrive out of order, so implementations must
// assemble by index and tolerate idempotent re-delivery per index. Senders
// must honor ctx mid-flight; this layer only polls it at batch boundaries.
type ChunkSender interface {
	Send(ctx context.Context, req *ChunkRequest) error
}

// SenderFinalizer is implemented by senders that keep per-file state across
// chunks. Finalize is called once after the last chunk of a successful file,
// Discard at most once after a failure or cancellation.
type SenderFinalizer interface {
	Finalize(ctx context.Context, fileName string) error
	Discard(ctx context.Context, fileName string) error
}

// SenderValidator lets a sender preflight its backend before any chunk is
// dispatched.
type SenderValidator interface {
	Validate(ctx context.Context) error
}

// File is an upload source: a name, a size and random access to the bytes.
type File struct {
	Name string
	Size int64

	reader io.ReaderAt
	closer io.Closer
}

var _ io.ReaderAt = &File{}

func NewFile(name string, size int64, r io.ReaderAt) *File {
	return &File{Name: name, Size: size, reader: r}
}

func FileFromBytes(name string, data []byte) *File {
	return &File{
		Name:   name,
		Size:   int64(len(data)),
		reader: bytes.NewReader(data),
	}
}

// OpenFile wraps an on-disk file. Close it when the upload is done.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{
		Name:   info.Name(),
		Size:   info.Size(),
		reader: f,
		closer: f,
	}, nil
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.reader.ReadAt(p, off)
}

func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Manager owns defaults and shared state for chunked transfers. One manager
// serves many sequential files; chunk-level parallelism is scoped to one file
// at a time.
type Manager struct {
	logger         Logger
	sender         ChunkSender
	aggregate      *Aggregate
	executor       CallbackExecutor
	chunkSize      int64
	maxConcurrency int
	quality        NetworkQuality
	hasQuality     bool
}

type Option func(m *Manager)

func WithLogger(l Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

func WithSender(s ChunkSender) Option {
	return func(m *Manager) {
		m.sender = s
	}
}

func WithAggregate(a *Aggregate) Option {
	return func(m *Manager) {
		if a != nil {
			m.aggregate = a
		}
	}
}

func WithCallbackExecutor(e CallbackExecutor) Option {
	return func(m *Manager) {
		if e != nil {
			m.executor = e
		}
	}
}

func WithChunkSize(size int64) Option {
	return func(m *Manager) {
		if size > 0 {
			m.chunkSize = size
		}
	}
}

func WithMaxConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxConcurrency = n
		}
	}
}

func WithNetworkQuality(q NetworkQuality) Option {
	return func(m *Manager) {
		m.quality = q
		m.hasQuality = true
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:    &DefaultLogger{},
		aggregate: NewAggregate(),
		executor:  syncCallbackExecutor{},
		chunkSize: DefaultChunkSize,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Aggregate exposes the shared progress store fed by this manager's
// transfers.
func (m *Manager) Aggregate() *Aggregate {
	return m.aggregate
}

// ValidateSender preflights the configured sender's backend so callers can
// fail fast before queueing any file. Senders that implement no validation
// pass trivially.
func (m *Manager) ValidateSender(ctx context.Context) error {
	if m.sender == nil {
		return ErrSenderNotConfigured
	}

	validator, ok := m.sender.(SenderValidator)
	if !ok {
		return nil
	}

	return validator.Validate(ctx)
}

// TransferOptions are per-call overrides of the manager defaults.
type TransferOptions struct {
	ChunkSize      int64
	MaxConcurrency int
	Quality        NetworkQuality
	hasQuality     bool
	OnProgress     ProgressFunc
	OnFileComplete CompleteFunc
}

type UploadOption func(*TransferOptions)

func OnProgress(fn ProgressFunc) UploadOption {
	return func(o *TransferOptions) { o.OnProgress = fn }
}

func OnFileComplete(fn CompleteFunc) UploadOption {
	return func(o *TransferOptions) { o.OnFileComplete = fn }
}

func ChunkSize(size int64) UploadOption {
	return func(o *TransferOptions) {
		if size > 0 {
			o.ChunkSize = size
		}
	}
}

func Concurrency(n int) UploadOption {
	return func(o *TransferOptions) {
		if n > 0 {
			o.MaxConcurrency = n
		}
	}
}

func QualityHint(q NetworkQuality) UploadOption {
	return func(o *TransferOptions) {
		o.Quality = q
		o.hasQuality = true
	}
}

func (m *Manager) transferOptions(opts []UploadOption) *TransferOptions {
	cfg := &TransferOptions{
		ChunkSize:      m.chunkSize,
		MaxConcurrency: m.maxConcurrency,
		Quality:        m.quality,
		hasQuality:     m.hasQuality,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// UploadFile transports one file through the configured sender in
// bounded-concurrency chunk batches. A nil error means every chunk arrived
// and the sender finalized the file; a cancelled transfer returns an error
// for which IsCancelled is true. There is no chunk-level retry: any chunk
// failure fails the file and re-upload is the caller's decision.
func (m *Manager) UploadFile(ctx context.Context, file *File, opts ...UploadOption) error {
	if file == nil || file.Name == "" {
		return ErrNoFile
	}

	if m.sender == nil {
		return ErrSenderNotConfigured
	}

	cfg := m.transferOptions(opts)

	plan, err := NewPlan(file.Size, cfg.ChunkSize)
	if err != nil {
		return err
	}

	concurrency := clampConcurrency(
		initialConcurrency(cfg.Quality, cfg.hasQuality),
		cfg.MaxConcurrency,
	)

	session := newTransferSession(file.Name, file.Size, plan.Count(), concurrency)

	m.logger.Info("upload start",
		"session", session.ID,
		"file", file.Name,
		"size", file.Size,
		"chunks", session.TotalChunks,
		"concurrency", concurrency,
	)

	sch := &scheduler{
		sender:         m.sender,
		session:        session,
		plan:           plan,
		file:           file,
		logger:         m.logger,
		aggregate:      m.aggregate,
		executor:       m.executor,
		onProgress:     cfg.OnProgress,
		onFileComplete: cfg.OnFileComplete,
		maxConcurrency: cfg.MaxConcurrency,
	}

	return sch.run(ctx)
}

// FileError pairs a failed file with its error.
type FileError struct {
	File string
	Err  error
}

// BatchResult reports the outcome of a multi-file upload.
type BatchResult struct {
	Successful []string
	Failed     []FileError
}

// UploadFiles uploads files sequentially, isolating failures so one bad file
// does not abort the rest of the queue. The combined byte total is declared
// to the aggregate up front and the live entry map is reset between files so
// the overall metrics stay continuous.
func (m *Manager) UploadFiles(ctx context.Context, files []*File, opts ...UploadOption) *BatchResult {
	result := &BatchResult{}

	var total int64
	for _, file := range files {
		if file != nil {
			total += file.Size
		}
	}
	m.aggregate.SetTotalBytesToUpload(total)

	for i, file := range files {
		if i > 0 {
			m.aggregate.ResetForNewBatch()
		}

		name := ""
		if file != nil {
			name = file.Name
		}

		if ctx.Err() != nil {
			result.Failed = append(result.Failed, FileError{File: name, Err: cancelledError(name)})
			continue
		}

		if err := m.UploadFile(ctx, file, opts...); err != nil {
			result.Failed = append(result.Failed, FileError{File: name, Err: err})
			continue
		}

		result.Successful = append(result.Successful, name)
	}

	return result
}
