package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
	args [][]any
}

func (l *recordingLogger) Info(msg string, args ...any)  { l.record(msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record(msg, args) }

func (l *recordingLogger) record(msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
	l.args = append(l.args, args)
}

// value returns the first keyval recorded for a message.
func (l *recordingLogger) value(msg, key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, m := range l.msgs {
		if m != msg {
			continue
		}
		kv := l.args[i]
		for j := 0; j+1 < len(kv); j += 2 {
			if kv[j] == key {
				return kv[j+1], true
			}
		}
	}
	return nil, false
}

func TestUploadFilesSequential(t *testing.T) {
	sender := newMockSender()
	manager := NewManager(WithSender(sender), WithChunkSize(1024))

	files := []*File{
		FileFromBytes("one.bin", make([]byte, 3*1024)),
		FileFromBytes("two.bin", make([]byte, 2*1024)),
	}

	result := manager.UploadFiles(context.Background(), files)

	if len(result.Successful) != 2 {
		t.Fatalf("successful = %v, want both files", result.Successful)
	}

	if len(result.Failed) != 0 {
		t.Fatalf("failed = %v, want none", result.Failed)
	}

	if result.Successful[0] != "one.bin" || result.Successful[1] != "two.bin" {
		t.Fatalf("files uploaded out of order: %v", result.Successful)
	}

	if len(sender.requests) != 5 {
		t.Fatalf("sender invoked %d times, want 5", len(sender.requests))
	}
}

func TestUploadFilesIsolatesFailures(t *testing.T) {
	sender := newMockSender()
	sender.failIndex = 1

	manager := NewManager(WithSender(sender), WithChunkSize(1024))

	files := []*File{
		FileFromBytes("bad.bin", make([]byte, 4*1024)),
		FileFromBytes("small.bin", make([]byte, 512)),
	}

	result := manager.UploadFiles(context.Background(), files, Concurrency(1))

	if len(result.Failed) != 1 || result.Failed[0].File != "bad.bin" {
		t.Fatalf("failed = %v, want bad.bin only", result.Failed)
	}

	if !errors.Is(result.Failed[0].Err, ErrChunkTransfer) {
		t.Fatalf("failure error = %v, want chunk transfer error", result.Failed[0].Err)
	}

	// the queue kept going: small.bin has a single chunk at index 0
	if len(result.Successful) != 1 || result.Successful[0] != "small.bin" {
		t.Fatalf("successful = %v, want small.bin", result.Successful)
	}
}

func TestUploadFilesNilFile(t *testing.T) {
	manager := NewManager(WithSender(newMockSender()))

	result := manager.UploadFiles(context.Background(), []*File{nil})

	if len(result.Failed) != 1 || !errors.Is(result.Failed[0].Err, ErrNoFile) {
		t.Fatalf("failed = %v, want ErrNoFile", result.Failed)
	}
}

func TestUploadFilesCancelledQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	sender := newMockSender()
	sender.latency = 20 * time.Millisecond

	manager := NewManager(WithSender(sender), WithChunkSize(1024))

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	files := []*File{
		FileFromBytes("first.bin", make([]byte, 16*1024)),
		FileFromBytes("second.bin", make([]byte, 16*1024)),
	}

	result := manager.UploadFiles(ctx, files)

	if len(result.Successful) != 0 {
		t.Fatalf("successful = %v, want none after cancellation", result.Successful)
	}

	if len(result.Failed) != 2 {
		t.Fatalf("failed = %v, want both files reported", result.Failed)
	}

	for _, fe := range result.Failed {
		if !IsCancelled(fe.Err) {
			t.Fatalf("%s error = %v, want cancelled", fe.File, fe.Err)
		}
	}
}

func TestUploadFilesDeclaresBatchTotal(t *testing.T) {
	sender := newMockSender()
	agg := NewAggregate()
	manager := NewManager(WithSender(sender), WithAggregate(agg), WithChunkSize(1024))

	var during []int
	files := []*File{
		FileFromBytes("ten.bin", make([]byte, 10*1024)),
		FileFromBytes("five.bin", make([]byte, 5*1024)),
	}

	manager.UploadFiles(context.Background(), files,
		Concurrency(1),
		OnProgress(func(ProgressEntry) { during = append(during, agg.OverallProgress()) }),
	)

	for i := 1; i < len(during); i++ {
		if during[i] < during[i-1] {
			t.Fatalf("overall progress regressed from %d to %d across sequential files", during[i-1], during[i])
		}
	}

	if len(during) == 0 || during[len(during)-1] != 100 {
		t.Fatalf("final overall progress %v, want 100", during)
	}
}

func TestUploadFileLogsSessionID(t *testing.T) {
	logger := &recordingLogger{}
	sender := newMockSender()
	sender.failIndex = 0

	manager := NewManager(WithSender(sender), WithLogger(logger), WithChunkSize(1024))

	if err := manager.UploadFile(context.Background(), FileFromBytes("logged.bin", make([]byte, 2048))); err == nil {
		t.Fatal("expected chunk failure")
	}

	startID, ok := logger.value("upload start", "session")
	if !ok {
		t.Fatal("upload start log is missing the session id")
	}

	id, ok := startID.(string)
	if !ok || id == "" {
		t.Fatalf("session id = %v, want a non-empty string", startID)
	}

	failID, ok := logger.value("chunk batch failed", "session")
	if !ok {
		t.Fatal("chunk batch failed log is missing the session id")
	}

	if failID != startID {
		t.Fatalf("failure logged session %v, start logged %v, want the same id", failID, startID)
	}
}

type validatingSender struct {
	mockSender
	validateErr error
	validated   int
}

func (v *validatingSender) Validate(ctx context.Context) error {
	v.validated++
	return v.validateErr
}

func TestManagerValidateSender(t *testing.T) {
	ctx := context.Background()

	if err := NewManager().ValidateSender(ctx); !errors.Is(err, ErrSenderNotConfigured) {
		t.Fatalf("expected ErrSenderNotConfigured, got %v", err)
	}

	// a sender without validation passes trivially
	if err := NewManager(WithSender(newMockSender())).ValidateSender(ctx); err != nil {
		t.Fatalf("plain sender validate = %v, want nil", err)
	}

	sender := &validatingSender{mockSender: mockSender{failIndex: -1}}
	manager := NewManager(WithSender(sender))

	if err := manager.ValidateSender(ctx); err != nil {
		t.Fatalf("validate = %v, want nil", err)
	}

	sender.validateErr = errors.New("bucket unreachable")
	if err := manager.ValidateSender(ctx); err == nil || err.Error() != "bucket unreachable" {
		t.Fatalf("validate = %v, want backend error", err)
	}

	if sender.validated != 2 {
		t.Fatalf("Validate called %d times, want 2", sender.validated)
	}
}

func TestFileFromBytes(t *testing.T) {
	file := FileFromBytes("mem.bin", []byte("abcdef"))

	if file.Size != 6 {
		t.Fatalf("size = %d, want 6", file.Size)
	}

	buf := make([]byte, 3)
	if _, err := file.ReadAt(buf, 3); err != nil {
		t.Fatalf("ReadAt returned error: %v", err)
	}

	if string(buf) != "def" {
		t.Fatalf("ReadAt = %q, want def", buf)
	}

	if err := file.Close(); err != nil {
		t.Fatalf("Close on memory file returned error: %v", err)
	}
}
