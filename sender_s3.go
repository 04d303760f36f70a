package transfer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/goliatone/go-print"
)

var (
	_ ChunkSender     = &S3Sender{}
	_ SenderFinalizer = &S3Sender{}
	_ SenderValidator = &S3Sender{}
)

type s3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

type s3Upload struct {
	id    string
	key   string
	parts map[int]types.CompletedPart
}

// S3Sender lands each file as one S3 multipart upload: the first chunk of a
// file lazily creates the upload, every chunk becomes a part, and Finalize
// completes the object. Part sizes must satisfy the S3 multipart minimum for
// all but the last part.
type S3Sender struct {
	client   s3API
	bucket   string
	basePath string
	logger   Logger

	mu      sync.Mutex
	uploads map[string]*s3Upload
}

func NewS3Sender(client *s3.Client, bucket string) *S3Sender {
	return &S3Sender{
		client:  client,
		bucket:  bucket,
		logger:  &DefaultLogger{},
		uploads: make(map[string]*s3Upload),
	}
}

func (s *S3Sender) WithLogger(logger Logger) *S3Sender {
	s.logger = logger
	return s
}

func (s *S3Sender) WithBasePath(basePath string) *S3Sender {
	s.basePath = basePath
	return s
}

func (s *S3Sender) Send(ctx context.Context, req *ChunkRequest) error {
	upload, err := s.ensureUpload(ctx, req)
	if err != nil {
		return err
	}

	partNumber := int32(req.ChunkIndex + 1)
	resp, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(upload.key),
		UploadId:   aws.String(upload.id),
		PartNumber: aws.Int32(partNumber),
		Body:       bytes.NewReader(req.Bytes),
	})
	if err != nil {
		return fmt.Errorf("s3 sender: upload part %d: %w", req.ChunkIndex, err)
	}

	s.mu.Lock()
	upload.parts[req.ChunkIndex] = types.CompletedPart{
		ETag:       resp.ETag,
		PartNumber: aws.Int32(partNumber),
	}
	s.mu.Unlock()

	return nil
}

func (s *S3Sender) Finalize(ctx context.Context, fileName string) error {
	upload, err := s.takeUpload(fileName)
	if err != nil {
		return err
	}

	completed := make([]types.CompletedPart, 0, len(upload.parts))
	for _, part := range upload.parts {
		completed = append(completed, part)
	}
	sort.Slice(completed, func(i, j int) bool {
		return aws.ToInt32(completed[i].PartNumber) < aws.ToInt32(completed[j].PartNumber)
	})

	res, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(upload.key),
		UploadId: aws.String(upload.id),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return fmt.Errorf("s3 sender: complete multipart upload: %w", err)
	}

	s.logger.Info("complete multipart upload", "res", print.MaybeHighlightJSON(res))
	return nil
}

func (s *S3Sender) Discard(ctx context.Context, fileName string) error {
	upload, err := s.takeUpload(fileName)
	if err != nil {
		return nil
	}

	_, err = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(upload.key),
		UploadId: aws.String(upload.id),
	})
	if err != nil {
		return fmt.Errorf("s3 sender: abort multipart upload: %w", err)
	}

	return nil
}

func (s *S3Sender) Validate(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("s3 sender: client not configured")
	}

	if s.bucket == "" {
		return fmt.Errorf("s3 sender: bucket not configured")
	}

	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("s3 sender: head bucket: %w", err)
	}

	return nil
}

// ensureUpload creates the multipart upload on the first chunk of a file.
// The content type is sniffed from whichever chunk arrives first.
func (s *S3Sender) ensureUpload(ctx context.Context, req *ChunkRequest) (*s3Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if upload, ok := s.uploads[req.FileName]; ok {
		return upload, nil
	}

	key := s.getKey(req.FileName)
	contentType := mimetype.Detect(req.Bytes).String()

	resp, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 sender: create multipart upload: %w", err)
	}

	upload := &s3Upload{
		id:    aws.ToString(resp.UploadId),
		key:   key,
		parts: make(map[int]types.CompletedPart),
	}
	s.uploads[req.FileName] = upload

	return upload, nil
}

func (s *S3Sender) takeUpload(fileName string) (*s3Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	upload, ok := s.uploads[fileName]
	if !ok {
		return nil, fmt.Errorf("s3 sender: no multipart upload for %s", fileName)
	}

	delete(s.uploads, fileName)
	return upload, nil
}

func (s *S3Sender) getKey(fileName string) string {
	if s.basePath == "" {
		return fileName
	}
	return path.Join(s.basePath, fileName)
}
