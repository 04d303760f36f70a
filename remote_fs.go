package transfer

import (
	"io/fs"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jszwec/s3fs/v2"
)

// NewRemoteFS exposes the destination bucket as an fs.FS so callers can read
// back what the S3 sender assembled.
func NewRemoteFS(client *s3.Client, bucket string) fs.FS {
	return s3fs.New(client, bucket)
}
