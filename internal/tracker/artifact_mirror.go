package tracker

import (
	"context"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArtifactMirror uploads a run's output artifacts to an S3-compatible
// bucket, adapted from the teacher's MinIOService for mirroring run
// output instead of sermon audio.
type ArtifactMirror struct {
	client *minio.Client
	bucket string
}

func NewArtifactMirror(endpoint, accessKey, secretKey, bucket string, secure bool) (*ArtifactMirror, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}
	return &ArtifactMirror{client: client, bucket: bucket}, nil
}

func (m *ArtifactMirror) EnsureBucketExists(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Upload copies localPath into <runID>/<basename> in the mirror bucket.
func (m *ArtifactMirror) Upload(ctx context.Context, runID, localPath string) error {
	objectName := filepath.Join(runID, filepath.Base(localPath))
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = m.client.PutObject(ctx, m.bucket, objectName, f, info.Size(), minio.PutObjectOptions{})
	return err
}
