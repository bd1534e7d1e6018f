package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// UploadStorage persists an uploaded image and returns its public URL.
type UploadStorage interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

/* =========================
   LOCAL DISK
========================= */

type localUploadStorage struct {
	rootDir string
}

func NewLocalUploadStorage(rootDir string) UploadStorage {
	return &localUploadStorage{rootDir: rootDir}
}

func (s *localUploadStorage) Save(_ context.Context, name, _ string, r io.Reader) (string, error) {
	cleanName := filepath.Base(strings.TrimSpace(name))
	if cleanName == "" || cleanName == "." || cleanName == string(os.PathSeparator) {
		return "", fmt.Errorf("invalid upload name: %q", name)
	}

	if err := os.MkdirAll(s.rootDir, 0o755); err != nil {
		return "", err
	}

	target := filepath.Join(s.rootDir, cleanName)
	f, err := os.Create(target)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(target)
		return "", err
	}

	return "/public/uploads/" + cleanName, nil
}

/* =========================
   S3
========================= */

type s3UploadStorage struct {
	client *s3.S3
	bucket string
	region string
}

func NewS3UploadStorage(bucket, region string) (UploadStorage, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	return &s3UploadStorage{
		client: s3.New(sess),
		bucket: bucket,
		region: region,
	}, nil
}

func (s *s3UploadStorage) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	key := "uploads/" + name
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}
