/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"k8s.io/klog/v2"

	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
)

type Client struct {
	accessKey string
	secretKey string
	endpoint  string
	bucket    string
	region    string
	keyPrefix string
	timeout   int64
}

// NewClient builds the archiver from the loaded configuration. It returns
// nil when archival is disabled, callers treat a nil Interface as "keep
// everything local only".
func NewClient(ctx context.Context) Interface {
	if !config.IsS3Enable() {
		return nil
	}
	cli := &Client{
		accessKey: config.GetS3AccessKey(),
		secretKey: config.GetS3SecretKey(),
		endpoint:  config.GetS3Endpoint(),
		bucket:    config.GetS3Bucket(),
		region:    config.GetS3Region(),
		keyPrefix: config.GetS3KeyPrefix(),
		timeout:   int64(config.GetS3TimeoutSecond()),
	}
	if cli.bucket == "" || cli.endpoint == "" {
		klog.ErrorS(nil, "s3 archival enabled but bucket or endpoint is missing, disabling")
		return nil
	}
	if err := cli.EnsureBucket(ctx); err != nil {
		klog.ErrorS(err, "failed to prepare bucket", "bucket", cli.bucket)
		return nil
	}
	klog.Infof("init s3 archiver successfully, endpoint: %s, bucket: %s", cli.endpoint, cli.bucket)
	return cli
}

func (c *Client) newS3Client() (*s3.S3, error) {
	newSession, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials(c.accessKey, c.secretKey, ""),
		Endpoint:         aws.String(c.endpoint),
		Region:           aws.String(c.region),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return s3.New(newSession), nil
}

// ObjectKey maps a file id to its bucket key.
func (c *Client) ObjectKey(fileId string) string {
	if c == nil || c.keyPrefix == "" {
		return fileId
	}
	return path.Join(c.keyPrefix, fileId)
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("please init client first")
	}
	s3Client, err := c.newS3Client()
	if err != nil {
		return err
	}
	timeoutCtx, cancel := withOptionalTimeout(ctx, c.timeout)
	defer cancel()

	if _, err = s3Client.HeadBucketWithContext(timeoutCtx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	}); err == nil {
		return nil
	}
	if _, err = s3Client.CreateBucketWithContext(timeoutCtx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	}); err != nil {
		return err
	}
	klog.Infof("created bucket %s successfully", c.bucket)
	return nil
}

// ArchiveFile copies a finished artifact from local disk into the bucket.
func (c *Client) ArchiveFile(ctx context.Context, key, localPath string) error {
	if c == nil {
		return fmt.Errorf("please init client first")
	}
	if key == "" || localPath == "" {
		return fmt.Errorf("the object key or local path is empty")
	}
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()
	return c.PutObject(ctx, key, file)
}

func (c *Client) PutObject(ctx context.Context, key string, body io.ReadSeeker) error {
	if c == nil {
		return fmt.Errorf("please init client first")
	}
	if key == "" {
		return fmt.Errorf("the object key is empty")
	}
	s3Client, err := c.newS3Client()
	if err != nil {
		return err
	}
	timeoutCtx, cancel := withOptionalTimeout(ctx, c.timeout)
	defer cancel()

	if _, err = s3Client.PutObjectWithContext(timeoutCtx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Client) GetObjectStream(ctx context.Context, key string) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("please init client first")
	}
	if key == "" {
		return nil, fmt.Errorf("the object key is empty")
	}
	s3Client, err := c.newS3Client()
	if err != nil {
		return nil, err
	}
	// No deadline here. The caller keeps reading the body after we return
	// and canceling the request context would abort the stream.
	resp, err := s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) DeleteObject(ctx context.Context, key string) error {
	if c == nil {
		return fmt.Errorf("please init client first")
	}
	if key == "" {
		return fmt.Errorf("the object key is empty")
	}
	s3Client, err := c.newS3Client()
	if err != nil {
		return err
	}
	timeoutCtx, cancel := withOptionalTimeout(ctx, c.timeout)
	defer cancel()

	if _, err = s3Client.DeleteObjectWithContext(timeoutCtx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return err
	}
	return nil
}

func withOptionalTimeout(parent context.Context, timeout int64) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, time.Duration(timeout)*time.Second)
}
