package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/interfaces"
	"github.com/inferloop/tabsynth/pkg/models"
)

const extension = ".json"

// S3Config holds configuration for S3 storage
type S3Config struct {
	Region          string        `json:"region" mapstructure:"region"`
	Bucket          string        `json:"bucket" mapstructure:"bucket"`
	AccessKeyID     string        `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key" mapstructure:"secret_access_key"`
	SessionToken    string        `json:"session_token,omitempty" mapstructure:"session_token"`
	Endpoint        string        `json:"endpoint,omitempty" mapstructure:"endpoint"`
	ForcePathStyle  bool          `json:"force_path_style" mapstructure:"force_path_style"`
	DisableSSL      bool          `json:"disable_ssl" mapstructure:"disable_ssl"`
	Prefix          string        `json:"prefix" mapstructure:"prefix"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries      int           `json:"max_retries" mapstructure:"max_retries"`
	StorageClass    string        `json:"storage_class" mapstructure:"storage_class"`
}

// S3Storage keeps each description as a JSON object under the configured prefix.
type S3Storage struct {
	config     *S3Config
	s3Client   *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	logger     *logrus.Logger
	mu         sync.RWMutex
	closed     bool
}

var _ interfaces.DescriptionStore = (*S3Storage)(nil)

// NewS3Storage creates a new S3 storage instance
func NewS3Storage(config *S3Config, logger *logrus.Logger) (*S3Storage, error) {
	if config == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "S3 config cannot be nil")
	}

	if config.Bucket == "" {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "S3 bucket is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &S3Storage{
		config: config,
		logger: logger,
	}, nil
}

// Connect creates the session and checks that the bucket is reachable
func (s *S3Storage) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.s3Client != nil {
		return nil
	}

	awsConfig := &aws.Config{
		Region:     aws.String(s.config.Region),
		MaxRetries: aws.Int(s.config.MaxRetries),
	}

	if s.config.AccessKeyID != "" && s.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			s.config.AccessKeyID,
			s.config.SecretAccessKey,
			s.config.SessionToken,
		)
	}

	// S3-compatible services such as MinIO
	if s.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(s.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(s.config.ForcePathStyle)
	}

	if s.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	if s.config.Timeout > 0 {
		awsConfig.HTTPClient = &http.Client{Timeout: s.config.Timeout}
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "failed to create AWS session")
	}

	client := s3.New(sess)
	_, err = client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("failed to access bucket '%s'", s.config.Bucket))
	}

	s.s3Client = client
	s.uploader = s3manager.NewUploaderWithClient(client)
	s.downloader = s3manager.NewDownloaderWithClient(client)
	s.closed = false

	s.logger.WithFields(logrus.Fields{
		"region": s.config.Region,
		"bucket": s.config.Bucket,
	}).Info("Connected to S3")

	return nil
}

// Close drops the clients
func (s *S3Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.s3Client = nil
	s.uploader = nil
	s.downloader = nil
	s.closed = true

	s.logger.Info("S3 connection closed")
	return nil
}

// Ping tests the S3 connection
func (s *S3Storage) Ping(ctx context.Context) error {
	client, _, _, err := s.clients()
	if err != nil {
		return err
	}

	_, err = client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "S3 ping failed")
	}
	return nil
}

// Save uploads the description as a JSON object
func (s *S3Storage) Save(ctx context.Context, id string, desc *models.DatasetDescription) error {
	if err := models.ValidateDescriptionID(id); err != nil {
		return err
	}
	_, uploader, _, err := s.clients()
	if err != nil {
		return err
	}

	data, err := json.Marshal(desc)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to serialize description")
	}

	input := &s3manager.UploadInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(s.generateKey(id)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]*string{
			"description-id": aws.String(id),
			"num-attributes": aws.String(fmt.Sprintf("%d", desc.Meta.NumAttributes)),
		},
	}
	if s.config.StorageClass != "" {
		input.StorageClass = aws.String(s.config.StorageClass)
	}

	if _, err := uploader.UploadWithContext(ctx, input); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to upload description to S3")
	}

	s.logger.WithFields(logrus.Fields{
		"id":   id,
		"size": len(data),
	}).Debug("Description uploaded")

	return nil
}

// Load downloads the description stored under id
func (s *S3Storage) Load(ctx context.Context, id string) (*models.DatasetDescription, error) {
	if err := models.ValidateDescriptionID(id); err != nil {
		return nil, err
	}
	_, _, downloader, err := s.clients()
	if err != nil {
		return nil, err
	}

	buf := aws.NewWriteAtBuffer([]byte{})
	_, err = downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.generateKey(id)),
	})
	if isNotFound(err) {
		return nil, errors.NewNotFoundError(fmt.Sprintf("description %q not found", id))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to download description from S3")
	}

	var desc models.DatasetDescription
	if err := json.Unmarshal(buf.Bytes(), &desc); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("description %q is corrupt", id))
	}
	return &desc, nil
}

// Delete removes the object stored under id. S3 deletes are idempotent, so the
// object is looked up first to report missing ids.
func (s *S3Storage) Delete(ctx context.Context, id string) error {
	if err := models.ValidateDescriptionID(id); err != nil {
		return err
	}
	client, _, _, err := s.clients()
	if err != nil {
		return err
	}

	key := aws.String(s.generateKey(id))
	_, err = client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    key,
	})
	if isNotFound(err) {
		return errors.NewNotFoundError(fmt.Sprintf("description %q not found", id))
	}
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to look up description in S3")
	}

	_, err = client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    key,
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to delete description from S3")
	}
	return nil
}

// List pages through the objects under the prefix
func (s *S3Storage) List(ctx context.Context) ([]string, error) {
	client, _, _, err := s.clients()
	if err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(s.prefix()),
	}

	ids := []string{}
	err = client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				if id := s.extractIDFromKey(aws.StringValue(obj.Key)); id != "" {
					ids = append(ids, id)
				}
			}
			return true
		})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to list objects from S3")
	}

	sort.Strings(ids)
	return ids, nil
}

func (s *S3Storage) clients() (*s3.S3, *s3manager.Uploader, *s3manager.Downloader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || s.s3Client == nil {
		return nil, nil, nil, errors.NewStorageError(errors.CodeConnectionFailed, "S3 not connected").
			WithCause(errors.ErrStorageConnectionFailed)
	}
	return s.s3Client, s.uploader, s.downloader, nil
}

func (s *S3Storage) prefix() string {
	prefix := s.config.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

func (s *S3Storage) generateKey(id string) string {
	return path.Join(s.prefix(), id+extension)
}

// extractIDFromKey returns the id of a key directly under the prefix, or "" for
// anything else.
func (s *S3Storage) extractIDFromKey(key string) string {
	rest := strings.TrimPrefix(key, s.prefix())
	if rest == key && s.prefix() != "" {
		return ""
	}
	if strings.Contains(rest, "/") || !strings.HasSuffix(rest, extension) {
		return ""
	}
	id := strings.TrimSuffix(rest, extension)
	if models.ValidateDescriptionID(id) != nil {
		return ""
	}
	return id
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	if awsErr, ok := err.(awserr.Error); ok {
		switch awsErr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
