package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/interfaces"
	"github.com/inferloop/tabsynth/pkg/models"
)

const extension = ".json"

// FileStorageConfig contains configuration for file-based storage
type FileStorageConfig struct {
	BasePath   string `json:"base_path" mapstructure:"base_path"`
	CreateDirs bool   `json:"create_dirs" mapstructure:"create_dirs"`
	// SyncWrites fsyncs each description before it is renamed into place.
	SyncWrites bool `json:"sync_writes" mapstructure:"sync_writes"`
}

// FileStorage keeps one indented JSON document per description under BasePath.
type FileStorage struct {
	config    *FileStorageConfig
	logger    *logrus.Logger
	mu        sync.RWMutex
	connected bool
}

var _ interfaces.DescriptionStore = (*FileStorage)(nil)

// NewFileStorage creates a new file storage instance
func NewFileStorage(config *FileStorageConfig, logger *logrus.Logger) (*FileStorage, error) {
	if config == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "file storage config cannot be nil")
	}

	if config.BasePath == "" {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "file storage base path is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &FileStorage{
		config: config,
		logger: logger,
	}, nil
}

// Connect checks that the base directory exists and is writable
func (fs *FileStorage) Connect(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.connected {
		return nil
	}

	if fs.config.CreateDirs {
		if err := os.MkdirAll(fs.config.BasePath, 0755); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
				fmt.Sprintf("failed to create directory %s", fs.config.BasePath))
		}
	}

	info, err := os.Stat(fs.config.BasePath)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("base path %s is not accessible", fs.config.BasePath))
	}
	if !info.IsDir() {
		return errors.NewStorageError(errors.CodeConnectionFailed,
			fmt.Sprintf("base path %s is not a directory", fs.config.BasePath))
	}

	testFile, err := os.CreateTemp(fs.config.BasePath, ".write_test")
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("cannot write to directory %s", fs.config.BasePath))
	}
	testFile.Close()
	os.Remove(testFile.Name())

	fs.connected = true
	fs.logger.WithField("base_path", fs.config.BasePath).Info("File storage connected")

	return nil
}

// Close marks the storage as disconnected
func (fs *FileStorage) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.connected {
		return nil
	}
	fs.connected = false

	fs.logger.Info("File storage disconnected")
	return nil
}

// Ping verifies the base directory is still accessible
func (fs *FileStorage) Ping(ctx context.Context) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if !fs.connected {
		return notConnected()
	}

	if _, err := os.Stat(fs.config.BasePath); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "base path is not accessible")
	}

	return nil
}

// Save writes the description to a temporary file and renames it into place
func (fs *FileStorage) Save(ctx context.Context, id string, desc *models.DatasetDescription) error {
	if err := models.ValidateDescriptionID(id); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.connected {
		return notConnected()
	}

	data, err := json.MarshalIndent(desc, "", "    ")
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to serialize description")
	}

	tmp, err := os.CreateTemp(fs.config.BasePath, "."+id+".*.tmp")
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to write description")
	}
	if fs.config.SyncWrites {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to sync description")
		}
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to close description")
	}

	if err := os.Rename(tmp.Name(), fs.path(id)); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to store description")
	}

	fs.logger.WithFields(logrus.Fields{
		"id":   id,
		"size": len(data),
	}).Debug("Description written")

	return nil
}

// Load reads the description stored under id
func (fs *FileStorage) Load(ctx context.Context, id string) (*models.DatasetDescription, error) {
	if err := models.ValidateDescriptionID(id); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if !fs.connected {
		return nil, notConnected()
	}

	data, err := os.ReadFile(fs.path(id))
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError(fmt.Sprintf("description %q not found", id))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to read description")
	}

	var desc models.DatasetDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("description %q is corrupt", id))
	}
	return &desc, nil
}

// Delete removes the description stored under id
func (fs *FileStorage) Delete(ctx context.Context, id string) error {
	if err := models.ValidateDescriptionID(id); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.connected {
		return notConnected()
	}

	err := os.Remove(fs.path(id))
	if os.IsNotExist(err) {
		return errors.NewNotFoundError(fmt.Sprintf("description %q not found", id))
	}
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to delete description")
	}
	return nil
}

// List returns the stored ids in lexical order
func (fs *FileStorage) List(ctx context.Context) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if !fs.connected {
		return nil, notConnected()
	}

	entries, err := os.ReadDir(fs.config.BasePath)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to list descriptions")
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, extension) {
			continue
		}
		id := strings.TrimSuffix(name, extension)
		if models.ValidateDescriptionID(id) == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (fs *FileStorage) path(id string) string {
	return filepath.Join(fs.config.BasePath, id+extension)
}

func notConnected() error {
	return errors.NewStorageError(errors.CodeConnectionFailed, "file storage is not connected").
		WithCause(errors.ErrStorageConnectionFailed)
}
