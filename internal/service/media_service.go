package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/measureme/pkg/config"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
	"github.com/noah-isme/measureme/pkg/storage"
)

// FileUpload is one uploaded file held in memory.
type FileUpload struct {
	Filename string
	Data     []byte
}

// StoredFile describes a file written by MediaService.
type StoredFile struct {
	Path      string
	MediaType string
	Size      int64
}

// MediaService validates, stores and serves student images. Stored files are
// addressed by storage-relative paths; clients only ever see signed URLs.
type MediaService struct {
	store    *storage.LocalStorage
	signer   *storage.SignedURLSigner
	baseURL  string
	maxBytes int64
	allowed  map[string]struct{}
	logger   *zap.Logger
}

// NewMediaService wires storage and signing. baseURL is the public prefix
// that media tokens are appended to, e.g. /media.
func NewMediaService(store *storage.LocalStorage, signer *storage.SignedURLSigner, cfg config.MediaConfig, baseURL string, logger *zap.Logger) *MediaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, m := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(m)] = struct{}{}
	}
	maxBytes := cfg.MaxFileSizeBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &MediaService{
		store:    store,
		signer:   signer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		allowed:  allowed,
		logger:   logger,
	}
}

// MaxBytes is the per-file size limit.
func (s *MediaService) MaxBytes() int64 { return s.maxBytes }

// Check sniffs an upload and enforces the size limit and allowed image types.
func (s *MediaService) Check(field string, upload FileUpload) (string, *appErrors.FieldError) {
	if len(upload.Data) == 0 {
		return "", &appErrors.FieldError{Field: field, Message: "file is empty"}
	}
	if int64(len(upload.Data)) > s.maxBytes {
		return "", &appErrors.FieldError{Field: field, Message: fmt.Sprintf("file exceeds %d bytes", s.maxBytes)}
	}
	mediaType := strings.ToLower(strings.SplitN(mimetype.Detect(upload.Data).String(), ";", 2)[0])
	if !strings.HasPrefix(mediaType, "image/") {
		return "", &appErrors.FieldError{Field: field, Message: "file is not an image"}
	}
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[mediaType]; !ok {
			return "", &appErrors.FieldError{Field: field, Message: "image type " + mediaType + " is not allowed"}
		}
	}
	return mediaType, nil
}

// Store writes an upload under dir with a generated name. The extension is
// derived from the sniffed content, never from the client filename.
func (s *MediaService) Store(dir, stem string, upload FileUpload) (StoredFile, error) {
	mt := mimetype.Detect(upload.Data)
	if stem == "" {
		stem = uuid.NewString()
	}
	name := path.Join(dir, stem+mt.Extension())
	stored, err := s.store.Save(name, upload.Data)
	if err != nil {
		return StoredFile{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}
	return StoredFile{Path: stored, MediaType: strings.SplitN(mt.String(), ";", 2)[0], Size: int64(len(upload.Data))}, nil
}

// URL signs a stored path into a media URL. An unsignable path yields "".
func (s *MediaService) URL(relPath string) string {
	if relPath == "" {
		return ""
	}
	token, _, err := s.signer.Generate(relPath)
	if err != nil {
		s.logger.Warn("failed to sign media url", zap.String("path", relPath), zap.Error(err))
		return ""
	}
	return s.baseURL + "/" + token
}

// Open resolves a media token to an open file and its media type.
func (s *MediaService) Open(token string) (*os.File, string, error) {
	relPath, _, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "media link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "media not found")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "media not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open media")
	}
	mt, err := mimetype.DetectReader(file)
	if err == nil {
		_, err = file.Seek(0, 0)
	}
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read media")
	}
	return file, strings.SplitN(mt.String(), ";", 2)[0], nil
}

// Remove deletes one stored file, logging failures.
func (s *MediaService) Remove(relPath string) {
	if relPath == "" {
		return
	}
	if err := s.store.Delete(relPath); err != nil {
		s.logger.Warn("failed to remove media", zap.String("path", relPath), zap.Error(err))
	}
}

// RemoveDir deletes a directory of stored files, logging failures.
func (s *MediaService) RemoveDir(dir string) {
	if err := s.store.DeleteDir(dir); err != nil {
		s.logger.Warn("failed to remove media directory", zap.String("dir", dir), zap.Error(err))
	}
}
