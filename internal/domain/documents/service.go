package documents

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/raypacs/raypacs/internal/domain/report"
	"github.com/raypacs/raypacs/internal/domain/study"
	"github.com/raypacs/raypacs/internal/platform/apperror"
	"github.com/raypacs/raypacs/internal/platform/auth"
	"github.com/raypacs/raypacs/internal/platform/blobstore"
)

// presignTTL is how long a generated download link stays valid.
const presignTTL = 15 * time.Minute

// StudyDirectory resolves study references for note and attachment scoping.
type StudyDirectory interface {
	GetStudy(ctx context.Context, externalID string) (*study.Study, error)
}

type Service struct {
	notes       NoteRepository
	attachments AttachmentRepository
	studies     StudyDirectory
	blobs       blobstore.Store
	logger      zerolog.Logger
}

func NewService(notes NoteRepository, attachments AttachmentRepository, studies StudyDirectory, blobs blobstore.Store, logger zerolog.Logger) *Service {
	return &Service{notes: notes, attachments: attachments, studies: studies, blobs: blobs, logger: logger}
}

// -- Notes --

func (s *Service) AddNote(ctx context.Context, studyExternalID, text string) (*StudyNote, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperror.New(apperror.InvalidArgument, "note text is required")
	}
	st, err := s.studies.GetStudy(ctx, studyExternalID)
	if err != nil {
		return nil, err
	}
	actor := auth.UserFromContext(ctx)
	n := &StudyNote{
		StudyID:    st.ID,
		TenantID:   st.TenantID,
		AuthorID:   &actor.ID,
		AuthorName: actor.FullName,
		Text:       text,
	}
	if err := s.notes.Create(ctx, n); err != nil {
		return nil, apperror.Wrap(apperror.Internal, "create note", err)
	}
	return n, nil
}

func (s *Service) ListNotes(ctx context.Context, studyExternalID string) ([]*StudyNote, error) {
	st, err := s.studies.GetStudy(ctx, studyExternalID)
	if err != nil {
		return nil, err
	}
	return s.notes.ListByStudy(ctx, st.ID)
}

// -- Attachments --

// Upload streams a file into the blob store under the study's namespaced
// key and records the metadata. The metadata write failing rolls the blob
// back so no orphan objects accumulate.
func (s *Service) Upload(ctx context.Context, studyExternalID, fileName string, content io.Reader, size int64, contentType string) (*Attachment, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, apperror.New(apperror.InvalidArgument, "file name is required")
	}
	if size <= 0 {
		return nil, apperror.New(apperror.InvalidArgument, "file content is required")
	}
	if size > blobstore.MaxFileSize {
		return nil, apperror.Newf(apperror.InvalidArgument, "file exceeds the %d byte limit", blobstore.MaxFileSize)
	}
	st, err := s.studies.GetStudy(ctx, studyExternalID)
	if err != nil {
		return nil, err
	}
	actor := auth.UserFromContext(ctx)

	key := blobstore.ObjectKey(st.TenantID, st.ExternalID, fileName)
	if err := s.blobs.Put(ctx, key, content, size, contentType); err != nil {
		return nil, apperror.Wrap(apperror.DownstreamUnavailable, "store attachment", err)
	}

	a := &Attachment{
		StudyID:     st.ID,
		TenantID:    st.TenantID,
		FileName:    fileName,
		StorageKey:  key,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  actor.ID,
		Active:      true,
	}
	if err := s.attachments.Create(ctx, a); err != nil {
		if delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.logger.Warn().Err(delErr).Str("key", key).Msg("orphan blob cleanup failed")
		}
		return nil, apperror.Wrap(apperror.Internal, "record attachment", err)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, studyExternalID string) ([]*Attachment, error) {
	st, err := s.studies.GetStudy(ctx, studyExternalID)
	if err != nil {
		return nil, err
	}
	return s.attachments.ListByStudy(ctx, st.ID)
}

// DownloadURL returns a short-lived presigned link for the attachment.
func (s *Service) DownloadURL(ctx context.Context, id uuid.UUID) (string, error) {
	a, err := s.getAttachment(ctx, id)
	if err != nil {
		return "", err
	}
	url, err := s.blobs.PresignedURL(ctx, a.StorageKey, presignTTL)
	if err != nil {
		return "", apperror.Wrap(apperror.DownstreamUnavailable, "presign attachment", err)
	}
	return url, nil
}

// Delete soft-deletes the metadata record and removes the blob. A missing
// blob does not fail the delete.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	a, err := s.getAttachment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.attachments.Deactivate(ctx, id); err != nil {
		return apperror.Wrap(apperror.Internal, "deactivate attachment", err)
	}
	if err := s.blobs.Delete(ctx, a.StorageKey); err != nil {
		s.logger.Warn().Err(err).Str("key", a.StorageKey).Msg("blob delete failed, metadata already deactivated")
	}
	return nil
}

func (s *Service) getAttachment(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	a, err := s.attachments.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.New(apperror.NotFound, "attachment not found")
	}
	if err != nil {
		return nil, err
	}
	actor := auth.UserFromContext(ctx)
	if actor.TenantID != "" && a.TenantID != "" && a.TenantID != actor.TenantID {
		return nil, apperror.New(apperror.PermissionDenied, "attachment belongs to a different organization")
	}
	return a, nil
}

// RecordRendered registers a rendered report document that is already in
// the blob store as a generated attachment.
func (s *Service) RecordRendered(ctx context.Context, doc report.RenderedDocument) error {
	return s.attachments.Create(ctx, &Attachment{
		StudyID:     doc.Study.ID,
		TenantID:    doc.Study.TenantID,
		FileName:    doc.FileName,
		StorageKey:  doc.Key,
		ContentType: doc.ContentType,
		Size:        doc.Size,
		Generated:   true,
		UploadedBy:  doc.UploadedBy,
		Active:      true,
	})
}
