package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/openfolio/archive-api/internal/models"
	appErrors "github.com/openfolio/archive-api/pkg/errors"
	"github.com/openfolio/archive-api/pkg/export"
	"github.com/openfolio/archive-api/pkg/storage"
)

type receiptStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Path(filename string) string
}

// ReceiptService renders and stores the PDF receipt summarizing an
// entry's archived assets. Receipts are derived artifacts: they are
// regenerated whenever an asset's archival state changes, and the
// repair sweep re-requests any that went missing on disk.
type ReceiptService struct {
	builder *export.ReceiptBuilder
	files   receiptStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
}

// NewReceiptService constructs the service.
func NewReceiptService(files receiptStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ReceiptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptService{
		builder: export.NewReceiptBuilder(),
		files:   files,
		signer:  signer,
		logger:  logger,
	}
}

func receiptFilename(entryID string) string {
	return fmt.Sprintf("receipt-%s.pdf", entryID)
}

// Record renders the receipt for an entry from its archived media and
// writes it to receipt storage, replacing any previous version.
// Entries with no archived media produce no receipt.
func (s *ReceiptService) Record(_ context.Context, entry *models.Entry, media []models.Media) error {
	if entry.ArchiveID == nil || *entry.ArchiveID == "" {
		return nil
	}
	data := export.ReceiptData{
		EntryTitle: entry.Title,
		EntryID:    entry.ID,
		ArchiveID:  *entry.ArchiveID,
	}
	if entry.ArchiveURI != nil {
		data.ArchiveURI = *entry.ArchiveURI
	}
	if entry.ArchiveDate != nil {
		data.ArchivedAt = *entry.ArchiveDate
	}
	for _, m := range media {
		if m.Status != models.ArchiveStatusArchived || m.ArchiveID == nil {
			continue
		}
		data.Media = append(data.Media, export.ReceiptMediaLine{
			Filename:  m.Filename,
			MimeType:  m.MimeType,
			ArchiveID: *m.ArchiveID,
		})
	}
	if len(data.Media) == 0 {
		return nil
	}

	pdf, err := s.builder.Render(data)
	if err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	if _, err := s.files.Save(receiptFilename(entry.ID), pdf); err != nil {
		return fmt.Errorf("store receipt: %w", err)
	}
	s.logger.Sugar().Infow("archival receipt written", "entry_id", entry.ID, "archive_id", *entry.ArchiveID)
	return nil
}

// Has reports whether the stored receipt for an entry exists on disk.
func (s *ReceiptService) Has(entryID string) bool {
	_, err := os.Stat(s.files.Path(receiptFilename(entryID)))
	return err == nil
}

// Open returns a read handle on the stored receipt.
func (s *ReceiptService) Open(entryID string) (*os.File, error) {
	file, err := s.files.Open(receiptFilename(entryID))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no receipt available for this entry")
	}
	return file, nil
}

// SignedToken issues a time-limited download token for an entry's
// receipt, so the PDF can be fetched without an Authorization header.
func (s *ReceiptService) SignedToken(entryID string) (string, time.Time, error) {
	if !s.Has(entryID) {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "no receipt available for this entry")
	}
	token, expires, err := s.signer.Generate(entryID, receiptFilename(entryID))
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sign receipt token")
	}
	return token, expires, nil
}

// OpenSigned validates a download token and returns the receipt it
// references.
func (s *ReceiptService) OpenSigned(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	file, err := s.files.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "receipt no longer available")
	}
	return file, nil
}
