package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/vaultkeep/vaultkeep/internal/access"
	"github.com/vaultkeep/vaultkeep/internal/errs"
	"github.com/vaultkeep/vaultkeep/internal/model"
	"github.com/vaultkeep/vaultkeep/internal/notify"
	"github.com/vaultkeep/vaultkeep/internal/repository"
	"github.com/vaultkeep/vaultkeep/internal/storage"
)

// sizeLeeway is how far the uploaded byte count may deviate from the size
// declared at reservation time. Encryption and base64 padding make clients
// over- or under-estimate slightly.
const sizeLeeway int64 = 1 << 20

// AttachmentService manages attachment metadata, quota accounting and the
// blob uploads themselves.
type AttachmentService struct {
	attachments repository.AttachmentRepository
	ciphers     repository.CipherRepository
	users       repository.UserRepository
	resolver    *access.Resolver
	blobs       storage.BlobStore
	signer      *storage.TokenSigner
	notifier    notify.Notifier
	events      notify.EventLogger
	limits      Limits
	log         *zap.Logger
}

// NewAttachmentService constructs an AttachmentService.
func NewAttachmentService(
	attachments repository.AttachmentRepository,
	ciphers repository.CipherRepository,
	users repository.UserRepository,
	resolver *access.Resolver,
	blobs storage.BlobStore,
	signer *storage.TokenSigner,
	notifier notify.Notifier,
	events notify.EventLogger,
	limits Limits,
	log *zap.Logger,
) *AttachmentService {
	return &AttachmentService{
		attachments: attachments,
		ciphers:     ciphers,
		users:       users,
		resolver:    resolver,
		blobs:       blobs,
		signer:      signer,
		notifier:    notifier,
		events:      events,
		limits:      limits,
		log:         log,
	}
}

// Request reserves an attachment slot against the owner's quota using the
// declared size. The actual bytes arrive later through Upload.
func (s *AttachmentService) Request(ctx context.Context, actor Actor, cipherID uuid.UUID, req model.AttachmentRequest) (*model.Attachment, error) {
	cipher, err := s.writableCipher(ctx, actor.UserID, cipherID)
	if err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, cipher, req.FileSize, 0); err != nil {
		return nil, err
	}

	key := req.Key
	att := &model.Attachment{
		ID:       newAttachmentID(),
		CipherID: cipher.ID,
		FileName: req.FileName,
		FileSize: req.FileSize,
		Key:      &key,
	}
	if err := s.attachments.Save(ctx, att); err != nil {
		return nil, fmt.Errorf("save attachment: %w", err)
	}
	return att, nil
}

// Upload completes a reservation made by Request with the actual bytes.
// The byte count must stay within sizeLeeway of the declared size; outside
// that range the reservation is discarded and the upload rejected. Within
// the range a differing count corrects the stored size so quota accounting
// reflects reality.
func (s *AttachmentService) Upload(ctx context.Context, actor Actor, cipherID uuid.UUID, attachmentID string, r io.Reader, size int64) error {
	cipher, err := s.writableCipher(ctx, actor.UserID, cipherID)
	if err != nil {
		return err
	}
	att, err := s.attachments.Get(ctx, attachmentID)
	if err != nil {
		return err
	}
	if att.CipherID != cipher.ID {
		return fmt.Errorf("attachment doesn't belong to cipher: %w", errs.ErrInvalidInput)
	}
	if att.Key == nil {
		return fmt.Errorf("attachment doesn't have a key: %w", errs.ErrInvalidInput)
	}

	// The reservation counted its declared size against the quota; the
	// actual byte count may differ, so re-check with the reservation
	// credited back before accepting the bytes.
	if err := s.checkQuota(ctx, cipher, size, att.FileSize); err != nil {
		return err
	}

	if size < att.FileSize-sizeLeeway || size > att.FileSize+sizeLeeway {
		if err := s.attachments.Delete(ctx, att.ID); err != nil {
			s.log.Warn("discard mismatched reservation", zap.String("attachment", att.ID), zap.Error(err))
		}
		return fmt.Errorf("attachment size of %d bytes is not within the expected range of %d to %d bytes: %w",
			size, att.FileSize-sizeLeeway, att.FileSize+sizeLeeway, errs.ErrSizeMismatch)
	}
	if size != att.FileSize {
		att.FileSize = size
		if err := s.attachments.Save(ctx, att); err != nil {
			return fmt.Errorf("correct attachment size: %w", err)
		}
	}

	if err := s.blobs.Put(ctx, att.BlobKey(), r, size); err != nil {
		return fmt.Errorf("store attachment: %w", err)
	}
	s.finishUpload(ctx, actor, cipher)
	return nil
}

// UploadLegacy stores an attachment in one request, for clients predating
// the reserve-then-upload flow. The quota is checked against the actual
// byte count.
func (s *AttachmentService) UploadLegacy(ctx context.Context, actor Actor, cipherID uuid.UUID, fileName string, key *string, r io.Reader, size int64) (*model.Attachment, error) {
	if fileName == "" {
		return nil, fmt.Errorf("no filename provided: %w", errs.ErrInvalidInput)
	}
	if key == nil {
		return nil, fmt.Errorf("no attachment key provided: %w", errs.ErrInvalidInput)
	}
	cipher, err := s.writableCipher(ctx, actor.UserID, cipherID)
	if err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, cipher, size, 0); err != nil {
		return nil, err
	}

	att := &model.Attachment{
		ID:       newAttachmentID(),
		CipherID: cipher.ID,
		FileName: fileName,
		FileSize: size,
		Key:      key,
	}
	if err := s.attachments.Save(ctx, att); err != nil {
		return nil, fmt.Errorf("save attachment: %w", err)
	}
	if err := s.blobs.Put(ctx, att.BlobKey(), r, size); err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	s.finishUpload(ctx, actor, cipher)
	return att, nil
}

// Share replaces an attachment with a re-encrypted copy while a cipher is
// being shared into an organization. The replacement counts the departing
// attachment's size as freed.
func (s *AttachmentService) Share(ctx context.Context, actor Actor, cipherID uuid.UUID, attachmentID, fileName string, key *string, r io.Reader, size int64) (*model.Attachment, error) {
	if fileName == "" {
		return nil, fmt.Errorf("no filename provided: %w", errs.ErrInvalidInput)
	}
	if key == nil {
		return nil, fmt.Errorf("no attachment key provided: %w", errs.ErrInvalidInput)
	}
	cipher, err := s.writableCipher(ctx, actor.UserID, cipherID)
	if err != nil {
		return nil, err
	}
	old, err := s.attachments.Get(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	if old.CipherID != cipher.ID {
		return nil, fmt.Errorf("attachment doesn't belong to cipher: %w", errs.ErrInvalidInput)
	}
	if err := s.checkQuota(ctx, cipher, size, old.FileSize); err != nil {
		return nil, err
	}

	if err := s.deleteAttachment(ctx, old); err != nil {
		return nil, err
	}

	att := &model.Attachment{
		ID:       newAttachmentID(),
		CipherID: cipher.ID,
		FileName: fileName,
		FileSize: size,
		Key:      key,
	}
	if err := s.attachments.Save(ctx, att); err != nil {
		return nil, fmt.Errorf("save attachment: %w", err)
	}
	if err := s.blobs.Put(ctx, att.BlobKey(), r, size); err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	s.finishUpload(ctx, actor, cipher)
	return att, nil
}

// Delete removes an attachment, its blob, and its quota usage.
func (s *AttachmentService) Delete(ctx context.Context, actor Actor, cipherID uuid.UUID, attachmentID string, admin bool) error {
	cipher, err := s.ciphers.Get(ctx, cipherID)
	if err != nil {
		return err
	}
	ok, err := s.canEditCipher(ctx, actor.UserID, cipher, admin)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cipher cannot be deleted by user: %w", errs.ErrForbidden)
	}
	att, err := s.attachments.Get(ctx, attachmentID)
	if err != nil {
		return err
	}
	if att.CipherID != cipher.ID {
		return fmt.Errorf("attachment doesn't belong to cipher: %w", errs.ErrInvalidInput)
	}

	if err := s.deleteAttachment(ctx, att); err != nil {
		return err
	}

	userIDs, err := s.users.BumpRevisionForCipher(ctx, cipher)
	if err != nil {
		s.log.Warn("bump revisions", zap.String("cipher", cipher.ID.String()), zap.Error(err))
	}
	s.notifier.SendCipherUpdate(ctx, model.ChangeCipherUpdate, cipher, userIDs, actor.Device, nil)
	if cipher.OrganizationID != nil {
		s.events.LogEvent(ctx, model.Event{
			Kind:           model.EventCipherAttachmentDeleted,
			SubjectID:      cipher.ID.String(),
			OrganizationID: *cipher.OrganizationID,
			ActorUserID:    actor.UserID,
			DeviceKind:     actor.Device.Kind,
			ActorIP:        actor.IP,
			OccurredAt:     time.Now(),
		})
	}
	return nil
}

// DownloadToken returns the attachment together with a short-lived signed
// token the file endpoint accepts in place of a session.
func (s *AttachmentService) DownloadToken(ctx context.Context, userID, cipherID uuid.UUID, attachmentID string) (*model.Attachment, string, error) {
	cipher, err := s.ciphers.Get(ctx, cipherID)
	if err != nil {
		return nil, "", err
	}
	ok, err := s.resolver.CanAccess(ctx, userID, cipher)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", fmt.Errorf("cipher is not accessible: %w", errs.ErrForbidden)
	}
	att, err := s.attachments.Get(ctx, attachmentID)
	if err != nil {
		return nil, "", err
	}
	if att.CipherID != cipher.ID {
		return nil, "", fmt.Errorf("attachment doesn't belong to cipher: %w", errs.ErrInvalidInput)
	}
	token, err := s.signer.Sign(att.BlobKey())
	if err != nil {
		return nil, "", fmt.Errorf("sign download token: %w", err)
	}
	return att, token, nil
}

// checkQuota verifies the owner of the cipher has room for size more bytes.
// freed credits back space an attachment being replaced will release. All
// arithmetic is overflow-checked: configured limits are operator input.
func (s *AttachmentService) checkQuota(ctx context.Context, cipher *model.Cipher, size, freed int64) error {
	var limitKB *int64
	var used int64
	var err error

	switch {
	case cipher.UserID != nil:
		limitKB = s.limits.UserAttachmentLimitKB
		if limitKB != nil && *limitKB != 0 {
			used, err = s.attachments.SizeByUser(ctx, *cipher.UserID)
		}
	case cipher.OrganizationID != nil:
		limitKB = s.limits.OrgAttachmentLimitKB
		if limitKB != nil && *limitKB != 0 {
			used, err = s.attachments.SizeByOrganization(ctx, *cipher.OrganizationID)
		}
	}
	if err != nil {
		return fmt.Errorf("attachment usage: %w", err)
	}

	if limitKB == nil {
		return nil
	}
	if *limitKB == 0 {
		return fmt.Errorf("attachments are disabled: %w", errs.ErrQuotaExceeded)
	}

	limit, ok := checkedMul(*limitKB, 1024)
	if !ok {
		return fmt.Errorf("attachment limit calculation: %w", errs.ErrOverflow)
	}
	left, ok := checkedSub(limit, used)
	if !ok {
		return fmt.Errorf("attachment limit calculation: %w", errs.ErrOverflow)
	}
	left, ok = checkedAdd(left, freed)
	if !ok {
		return fmt.Errorf("attachment limit calculation: %w", errs.ErrOverflow)
	}
	if left <= 0 || size > left {
		return fmt.Errorf("attachment storage limit reached, delete some attachments to free up space: %w", errs.ErrQuotaExceeded)
	}
	return nil
}

func (s *AttachmentService) writableCipher(ctx context.Context, userID, cipherID uuid.UUID) (*model.Cipher, error) {
	cipher, err := s.ciphers.Get(ctx, cipherID)
	if err != nil {
		return nil, err
	}
	ok, err := s.resolver.CanEdit(ctx, userID, cipher)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cipher is not write accessible: %w", errs.ErrForbidden)
	}
	return cipher, nil
}

func (s *AttachmentService) canEditCipher(ctx context.Context, userID uuid.UUID, cipher *model.Cipher, admin bool) (bool, error) {
	if admin && cipher.OrganizationID != nil {
		isAdmin, err := s.resolver.IsOrgAdmin(ctx, userID, *cipher.OrganizationID)
		if err != nil {
			return false, err
		}
		if isAdmin {
			return true, nil
		}
	}
	return s.resolver.CanEdit(ctx, userID, cipher)
}

func (s *AttachmentService) deleteAttachment(ctx context.Context, att *model.Attachment) error {
	if err := s.attachments.Delete(ctx, att.ID); err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if err := s.blobs.Delete(ctx, att.BlobKey()); err != nil {
		s.log.Warn("delete attachment blob", zap.String("attachment", att.ID), zap.Error(err))
	}
	return nil
}

func (s *AttachmentService) finishUpload(ctx context.Context, actor Actor, cipher *model.Cipher) {
	userIDs, err := s.users.BumpRevisionForCipher(ctx, cipher)
	if err != nil {
		s.log.Warn("bump revisions", zap.String("cipher", cipher.ID.String()), zap.Error(err))
	}
	s.notifier.SendCipherUpdate(ctx, model.ChangeCipherUpdate, cipher, userIDs, actor.Device, nil)
	if cipher.OrganizationID != nil {
		s.events.LogEvent(ctx, model.Event{
			Kind:           model.EventCipherAttachmentCreated,
			SubjectID:      cipher.ID.String(),
			OrganizationID: *cipher.OrganizationID,
			ActorUserID:    actor.UserID,
			DeviceKind:     actor.Device.Kind,
			ActorIP:        actor.IP,
			OccurredAt:     time.Now(),
		})
	}
}

// newAttachmentID returns a random identifier for a new attachment.
func newAttachmentID() string {
	var b [10]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
