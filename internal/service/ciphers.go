package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// staleLeeway is how far a client's last-known revision may lag behind the
// stored one before the write is rejected as stale.
const staleLeeway = time.Second

// CipherService validates and applies cipher mutations: create, update,
// share, delete, restore, move, import and purge.
type CipherService struct {
	ciphers     repository.CipherRepository
	collections repository.CollectionRepository
	members     repository.MembershipRepository
	attachments repository.AttachmentRepository
	folders     repository.FolderRepository
	users       repository.UserRepository
	policies    repository.PolicyRepository
	resolver    *access.Resolver
	blobs       storage.BlobStore
	notifier    notify.Notifier
	events      notify.EventLogger
	limits      Limits
	log         *zap.Logger
}

// NewCipherService constructs a CipherService.
func NewCipherService(
	ciphers repository.CipherRepository,
	collections repository.CollectionRepository,
	members repository.MembershipRepository,
	attachments repository.AttachmentRepository,
	folders repository.FolderRepository,
	users repository.UserRepository,
	policies repository.PolicyRepository,
	resolver *access.Resolver,
	blobs storage.BlobStore,
	notifier notify.Notifier,
	events notify.EventLogger,
	limits Limits,
	log *zap.Logger,
) *CipherService {
	if limits.MaxNoteSize <= 0 {
		limits.MaxNoteSize = DefaultMaxNoteSize
	}
	return &CipherService{
		ciphers:     ciphers,
		collections: collections,
		members:     members,
		attachments: attachments,
		folders:     folders,
		users:       users,
		policies:    policies,
		resolver:    resolver,
		blobs:       blobs,
		notifier:    notifier,
		events:      events,
		limits:      limits,
		log:         log,
	}
}

// Get returns a single cipher after a read-accessibility check.
func (s *CipherService) Get(ctx context.Context, userID, cipherID uuid.UUID) (*model.Cipher, error) {
	cipher, err := s.ciphers.Get(ctx, cipherID)
	if err != nil {
		return nil, err
	}
	ok, err := s.resolver.CanAccess(ctx, userID, cipher)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cipher is not accessible: %w", errs.ErrForbidden)
	}
	return cipher, nil
}

// ListVisible returns every cipher visible to the user. SSH keys are
// filtered out for clients that predate them.
func (s *CipherService) ListVisible(ctx context.Context, userID uuid.UUID, includeSSHKeys bool) ([]model.Cipher, error) {
	ciphers, err := s.ciphers.FindVisibleByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if includeSSHKeys {
		return ciphers, nil
	}
	out := ciphers[:0]
	for _, c := range ciphers {
		if c.Type != model.CipherTypeSSHKey {
			out = append(out, c)
		}
	}
	return out, nil
}

// Create saves a new user-owned cipher. The client's revision date is
// ignored: some mobile clients send a bogus zero value on create.
func (s *CipherService) Create(ctx context.Context, actor Actor, req model.CipherRequest) (*model.Cipher, error) {
	req.LastKnownRevisionDate = nil

	cipher := s.newCipher(req.Type, req.Name)
	if err := s.applyUpdate(ctx, actor, cipher, req, nil, model.ChangeCipherCreate); err != nil {
		return nil, err
	}
	return cipher, nil
}

// CreateShared saves a new cipher directly into an organization (or clones
// an existing one). An org-bound create must target at least one collection,
// checked up front to avoid persisting an empty cipher.
func (s *CipherService) CreateShared(ctx context.Context, actor Actor, req model.ShareRequest) (*model.Cipher, error) {
	if req.Cipher.OrganizationID != nil && len(req.CollectionIDs) == 0 {
		return nil, fmt.Errorf("you must select at least one collection: %w", errs.ErrInvalidInput)
	}
	if err := s.enforcePersonalOwnership(ctx, actor.UserID, &req.Cipher); err != nil {
		return nil, err
	}

	cipher := s.newCipher(req.Cipher.Type, req.Cipher.Name)
	userID := actor.UserID
	cipher.UserID = &userID
	if err := s.ciphers.Save(ctx, cipher); err != nil {
		return nil, fmt.Errorf("save cipher: %w", err)
	}

	// Clients cloning a cipher copy the source's revision date, which can
	// never match the just-created row. This path only creates ciphers, so
	// drop the field entirely.
	req.Cipher.LastKnownRevisionDate = nil

	if err := s.shareByID(ctx, actor, cipher.ID, req); err != nil {
		return nil, err
	}
	return cipher, nil
}

// Update applies a full cipher update after a write-accessibility check.
func (s *CipherService) Update(ctx context.Context, actor Actor, cipherID uuid.UUID, req model.CipherRequest) (*model.Cipher, error) {
	return s.update(ctx, actor, cipherID, req, false)
}

// UpdateAdmin is the org-admin variant of Update: an Owner/Admin of the
// cipher's organization passes unconditionally, without collection grants.
func (s *CipherService) UpdateAdmin(ctx context.Context, actor Actor, cipherID uuid.UUID, req model.CipherRequest) (*model.Cipher, error) {
	return s.update(ctx, actor, cipherID, req, true)
}

func (s *CipherService) update(ctx context.Context, actor Actor, cipherID uuid.UUID, req model.CipherRequest, admin bool) (*model.Cipher, error) {
	cipher, err := s.ciphers.Get(ctx, cipherID)
	if err != nil {
		return nil, err
	}
	ok, err := s.canEdit(ctx, actor.UserID, cipher, admin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cipher is not write accessible: %w", errs.ErrForbidden)
	}
	if err := s.applyUpdate(ctx, actor, cipher, req, nil, model.ChangeCipherUpdate); err != nil {
		return nil, err
	}
	return cipher, nil
}

// PartialUpdate changes only the requester's folder and favorite relations.
// These are per-user properties, so read visibility suffices.
func (s *CipherService) PartialUpdate(ctx context.Context, actor Actor, cipherID uuid.UUID, req model.PartialCipherRequest) (*model.Cipher, error) {
	cipher, err := s.ciphers.Get(ctx, cipherID)
	if err != nil {
		return nil, err
	}
	ok, err := s.resolver.CanAccess(ctx, actor.UserID, cipher)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cipher is not accessible: %w", errs.ErrForbidden)
	}
	if err := s.checkFolder(ctx, actor.UserID, req.FolderID); err != nil {
		return nil, err
	}
	if err := s.ciphers.SetFolder(ctx, cipher.ID, actor.UserID, req.FolderID); err != nil {
		return nil, fmt.Errorf("set folder: %w", err)
	}
	if err := s.ciphers.SetFavorite(ctx, cipher.ID, actor.UserID, req.Favorite); err != nil {
		return nil, fmt.Errorf("set favorite: %w", err)
	}
	return cipher, nil
}

// Share transfers a cipher into an organization and links it into the
// posted collections.
func (s *CipherService) Share(ctx context.Context, actor Actor, cipherID uuid.UUID, req model.ShareRequest) (*model.Cipher, error) {
	if err := s.shareByID(ctx, actor, cipherID, req); err != nil {
		return nil, err
	}
	return s.ciphers.Get(ctx, cipherID)
}

// ShareMany shares a batch of ciphers into the same collections. Items are
// processed sequentially; the first failure aborts, leaving earlier shares
// committed.
func (s *CipherService) ShareMany(ctx context.Context, actor Actor, ciphers []model.CipherRequest, collectionIDs []uuid.UUID) error {
	if len(ciphers) == 0 {
		return fmt.Errorf("you must select at least one cipher: %w", errs.ErrInvalidInput)
	}
	if len(collectionIDs) == 0 {
		return fmt.Errorf("you must select at least one collection: %w", errs.ErrInvalidInput)
	}
	for i := range ciphers {
		if ciphers[i].ID == nil {
			return fmt.Errorf("request missing ids field: %w", errs.ErrInvalidInput)
		}
	}

	for i := range ciphers {
		req := model.ShareRequest{Cipher: ciphers[i], CollectionIDs: collectionIDs}
		id := *req.Cipher.ID
		req.Cipher.ID = nil
		if err := s.shareByID(ctx, actor, id, req); err != nil {
			return err
		}
	}
	return nil
}

func (s *CipherService) shareByID(ctx context.Context, actor Actor, cipherID uuid.UUID, req model.ShareRequest) error {
	cipher, err := s.ciphers.Get(ctx, cipherID)
	if err != nil {
		return err
	}
	ok, err := s.resolver.CanEdit(ctx, actor.UserID, cipher)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cipher is not write accessible: %w", errs.ErrForbidden)
	}

	// Link into the posted collections first; carrying the linked set into
	// the update authorizes the ownership transfer below.
	sharedTo := []uuid.UUID{}
	if req.Cipher.OrganizationID != nil {
		for _, colID := range req.CollectionIDs {
			col, err := s.collections.GetByIDAndOrganization(ctx, colID, *req.Cipher.OrganizationID)
			if err != nil {
				if errors.Is(err, errs.ErrNotFound) {
					return fmt.Errorf("invalid collection ID provided: %w", errs.ErrInvalidInput)
				}
				return err
			}
			writable, err := s.resolver.CollectionWritable(ctx, actor.UserID, col)
			if err != nil {
				return err
			}
			if !writable {
				return fmt.Errorf("no rights to modify the collection: %w", errs.ErrForbidden)
			}
			if err := s.collections.AddCipher(ctx, col.ID, cipher.ID); err != nil {
				return fmt.Errorf("link collection: %w", err)
			}
			sharedTo = append(sharedTo, col.ID)
		}
	}

	// Without a revision date this is a fresh cipher being shared on create.
	kind := model.ChangeCipherCreate
	if req.Cipher.LastKnownRevisionDate != nil {
		kind = model.ChangeCipherUpdate
	}

	return s.applyUpdate(ctx, actor, cipher, req.Cipher, sharedTo, kind)
}

// Import runs the update pipeline per item with staleness checking disabled
// and per-item notifications suppressed; one aggregate vault notification is
// sent at the end. The import is validated before any item persists, but a
// mid-import failure leaves earlier items committed.
func (s *CipherService) Import(ctx context.Context, actor Actor, req model.ImportRequest) error {
	if err := s.enforcePersonalOwnership(ctx, actor.UserID, nil); err != nil {
		return err
	}
	for i := range req.Ciphers {
		if err := s.checkNoteSize(req.Ciphers[i].Notes); err != nil {
			return err
		}
	}

	existing, err := s.folders.FindByUser(ctx, actor.UserID)
	if err != nil {
		return fmt.Errorf("list folders: %w", err)
	}
	existingIDs := make(map[uuid.UUID]struct{}, len(existing))
	for _, f := range existing {
		existingIDs[f.ID] = struct{}{}
	}

	folderIDs := make([]uuid.UUID, 0, len(req.Folders))
	for _, imp := range req.Folders {
		if imp.ID != nil {
			if _, ok := existingIDs[*imp.ID]; ok {
				folderIDs = append(folderIDs, *imp.ID)
				continue
			}
		}
		folder := &model.Folder{
			ID:     uuid.Must(uuid.NewV4()),
			UserID: actor.UserID,
			Name:   imp.Name,
		}
		if err := s.folders.Create(ctx, folder); err != nil {
			return fmt.Errorf("create folder: %w", err)
		}
		folderIDs = append(folderIDs, folder.ID)
	}

	// A cipher can be in at most one folder.
	relations := make(map[int]int, len(req.Relations))
	for _, rel := range req.Relations {
		relations[rel.CipherIndex] = rel.FolderIndex
	}

	for i := range req.Ciphers {
		item := req.Ciphers[i]
		if fi, ok := relations[i]; ok && fi >= 0 && fi < len(folderIDs) {
			id := folderIDs[fi]
			item.FolderID = &id
		}
		cipher := s.newCipher(item.Type, item.Name)
		if err := s.applyUpdate(ctx, actor, cipher, item, nil, model.ChangeNone); err != nil {
			return err
		}
	}

	if err := s.users.BumpRevision(ctx, actor.UserID); err != nil {
		return fmt.Errorf("bump revision: %w", err)
	}
	s.notifier.SendUserUpdate(ctx, model.ChangeVault, actor.UserID, actor.Device.PushID)
	return nil
}

// SoftDelete moves a cipher to the trash.
func (s *CipherService) SoftDelete(ctx context.Context, actor Actor, cipherID uuid.UUID) error {
	return s.deleteByID(ctx, actor, cipherID, true)
}

// HardDelete permanently removes a cipher and its attachments.
func (s *CipherService) HardDelete(ctx context.Context, actor Actor, cipherID uuid.UUID) error {
	return s.deleteByID(ctx, actor, cipherID, false)
}

// DeleteMany deletes ciphers sequentially, aborting on the first failure.
// Earlier deletions stay committed; callers treat partial completion as
// documented behavior.
func (s *CipherService) DeleteMany(ctx context.Context, actor Actor, ids []uuid.UUID, soft bool) error {
	for _, id := range ids {
		if err := s.deleteByID(ctx, actor, id, soft); err != nil {
			return err
		}
	}
	return nil
}

// Restore brings a soft-deleted cipher back from the trash.
func (s *CipherService) Restore(ctx context.Context, actor Actor, cipherID uuid.UUID) (*model.Cipher, error) {
	return s.restoreByID(ctx, actor, cipherID)
}

// RestoreMany restores ciphers sequentially, aborting on the first failure.
func (s *CipherService) RestoreMany(ctx context.Context, actor Actor, ids []uuid.UUID) ([]model.Cipher, error) {
	out := make([]model.Cipher, 0, len(ids))
	for _, id := range ids {
		cipher, err := s.restoreByID(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *cipher)
	}
	return out, nil
}

// Move assigns ciphers to a folder of the requesting user. Read visibility
// suffices: folder assignment is a per-user relation.
func (s *CipherService) Move(ctx context.Context, actor Actor, folderID *uuid.UUID, ids []uuid.UUID) error {
	if err := s.checkFolder(ctx, actor.UserID, folderID); err != nil {
		return err
	}
	for _, id := range ids {
		cipher, err := s.ciphers.Get(ctx, id)
		if err != nil {
			return err
		}
		ok, err := s.resolver.CanAccess(ctx, actor.UserID, cipher)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("cipher is not accessible: %w", errs.ErrForbidden)
		}
		if err := s.ciphers.SetFolder(ctx, cipher.ID, actor.UserID, folderID); err != nil {
			return fmt.Errorf("set folder: %w", err)
		}
		s.notifier.SendCipherUpdate(ctx, model.ChangeCipherUpdate, cipher, []uuid.UUID{actor.UserID}, actor.Device, nil)
	}
	return nil
}

// Purge hard-deletes an entire vault. With an orgID it purges the
// organization vault (Owner role required); without, the requester's own
// vault including folders.
func (s *CipherService) Purge(ctx context.Context, actor Actor, orgID *uuid.UUID) error {
	if orgID != nil {
		member, err := s.members.Get(ctx, actor.UserID, *orgID)
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("you don't have permission to purge the organization vault: %w", errs.ErrForbidden)
		}
		if err != nil {
			return fmt.Errorf("load membership: %w", err)
		}
		if member.Role != model.RoleOwner {
			return fmt.Errorf("you don't have permission to purge the organization vault: %w", errs.ErrForbidden)
		}

		ciphers, err := s.ciphers.FindByOrganization(ctx, *orgID)
		if err != nil {
			return fmt.Errorf("list org ciphers: %w", err)
		}
		for i := range ciphers {
			s.deleteBlobs(ctx, &ciphers[i])
		}
		if err := s.ciphers.DeleteAllByOrganization(ctx, *orgID); err != nil {
			return fmt.Errorf("purge org vault: %w", err)
		}

		s.notifier.SendUserUpdate(ctx, model.ChangeVault, actor.UserID, actor.Device.PushID)
		s.events.LogEvent(ctx, model.Event{
			Kind:           model.EventOrganizationPurgedVault,
			SubjectID:      orgID.String(),
			OrganizationID: *orgID,
			ActorUserID:    actor.UserID,
			DeviceKind:     actor.Device.Kind,
			ActorIP:        actor.IP,
			OccurredAt:     time.Now(),
		})
		return nil
	}

	owned, err := s.ciphers.FindOwnedByUser(ctx, actor.UserID)
	if err != nil {
		return fmt.Errorf("list owned ciphers: %w", err)
	}
	for i := range owned {
		s.deleteBlobs(ctx, &owned[i])
		if err := s.ciphers.Delete(ctx, owned[i].ID); err != nil {
			return fmt.Errorf("delete cipher: %w", err)
		}
	}
	if err := s.folders.DeleteAllByUser(ctx, actor.UserID); err != nil {
		return fmt.Errorf("delete folders: %w", err)
	}
	if err := s.users.BumpRevision(ctx, actor.UserID); err != nil {
		return fmt.Errorf("bump revision: %w", err)
	}
	s.notifier.SendUserUpdate(ctx, model.ChangeVault, actor.UserID, actor.Device.PushID)
	return nil
}

// PurgeTrash hard-deletes soft-deleted ciphers older than the configured
// retention. Intended to run periodically in the background.
func (s *CipherService) PurgeTrash(ctx context.Context) error {
	if s.limits.TrashAutoDeleteDays == nil {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -*s.limits.TrashAutoDeleteDays)
	deleted, err := s.ciphers.DeleteTrashedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge trash: %w", err)
	}
	for i := range deleted {
		s.deleteBlobs(ctx, &deleted[i])
	}
	if len(deleted) > 0 {
		s.log.Info("purged trashed ciphers", zap.Int("count", len(deleted)))
	}
	return nil
}

// applyUpdate is the shared pipeline behind create, update, share and
// import: Validate, AuthorizeOwnership, CheckStaleness, ApplyFields,
// Persist, Notify.
func (s *CipherService) applyUpdate(
	ctx context.Context,
	actor Actor,
	cipher *model.Cipher,
	req model.CipherRequest,
	sharedTo []uuid.UUID,
	kind model.ChangeKind,
) error {
	if err := s.enforcePersonalOwnership(ctx, actor.UserID, &req); err != nil {
		return err
	}

	// Reject updates based on a stale client copy; skipped during import
	// where the timestamps never line up. Unparseable values are tolerated
	// for older clients.
	if kind != model.ChangeNone && req.LastKnownRevisionDate != nil {
		known, err := time.Parse(time.RFC3339Nano, *req.LastKnownRevisionDate)
		switch {
		case err != nil:
			s.log.Warn("unparseable lastKnownRevisionDate",
				zap.String("value", *req.LastKnownRevisionDate), zap.Error(err))
		case cipher.UpdatedAt.Sub(known) > staleLeeway:
			return fmt.Errorf("the client copy of this cipher is out of date, resync the client and try again: %w", errs.ErrConflict)
		}
	}

	if cipher.OrganizationID != nil &&
		(req.OrganizationID == nil || *req.OrganizationID != *cipher.OrganizationID) {
		return fmt.Errorf("organization mismatch, please resync the client before updating the cipher: %w", errs.ErrConflict)
	}

	if err := s.checkNoteSize(req.Notes); err != nil {
		return err
	}

	// Ownership transfer from a personal to an organization vault. The
	// reverse direction never happens through this pipeline.
	transfer := cipher.OrganizationID == nil && req.OrganizationID != nil

	if req.OrganizationID != nil {
		member, err := s.members.Get(ctx, actor.UserID, *req.OrganizationID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return fmt.Errorf("you don't have permission to add item to organization: %w", errs.ErrForbidden)
			}
			return err
		}
		writable, err := s.resolver.CanEdit(ctx, actor.UserID, cipher)
		if err != nil {
			return err
		}
		if sharedTo == nil && !member.HasFullAccess() && !writable {
			return fmt.Errorf("you don't have permission to add cipher directly to organization: %w", errs.ErrForbidden)
		}
		orgID := *req.OrganizationID
		cipher.OrganizationID = &orgID
		cipher.UserID = nil
	} else {
		userID := actor.UserID
		cipher.UserID = &userID
	}

	if err := s.checkFolder(ctx, actor.UserID, req.FolderID); err != nil {
		return err
	}

	s.rotateAttachmentKeys(ctx, cipher, req.AttachmentRotations)

	if err := applyPayload(cipher, &req); err != nil {
		return err
	}

	if err := s.ciphers.Save(ctx, cipher); err != nil {
		return fmt.Errorf("save cipher: %w", err)
	}
	if err := s.ciphers.SetFolder(ctx, cipher.ID, actor.UserID, req.FolderID); err != nil {
		return fmt.Errorf("set folder: %w", err)
	}
	if req.Favorite != nil {
		if err := s.ciphers.SetFavorite(ctx, cipher.ID, actor.UserID, *req.Favorite); err != nil {
			return fmt.Errorf("set favorite: %w", err)
		}
	}

	if kind == model.ChangeNone {
		return nil
	}

	if cipher.OrganizationID != nil {
		// A personal cipher moving into an org during an update is a share,
		// not an update, as far as the audit trail is concerned.
		eventType := model.EventCipherUpdated
		switch {
		case kind == model.ChangeCipherCreate && transfer:
			eventType = model.EventCipherCreated
		case kind == model.ChangeCipherUpdate && transfer:
			eventType = model.EventCipherShared
		}
		s.events.LogEvent(ctx, model.Event{
			Kind:           eventType,
			SubjectID:      cipher.ID.String(),
			OrganizationID: *cipher.OrganizationID,
			ActorUserID:    actor.UserID,
			DeviceKind:     actor.Device.Kind,
			ActorIP:        actor.IP,
			OccurredAt:     time.Now(),
		})
	}
	s.notifyCipherChange(ctx, kind, cipher, actor, sharedTo)
	return nil
}

// rotateAttachmentKeys applies re-wrapped attachment names and keys during
// client key rotation. A missing attachment was removed by another client:
// warn and continue. An attachment of a different cipher shows up when
// cloning, which does not clone attachments: warn and stop, failing the
// whole request would leave empty clones behind.
func (s *CipherService) rotateAttachmentKeys(ctx context.Context, cipher *model.Cipher, rotations map[string]model.AttachmentRotation) {
	for id, rot := range rotations {
		att, err := s.attachments.Get(ctx, id)
		if err != nil {
			s.log.Warn("rotated attachment doesn't exist", zap.String("attachment", id), zap.Error(err))
			continue
		}
		if att.CipherID != cipher.ID {
			s.log.Warn("rotated attachment is not owned by the cipher",
				zap.String("attachment", id), zap.String("cipher", cipher.ID.String()))
			break
		}
		key := rot.Key
		att.Key = &key
		att.FileName = rot.FileName
		if err := s.attachments.Save(ctx, att); err != nil {
			s.log.Warn("save rotated attachment", zap.String("attachment", id), zap.Error(err))
		}
	}
}

func (s *CipherService) deleteByID(ctx context.Context, actor Actor, cipherID uuid.UUID, soft bool) error {
	cipher, err := s.ciphers.Get(ctx, cipherID)
	if err != nil {
		return err
	}
	ok, err := s.resolver.CanEdit(ctx, actor.UserID, cipher)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cipher can't be deleted by user: %w", errs.ErrForbidden)
	}

	if soft {
		now := time.Now()
		cipher.DeletedAt = &now
		if err := s.ciphers.Save(ctx, cipher); err != nil {
			return fmt.Errorf("save cipher: %w", err)
		}
		s.notifyCipherChange(ctx, model.ChangeCipherUpdate, cipher, actor, nil)
	} else {
		s.deleteBlobs(ctx, cipher)
		if err := s.ciphers.Delete(ctx, cipher.ID); err != nil {
			return fmt.Errorf("delete cipher: %w", err)
		}
		s.notifyCipherChange(ctx, model.ChangeCipherDelete, cipher, actor, nil)
	}

	if cipher.OrganizationID != nil {
		eventType := model.EventCipherDeleted
		if soft {
			eventType = model.EventCipherSoftDeleted
		}
		s.events.LogEvent(ctx, model.Event{
			Kind:           eventType,
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

func (s *CipherService) restoreByID(ctx context.Context, actor Actor, cipherID uuid.UUID) (*model.Cipher, error) {
	cipher, err := s.ciphers.Get(ctx, cipherID)
	if err != nil {
		return nil, err
	}
	ok, err := s.resolver.CanEdit(ctx, actor.UserID, cipher)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cipher can't be restored by user: %w", errs.ErrForbidden)
	}

	cipher.DeletedAt = nil
	if err := s.ciphers.Save(ctx, cipher); err != nil {
		return nil, fmt.Errorf("save cipher: %w", err)
	}
	s.notifyCipherChange(ctx, model.ChangeCipherUpdate, cipher, actor, nil)

	if cipher.OrganizationID != nil {
		s.events.LogEvent(ctx, model.Event{
			Kind:           model.EventCipherRestored,
			SubjectID:      cipher.ID.String(),
			OrganizationID: *cipher.OrganizationID,
			ActorUserID:    actor.UserID,
			DeviceKind:     actor.Device.Kind,
			ActorIP:        actor.IP,
			OccurredAt:     time.Now(),
		})
	}
	return cipher, nil
}

// enforcePersonalOwnership rejects saving personal-vault items for users
// bound by an org's personal-ownership policy. Deleting and sharing out
// remain permitted. A nil req (import) checks the requester only.
func (s *CipherService) enforcePersonalOwnership(ctx context.Context, userID uuid.UUID, req *model.CipherRequest) error {
	if req != nil && req.OrganizationID != nil {
		return nil
	}
	applicable, err := s.policies.IsApplicable(ctx, userID, model.PolicyPersonalOwnership)
	if err != nil {
		return fmt.Errorf("policy lookup: %w", err)
	}
	if applicable {
		return fmt.Errorf("due to an enterprise policy, you are restricted from saving items to your personal vault: %w", errs.ErrPolicyViolation)
	}
	return nil
}

func (s *CipherService) checkNoteSize(notes *string) error {
	if notes != nil && len(*notes) > s.limits.MaxNoteSize {
		return fmt.Errorf("the field notes exceeds the maximum encrypted value length of %d characters: %w",
			s.limits.MaxNoteSize, errs.ErrInvalidInput)
	}
	return nil
}

func (s *CipherService) checkFolder(ctx context.Context, userID uuid.UUID, folderID *uuid.UUID) error {
	if folderID == nil {
		return nil
	}
	if _, err := s.folders.GetByIDAndUser(ctx, *folderID, userID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("folder does not exist or belongs to another user: %w", errs.ErrInvalidInput)
		}
		return err
	}
	return nil
}

func (s *CipherService) canEdit(ctx context.Context, userID uuid.UUID, cipher *model.Cipher, admin bool) (bool, error) {
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

// notifyCipherChange bumps revisions and dispatches the best-effort client
// notification. Failures here never unwind the persisted mutation.
func (s *CipherService) notifyCipherChange(ctx context.Context, kind model.ChangeKind, cipher *model.Cipher, actor Actor, collectionIDs []uuid.UUID) {
	userIDs, err := s.users.BumpRevisionForCipher(ctx, cipher)
	if err != nil {
		s.log.Warn("bump revisions", zap.String("cipher", cipher.ID.String()), zap.Error(err))
	}
	s.notifier.SendCipherUpdate(ctx, kind, cipher, userIDs, actor.Device, collectionIDs)
}

func (s *CipherService) deleteBlobs(ctx context.Context, cipher *model.Cipher) {
	if err := s.blobs.DeletePrefix(ctx, cipher.ID.String()+"/"); err != nil {
		s.log.Warn("delete attachment blobs", zap.String("cipher", cipher.ID.String()), zap.Error(err))
	}
}

func (s *CipherService) newCipher(t model.CipherType, name string) *model.Cipher {
	now := time.Now()
	return &model.Cipher{
		ID:        uuid.Must(uuid.NewV4()),
		Type:      t,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// applyPayload selects the type-specific payload, strips the transient
// "response" key the web clients generate (from the payload itself and from
// every entry of its uris list) and serializes the opaque blobs.
func applyPayload(cipher *model.Cipher, req *model.CipherRequest) error {
	payload, ok := req.Payload()
	if !ok {
		return fmt.Errorf("invalid type: %w", errs.ErrInvalidInput)
	}
	if payload == nil {
		return fmt.Errorf("data missing: %w", errs.ErrInvalidInput)
	}

	delete(payload, "response")
	if uris, ok := payload["uris"].([]any); ok {
		for _, u := range uris {
			if entry, ok := u.(map[string]any); ok {
				delete(entry, "response")
			}
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serialize payload: %w", err)
	}

	var fields []byte
	if req.Fields != nil {
		for _, f := range req.Fields {
			delete(f, "response")
		}
		if fields, err = json.Marshal(req.Fields); err != nil {
			return fmt.Errorf("serialize fields: %w", err)
		}
	}

	var history []byte
	if req.PasswordHistory != nil {
		if history, err = json.Marshal(req.PasswordHistory); err != nil {
			return fmt.Errorf("serialize password history: %w", err)
		}
	}

	cipher.Key = req.Key
	cipher.Name = req.Name
	cipher.Notes = req.Notes
	cipher.Fields = fields
	cipher.Data = data
	cipher.PasswordHistory = history

	cipher.Reprompt = model.RepromptNone
	if req.Reprompt != nil && model.RepromptType(*req.Reprompt) == model.RepromptPassword {
		cipher.Reprompt = model.RepromptPassword
	}
	return nil
}
