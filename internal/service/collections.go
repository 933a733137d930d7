package service

import (
	"context"
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
)

// CollectionService reconciles which collections a cipher is linked into.
type CollectionService struct {
	ciphers     repository.CipherRepository
	collections repository.CollectionRepository
	users       repository.UserRepository
	resolver    *access.Resolver
	notifier    notify.Notifier
	events      notify.EventLogger
	log         *zap.Logger
}

// NewCollectionService constructs a CollectionService.
func NewCollectionService(
	ciphers repository.CipherRepository,
	collections repository.CollectionRepository,
	users repository.UserRepository,
	resolver *access.Resolver,
	notifier notify.Notifier,
	events notify.EventLogger,
	log *zap.Logger,
) *CollectionService {
	return &CollectionService{
		ciphers:     ciphers,
		collections: collections,
		users:       users,
		resolver:    resolver,
		notifier:    notifier,
		events:      events,
		log:         log,
	}
}

// Reconcile sets the cipher's collection membership to exactly the posted
// set. Only the symmetric difference against the current set is touched, so
// running it twice with the same input is a no-op. Each added or removed
// collection is checked individually; a collection the user cannot modify
// fails the whole request before any link in it changes, but links already
// reconciled stay.
func (s *CollectionService) Reconcile(ctx context.Context, actor Actor, cipherID uuid.UUID, posted []uuid.UUID) error {
	return s.reconcile(ctx, actor, cipherID, posted, false)
}

// ReconcileAdmin is Reconcile over every link of the cipher, bypassing
// per-collection grants for Owners and Admins.
func (s *CollectionService) ReconcileAdmin(ctx context.Context, actor Actor, cipherID uuid.UUID, posted []uuid.UUID) error {
	return s.reconcile(ctx, actor, cipherID, posted, true)
}

func (s *CollectionService) reconcile(ctx context.Context, actor Actor, cipherID uuid.UUID, posted []uuid.UUID, admin bool) error {
	cipher, err := s.ciphers.Get(ctx, cipherID)
	if err != nil {
		return err
	}
	if cipher.OrganizationID == nil {
		return fmt.Errorf("cipher is not organization owned: %w", errs.ErrInvalidInput)
	}
	ok, err := s.canEdit(ctx, actor.UserID, cipher, admin)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cipher is not write accessible: %w", errs.ErrForbidden)
	}

	var current []uuid.UUID
	if admin {
		current, err = s.ciphers.CollectionIDsAdmin(ctx, cipher.ID)
	} else {
		current, err = s.ciphers.CollectionIDs(ctx, cipher.ID, actor.UserID)
	}
	if err != nil {
		return fmt.Errorf("current collections: %w", err)
	}

	currentSet := make(map[uuid.UUID]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	postedSet := make(map[uuid.UUID]struct{}, len(posted))
	for _, id := range posted {
		postedSet[id] = struct{}{}
	}

	for _, id := range posted {
		if _, ok := currentSet[id]; ok {
			continue
		}
		if err := s.link(ctx, actor.UserID, cipher, id, admin, true); err != nil {
			return err
		}
	}
	for _, id := range current {
		if _, ok := postedSet[id]; ok {
			continue
		}
		if err := s.link(ctx, actor.UserID, cipher, id, admin, false); err != nil {
			return err
		}
	}

	userIDs, err := s.users.BumpRevisionForCipher(ctx, cipher)
	if err != nil {
		s.log.Warn("bump revisions", zap.String("cipher", cipher.ID.String()), zap.Error(err))
	}
	s.notifier.SendCipherUpdate(ctx, model.ChangeCipherUpdate, cipher, userIDs, actor.Device, posted)
	s.events.LogEvent(ctx, model.Event{
		Kind:           model.EventCipherUpdatedCollections,
		SubjectID:      cipher.ID.String(),
		OrganizationID: *cipher.OrganizationID,
		ActorUserID:    actor.UserID,
		DeviceKind:     actor.Device.Kind,
		ActorIP:        actor.IP,
		OccurredAt:     time.Now(),
	})
	return nil
}

func (s *CollectionService) link(ctx context.Context, userID uuid.UUID, cipher *model.Cipher, collectionID uuid.UUID, admin, add bool) error {
	col, err := s.collections.GetByIDAndOrganization(ctx, collectionID, *cipher.OrganizationID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("invalid collection ID provided: %w", errs.ErrInvalidInput)
		}
		return err
	}

	var writable bool
	if admin {
		writable, err = s.resolver.CollectionWritableAdmin(ctx, userID, col)
	} else {
		writable, err = s.resolver.CollectionWritable(ctx, userID, col)
	}
	if err != nil {
		return err
	}
	if !writable {
		return fmt.Errorf("no rights to modify the collection: %w", errs.ErrForbidden)
	}

	if add {
		if err := s.collections.AddCipher(ctx, col.ID, cipher.ID); err != nil {
			return fmt.Errorf("link collection: %w", err)
		}
		return nil
	}
	if err := s.collections.RemoveCipher(ctx, col.ID, cipher.ID); err != nil {
		return fmt.Errorf("unlink collection: %w", err)
	}
	return nil
}

func (s *CollectionService) canEdit(ctx context.Context, userID uuid.UUID, cipher *model.Cipher, admin bool) (bool, error) {
	if admin {
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
