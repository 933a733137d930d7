package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/vaultkeep/vaultkeep/internal/errs"
	"github.com/vaultkeep/vaultkeep/internal/model"
	"github.com/vaultkeep/vaultkeep/internal/repository"
)

// memStore backs all fake repositories with shared in-memory state so
// cross-repository flows (links, grants, quotas) stay consistent in tests.
type memStore struct {
	ciphers     map[uuid.UUID]model.Cipher
	folders     map[uuid.UUID]model.Folder
	folderOf    map[uuid.UUID]map[uuid.UUID]uuid.UUID // user -> cipher -> folder
	favorites   map[uuid.UUID]map[uuid.UUID]bool      // user -> cipher
	memberships map[uuid.UUID]map[uuid.UUID]model.Membership
	collections map[uuid.UUID]model.Collection
	colCiphers  map[uuid.UUID]map[uuid.UUID]bool // collection -> cipher
	colUsers    map[uuid.UUID]map[uuid.UUID]model.CollectionUser
	groupGrants map[uuid.UUID][]model.CollectionGroup // user -> reachable group grants
	groupFull   map[uuid.UUID][]uuid.UUID             // user -> orgs with access-all group
	attachments map[string]model.Attachment
	policies    map[uuid.UUID]map[model.PolicyKind]bool
	revisions   map[uuid.UUID]int
}

func newMemStore() *memStore {
	return &memStore{
		ciphers:     make(map[uuid.UUID]model.Cipher),
		folders:     make(map[uuid.UUID]model.Folder),
		folderOf:    make(map[uuid.UUID]map[uuid.UUID]uuid.UUID),
		favorites:   make(map[uuid.UUID]map[uuid.UUID]bool),
		memberships: make(map[uuid.UUID]map[uuid.UUID]model.Membership),
		collections: make(map[uuid.UUID]model.Collection),
		colCiphers:  make(map[uuid.UUID]map[uuid.UUID]bool),
		colUsers:    make(map[uuid.UUID]map[uuid.UUID]model.CollectionUser),
		groupGrants: make(map[uuid.UUID][]model.CollectionGroup),
		groupFull:   make(map[uuid.UUID][]uuid.UUID),
		attachments: make(map[string]model.Attachment),
		policies:    make(map[uuid.UUID]map[model.PolicyKind]bool),
		revisions:   make(map[uuid.UUID]int),
	}
}

func (m *memStore) addMembership(userID, orgID uuid.UUID, role model.MembershipRole, accessAll bool) {
	if m.memberships[userID] == nil {
		m.memberships[userID] = make(map[uuid.UUID]model.Membership)
	}
	m.memberships[userID][orgID] = model.Membership{
		UserID: userID, OrganizationID: orgID,
		Role: role, Status: model.MembershipConfirmed, AccessAll: accessAll,
	}
}

func (m *memStore) addCollection(orgID uuid.UUID) uuid.UUID {
	id := uuid.Must(uuid.NewV4())
	m.collections[id] = model.Collection{ID: id, OrganizationID: orgID, Name: "col"}
	m.colCiphers[id] = make(map[uuid.UUID]bool)
	return id
}

func (m *memStore) grantUser(colID, userID uuid.UUID, readOnly bool) {
	if m.colUsers[colID] == nil {
		m.colUsers[colID] = make(map[uuid.UUID]model.CollectionUser)
	}
	m.colUsers[colID][userID] = model.CollectionUser{
		CollectionID: colID, UserID: userID, ReadOnly: readOnly,
	}
}

func (m *memStore) membership(userID, orgID uuid.UUID) (model.Membership, bool) {
	mem, ok := m.memberships[userID][orgID]
	return mem, ok
}

func (m *memStore) hasGroupFull(userID, orgID uuid.UUID) bool {
	for _, id := range m.groupFull[userID] {
		if id == orgID {
			return true
		}
	}
	return false
}

// canSeeOrgCipher mirrors the visibility rule of the SQL queries.
func (m *memStore) canSeeOrgCipher(userID uuid.UUID, c model.Cipher) bool {
	mem, ok := m.membership(userID, *c.OrganizationID)
	if !ok {
		return false
	}
	if mem.HasFullAccess() || m.hasGroupFull(userID, *c.OrganizationID) {
		return true
	}
	for colID, ciphers := range m.colCiphers {
		if !ciphers[c.ID] {
			continue
		}
		if _, ok := m.colUsers[colID][userID]; ok {
			return true
		}
		for _, cg := range m.groupGrants[userID] {
			if cg.CollectionID == colID {
				return true
			}
		}
	}
	return false
}

type fakeCipherRepo struct{ s *memStore }

var _ repository.CipherRepository = (*fakeCipherRepo)(nil)

func (f *fakeCipherRepo) Get(_ context.Context, id uuid.UUID) (*model.Cipher, error) {
	c, ok := f.s.ciphers[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (f *fakeCipherRepo) Save(_ context.Context, c *model.Cipher) error {
	c.UpdatedAt = time.Now()
	f.s.ciphers[c.ID] = *c
	return nil
}

func (f *fakeCipherRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.s.ciphers[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.s.ciphers, id)
	for _, ciphers := range f.s.colCiphers {
		delete(ciphers, id)
	}
	for attID, att := range f.s.attachments {
		if att.CipherID == id {
			delete(f.s.attachments, attID)
		}
	}
	return nil
}

func (f *fakeCipherRepo) DeleteAllByOrganization(_ context.Context, orgID uuid.UUID) error {
	for id, c := range f.s.ciphers {
		if c.OrganizationID != nil && *c.OrganizationID == orgID {
			_ = f.Delete(context.Background(), id)
		}
	}
	return nil
}

func (f *fakeCipherRepo) DeleteTrashedBefore(_ context.Context, cutoff time.Time) ([]model.Cipher, error) {
	var out []model.Cipher
	for id, c := range f.s.ciphers {
		if c.DeletedAt != nil && c.DeletedAt.Before(cutoff) {
			out = append(out, c)
			delete(f.s.ciphers, id)
		}
	}
	return out, nil
}

func (f *fakeCipherRepo) FindOwnedByUser(_ context.Context, userID uuid.UUID) ([]model.Cipher, error) {
	var out []model.Cipher
	for _, c := range f.s.ciphers {
		if c.OwnedBy(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCipherRepo) FindVisibleByUser(_ context.Context, userID uuid.UUID) ([]model.Cipher, error) {
	var out []model.Cipher
	for _, c := range f.s.ciphers {
		if c.OwnedBy(userID) || (c.InOrganization() && f.s.canSeeOrgCipher(userID, c)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCipherRepo) FindByOrganization(_ context.Context, orgID uuid.UUID) ([]model.Cipher, error) {
	var out []model.Cipher
	for _, c := range f.s.ciphers {
		if c.OrganizationID != nil && *c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCipherRepo) SetFolder(_ context.Context, cipherID, userID uuid.UUID, folderID *uuid.UUID) error {
	if f.s.folderOf[userID] == nil {
		f.s.folderOf[userID] = make(map[uuid.UUID]uuid.UUID)
	}
	if folderID == nil {
		delete(f.s.folderOf[userID], cipherID)
		return nil
	}
	f.s.folderOf[userID][cipherID] = *folderID
	return nil
}

func (f *fakeCipherRepo) SetFavorite(_ context.Context, cipherID, userID uuid.UUID, favorite bool) error {
	if f.s.favorites[userID] == nil {
		f.s.favorites[userID] = make(map[uuid.UUID]bool)
	}
	if favorite {
		f.s.favorites[userID][cipherID] = true
	} else {
		delete(f.s.favorites[userID], cipherID)
	}
	return nil
}

func (f *fakeCipherRepo) CollectionIDs(_ context.Context, cipherID, userID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for colID, ciphers := range f.s.colCiphers {
		if !ciphers[cipherID] {
			continue
		}
		col := f.s.collections[colID]
		mem, ok := f.s.membership(userID, col.OrganizationID)
		if !ok {
			continue
		}
		if mem.HasFullAccess() || f.s.hasGroupFull(userID, col.OrganizationID) {
			out = append(out, colID)
			continue
		}
		if _, ok := f.s.colUsers[colID][userID]; ok {
			out = append(out, colID)
		}
	}
	return out, nil
}

func (f *fakeCipherRepo) CollectionIDsAdmin(_ context.Context, cipherID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for colID, ciphers := range f.s.colCiphers {
		if ciphers[cipherID] {
			out = append(out, colID)
		}
	}
	return out, nil
}

func (f *fakeCipherRepo) CollectionLinksByUser(_ context.Context, userID uuid.UUID) ([]model.CollectionCipher, error) {
	var out []model.CollectionCipher
	for colID, ciphers := range f.s.colCiphers {
		col := f.s.collections[colID]
		if _, ok := f.s.membership(userID, col.OrganizationID); !ok {
			continue
		}
		for cipherID := range ciphers {
			out = append(out, model.CollectionCipher{CollectionID: colID, CipherID: cipherID})
		}
	}
	return out, nil
}

func (f *fakeCipherRepo) FavoriteIDsByUser(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id := range f.s.favorites[userID] {
		out = append(out, id)
	}
	return out, nil
}

type fakeCollectionRepo struct{ s *memStore }

var _ repository.CollectionRepository = (*fakeCollectionRepo)(nil)

func (f *fakeCollectionRepo) GetByIDAndOrganization(_ context.Context, id, orgID uuid.UUID) (*model.Collection, error) {
	col, ok := f.s.collections[id]
	if !ok || col.OrganizationID != orgID {
		return nil, errs.ErrNotFound
	}
	return &col, nil
}

func (f *fakeCollectionRepo) AddCipher(_ context.Context, collectionID, cipherID uuid.UUID) error {
	if f.s.colCiphers[collectionID] == nil {
		f.s.colCiphers[collectionID] = make(map[uuid.UUID]bool)
	}
	f.s.colCiphers[collectionID][cipherID] = true
	return nil
}

func (f *fakeCollectionRepo) RemoveCipher(_ context.Context, collectionID, cipherID uuid.UUID) error {
	delete(f.s.colCiphers[collectionID], cipherID)
	return nil
}

func (f *fakeCollectionRepo) UserGrantsByUser(_ context.Context, userID uuid.UUID) ([]model.CollectionUser, error) {
	var out []model.CollectionUser
	for _, users := range f.s.colUsers {
		if cu, ok := users[userID]; ok {
			out = append(out, cu)
		}
	}
	return out, nil
}

func (f *fakeCollectionRepo) GroupGrantsByUser(_ context.Context, userID uuid.UUID) ([]model.CollectionGroup, error) {
	return append([]model.CollectionGroup(nil), f.s.groupGrants[userID]...), nil
}

func (f *fakeCollectionRepo) UserAccessForCipher(_ context.Context, userID, cipherID uuid.UUID) ([]model.CollectionUser, error) {
	var out []model.CollectionUser
	for colID, ciphers := range f.s.colCiphers {
		if !ciphers[cipherID] {
			continue
		}
		if cu, ok := f.s.colUsers[colID][userID]; ok {
			out = append(out, cu)
		}
	}
	return out, nil
}

func (f *fakeCollectionRepo) GroupAccessForCipher(_ context.Context, userID, cipherID uuid.UUID) ([]model.CollectionGroup, error) {
	var out []model.CollectionGroup
	for _, cg := range f.s.groupGrants[userID] {
		if f.s.colCiphers[cg.CollectionID][cipherID] {
			out = append(out, cg)
		}
	}
	return out, nil
}

func (f *fakeCollectionRepo) UserAccessForCollection(_ context.Context, userID, collectionID uuid.UUID) ([]model.CollectionUser, error) {
	if cu, ok := f.s.colUsers[collectionID][userID]; ok {
		return []model.CollectionUser{cu}, nil
	}
	return nil, nil
}

func (f *fakeCollectionRepo) GroupAccessForCollection(_ context.Context, userID, collectionID uuid.UUID) ([]model.CollectionGroup, error) {
	var out []model.CollectionGroup
	for _, cg := range f.s.groupGrants[userID] {
		if cg.CollectionID == collectionID {
			out = append(out, cg)
		}
	}
	return out, nil
}

type fakeMembershipRepo struct {
	s      *memStore
	getErr error // returned from Get when set
}

var _ repository.MembershipRepository = (*fakeMembershipRepo)(nil)

func (f *fakeMembershipRepo) Get(_ context.Context, userID, orgID uuid.UUID) (*model.Membership, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	m, ok := f.s.membership(userID, orgID)
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &m, nil
}

func (f *fakeMembershipRepo) FindByUser(_ context.Context, userID uuid.UUID) ([]model.Membership, error) {
	var out []model.Membership
	for _, m := range f.s.memberships[userID] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMembershipRepo) OrganizationIDsByUser(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for orgID := range f.s.memberships[userID] {
		out = append(out, orgID)
	}
	return out, nil
}

type fakeGroupRepo struct{ s *memStore }

var _ repository.GroupRepository = (*fakeGroupRepo)(nil)

func (f *fakeGroupRepo) FullAccessOrganizationIDsByUser(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), f.s.groupFull[userID]...), nil
}

type fakePolicyRepo struct{ s *memStore }

var _ repository.PolicyRepository = (*fakePolicyRepo)(nil)

func (f *fakePolicyRepo) IsApplicable(_ context.Context, userID uuid.UUID, kind model.PolicyKind) (bool, error) {
	return f.s.policies[userID][kind], nil
}

type fakeUserRepo struct{ s *memStore }

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func (f *fakeUserRepo) BumpRevision(_ context.Context, userID uuid.UUID) error {
	f.s.revisions[userID]++
	return nil
}

func (f *fakeUserRepo) BumpRevisionForCipher(_ context.Context, c *model.Cipher) ([]uuid.UUID, error) {
	if c.UserID != nil {
		f.s.revisions[*c.UserID]++
		return []uuid.UUID{*c.UserID}, nil
	}
	if c.OrganizationID == nil {
		return nil, nil
	}
	var out []uuid.UUID
	for userID, orgs := range f.s.memberships {
		if _, ok := orgs[*c.OrganizationID]; !ok {
			continue
		}
		if f.s.canSeeOrgCipher(userID, *c) {
			f.s.revisions[userID]++
			out = append(out, userID)
		}
	}
	return out, nil
}

type fakeFolderRepo struct{ s *memStore }

var _ repository.FolderRepository = (*fakeFolderRepo)(nil)

func (f *fakeFolderRepo) GetByIDAndUser(_ context.Context, id, userID uuid.UUID) (*model.Folder, error) {
	folder, ok := f.s.folders[id]
	if !ok || folder.UserID != userID {
		return nil, errs.ErrNotFound
	}
	return &folder, nil
}

func (f *fakeFolderRepo) FindByUser(_ context.Context, userID uuid.UUID) ([]model.Folder, error) {
	var out []model.Folder
	for _, folder := range f.s.folders {
		if folder.UserID == userID {
			out = append(out, folder)
		}
	}
	return out, nil
}

func (f *fakeFolderRepo) Create(_ context.Context, folder *model.Folder) error {
	folder.UpdatedAt = time.Now()
	f.s.folders[folder.ID] = *folder
	return nil
}

func (f *fakeFolderRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.s.folders[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.s.folders, id)
	return nil
}

func (f *fakeFolderRepo) DeleteAllByUser(_ context.Context, userID uuid.UUID) error {
	for id, folder := range f.s.folders {
		if folder.UserID == userID {
			delete(f.s.folders, id)
		}
	}
	return nil
}

func (f *fakeFolderRepo) AssignmentsByUser(_ context.Context, userID uuid.UUID) ([]model.FolderCipher, error) {
	var out []model.FolderCipher
	for cipherID, folderID := range f.s.folderOf[userID] {
		out = append(out, model.FolderCipher{FolderID: folderID, CipherID: cipherID})
	}
	return out, nil
}

type fakeAttachmentRepo struct{ s *memStore }

var _ repository.AttachmentRepository = (*fakeAttachmentRepo)(nil)

func (f *fakeAttachmentRepo) Get(_ context.Context, id string) (*model.Attachment, error) {
	a, ok := f.s.attachments[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

func (f *fakeAttachmentRepo) Save(_ context.Context, a *model.Attachment) error {
	f.s.attachments[a.ID] = *a
	return nil
}

func (f *fakeAttachmentRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.s.attachments[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.s.attachments, id)
	return nil
}

func (f *fakeAttachmentRepo) FindByCipher(_ context.Context, cipherID uuid.UUID) ([]model.Attachment, error) {
	var out []model.Attachment
	for _, a := range f.s.attachments {
		if a.CipherID == cipherID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAttachmentRepo) FindByUserAndOrganizations(_ context.Context, userID uuid.UUID, orgIDs []uuid.UUID) ([]model.Attachment, error) {
	orgSet := make(map[uuid.UUID]bool, len(orgIDs))
	for _, id := range orgIDs {
		orgSet[id] = true
	}
	var out []model.Attachment
	for _, a := range f.s.attachments {
		c, ok := f.s.ciphers[a.CipherID]
		if !ok {
			continue
		}
		if c.OwnedBy(userID) || (c.OrganizationID != nil && orgSet[*c.OrganizationID]) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAttachmentRepo) SizeByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	for _, a := range f.s.attachments {
		if c, ok := f.s.ciphers[a.CipherID]; ok && c.OwnedBy(userID) {
			total += a.FileSize
		}
	}
	return total, nil
}

func (f *fakeAttachmentRepo) SizeByOrganization(_ context.Context, orgID uuid.UUID) (int64, error) {
	var total int64
	for _, a := range f.s.attachments {
		if c, ok := f.s.ciphers[a.CipherID]; ok && c.OrganizationID != nil && *c.OrganizationID == orgID {
			total += a.FileSize
		}
	}
	return total, nil
}

type fakeBlobStore struct {
	objects map[string][]byte
	deletes []string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	f.objects[key] = buf.Bytes()
	return nil
}

func (f *fakeBlobStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeBlobStore) DeletePrefix(_ context.Context, prefix string) error {
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			delete(f.objects, key)
		}
	}
	f.deletes = append(f.deletes, prefix)
	return nil
}

type sentNotification struct {
	kind          model.ChangeKind
	cipherID      uuid.UUID
	userIDs       []uuid.UUID
	collectionIDs []uuid.UUID
}

type fakeNotifier struct {
	cipherUpdates []sentNotification
	userUpdates   []model.ChangeKind
}

func (f *fakeNotifier) SendCipherUpdate(_ context.Context, kind model.ChangeKind, c *model.Cipher, userIDs []uuid.UUID, _ model.Device, collectionIDs []uuid.UUID) {
	f.cipherUpdates = append(f.cipherUpdates, sentNotification{
		kind: kind, cipherID: c.ID, userIDs: userIDs, collectionIDs: collectionIDs,
	})
}

func (f *fakeNotifier) SendUserUpdate(_ context.Context, kind model.ChangeKind, _ uuid.UUID, _ *string) {
	f.userUpdates = append(f.userUpdates, kind)
}

type fakeEventLogger struct{ events []model.Event }

func (f *fakeEventLogger) LogEvent(_ context.Context, e model.Event) {
	f.events = append(f.events, e)
}
