package access

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/vaultkeep/vaultkeep/internal/errs"
	"github.com/vaultkeep/vaultkeep/internal/model"
	"github.com/vaultkeep/vaultkeep/internal/repository"
)

type fakeMembers struct {
	byOrg map[uuid.UUID]model.Membership // keyed by org, single test user
}

var _ repository.MembershipRepository = (*fakeMembers)(nil)

func (f *fakeMembers) Get(_ context.Context, _, orgID uuid.UUID) (*model.Membership, error) {
	m, ok := f.byOrg[orgID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &m, nil
}

func (f *fakeMembers) FindByUser(_ context.Context, _ uuid.UUID) ([]model.Membership, error) {
	var out []model.Membership
	for _, m := range f.byOrg {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMembers) OrganizationIDsByUser(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id := range f.byOrg {
		out = append(out, id)
	}
	return out, nil
}

type fakeGrants struct {
	userForCipher  []model.CollectionUser
	groupForCipher []model.CollectionGroup
	userForCol     []model.CollectionUser
	groupForCol    []model.CollectionGroup
}

var _ repository.CollectionRepository = (*fakeGrants)(nil)

func (f *fakeGrants) GetByIDAndOrganization(_ context.Context, id, orgID uuid.UUID) (*model.Collection, error) {
	return &model.Collection{ID: id, OrganizationID: orgID}, nil
}
func (f *fakeGrants) AddCipher(_ context.Context, _, _ uuid.UUID) error    { return nil }
func (f *fakeGrants) RemoveCipher(_ context.Context, _, _ uuid.UUID) error { return nil }
func (f *fakeGrants) UserGrantsByUser(_ context.Context, _ uuid.UUID) ([]model.CollectionUser, error) {
	return nil, nil
}
func (f *fakeGrants) GroupGrantsByUser(_ context.Context, _ uuid.UUID) ([]model.CollectionGroup, error) {
	return nil, nil
}
func (f *fakeGrants) UserAccessForCipher(_ context.Context, _, _ uuid.UUID) ([]model.CollectionUser, error) {
	return f.userForCipher, nil
}
func (f *fakeGrants) GroupAccessForCipher(_ context.Context, _, _ uuid.UUID) ([]model.CollectionGroup, error) {
	return f.groupForCipher, nil
}
func (f *fakeGrants) UserAccessForCollection(_ context.Context, _, _ uuid.UUID) ([]model.CollectionUser, error) {
	return f.userForCol, nil
}
func (f *fakeGrants) GroupAccessForCollection(_ context.Context, _, _ uuid.UUID) ([]model.CollectionGroup, error) {
	return f.groupForCol, nil
}

type fakeGroups struct{ fullAccessOrgs []uuid.UUID }

var _ repository.GroupRepository = (*fakeGroups)(nil)

func (f *fakeGroups) FullAccessOrganizationIDsByUser(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	return f.fullAccessOrgs, nil
}

func orgCipher(orgID uuid.UUID) *model.Cipher {
	return &model.Cipher{
		ID: uuid.Must(uuid.NewV4()), OrganizationID: &orgID,
		Type: model.CipherTypeLogin, Name: "c",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
}

func TestCombine_MostPermissiveWins(t *testing.T) {
	t.Parallel()
	a := Grant{ReadOnly: true, HidePasswords: true, Manage: false}
	b := Grant{ReadOnly: false, HidePasswords: true, Manage: true}
	got := Combine(a, b)
	if got.ReadOnly {
		t.Fatalf("any writable path must make the result writable")
	}
	if !got.HidePasswords {
		t.Fatalf("passwords stay hidden only when every path hides them")
	}
	if !got.Manage {
		t.Fatalf("any managing path must make the result managing")
	}
}

func TestCombineAll_EmptyMeansNoAccess(t *testing.T) {
	t.Parallel()
	if _, ok := CombineAll(nil); ok {
		t.Fatalf("no grants must mean no access")
	}
	g, ok := CombineAll([]Grant{{ReadOnly: true}})
	if !ok || !g.ReadOnly {
		t.Fatalf("single grant must pass through, got %+v ok=%v", g, ok)
	}
}

func TestResolver_PersonalOwnership(t *testing.T) {
	t.Parallel()
	owner := uuid.Must(uuid.NewV4())
	stranger := uuid.Must(uuid.NewV4())
	r := NewResolver(&fakeMembers{}, &fakeGrants{}, &fakeGroups{}, false)

	c := &model.Cipher{ID: uuid.Must(uuid.NewV4()), UserID: &owner, Type: model.CipherTypeLogin}
	ctx := context.Background()

	if ok, err := r.CanEdit(ctx, owner, c); err != nil || !ok {
		t.Fatalf("owner must have write access: ok=%v err=%v", ok, err)
	}
	if ok, err := r.CanAccess(ctx, stranger, c); err != nil || ok {
		t.Fatalf("stranger must have no access: ok=%v err=%v", ok, err)
	}
}

func TestResolver_FullAccessMember(t *testing.T) {
	t.Parallel()
	user := uuid.Must(uuid.NewV4())
	orgID := uuid.Must(uuid.NewV4())
	members := &fakeMembers{byOrg: map[uuid.UUID]model.Membership{
		orgID: {UserID: user, OrganizationID: orgID, Role: model.RoleUser, AccessAll: true},
	}}
	r := NewResolver(members, &fakeGrants{}, &fakeGroups{}, false)

	if ok, err := r.CanEdit(context.Background(), user, orgCipher(orgID)); err != nil || !ok {
		t.Fatalf("access-all member must have write access: ok=%v err=%v", ok, err)
	}
}

func TestResolver_CollectionGrantsCombine(t *testing.T) {
	t.Parallel()
	user := uuid.Must(uuid.NewV4())
	orgID := uuid.Must(uuid.NewV4())
	members := &fakeMembers{byOrg: map[uuid.UUID]model.Membership{
		orgID: {UserID: user, OrganizationID: orgID, Role: model.RoleUser},
	}}
	grants := &fakeGrants{
		userForCipher: []model.CollectionUser{{ReadOnly: true, HidePasswords: true}},
	}
	r := NewResolver(members, grants, &fakeGroups{}, true)
	ctx := context.Background()
	c := orgCipher(orgID)

	g, ok, err := r.CipherGrant(ctx, user, c)
	if err != nil || !ok {
		t.Fatalf("grant expected: ok=%v err=%v", ok, err)
	}
	if !g.ReadOnly {
		t.Fatalf("single read-only path must stay read-only")
	}

	// A second, writable path through a group makes the cipher writable.
	grants.groupForCipher = []model.CollectionGroup{{ReadOnly: false, HidePasswords: false}}
	g, ok, err = r.CipherGrant(ctx, user, c)
	if err != nil || !ok || g.ReadOnly {
		t.Fatalf("writable group path must win: g=%+v ok=%v err=%v", g, ok, err)
	}
	if g.HidePasswords {
		t.Fatalf("a path showing passwords must win")
	}
}

func TestResolver_GroupsDisabled(t *testing.T) {
	t.Parallel()
	user := uuid.Must(uuid.NewV4())
	orgID := uuid.Must(uuid.NewV4())
	members := &fakeMembers{byOrg: map[uuid.UUID]model.Membership{
		orgID: {UserID: user, OrganizationID: orgID, Role: model.RoleUser},
	}}
	grants := &fakeGrants{
		groupForCipher: []model.CollectionGroup{{ReadOnly: false}},
	}
	groups := &fakeGroups{fullAccessOrgs: []uuid.UUID{orgID}}

	// With groups disabled neither the access-all group nor the group grant
	// may contribute.
	r := NewResolver(members, grants, groups, false)
	if ok, err := r.CanAccess(context.Background(), user, orgCipher(orgID)); err != nil || ok {
		t.Fatalf("group paths must be ignored when disabled: ok=%v err=%v", ok, err)
	}

	r = NewResolver(members, grants, groups, true)
	if ok, err := r.CanEdit(context.Background(), user, orgCipher(orgID)); err != nil || !ok {
		t.Fatalf("group full access must grant write when enabled: ok=%v err=%v", ok, err)
	}
}

func TestResolver_IsOrgAdmin(t *testing.T) {
	t.Parallel()
	user := uuid.Must(uuid.NewV4())
	orgID := uuid.Must(uuid.NewV4())
	ctx := context.Background()

	for role, want := range map[model.MembershipRole]bool{
		model.RoleOwner:   true,
		model.RoleAdmin:   true,
		model.RoleUser:    false,
		model.RoleManager: false,
	} {
		members := &fakeMembers{byOrg: map[uuid.UUID]model.Membership{
			orgID: {UserID: user, OrganizationID: orgID, Role: role},
		}}
		r := NewResolver(members, &fakeGrants{}, &fakeGroups{}, false)
		got, err := r.IsOrgAdmin(ctx, user, orgID)
		if err != nil || got != want {
			t.Fatalf("role %d: want %v, got %v (err %v)", role, want, got, err)
		}
	}

	r := NewResolver(&fakeMembers{}, &fakeGrants{}, &fakeGroups{}, false)
	if got, err := r.IsOrgAdmin(ctx, user, orgID); err != nil || got {
		t.Fatalf("non-member must not be admin: got %v err %v", got, err)
	}
}

func TestResolver_CollectionWritable(t *testing.T) {
	t.Parallel()
	user := uuid.Must(uuid.NewV4())
	orgID := uuid.Must(uuid.NewV4())
	col := &model.Collection{ID: uuid.Must(uuid.NewV4()), OrganizationID: orgID}
	ctx := context.Background()

	members := &fakeMembers{byOrg: map[uuid.UUID]model.Membership{
		orgID: {UserID: user, OrganizationID: orgID, Role: model.RoleUser},
	}}
	grants := &fakeGrants{userForCol: []model.CollectionUser{{ReadOnly: true}}}
	r := NewResolver(members, grants, &fakeGroups{}, false)

	if ok, err := r.CollectionWritable(ctx, user, col); err != nil || ok {
		t.Fatalf("read-only grant: want not writable, got %v (err %v)", ok, err)
	}

	grants.userForCol = []model.CollectionUser{{ReadOnly: false}}
	if ok, err := r.CollectionWritable(ctx, user, col); err != nil || !ok {
		t.Fatalf("writable grant: want writable, got %v (err %v)", ok, err)
	}

	// The admin variant bypasses grants for Owner/Admin roles only.
	grants.userForCol = nil
	if ok, err := r.CollectionWritableAdmin(ctx, user, col); err != nil || ok {
		t.Fatalf("regular member without grants: want not writable, got %v (err %v)", ok, err)
	}
	members.byOrg[orgID] = model.Membership{UserID: user, OrganizationID: orgID, Role: model.RoleAdmin}
	if ok, err := r.CollectionWritableAdmin(ctx, user, col); err != nil || !ok {
		t.Fatalf("admin: want writable, got %v (err %v)", ok, err)
	}
}
