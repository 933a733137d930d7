package postgres

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/vaultkeep/vaultkeep/internal/errs"
	"github.com/vaultkeep/vaultkeep/internal/model"
)

var attachmentCols = []string{"id", "cipher_id", "file_name", "file_size", "key"}

func TestAttachmentRepo_Get_OK_And_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAttachmentRepo(db)

	ctx := context.Background()
	cipherID := uuid.Must(uuid.NewV4())
	key := "wrapped-key"

	mock.ExpectQuery(`SELECT id, cipher_id, file_name, file_size, key FROM attachments WHERE id=\$1`).
		WithArgs("abc123").
		WillReturnRows(pgxmock.NewRows(attachmentCols).
			AddRow("abc123", cipherID, "enc-name", int64(1024), &key))
	a, err := r.Get(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, "abc123", a.ID)
	require.Equal(t, cipherID, a.CipherID)
	require.Equal(t, int64(1024), a.FileSize)
	require.Equal(t, key, *a.Key)

	mock.ExpectQuery(`SELECT id, cipher_id, file_name, file_size, key FROM attachments WHERE id=\$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAttachmentRepo_Save(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAttachmentRepo(db)

	key := "k"
	a := &model.Attachment{
		ID:       "abc123",
		CipherID: uuid.Must(uuid.NewV4()),
		FileName: "enc-name",
		FileSize: 2048,
		Key:      &key,
	}

	mock.ExpectExec(`INSERT INTO attachments \(id, cipher_id, file_name, file_size, key\)`).
		WithArgs(a.ID, a.CipherID, a.FileName, a.FileSize, a.Key).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Save(context.Background(), a))
}

func TestAttachmentRepo_Delete_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAttachmentRepo(db)

	mock.ExpectExec(`DELETE FROM attachments WHERE id=\$1`).
		WithArgs("gone").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.ErrorIs(t, r.Delete(context.Background(), "gone"), errs.ErrNotFound)
}

func TestAttachmentRepo_SizeByUser(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAttachmentRepo(db)

	userID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(a.file_size\),0\)`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(int64(4096)))

	total, err := r.SizeByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(4096), total)
}

func TestAttachmentRepo_FindByUserAndOrganizations_BindsOrgArray(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAttachmentRepo(db)

	userID := uuid.Must(uuid.NewV4())
	orgID := uuid.Must(uuid.NewV4())
	cipherID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`FROM attachments a\s+JOIN ciphers c ON c.id = a.cipher_id`).
		WithArgs(userID, []string{orgID.String()}).
		WillReturnRows(pgxmock.NewRows(attachmentCols).
			AddRow("a1", cipherID, "f", int64(10), (*string)(nil)))

	out, err := r.FindByUserAndOrganizations(context.Background(), userID, []uuid.UUID{orgID})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, cipherID, out[0].CipherID)
}
