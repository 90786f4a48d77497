package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-while/go-easyweb/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	cfg := config.NewDefaultDatabaseConfig(filepath.Join(t.TempDir(), "data", "test.db"))
	db, err := OpenDatabase(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Shutdown() })
	return db
}

func TestOpenDatabaseIsIdempotent(t *testing.T) {
	cfg := config.NewDefaultDatabaseConfig(filepath.Join(t.TempDir(), "app.db"))

	db, err := OpenDatabase(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Shutdown())
	assert.True(t, db.IsDBshutdown())

	db, err = OpenDatabase(cfg)
	require.NoError(t, err)
	defer db.Shutdown()

	var applied int
	require.NoError(t, db.GetMainDB().QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	migrations, err := getMigrationFiles(EmbeddedMigrationsFS)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), applied)
}

func TestParseMigrationFileName(t *testing.T) {
	m, err := parseMigrationFileName("0007_add_users.sql")
	require.NoError(t, err)
	assert.Equal(t, 7, m.Version)
	assert.Equal(t, "add_users", m.Description)
	assert.Equal(t, "migrations/0007_add_users.sql", m.FilePath)

	for _, bad := range []string{"0001.sql", "0001_.sql", "x_desc.sql", "0001_desc.txt"} {
		_, err := parseMigrationFileName(bad)
		assert.Error(t, err, bad)
	}
}

func TestSessionLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sid, err := GenerateSecureSessionID()
	require.NoError(t, err)
	assert.Len(t, sid, SessionIDLength)

	_, err = db.GetSession(ctx, sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	expires := time.Now().Add(time.Hour)
	require.NoError(t, db.SetSession(ctx, sid, map[string]any{"user": "alice", "visits": 1}, expires))

	rec, err := db.GetSession(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Data["user"])
	assert.Equal(t, float64(1), rec.Data["visits"])
	assert.Equal(t, expires.UnixMilli(), rec.ExpiresAt.UnixMilli())

	require.NoError(t, db.SetSession(ctx, sid, map[string]any{"user": "bob"}, expires))
	rec, err = db.GetSession(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.Data["user"])
	assert.NotContains(t, rec.Data, "visits")

	later := time.Now().Add(2 * time.Hour)
	require.NoError(t, db.TouchSession(ctx, sid, later))
	rec, err = db.GetSession(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, later.UnixMilli(), rec.ExpiresAt.UnixMilli())

	require.NoError(t, db.DestroySession(ctx, sid))
	_, err = db.GetSession(ctx, sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestExpiredSessionsAreInvisibleAndCleanedUp(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SetSession(ctx, "old", nil, time.Now().Add(-time.Minute)))
	require.NoError(t, db.SetSession(ctx, "fresh", nil, time.Now().Add(time.Hour)))

	_, err := db.GetSession(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	n, err := db.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetSession(ctx, "fresh")
	assert.NoError(t, err)
}

func TestDefineAndCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	users, err := db.Define(ctx, "users", []Attribute{
		{Name: "username", Type: TypeString, NotNull: true, Unique: true},
		{Name: "age", Type: TypeInteger},
		{Name: "admin", Type: TypeBoolean},
	})
	require.NoError(t, err)

	got, ok := db.Model("users")
	require.True(t, ok)
	assert.Same(t, users, got)

	id, err := users.Create(ctx, Values{"username": "alice", "age": 30, "admin": true})
	require.NoError(t, err)
	_, err = users.Create(ctx, Values{"username": "bob", "age": 25, "admin": false})
	require.NoError(t, err)

	row, err := users.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", row["username"])
	assert.Equal(t, int64(30), row["age"])
	assert.Equal(t, true, row["admin"])
	assert.IsType(t, time.Time{}, row["created_at"])

	all, err := users.FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "bob", all[1]["username"])

	n, err := users.Update(ctx, Values{"username": "bob"}, Values{"age": 26})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	row, err = users.FindOne(ctx, Values{"username": "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(26), row["age"])

	count, err := users.Count(ctx, Values{"admin": false})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	n, err = users.Destroy(ctx, Values{"username": "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = users.FindOne(ctx, Values{"username": "bob"})
	assert.ErrorIs(t, err, ErrRecordNotFound)

	// unique constraint comes from the table definition
	_, err = users.Create(ctx, Values{"username": "alice"})
	assert.Error(t, err)
}

func TestDefineRejectsBadIdentifiers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Define(ctx, "users; DROP TABLE sessions", nil)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = db.Define(ctx, "posts", []Attribute{{Name: "body text"}})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = db.Define(ctx, "posts", []Attribute{{Name: "id"}})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = db.Define(ctx, "sessions", nil)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	posts, err := db.Define(ctx, "posts", []Attribute{{Name: "title"}})
	require.NoError(t, err)
	_, err = posts.Create(ctx, Values{"missing": 1})
	assert.ErrorIs(t, err, ErrUnknownColumn)
	_, err = posts.FindAll(ctx, Values{"title OR 1=1 --": 1})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestGenerateID(t *testing.T) {
	id, err := GenerateID("uuid")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`, id)

	id, err = GenerateID("")
	require.NoError(t, err)
	assert.Len(t, id, 36)

	nano, err := GenerateID("nanoid")
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Za-z0-9_-]{21}$`, nano)

	other, err := GenerateID("nanoid")
	require.NoError(t, err)
	assert.NotEqual(t, nano, other)

	_, err = GenerateID("snowflake")
	assert.Error(t, err)
}

func TestHashAndVerify(t *testing.T) {
	hashed, err := Hash("correct horse", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hashed)

	ok, err := VerifyHash("correct horse", hashed)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyHash("wrong horse", hashed)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyHash("x", "not-a-bcrypt-hash")
	assert.Error(t, err)

	// out of range cost falls back to the default
	hashed, err = Hash("pw", 99)
	require.NoError(t, err)
	assert.Contains(t, hashed, "$10$")
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, ValidatePassword("short"))
	assert.NoError(t, ValidatePassword("long enough"))
	assert.Error(t, ValidatePassword(strings.Repeat("a", 73)))
}
