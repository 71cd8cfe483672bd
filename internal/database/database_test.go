package database

import (
	"context"
	"testing"
	"testing/fstest"

	"proconnect/internal/config"
	"proconnect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: NewGormLogger(nil)})
	require.NoError(t, err)
	require.NoError(t, configurePool(db, &config.Config{}))
	return db
}

func TestConfigurePoolSQLiteUsesSingleConnection(t *testing.T) {
	db := openMemory(t)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestDialectorRejectsUnknownDriver(t *testing.T) {
	_, err := Dialector(&config.Config{DBDriver: "mysql"})
	assert.Error(t, err)

	d, err := Dialector(&config.Config{DBDriver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())
}

func TestApplySchemaSQLiteAutoMigrates(t *testing.T) {
	db := openMemory(t)
	cfg := &config.Config{Env: "test", DBSchemaMode: SchemaModeSQL}

	require.NoError(t, ApplySchema(context.Background(), db, cfg))

	for _, m := range PersistentModels() {
		assert.True(t, db.Migrator().HasTable(m), "table for %T", m)
	}
	assert.True(t, db.Migrator().HasIndex(&models.ConnectionEdge{}, "idx_connection_pair"))

	status, err := GetSchemaStatus(context.Background(), db, cfg)
	require.NoError(t, err)
	assert.False(t, status.WillRunSQL)
	assert.True(t, status.WillRunAutoMigrate)
}

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		env     string
		driver  string
		runSQL  bool
		runAuto bool
		wantErr bool
	}{
		{"hybrid dev", SchemaModeHybrid, "development", "postgres", true, true, false},
		{"hybrid prod", SchemaModeHybrid, "production", "postgres", true, false, false},
		{"sql", SchemaModeSQL, "development", "postgres", true, false, false},
		{"auto dev", SchemaModeAuto, "development", "postgres", false, true, false},
		{"auto prod refused", SchemaModeAuto, "production", "postgres", false, false, true},
		{"unknown mode", "yolo", "development", "postgres", false, false, true},
		{"sqlite ignores mode", SchemaModeSQL, "production", "sqlite", false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runSQL, runAuto, err := schemaPolicy(&config.Config{DBSchemaMode: tt.mode, Env: tt.env}, tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.runSQL, runSQL)
			assert.Equal(t, tt.runAuto, runAuto)
		})
	}
}

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	all := GetMigrations()
	require.GreaterOrEqual(t, len(all), 2)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Version, all[i].Version)
	}
	assert.Equal(t, "000001_init_schema", all[0].String())
	assert.Contains(t, all[0].UpScript, "idx_connection_pair")
	assert.NotNil(t, GetMigrationByVersion(2))
	assert.Nil(t, GetMigrationByVersion(999))
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000002_b.up.sql":   {Data: []byte("B")},
		"m/000002_b.down.sql": {Data: []byte("-B")},
		"m/000001_a.up.sql":   {Data: []byte("A")},
		"m/000001_a.down.sql": {Data: []byte("-A")},
		"m/broken.up.sql":     {Data: []byte("x")},
		"m/README.md":         {Data: []byte("ignored")},
	}

	loaded, err := LoadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, 1, loaded[0].Version)
	assert.Equal(t, "-A", loaded[0].DownScript)
	assert.Equal(t, "b", loaded[1].Name)

	fsys["m/000003_c.up.sql"] = &fstest.MapFile{Data: []byte("C")}
	_, err = LoadMigrations(fsys, "m")
	assert.Error(t, err, "missing down script")
}

func TestValidateAppliedVersions(t *testing.T) {
	registered := []Migration{{Version: 1}, {Version: 2}}

	assert.NoError(t, validateAppliedVersions(nil, registered))
	assert.NoError(t, validateAppliedVersions([]int{1, 2}, registered))

	err := validateAppliedVersions([]int{1, 7, 5}, registered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000005, 000007")
}

func TestMigrationStoreRoundTrip(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	store := NewMigrationStore(db)

	applied, err := store.GetAppliedMigrations(ctx)
	require.NoError(t, err, "missing table reads as empty")
	assert.Empty(t, applied)

	require.NoError(t, db.AutoMigrate(&MigrationLog{}))
	require.NoError(t, store.ApplyMigration(ctx, 1, "scratch", "CREATE TABLE scratch (id INTEGER)"))
	assert.True(t, db.Migrator().HasTable("scratch"))

	applied, err = store.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, applied)

	err = store.ApplyMigration(ctx, 2, "bad", "NOT VALID SQL")
	assert.Error(t, err)
	applied, err = store.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, applied, "failed migration is not recorded")

	require.NoError(t, store.RemoveMigration(ctx, 1))
	applied, err = store.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}
