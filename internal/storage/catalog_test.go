package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func testSchema(source string, version int) *domain.SchemaMetadata {
	return &domain.SchemaMetadata{
		SchemaID:          fmt.Sprintf("%s_v%d_0000abcd", source, version),
		SourceID:          source,
		Version:           version,
		Fields:            []domain.SchemaField{{Name: "id", Type: domain.TypeInteger, Confidence: 1}},
		GeneratedAt:       time.Date(2026, 1, version, 0, 0, 0, 0, time.UTC),
		CompatibleEngines: []string{domain.EngineDocument},
		RecordCount:       3,
		ExtractionStats:   map[string]int{"records": 3},
		Signature:         "sig",
	}
}

func TestSchemaStore_VersionsAndLatest(t *testing.T) {
	ctx := context.Background()
	store := NewSchemaStore(newTestCatalog(t))

	_, err := store.Latest(ctx, "orders")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, store.Put(ctx, testSchema("orders", 1)))
	require.NoError(t, store.Put(ctx, testSchema("orders", 2)))
	require.NoError(t, store.Put(ctx, testSchema("users", 1)))

	latest, err := store.Latest(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "id", latest.Fields[0].Name)

	v1, err := store.Get(ctx, "orders", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	_, err = store.Get(ctx, "orders", 7)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	history, err := store.History(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Version)
	assert.Equal(t, 2, history[1].Version)

	sources, err := store.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, sources)
}

func TestSchemaStore_PutReplacesSameVersion(t *testing.T) {
	ctx := context.Background()
	store := NewSchemaStore(newTestCatalog(t))

	s := testSchema("orders", 1)
	require.NoError(t, store.Put(ctx, s))
	s.TabularGroups = []domain.TabularSchemaGroup{{GroupID: "g1", TableName: "orders_v1_abcd1234"}}
	require.NoError(t, store.Put(ctx, s))

	history, err := store.History(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Len(t, history[0].TabularGroups, 1)
	assert.Equal(t, "orders_v1_abcd1234", history[0].TabularGroups[0].TableName)
}

func TestJobStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(newTestCatalog(t))

	job := &domain.IngestJob{
		Name:          "nightly orders",
		SourceID:      "orders",
		SourceType:    "json_file",
		SourceConfig:  map[string]any{"filePath": "/tmp/orders.json"},
		Transforms:    []domain.TransformConfig{{Type: "limit", Config: map[string]any{"count": float64(10)}}},
		TriggerType:   domain.TriggerSchedule,
		TriggerConfig: "0 2 * * *",
		Enabled:       true,
	}
	require.NoError(t, store.CreateJob(ctx, job))
	require.NotEmpty(t, job.ID)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly orders", got.Name)
	assert.Equal(t, "/tmp/orders.json", got.SourceConfig["filePath"])
	require.Len(t, got.Transforms, 1)
	assert.Equal(t, "limit", got.Transforms[0].Type)
	assert.Nil(t, got.LastRunAt)

	manual := &domain.IngestJob{Name: "adhoc", SourceID: "x", SourceType: "csv_file", TriggerType: domain.TriggerManual, Enabled: true}
	require.NoError(t, store.CreateJob(ctx, manual))

	all, err := store.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	triggered, err := store.ListTriggeredJobs(ctx)
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, job.ID, triggered[0].ID)

	got.Enabled = false
	require.NoError(t, store.UpdateJob(ctx, got))
	triggered, err = store.ListTriggeredJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, triggered)

	require.NoError(t, store.UpdateJobStatus(ctx, job.ID, domain.StatusError, "boom"))
	got, err = store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.LastStatus)
	assert.Equal(t, "boom", got.LastError)
	assert.NotNil(t, got.LastRunAt)

	require.NoError(t, store.DeleteJob(ctx, job.ID))
	_, err = store.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, store.DeleteJob(ctx, job.ID), apperrors.ErrNotFound)
}

func TestJobStore_RunLogs(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(newTestCatalog(t))

	job := &domain.IngestJob{Name: "j", SourceID: "s", SourceType: "json_file", TriggerType: domain.TriggerManual}
	require.NoError(t, store.CreateJob(ctx, job))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		finished := base.Add(time.Duration(i)*time.Hour + time.Minute)
		require.NoError(t, store.CreateRunLog(ctx, &domain.IngestRunLog{
			JobID:       job.ID,
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
			FinishedAt:  &finished,
			Status:      domain.StatusSuccess,
			RecordsRead: 10 * (i + 1),
			Version:     i + 1,
		}))
	}

	logs, err := store.ListRunLogs(ctx, job.ID, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 3, logs[0].Version, "newest first")
	assert.Equal(t, 30, logs[0].RecordsRead)
	require.NotNil(t, logs[0].FinishedAt)

	// Deleting the job removes its runs.
	require.NoError(t, store.DeleteJob(ctx, job.ID))
	logs, err = store.ListRunLogs(ctx, job.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
