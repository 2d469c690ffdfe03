package rebuild_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loresmith/loresmith/ent/rebuildstatus"
	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/kv"
	"github.com/loresmith/loresmith/pkg/models"
	"github.com/loresmith/loresmith/pkg/rebuild"
	"github.com/loresmith/loresmith/pkg/services"
	testdb "github.com/loresmith/loresmith/test/database"
)

func newRecorderFixture(t *testing.T, cfg *config.RebuildConfig) (*rebuild.Recorder, *services.ChangelogService, *services.RebuildStatusService, *kv.Store) {
	t.Helper()
	client := testdb.NewTestClient(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := kv.NewStoreFromClient(rdb)

	changelog := services.NewChangelogService(client.Client, client.DB())
	rebuilds := services.NewRebuildStatusService(client.Client)
	recorder := rebuild.NewRecorder(changelog, rebuilds, nil, store, cfg)
	return recorder, changelog, rebuilds, store
}

// TestImpactThresholdSchedulesOneFullRebuild seeds three changelog entries
// whose fallback impact scores are 1.2, 1.5, and 3.0 (sum 5.7) against a
// threshold of 5.0: exactly one full rebuild must be scheduled, and after
// the reset the accumulator reads zero.
func TestImpactThresholdSchedulesOneFullRebuild(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires PostgreSQL")
	}
	cfg := config.DefaultRebuildConfig()
	cfg.ImpactThreshold = 5.0
	recorder, changelog, rebuilds, _ := newRecorderFixture(t, cfg)
	ctx := context.Background()

	// 1.2: one new entity.
	require.NoError(t, recorder.Record(ctx, "c1", models.ChangelogPayload{
		Timestamp:   1000,
		NewEntities: []models.ChangelogNewEntity{{EntityID: "a", EntityType: "npc"}},
	}))
	// 1.5: one relationship update.
	require.NoError(t, recorder.Record(ctx, "c1", models.ChangelogPayload{
		Timestamp: 2000,
		RelationshipUpdates: []models.ChangelogRelationshipUpdate{
			{FromEntityID: "a", ToEntityID: "b", RelationshipType: "allied_with"},
		},
	}))

	// Below threshold so far: nothing scheduled.
	_, err := rebuilds.Latest(ctx, "c1")
	assert.ErrorIs(t, err, services.ErrNotFound)

	// 3.0: three entity updates. Sum 5.7 crosses 5.0.
	require.NoError(t, recorder.Record(ctx, "c1", models.ChangelogPayload{
		Timestamp: 3000,
		EntityUpdates: []models.ChangelogEntityUpdate{
			{EntityID: "a", ChangeType: models.ChangeEntityModified},
			{EntityID: "b", ChangeType: models.ChangeEntityModified},
			{EntityID: "c", ChangeType: models.ChangeEntityModified},
		},
	}))

	rb, err := rebuilds.Latest(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, rebuildstatus.RebuildTypeFull, rb.RebuildType)
	assert.Equal(t, rebuildstatus.StatusPending, rb.Status)

	// Further records while a rebuild is active must not schedule another.
	require.NoError(t, recorder.Record(ctx, "c1", models.ChangelogPayload{
		Timestamp:     4000,
		EntityUpdates: []models.ChangelogEntityUpdate{{EntityID: "d", ChangeType: models.ChangeEntityModified}},
	}))
	entries, err := changelog.ListUnapplied(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	accumulated, err := recorder.AccumulatedImpact(ctx, "c1")
	require.NoError(t, err)
	assert.Greater(t, accumulated, 5.0)

	// The completed pipeline resets the accumulator.
	recorder.ResetAccumulator(ctx, "c1")
	accumulated, err = recorder.AccumulatedImpact(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, accumulated)
}

func TestRecordNormalizesEntityIDs(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires PostgreSQL")
	}
	recorder, changelog, _, _ := newRecorderFixture(t, config.DefaultRebuildConfig())
	ctx := context.Background()

	require.NoError(t, recorder.Record(ctx, "c1", models.ChangelogPayload{
		Timestamp:     1000,
		EntityUpdates: []models.ChangelogEntityUpdate{{EntityID: "goblin", ChangeType: models.ChangeEntityModified}},
	}))

	entries, err := changelog.ListUnapplied(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	updates, _ := entries[0].Payload["entity_updates"].([]any)
	require.Len(t, updates, 1)
	first, _ := updates[0].(map[string]any)
	assert.Equal(t, "c1_goblin", first["entity_id"])
}

func TestRecordRejectsMissingTimestamp(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires PostgreSQL")
	}
	recorder, _, _, _ := newRecorderFixture(t, config.DefaultRebuildConfig())
	err := recorder.Record(context.Background(), "c1", models.ChangelogPayload{})
	assert.True(t, services.IsValidationError(err))
}
