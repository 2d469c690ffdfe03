package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loresmith/loresmith/ent/file"
	"github.com/loresmith/loresmith/ent/rebuildstatus"
	"github.com/loresmith/loresmith/pkg/models"
	"github.com/loresmith/loresmith/pkg/services"
	testdb "github.com/loresmith/loresmith/test/database"
)

func TestResourceAttachIdempotency(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	users := services.NewUserService(client.Client)
	campaigns := services.NewCampaignService(client.Client)
	files := services.NewFileService(client.Client)
	resources := services.NewResourceService(client.Client)

	_, err := users.EnsureUser(ctx, "u1", "User One")
	require.NoError(t, err)
	camp, err := campaigns.CreateCampaign(ctx, "u1", models.CreateCampaignRequest{Name: "Test"})
	require.NoError(t, err)
	assert.Equal(t, "campaigns/"+camp.ID+"/", camp.RagBasePath)

	_, err = files.CreateFile(ctx, "u1", "files/u1/doc.pdf", "doc.pdf", 1000)
	require.NoError(t, err)

	// File not completed: precondition failure.
	_, err = resources.AttachResource(ctx, "u1", camp.ID, "files/u1/doc.pdf", "")
	assert.ErrorIs(t, err, services.ErrPreconditionFailed)

	_, err = files.UpdateStatus(ctx, "u1", "files/u1/doc.pdf", file.StatusCompleted)
	require.NoError(t, err)

	first, err := resources.AttachResource(ctx, "u1", camp.ID, "files/u1/doc.pdf", "")
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := resources.AttachResource(ctx, "u1", camp.ID, "files/u1/doc.pdf", "")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Resource.ID, second.Resource.ID)

	rows, err := resources.ListResources(ctx, camp.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestEntityUpsertMergesOnSlugCollision(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	users := services.NewUserService(client.Client)
	campaigns := services.NewCampaignService(client.Client)
	entities := services.NewEntityService(client.Client)

	_, err := users.EnsureUser(ctx, "u1", "")
	require.NoError(t, err)
	camp, err := campaigns.CreateCampaign(ctx, "u1", models.CreateCampaignRequest{Name: "World"})
	require.NoError(t, err)

	created, isNew, err := entities.UpsertEntity(ctx, services.EntityUpsert{
		CampaignID: camp.ID,
		Name:       "Lady Moira",
		EntityType: "npc",
		Content:    `{"name":"Lady Moira"}`,
		Metadata:   map[string]any{"confidence": 0.7},
	})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, camp.ID+"_lady_moira", created.ID)
	assert.Equal(t, models.ShardStatusStaging, created.Metadata["shardStatus"])

	// Same slug through different punctuation merges, keeping old keys.
	merged, isNew, err := entities.UpsertEntity(ctx, services.EntityUpsert{
		CampaignID: camp.ID,
		Name:       "lady  MOIRA!",
		EntityType: "npc",
		Metadata:   map[string]any{"sourceRef": "p.4"},
	})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, merged.ID)
	assert.Equal(t, 0.7, merged.Metadata["confidence"])
	assert.Equal(t, "p.4", merged.Metadata["sourceRef"])
	// Empty content does not clobber the existing content.
	assert.Equal(t, `{"name":"Lady Moira"}`, merged.Content)
}

func TestChangelogOrderingAndMarkApplied(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	changelog := services.NewChangelogService(client.Client, client.DB())

	// Same timestamp: seq breaks the tie in insertion order.
	for i := 0; i < 3; i++ {
		_, err := changelog.Append(ctx, services.ChangelogInsert{
			CampaignID:  "c1",
			Timestamp:   5000,
			Payload:     map[string]any{"timestamp": float64(5000), "idx": float64(i)},
			ImpactScore: 1.0,
		})
		require.NoError(t, err)
	}

	entries, err := changelog.ListUnapplied(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}

	ids := []string{entries[0].ID, entries[1].ID}
	n, err := changelog.MarkApplied(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := changelog.ListUnapplied(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, entries[2].ID, remaining[0].ID)
}

func TestRebuildScheduleSingleActive(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires PostgreSQL")
	}
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	rebuilds := services.NewRebuildStatusService(client.Client)

	first, err := rebuilds.Schedule(ctx, "c1", rebuildstatus.RebuildTypeFull, nil)
	require.NoError(t, err)

	_, err = rebuilds.Schedule(ctx, "c1", rebuildstatus.RebuildTypePartial, []string{"c1_a"})
	assert.ErrorIs(t, err, services.ErrAlreadyExists)

	require.NoError(t, rebuilds.MarkFailed(ctx, first.ID, "boom"))
	_, err = rebuilds.Schedule(ctx, "c1", rebuildstatus.RebuildTypeFull, nil)
	assert.NoError(t, err)
}
