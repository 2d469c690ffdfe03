package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loresmith/loresmith/pkg/models"
	"github.com/loresmith/loresmith/pkg/notifications"
	"github.com/loresmith/loresmith/pkg/rebuild"
	"github.com/loresmith/loresmith/pkg/services"
)

// ToolsetDeps are the services the built-in tools operate on.
type ToolsetDeps struct {
	Campaigns *services.CampaignService
	Files     *services.FileService
	Resources *services.ResourceService
	Entities  *services.EntityService
	Rebuilds  *services.RebuildStatusService
	Overlay   *rebuild.OverlayReader
	Publisher *notifications.Publisher
}

// BuildRegistry wires the built-in agents and their tool sets. Called once
// at startup; the result is immutable.
func BuildRegistry(deps ToolsetDeps) (*Registry, error) {
	return NewRegistry(
		AgentTypeGeneral,
		&Descriptor{
			Type:        AgentTypeCampaign,
			Description: "Creates and manages campaigns and their attached resources",
			SystemPrompt: "You help the user organize campaigns: creating them, listing them, " +
				"and attaching uploaded documents as resources.",
			Tools: []ToolDefinition{
				{
					Name:                 "createCampaign",
					Description:          "Create a new campaign",
					RequiresConfirmation: true,
					Handler:              createCampaignTool(deps),
				},
				{
					Name:        "listCampaigns",
					Description: "List the user's campaigns",
					Handler:     listCampaignsTool(deps),
				},
				{
					Name:        "listCampaignResources",
					Description: "List the resources attached to a campaign",
					Handler:     listResourcesTool(deps),
				},
			},
		},
		&Descriptor{
			Type:        AgentTypeFiles,
			Description: "Manages uploaded files: listing, renaming, and deleting",
			SystemPrompt: "You help the user manage their uploaded documents. Destructive " +
				"operations always go through confirmation.",
			Tools: []ToolDefinition{
				{
					Name:        "listFiles",
					Description: "List the user's uploaded files with status",
					Handler:     listFilesTool(deps),
				},
				{
					Name:                 "updatePdfMetadata",
					Description:          "Update an uploaded file's display name",
					RequiresConfirmation: true,
					Handler:              updateFileMetadataTool(deps),
				},
				{
					Name:                 "deletePdfFile",
					Description:          "Delete an uploaded file",
					RequiresConfirmation: true,
					Handler:              deleteFileTool(deps),
				},
			},
		},
		&Descriptor{
			Type:        AgentTypeWorld,
			Description: "Queries and curates the campaign knowledge graph",
			SystemPrompt: "You help the user explore and curate the entities, relationships, " +
				"and communities extracted from their documents.",
			Tools: []ToolDefinition{
				{
					Name:        "listEntities",
					Description: "List a campaign's entities",
					Handler:     listEntitiesTool(deps),
				},
				{
					Name:        "setShardStatus",
					Description: "Approve or reject a staged entity",
					Handler:     setShardStatusTool(deps),
				},
				{
					Name:        "deleteEntity",
					Description: "Permanently delete an entity from the graph",
					Handler:     deleteEntityTool(deps),
				},
				{
					Name:        "deleteRelationship",
					Description: "Permanently delete a relationship from the graph",
					Handler:     deleteRelationshipTool(deps),
				},
				{
					Name:        "getWorldOverlay",
					Description: "Read the pending world-state overlay for a campaign",
					Handler:     overlayTool(deps),
				},
				{
					Name:        "getRebuildStatus",
					Description: "Get the latest graph rebuild status for a campaign",
					Handler:     rebuildStatusTool(deps),
				},
			},
		},
		&Descriptor{
			Type:        AgentTypeGeneral,
			Description: "Answers general questions about the workspace",
			SystemPrompt: "You answer general questions about LoreSmith and point the user " +
				"toward uploads, campaigns, or the knowledge graph as appropriate.",
			Tools: []ToolDefinition{},
		},
	)
}

// --- Tool argument shapes ---

type campaignArgs struct {
	CampaignID string `json:"campaignId"`
}

type createCampaignArgs struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type fileArgs struct {
	FileKey string `json:"fileKey"`
	Name    string `json:"name"`
}

type entityArgs struct {
	CampaignID string `json:"campaignId"`
	EntityID   string `json:"entityId"`
	Status     string `json:"status"`
}

type relationshipArgs struct {
	CampaignID     string `json:"campaignId"`
	RelationshipID string `json:"relationshipId"`
}

func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var args T
	if len(raw) == 0 {
		return args, fmt.Errorf("missing tool arguments")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// --- Handlers ---

func createCampaignTool(deps ToolsetDeps) ToolHandler {
	return func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[createCampaignArgs](raw)
		if err != nil {
			return nil, err
		}
		c, err := deps.Campaigns.CreateCampaign(ctx, userID, models.CreateCampaignRequest{
			Name:        args.Name,
			Description: args.Description,
		})
		if err != nil {
			return nil, err
		}
		deps.Publisher.PublishCampaignCreated(userID, c.ID, c.Name)
		return c, nil
	}
}

func listCampaignsTool(deps ToolsetDeps) ToolHandler {
	return func(ctx context.Context, userID string, _ json.RawMessage) (any, error) {
		return deps.Campaigns.ListCampaigns(ctx, userID)
	}
}

func listResourcesTool(deps ToolsetDeps) ToolHandler {
	return func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[campaignArgs](raw)
		if err != nil {
			return nil, err
		}
		if _, err := deps.Campaigns.GetCampaign(ctx, userID, args.CampaignID); err != nil {
			return nil, err
		}
		return deps.Resources.ListResources(ctx, args.CampaignID)
	}
}

func listFilesTool(deps ToolsetDeps) ToolHandler {
	return func(ctx context.Context, userID string, _ json.RawMessage) (any, error) {
		return deps.Files.ListFiles(ctx, userID)
	}
}

func updateFileMetadataTool(deps ToolsetDeps) ToolHandler {
	return func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[fileArgs](raw)
		if err != nil {
			return nil, err
		}
		return deps.Files.RenameFile(ctx, userID, args.FileKey, args.Name)
	}
}

func deleteFileTool(deps ToolsetDeps) ToolHandler {
	return func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[fileArgs](raw)
		if err != nil {
			return nil, err
		}
		if err := deps.Files.DeleteFile(ctx, userID, args.FileKey); err != nil {
			return nil, err
		}
		deps.Publisher.PublishFileStatus(userID, args.FileKey, "deleted")
		return map[string]any{"deleted": args.FileKey}, nil
	}
}

func listEntitiesTool(deps ToolsetDeps) ToolHandler {
	return func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[campaignArgs](raw)
		if err != nil {
			return nil, err
		}
		if _, err := deps.Campaigns.GetCampaign(ctx, userID, args.CampaignID); err != nil {
			return nil, err
		}
		return deps.Entities.ListEntities(ctx, args.CampaignID)
	}
}

func setShardStatusTool(deps ToolsetDeps) ToolHandler {
	return func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[entityArgs](raw)
		if err != nil {
			return nil, err
		}
		if _, err := deps.Campaigns.GetCampaign(ctx, userID, args.CampaignID); err != nil {
			return nil, err
		}
		e, err := deps.Entities.SetShardStatus(ctx, args.CampaignID, args.EntityID, args.Status)
		if err != nil {
			return nil, err
		}
		notifType := models.NotificationShardApproved
		if args.Status == models.ShardStatusRejected {
			notifType = models.NotificationShardRejected
		}
		deps.Publisher.Publish(userID, models.NotificationPayload{
			Type:    notifType,
			Title:   "Shard Review",
			Message: fmt.Sprintf("%s is now %s", e.Name, args.Status),
			Data:    map[string]any{"campaignId": args.CampaignID, "entityId": e.ID},
		})
		return e, nil
	}
}

func deleteEntityTool(deps ToolsetDeps) ToolHandler {
	return func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[entityArgs](raw)
		if err != nil {
			return nil, err
		}
		if _, err := deps.Campaigns.GetCampaign(ctx, userID, args.CampaignID); err != nil {
			return nil, err
		}
		if err := deps.Entities.DeleteEntity(ctx, args.CampaignID, args.EntityID); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": args.EntityID}, nil
	}
}

func deleteRelationshipTool(deps ToolsetDeps) ToolHandler {
	return func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[relationshipArgs](raw)
		if err != nil {
			return nil, err
		}
		if _, err := deps.Campaigns.GetCampaign(ctx, userID, args.CampaignID); err != nil {
			return nil, err
		}
		if err := deps.Entities.DeleteRelationship(ctx, args.CampaignID, args.RelationshipID); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": args.RelationshipID}, nil
	}
}

func overlayTool(deps ToolsetDeps) ToolHandler {
	return func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[campaignArgs](raw)
		if err != nil {
			return nil, err
		}
		if _, err := deps.Campaigns.GetCampaign(ctx, userID, args.CampaignID); err != nil {
			return nil, err
		}
		return deps.Overlay.Read(ctx, args.CampaignID)
	}
}

func rebuildStatusTool(deps ToolsetDeps) ToolHandler {
	return func(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
		args, err := decodeArgs[campaignArgs](raw)
		if err != nil {
			return nil, err
		}
		if _, err := deps.Campaigns.GetCampaign(ctx, userID, args.CampaignID); err != nil {
			return nil, err
		}
		return deps.Rebuilds.Latest(ctx, args.CampaignID)
	}
}
