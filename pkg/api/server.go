// Package api exposes the HTTP surface: authentication, campaigns and
// resources, uploads, the SSE notification stream, rebuild controls,
// assessment endpoints, and the agent chat routes.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loresmith/loresmith/pkg/agent"
	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/database"
	"github.com/loresmith/loresmith/pkg/extraction"
	"github.com/loresmith/loresmith/pkg/kv"
	"github.com/loresmith/loresmith/pkg/notifications"
	"github.com/loresmith/loresmith/pkg/rebuild"
	"github.com/loresmith/loresmith/pkg/services"
	"github.com/loresmith/loresmith/pkg/uploads"
)

// Server carries every dependency the handlers need.
type Server struct {
	cfg *config.Config

	db    *database.Client
	store *kv.Store

	users       *services.UserService
	campaigns   *services.CampaignService
	files       *services.FileService
	resources   *services.ResourceService
	entities    *services.EntityService
	shards      *services.ShardService
	communities *services.CommunityService
	rebuilds    *services.RebuildStatusService
	assessment  *services.AssessmentService
	messages    *services.MessageService

	hub       *notifications.Manager
	publisher *notifications.Publisher
	uploadMgr *uploads.Manager
	queue     *extraction.Queue
	recorder  *rebuild.Recorder
	overlay   *rebuild.OverlayReader
	router    *agent.Router
	runtime   *agent.Runtime
	registry  *agent.Registry

	validate *validator.Validate
}

// Deps bundles the constructor arguments.
type Deps struct {
	Config      *config.Config
	DB          *database.Client
	Store       *kv.Store
	Users       *services.UserService
	Campaigns   *services.CampaignService
	Files       *services.FileService
	Resources   *services.ResourceService
	Entities    *services.EntityService
	Shards      *services.ShardService
	Communities *services.CommunityService
	Rebuilds    *services.RebuildStatusService
	Assessment  *services.AssessmentService
	Messages    *services.MessageService
	Hub         *notifications.Manager
	Publisher   *notifications.Publisher
	UploadMgr   *uploads.Manager
	Queue       *extraction.Queue
	Recorder    *rebuild.Recorder
	Overlay     *rebuild.OverlayReader
	Router      *agent.Router
	Runtime     *agent.Runtime
	Registry    *agent.Registry
}

// NewServer creates the API server.
func NewServer(deps Deps) *Server {
	return &Server{
		cfg:         deps.Config,
		db:          deps.DB,
		store:       deps.Store,
		users:       deps.Users,
		campaigns:   deps.Campaigns,
		files:       deps.Files,
		resources:   deps.Resources,
		entities:    deps.Entities,
		shards:      deps.Shards,
		communities: deps.Communities,
		rebuilds:    deps.Rebuilds,
		assessment:  deps.Assessment,
		messages:    deps.Messages,
		hub:         deps.Hub,
		publisher:   deps.Publisher,
		uploadMgr:   deps.UploadMgr,
		queue:       deps.Queue,
		recorder:    deps.Recorder,
		overlay:     deps.Overlay,
		router:      deps.Router,
		runtime:     deps.Runtime,
		registry:    deps.Registry,
		validate:    validator.New(),
	}
}

// RegisterRoutes mounts every route on the engine.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.POST("/authenticate", s.Authenticate)

	// The SSE stream authenticates via its own single-use token.
	engine.GET("/stream", s.Stream)

	authed := engine.Group("/", s.authMiddleware())
	{
		authed.POST("/notifications/mint-stream", s.MintStreamToken)

		authed.GET("/campaigns", s.ListCampaigns)
		authed.POST("/campaigns", s.CreateCampaign)
		authed.DELETE("/campaigns", s.DeleteAllCampaigns)
		authed.GET("/campaigns/:id", s.GetCampaign)
		authed.PUT("/campaigns/:id", s.UpdateCampaign)
		authed.DELETE("/campaigns/:id", s.DeleteCampaign)
		authed.GET("/campaigns/:id/resources", s.ListResources)
		authed.POST("/campaigns/:id/resource", s.AttachResource)
		authed.DELETE("/campaigns/:id/resource/:rid", s.DetachResource)
		authed.POST("/campaigns/:id/resource/:rid/retry-entity-extraction", s.RetryExtraction)
		authed.GET("/campaigns/:id/resource/:rid/entity-extraction-status", s.ExtractionStatus)

		authed.GET("/campaigns/:id/entities", s.ListEntities)
		authed.GET("/campaigns/:id/importance", s.ListImportance)
		authed.GET("/campaigns/:id/communities", s.ListCommunities)
		authed.GET("/campaigns/:id/overlay", s.GetOverlay)
		authed.POST("/campaigns/:id/rebuild", s.TriggerRebuild)
		authed.GET("/campaigns/:id/rebuild-status", s.RebuildStatus)
		authed.POST("/campaigns/:id/rebuild/:rebuildId/cancel", s.CancelRebuild)

		authed.GET("/files", s.ListFiles)
		authed.POST("/uploads", s.StartUpload)
		authed.GET("/uploads/:id", s.GetUpload)
		authed.POST("/uploads/:id/parts", s.AckUploadPart)
		authed.POST("/uploads/:id/complete", s.CompleteUpload)
		authed.DELETE("/uploads/:id", s.AbortUpload)

		authed.GET("/assessment/user-state", s.UserState)
		authed.GET("/assessment/recommendations", s.Recommendations)
		authed.GET("/assessment/activity", s.Activity)

		authed.POST("/chat/message", s.ChatMessage)
		authed.POST("/chat/tool-call", s.ToolCall)
		authed.POST("/chat/tool-confirmation", s.ToolConfirmation)
	}
}
