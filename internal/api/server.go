package api

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	hzconsts "github.com/cloudwego/hertz/pkg/protocol/consts"
	tracer "github.com/hertz-contrib/monitor-prometheus"

	"github.com/marcomuellner/otto/internal/consts"
	"github.com/marcomuellner/otto/internal/pkg/logs"
	promregistry "github.com/marcomuellner/otto/internal/pkg/prometheus"
)

var loopbackHosts = map[string]bool{
	"127.0.0.1": true,
	"localhost": true,
	"::1":       true,
}

// Server is the loopback-only control-plane HTTP surface. Every route under
// /internal/tools/ requires the bearer token minted to
// <ottoHome>/secrets/internal-api.token; /health is served without auth.
type Server struct {
	httpServer *hzServer.Hertz
	deps       *Deps

	mu       sync.Mutex
	stopOnce sync.Once
	stopErr  error
}

// NewServer constructs the control-plane server bound to host:port. host
// must be a loopback address; anything else is a configuration error since
// the control plane is never meant to be reachable off-box.
func NewServer(host string, port int, deps *Deps) (*Server, error) {
	if !loopbackHosts[strings.ToLower(host)] {
		return nil, fmt.Errorf("internal api host %q is not a loopback address", host)
	}

	token, err := resolveInternalApiConfig(consts.InternalAPITokenPath())
	if err != nil {
		return nil, fmt.Errorf("resolve internal api token: %w", err)
	}

	bind := fmt.Sprintf("%s:%d", host, port)
	hzSvr := hzServer.Default(
		hzServer.WithHostPorts(bind),
		hzServer.WithReadTimeout(30*time.Second),
		hzServer.WithWriteTimeout(30*time.Second),
		hzServer.WithExitWaitTime(5*time.Second),
		hzServer.WithTracer(tracer.NewServerTracer(":9090", "/metrics", tracer.WithRegistry(promregistry.GetRegistry()))),
	)

	s := &Server{httpServer: hzSvr, deps: deps}

	hzSvr.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(hzconsts.StatusOK, utils.H{"status": "ok"})
	})

	tools := hzSvr.Group("/internal/tools", authMiddleware(token))
	tools.POST("/outbound/queue-telegram-message", s.handleQueueTelegramMessage)
	tools.POST("/outbound/queue-telegram-file", s.handleQueueTelegramFile)
	tools.POST("/tasks/create", s.handleTasksCreate)
	tools.POST("/tasks/update", s.handleTasksUpdate)
	tools.POST("/tasks/delete", s.handleTasksDelete)
	tools.POST("/tasks/list", s.handleTasksList)
	tools.POST("/tasks/failures/check", s.handleTasksFailuresCheck)
	tools.POST("/tasks/audit/list", s.handleTasksAuditList)
	tools.POST("/notification-profile/get", s.handleNotificationProfileGet)
	tools.POST("/notification-profile/set", s.handleNotificationProfileSet)
	tools.POST("/background-jobs/spawn", s.handleBackgroundJobsSpawn)
	tools.POST("/background-jobs/list", s.handleBackgroundJobsList)
	tools.POST("/background-jobs/show", s.handleBackgroundJobsShow)
	tools.POST("/background-jobs/cancel", s.handleBackgroundJobsCancel)

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	go s.httpServer.Spin()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			logs.CtxWarn(ctx, "[api] shutdown http server error: %v", err)
			s.stopErr = err
		}
	})
	return s.stopErr
}

func (s *Server) handleQueueTelegramMessage(ctx context.Context, c *app.RequestContext) {
	var req QueueTelegramMessageRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp, apiErr := s.deps.QueueTelegramMessage(req)
	s.deps.recordCommand("outbound.queue-telegram-message", "", req, apiErr)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, resp)
}

func (s *Server) handleQueueTelegramFile(ctx context.Context, c *app.RequestContext) {
	var req QueueTelegramFileRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp, apiErr := s.deps.QueueTelegramFile(req)
	s.deps.recordCommand("outbound.queue-telegram-file", "", req, apiErr)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, resp)
}

func (s *Server) handleTasksCreate(ctx context.Context, c *app.RequestContext) {
	var req TaskCreateRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp, apiErr := s.deps.TasksCreate(req)
	s.deps.recordCommand("tasks.create", req.Lane, req, apiErr)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, resp)
}

func (s *Server) handleTasksUpdate(ctx context.Context, c *app.RequestContext) {
	var req TaskUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp, apiErr := s.deps.TasksUpdate(req)
	s.deps.recordCommand("tasks.update", req.Lane, req, apiErr)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, resp)
}

func (s *Server) handleTasksDelete(ctx context.Context, c *app.RequestContext) {
	var req TaskDeleteRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp, apiErr := s.deps.TasksDelete(req)
	s.deps.recordCommand("tasks.delete", req.Lane, req, apiErr)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, resp)
}

func (s *Server) handleTasksList(ctx context.Context, c *app.RequestContext) {
	var req TaskListRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp, apiErr := s.deps.TasksList(req)
	s.deps.recordCommand("tasks.list", req.Lane, req, apiErr)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, resp)
}

func (s *Server) handleTasksFailuresCheck(ctx context.Context, c *app.RequestContext) {
	var req TasksFailuresCheckRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp, apiErr := s.deps.TasksFailuresCheck(req)
	s.deps.recordCommand("tasks.failures.check", req.Lane, req, apiErr)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, resp)
}

func (s *Server) handleTasksAuditList(ctx context.Context, c *app.RequestContext) {
	var req TasksAuditListRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp := s.deps.TasksAuditList(req)
	s.deps.recordCommand("tasks.audit.list", "", req, nil)
	writeOK(c, resp)
}

func (s *Server) handleNotificationProfileGet(ctx context.Context, c *app.RequestContext) {
	resp := s.deps.NotificationProfileGet()
	s.deps.recordCommand("notification-profile.get", "", nil, nil)
	writeOK(c, resp)
}

func (s *Server) handleNotificationProfileSet(ctx context.Context, c *app.RequestContext) {
	var req NotificationProfileSetRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp, changed, apiErr := s.deps.NotificationProfileSet(req)
	s.deps.recordCommand("notification-profile.set", "", map[string]any{"request": req, "changed": changed}, apiErr)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, utils.H{"profile": resp.Profile, "changed": changed})
}

func (s *Server) handleBackgroundJobsSpawn(ctx context.Context, c *app.RequestContext) {
	var req BackgroundJobSpawnRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp, apiErr := s.deps.BackgroundJobsSpawn(req)
	s.deps.recordCommand("background-jobs.spawn", req.Lane, req, apiErr)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, resp)
}

func (s *Server) handleBackgroundJobsList(ctx context.Context, c *app.RequestContext) {
	var req BackgroundJobListRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp := s.deps.BackgroundJobsList(req)
	s.deps.recordCommand("background-jobs.list", laneInteractive, req, nil)
	writeOK(c, resp)
}

func (s *Server) handleBackgroundJobsShow(ctx context.Context, c *app.RequestContext) {
	var req BackgroundJobShowRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp, apiErr := s.deps.BackgroundJobsShow(req)
	s.deps.recordCommand("background-jobs.show", laneInteractive, req, apiErr)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, resp)
}

func (s *Server) handleBackgroundJobsCancel(ctx context.Context, c *app.RequestContext) {
	var req BackgroundJobCancelRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	resp, apiErr := s.deps.BackgroundJobsCancel(ctx, req)
	s.deps.recordCommand("background-jobs.cancel", laneInteractive, req, apiErr)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	writeOK(c, resp)
}
