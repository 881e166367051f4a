package controllers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mediavault/middleware"
	"mediavault/models"
	"mediavault/services"
	"mediavault/utils"
)

const heartbeatInterval = 25 * time.Second

type EventController struct {
	notificationService *services.NotificationService
}

func NewEventController(notificationService *services.NotificationService) *EventController {
	return &EventController{notificationService: notificationService}
}

// Stream GET /events keeps a server-sent event stream open. The session is
// subscribed to its user room and to global events.
func (ec *EventController) Stream(c *gin.Context) {
	identity := middleware.CurrentIdentity(c)
	if identity.IsAnonymous() {
		utils.UnauthorizedResponse(c, "Authentication required")
		return
	}

	events, unsubscribe := ec.notificationService.Subscribe(models.UserScope(identity.ID), models.GlobalScope)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.SSEvent("ready", gin.H{"room": models.UserScope(identity.ID)})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})
}

// InternalNotify POST /internal/notify relays an envelope from a process
// that cannot hold session connections itself.
func (ec *EventController) InternalNotify(c *gin.Context) {
	var env models.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		utils.BadRequestResponse(c, "Invalid envelope", err.Error())
		return
	}
	if env.Event.Type == "" || !env.Scope.Valid() {
		utils.BadRequestResponse(c, "Envelope needs an event type and a valid scope", nil)
		return
	}
	if env.Scope == "" {
		env.Scope = models.GlobalScope
	}

	ec.notificationService.Relay(c.Request.Context(), env)
	c.JSON(http.StatusAccepted, utils.APIResponse{Success: true, Message: "Event accepted"})
}
