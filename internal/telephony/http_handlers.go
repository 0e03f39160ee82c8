package telephony

import (
	"net/http"

	"voice-assistant/internal/session"
	"voice-assistant/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TwilioWebhookHandler converts Twilio webhooks to session events, delegates
// to the call engine, and writes TwiML.
//
// No business logic here.
type TwilioWebhookHandler struct {
	Engine CallHandler
}

// Register mounts the three voice webhooks on g.
func (h TwilioWebhookHandler) Register(g gin.IRoutes) {
	g.POST("/voice", h.HandleVoice)
	g.POST("/speech", h.HandleSpeech)
	g.POST("/status", h.HandleStatus)
}

func (h TwilioWebhookHandler) HandleVoice(c *gin.Context) {
	h.handle(c, session.EventIncoming)
}

func (h TwilioWebhookHandler) HandleSpeech(c *gin.Context) {
	h.handle(c, session.EventSpeechResult)
}

func (h TwilioWebhookHandler) HandleStatus(c *gin.Context) {
	h.handle(c, session.EventStatusUpdate)
}

func (h TwilioWebhookHandler) handle(c *gin.Context, typ session.EventType) {
	log := logger.From(c.Request.Context())

	if h.Engine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call engine not configured"})
		return
	}

	form, err := ParseTwilioVoiceForm(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "event", typ, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	d := h.Engine.Handle(c.Request.Context(), form.ToEvent(typ))

	twiml, err := RenderTwiML(d)
	if err != nil {
		log.Error("twiml render failed", "event", typ, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}

	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}
