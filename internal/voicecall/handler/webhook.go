package handler

import (
	"encoding/xml"
	"net/http"

	"voice-agent-server/internal/apierrors"

	"github.com/gin-gonic/gin"
)

// Plivo call-control XML. The Stream element body is the WebSocket URL
// Plivo pushes call audio to.
type answerResponse struct {
	XMLName xml.Name `xml:"Response"`
	Speak   speakElement
	Stream  streamElement
}

type speakElement struct {
	XMLName xml.Name `xml:"Speak"`
	Text    string   `xml:",chardata"`
}

type streamElement struct {
	XMLName       xml.Name `xml:"Stream"`
	Bidirectional bool     `xml:"bidirectional,attr"`
	AudioTrack    string   `xml:"audioTrack,attr"`
	ContentType   string   `xml:"contentType,attr"`
	KeepCallAlive bool     `xml:"keepCallAlive,attr"`
	URL           string   `xml:",chardata"`
}

// HandleWebhook serves the answer XML Plivo fetches when a call
// connects: a short greeting, then a bidirectional audio stream to the
// /stream endpoint.
func (h *Handler) HandleWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	h.logger.Info(ctx, "Incoming call received from Plivo")

	streamURL := h.telephony.StreamURL()
	if streamURL == "" {
		apierrors.ServiceUnavailable(c, "stream_url_not_configured",
			"public base URL is not configured", nil)
		return
	}

	resp := answerResponse{
		Speak: speakElement{Text: "Connecting you to the voice assistant."},
		Stream: streamElement{
			Bidirectional: true,
			AudioTrack:    "inbound",
			ContentType:   streamContentType,
			KeepCallAlive: true,
			URL:           streamURL,
		},
	}

	body, err := xml.Marshal(resp)
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/xml", append([]byte(xml.Header), body...))
}
