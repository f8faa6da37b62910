package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/shipyard-neo/bay/internal/router"
)

var interactUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// interactBrowser proxies a client WebSocket connection through to the
// browser runtime container's own interact endpoint, for callers that
// want to drive a live session directly (a remote debugger, a screen
// view) instead of the request/response exec_browser capability.
func (h *Handler) interactBrowser(c echo.Context) error {
	endpoint, err := h.router.ResolveInteractiveEndpoint(c.Request().Context(), c.Param("id"), router.CapabilityExecBrowser)
	if err != nil {
		return err
	}
	upstreamURL := strings.Replace(endpoint, "http://", "ws://", 1) + "/interact"

	clientConn, err := interactUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer clientConn.Close()

	upstreamConn, _, err := websocket.DefaultDialer.DialContext(c.Request().Context(), upstreamURL, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("endpoint", upstreamURL).Msg("failed to reach browser runtime interact endpoint")
		clientConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "upstream unreachable"))
		return nil
	}
	defer upstreamConn.Close()

	errc := make(chan error, 2)
	go pumpWebsocket(upstreamConn, clientConn, errc)
	go pumpWebsocket(clientConn, upstreamConn, errc)
	<-errc

	return nil
}

// pumpWebsocket copies messages from src to dst until src errors or closes.
func pumpWebsocket(dst, src *websocket.Conn, errc chan<- error) {
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			errc <- err
			return
		}
	}
}
