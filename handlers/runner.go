package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"resolution-dashboard/models"
	"resolution-dashboard/runner"
)

const (
	historyLimit = 25
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type RunnerData struct {
	Title      string
	History    []models.CommandHistory
	Processes  []models.Process
	CurrentID  string
	Current    *models.Process
	AutoScroll bool
	Error      string
}

type StartRequest struct {
	Command string `json:"command" binding:"required"`
}

type InputRequest struct {
	Input string `json:"input"`
}

// RunnerPage shows the command form, recent commands and the watched
// process.
func (h *Handler) RunnerPage(c *gin.Context) {
	data := RunnerData{Title: "Experiment runner", AutoScroll: true}

	history, err := h.history.Recent(historyLimit)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to load command history")
	}
	data.History = history

	procs, err := h.runner.List(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to list processes")
		data.Error = "The process API is unavailable."
	}
	data.Processes = procs

	data.CurrentID, data.Current = h.runner.Monitor().Current()
	if on, err := h.prefs.AutoScroll(); err == nil {
		data.AutoScroll = on
	}
	c.HTML(http.StatusOK, "runner.html", data)
}

func (h *Handler) StartProcess(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.jsonError(c, http.StatusBadRequest, "command is required", nil)
		return
	}
	pid, err := h.runner.Start(c.Request.Context(), req.Command)
	if err != nil {
		h.jsonError(c, http.StatusBadGateway, "failed to start process", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"process_id": pid})
}

func (h *Handler) ListProcesses(c *gin.Context) {
	procs, err := h.runner.List(c.Request.Context())
	if err != nil {
		h.jsonError(c, statusFor(err), "failed to list processes", err)
		return
	}
	c.JSON(http.StatusOK, procs)
}

func (h *Handler) GetProcess(c *gin.Context) {
	p, err := h.runner.Process(c.Request.Context(), c.Param("pid"))
	if err != nil {
		h.jsonError(c, statusFor(err), "failed to get process", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"process":        p,
		"awaiting_input": !p.Status.Terminal() && runner.AwaitingInput(p.LastLine()),
	})
}

func (h *Handler) StopProcess(c *gin.Context) {
	if err := h.runner.Stop(c.Request.Context(), c.Param("pid")); err != nil {
		h.jsonError(c, statusFor(err), "failed to stop process", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) SendInput(c *gin.Context) {
	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.jsonError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.runner.SendInput(c.Request.Context(), c.Param("pid"), req.Input); err != nil {
		h.jsonError(c, statusFor(err), "failed to send input", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) GetHistory(c *gin.Context) {
	history, err := h.history.Recent(historyLimit)
	if err != nil {
		h.jsonError(c, http.StatusInternalServerError, "failed to load history", err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// StreamProcess pushes monitor updates of a process over a websocket. The
// process becomes the watched one if it is not already.
func (h *Handler) StreamProcess(c *gin.Context) {
	pid := c.Param("pid")
	monitor := h.runner.Monitor()

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := monitor.Subscribe(pid)
	defer unsubscribe()
	if current, _ := monitor.Current(); current != pid {
		monitor.Watch(pid)
	} else if p, err := h.runner.Process(c.Request.Context(), pid); err == nil {
		// the poll only publishes changes, so send the current state first
		final := p.Status.Terminal()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(runner.Update{
			Process:       *p,
			AwaitingInput: !final && runner.AwaitingInput(p.LastLine()),
			Final:         final,
		}); err != nil {
			return
		}
		if final {
			closeStream(conn)
			return
		}
	}

	// reads detect the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case u, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(u); err != nil {
				return
			}
			if u.Final {
				closeStream(conn)
				return
			}
		}
	}
}

func closeStream(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "process ended"),
		time.Now().Add(wsWriteWait))
}
