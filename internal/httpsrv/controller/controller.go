package controller

import (
	"log/slog"
	"net/http"

	"github.com/hashmap-kz/pgreplmon/internal/httpsrv/httputils"
	"github.com/hashmap-kz/pgreplmon/internal/httpsrv/service"
	"github.com/hashmap-kz/pgreplmon/internal/render"
)

type MonitorController struct {
	Service service.MonitorService
	l       *slog.Logger
}

func NewController(s service.MonitorService, l *slog.Logger) *MonitorController {
	return &MonitorController{
		Service: s,
		l:       l,
	}
}

func (c *MonitorController) log() *slog.Logger {
	if c.l != nil {
		return c.l
	}
	return slog.With("component", "rest-api")
}

func (c *MonitorController) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	report, ok := c.Service.Health()
	httputils.WriteJSON(w, statusFor(ok), report)
}

func (c *MonitorController) ReadyHandler(w http.ResponseWriter, _ *http.Request) {
	ok, body := c.Service.Ready()
	httputils.WriteText(w, statusFor(ok), body)
}

func (c *MonitorController) LiveHandler(w http.ResponseWriter, _ *http.Request) {
	ok, body := c.Service.Live()
	httputils.WriteText(w, statusFor(ok), body)
}

// MetricsHandler always answers 200: a render failure is logged and served
// as an empty exposition.
func (c *MonitorController) MetricsHandler(w http.ResponseWriter, _ *http.Request) {
	body, err := c.Service.Metrics()
	if err != nil {
		c.log().Error("cannot render metrics", slog.Any("err", err))
		body = nil
	}
	httputils.Write(w, http.StatusOK, render.ContentTypeProm, body)
}

func (c *MonitorController) NotFoundHandler(w http.ResponseWriter, _ *http.Request) {
	httputils.WriteText(w, http.StatusNotFound, render.TextNotFound)
}

func statusFor(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
