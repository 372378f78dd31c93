package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendease/internal/calendar"
	"attendease/internal/subject"
)

func (s *Server) createSubject(c *gin.Context) {
	var in subject.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	sub, err := s.Subjects.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (s *Server) listSubjects(c *gin.Context) {
	subs, err := s.Subjects.ListForSection(c.Request.Context(), c.Query("section"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (s *Server) createAlert(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	a, err := s.Alerts.Create(c.Request.Context(), principal(c), req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) listAlerts(c *gin.Context) {
	alerts, err := s.Alerts.ListActive(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) createEvent(c *gin.Context) {
	var in calendar.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	evt, err := s.Calendar.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, evt)
}

func (s *Server) listEvents(c *gin.Context) {
	events, err := s.Calendar.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}
