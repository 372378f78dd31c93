package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendease/internal/attendance"
)

func (s *Server) recordAttendance(c *gin.Context) {
	var batch attendance.Batch
	if err := c.ShouldBindJSON(&batch); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := s.Attendance.Record(c.Request.Context(), batch, principal(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Attendance updated successfully",
		"recorded": res.Recorded,
		"skipped":  res.Skipped,
	})
}

func (s *Server) listAttendance(c *gin.Context) {
	recs, err := s.Attendance.ListRecords(c.Request.Context(), principal(c), c.Query("studentId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (s *Server) overview(c *gin.Context) {
	out, err := s.Attendance.Overview(c.Request.Context(), principal(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) studentDetail(c *gin.Context) {
	out, err := s.Attendance.StudentDetail(c.Request.Context(), principal(c), c.Query("studentId"), c.Query("subjectCode"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
