package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"attendease/internal/auth"
	"attendease/internal/model"
	"attendease/internal/ticket"
)

// multipartOverhead leaves room for form fields around the file itself.
const multipartOverhead = 1 << 20

func (s *Server) createTicket(c *gin.Context) {
	var (
		document string
		upload   *ticket.Upload
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if s.MaxUploadBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxUploadBytes+multipartOverhead)
		}
		document = c.PostForm("document")
		fh, err := c.FormFile("file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			badRequest(c, "invalid upload")
			return
		default:
			f, err := fh.Open()
			if err != nil {
				badRequest(c, "invalid upload")
				return
			}
			defer f.Close()
			upload = &ticket.Upload{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Body:        f,
			}
		}
	} else {
		var req struct {
			Document string `json:"document"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
		document = req.Document
	}

	t, err := s.Tickets.Create(c.Request.Context(), principal(c), document, upload)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) listTickets(c *gin.Context) {
	tickets, err := s.Tickets.List(c.Request.Context(), principal(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tickets)
}

func (s *Server) approveTicket(c *gin.Context) {
	s.review(c, s.Tickets.Approve)
}

func (s *Server) rejectTicket(c *gin.Context) {
	s.review(c, s.Tickets.Reject)
}

func (s *Server) review(c *gin.Context, decide func(ctx context.Context, actor auth.Principal, id string) (*model.Ticket, error)) {
	t, err := decide(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) ticketFile(c *gin.Context) {
	t, rc, err := s.Tickets.File(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if rc == nil {
		c.Redirect(http.StatusFound, t.FileURL)
		return
	}
	defer rc.Close()
	if ct := mime.TypeByExtension(filepath.Ext(t.FileName)); ct != "" {
		c.Header("Content-Type", ct)
	}
	c.Header("Content-Disposition", `inline; filename="`+filepath.Base(t.FileName)+`"`)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
