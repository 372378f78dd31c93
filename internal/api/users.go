package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendease/internal/user"
)

func (s *Server) register(c *gin.Context) {
	var in user.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	u, err := s.Users.Register(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user": u})
}

func (s *Server) login(c *gin.Context) {
	var in user.LoginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	pair, u, err := s.Users.Login(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":         pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExp.Unix(),
		"user":          u,
	})
}

func (s *Server) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh_token is required")
		return
	}
	pair, err := s.Users.Refresh(req.RefreshToken)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":         pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.AccessExp.Unix(),
	})
}

func (s *Server) me(c *gin.Context) {
	p := principal(c)
	u, err := s.Users.Get(c.Request.Context(), p, p.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.Users.List(c.Request.Context(), c.Query("section"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) getUser(c *gin.Context) {
	u, err := s.Users.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) updateUser(c *gin.Context) {
	var in user.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	u, err := s.Users.Update(c.Request.Context(), principal(c), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
