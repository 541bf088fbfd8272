package bridge

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/autodialer/internal/dialer"
	"github.com/zulandar/autodialer/internal/models"
	"github.com/zulandar/autodialer/internal/voice"
)

// callRequest is the body of POST /api/call.
type callRequest struct {
	Phone        string `json:"phone" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email"`
	ReferralCode string `json:"referral_code"`
}

// responseRequest is the body of POST /api/call/response.
type responseRequest struct {
	Response string `json:"response" binding:"required"`
}

// registerRoutes sets up all bridge routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	s := opts.Session

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	api := router.Group("/api")
	api.GET("/state", handleState(s))
	api.POST("/call", handleStartCall(s))
	api.POST("/call/end", handleEndCall(s))
	api.POST("/call/reset", handleReset(s))
	api.POST("/call/response", handleResponse(s))
	api.GET("/events", handleSSE(opts.Hub, s))
}

func handleState(s Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.GetState())
	}
}

func handleStartCall(s Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req callRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		err := s.StartCall(c.Request.Context(), models.CallerProfile{
			Phone:        req.Phone,
			Name:         req.Name,
			Email:        req.Email,
			ReferralCode: req.ReferralCode,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "state": s.GetState()})
			return
		}
		c.JSON(http.StatusOK, s.GetState())
	}
}

func handleEndCall(s Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.EndCall(); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s.GetState())
	}
}

func handleReset(s Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.ResetToIdle()
		c.JSON(http.StatusOK, s.GetState())
	}
}

func handleResponse(s Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req responseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.SendResponse(c.Request.Context(), req.Response); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusAccepted)
	}
}

// statusFor maps dialer and transport errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dialer.ErrSessionActive), errors.Is(err, dialer.ErrSessionAborted),
		errors.Is(err, dialer.ErrNoActiveSession):
		return http.StatusConflict
	case errors.Is(err, voice.ErrInvalidDigits):
		return http.StatusBadRequest
	case errors.Is(err, voice.ErrUnsupportedPlatform):
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}
