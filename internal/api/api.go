// Package api exposes the ledger over HTTP with gin. Every resource
// endpoint answers with the schema.Result envelope.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/celerix-dev/celerix-ledger/internal/ledger"
	"github.com/celerix-dev/celerix-ledger/internal/logger"
	"github.com/celerix-dev/celerix-ledger/internal/query"
	"github.com/celerix-dev/celerix-ledger/internal/resource"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenHeader carries the session token on protected routes.
const TokenHeader = "X-Token"

const identityKey = "identity"

var ErrBackupsDisabled = errors.New("backups are not configured")

type Handler struct {
	Ledger  *ledger.Ledger
	Backups *ledger.Backups
	Log     *zap.Logger
}

// NewRouter builds the gin engine with logging, recovery, CORS and all routes.
func NewRouter(h *Handler) *gin.Engine {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	r := gin.New()
	r.Use(logger.GinMiddleware(h.Log), logger.Recovery(h.Log), countRequests(), cors())

	r.GET("/healthcheck", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { metrics.WritePrometheus(c.Writer, true) })

	g := r.Group("/api")
	auth := h.Session()

	g.POST("/sessions/token/:userId", h.IssueToken)
	g.POST("/sessions/validate", h.ValidateToken)
	g.DELETE("/sessions", auth, h.Logout)

	Register(g, "users", h.Ledger.Users, auth)
	Register(g, "categories", h.Ledger.Categories, auth)
	Register(g, "commodities", h.Ledger.Commodities, auth)
	Register(g, "transactions", h.Ledger.Transactions, auth)
	Register(g, "expenditures", h.Ledger.Expenditures, auth)

	g.GET("/budget/average", auth, h.BudgetAverage)
	g.GET("/budget/fixed", auth, h.BudgetFixed)
	g.POST("/budget/fixed", auth, h.FixBudget)
	g.PUT("/budget/fixed", auth, h.FixBudget)

	g.POST("/backup", auth, h.Backup)

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API route not found"})
			return
		}
		c.Status(http.StatusNotFound)
	})
	return r
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, "+TokenHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		metrics.GetOrCreateCounter(fmt.Sprintf(`ledger_http_requests_total{status="%d"}`, c.Writer.Status())).Inc()
	}
}

// Session resolves the X-Token header to the acting user or aborts with 403.
func (h *Handler) Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(TokenHeader)
		if token == "" {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		res := h.Ledger.Sessions.Identify(token)
		if !res.OK {
			h.Log.Debug("session rejected", zap.String("reason", res.Reason))
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Set(identityKey, res.Data)
		c.Next()
	}
}

// Identity returns the user resolved by Session, or nil on open routes.
func Identity(c *gin.Context) *schema.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*schema.Identity)
	return id
}

// Register mounts the six resource routes for one controller under /<name>.
// Only the exist check is open.
func Register[T any, U resource.Patch[T], P any](g *gin.RouterGroup, name string, ctrl *resource.Controller[T, U, P], auth gin.HandlerFunc) {
	base := "/" + name

	g.GET(base, auth, func(c *gin.Context) {
		var q query.Query
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, schema.Fail(resource.ErrInvalidParams, []P{}))
			return
		}
		c.JSON(http.StatusOK, ctrl.List(q))
	})

	g.GET(base+"/:id", auth, func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Read(c.Param("id")))
	})

	g.POST(base, auth, func(c *gin.Context) {
		var draft schema.Draft[T]
		if err := c.ShouldBindJSON(&draft); err != nil {
			c.JSON(http.StatusBadRequest, schema.Fail[*P](resource.ErrInvalidParams, nil))
			return
		}
		c.JSON(http.StatusOK, ctrl.Create(&draft, Identity(c)))
	})

	g.PATCH(base+"/:id", auth, func(c *gin.Context) {
		var patch U
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, schema.Fail[*P](resource.ErrInvalidParams, nil))
			return
		}
		c.JSON(http.StatusOK, ctrl.Update(c.Param("id"), &patch, Identity(c)))
	})

	g.DELETE(base+"/:id", auth, func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Remove(c.Param("id"), Identity(c)))
	})

	g.GET(base+"/:id/exist", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Exist(c.Param("id")))
	})
}

func (h *Handler) IssueToken(c *gin.Context) {
	var input struct {
		Pin string `json:"pin"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, schema.Fail(resource.ErrInvalidParams, ""))
		return
	}
	c.JSON(http.StatusOK, h.Ledger.Sessions.Issue(c.Param("userId"), input.Pin))
}

// ValidateToken answers 200 with the identity for a live token, 400 when no
// token is given and 403 otherwise.
func (h *Handler) ValidateToken(c *gin.Context) {
	var input struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.Token == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	res := h.Ledger.Sessions.Identify(input.Token)
	if !res.OK {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Logout(c *gin.Context) {
	h.Ledger.Sessions.Revoke(Identity(c).ID)
	c.JSON(http.StatusOK, schema.Ok(true))
}

func (h *Handler) BudgetAverage(c *gin.Context) {
	c.JSON(http.StatusOK, h.Ledger.Budget.Average())
}

func (h *Handler) BudgetFixed(c *gin.Context) {
	c.JSON(http.StatusOK, h.Ledger.Budget.Fixed())
}

func (h *Handler) FixBudget(c *gin.Context) {
	var plan schema.BudgetPlan
	if err := c.ShouldBindJSON(&plan); err != nil {
		c.JSON(http.StatusBadRequest, schema.Fail(resource.ErrInvalidParams, schema.BudgetPlan{}))
		return
	}
	c.JSON(http.StatusOK, h.Ledger.Budget.Fix(&plan, Identity(c)))
}

// Backup writes a snapshot into the backup directory and returns its path.
func (h *Handler) Backup(c *gin.Context) {
	if h.Backups == nil {
		c.JSON(http.StatusOK, schema.Fail(ErrBackupsDisabled, ""))
		return
	}
	file, err := h.Backups.Create()
	if err != nil {
		h.Log.Error("backup failed", zap.Error(err))
		c.JSON(http.StatusOK, schema.Fail(err, ""))
		return
	}
	h.Log.Info("backup written", zap.String("file", file), zap.String("actor", Identity(c).ID))
	c.JSON(http.StatusOK, schema.Ok(file))
}
