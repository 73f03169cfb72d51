package people

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/docsync/internal/odm"
	"github.com/gogotex/docsync/internal/store"
	"github.com/gogotex/docsync/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxListLimit = 200

func RegisterRoutes(r gin.IRoutes, coll *Collection) {
	log := logger.Named("people")

	// load resolves :id to a bound document, writing the error response itself
	load := func(c *gin.Context) *Person {
		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return nil
		}
		p, err := coll.FindID(c.Request.Context(), id)
		if err != nil {
			log.Errorf("find %s: %v", id.Hex(), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return nil
		}
		if p == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return nil
		}
		return p
	}

	// respond writes p after a self-service update; ok=false means the
	// record vanished in between
	respond := func(c *gin.Context, p *Person, ok bool, err error) {
		var syncErr *odm.SyncError
		switch {
		case errors.As(err, &syncErr):
			log.Errorf("refresh %v: %v", syncErr.ID, syncErr.Err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stored record is unreadable"})
		case err != nil:
			log.Errorf("update %v: %v", p.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		case !ok:
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		default:
			c.JSON(http.StatusOK, p)
		}
	}

	r.POST("/api/people", func(c *gin.Context) {
		var req struct {
			Name  string   `json:"name"`
			Email string   `json:"email"`
			Tags  []string `json:"tags"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p, err := coll.Create(c.Request.Context(), &Person{Name: req.Name, Email: req.Email, Tags: req.Tags})
		switch {
		case errors.Is(err, ErrNameRequired), errors.Is(err, ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case store.IsDuplicateKey(err):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		case err != nil:
			log.Errorf("create: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
			return
		}
		c.JSON(http.StatusCreated, p)
	})

	r.GET("/api/people", func(c *gin.Context) {
		limit := int64(50)
		if v := c.Query("limit"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			if n > maxListLimit {
				n = maxListLimit
			}
			limit = n
		}
		query := bson.D{}
		if tag := c.Query("tag"); tag != "" {
			query = append(query, bson.E{Key: "tags", Value: tag})
		}
		cur, err := coll.Find(c.Request.Context(), query, odm.Sort("-likes", "name"), odm.Limit(limit))
		if err != nil {
			log.Errorf("list: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
		out, err := cur.All(c.Request.Context())
		if err != nil {
			log.Errorf("list: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
		if out == nil {
			out = []*Person{}
		}
		c.JSON(http.StatusOK, out)
	})

	r.GET("/api/people/:id", func(c *gin.Context) {
		if p := load(c); p != nil {
			c.JSON(http.StatusOK, p)
		}
	})

	r.POST("/api/people/:id/like", func(c *gin.Context) {
		p := load(c)
		if p == nil {
			return
		}
		ok, err := p.Inc(c.Request.Context(), "likes", 1)
		respond(c, p, ok, err)
	})

	r.POST("/api/people/:id/tags", func(c *gin.Context) {
		var req struct {
			Tags []string `json:"tags" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		p := load(c)
		if p == nil {
			return
		}
		values := make([]interface{}, 0, len(req.Tags))
		for _, t := range req.Tags {
			values = append(values, t)
		}
		ok, err := coll.AddAllToSet(c.Request.Context(), p, "tags", values...)
		respond(c, p, ok, err)
	})

	r.DELETE("/api/people/:id", func(c *gin.Context) {
		p := load(c)
		if p == nil {
			return
		}
		if _, err := p.Remove(c.Request.Context()); err != nil {
			log.Errorf("remove %v: %v", p.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "remove failed"})
			return
		}
		c.Status(http.StatusNoContent)
	})
}
