package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"catalog-graph/backend/internal/catalog"
)

// Handler serves the catalog over HTTP.
type Handler struct {
	svc *catalog.Service
	log *zap.Logger
}

// NewHandler creates a Handler backed by svc.
func NewHandler(svc *catalog.Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts every catalog route under rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/items", h.listItems)
	rg.GET("/items/:id", h.getItem)
	rg.POST("/items", h.createItem)
	rg.PUT("/items/:id", h.updateItem)
	rg.DELETE("/items/:id", h.deleteItem)
	rg.POST("/items/:id/tags", h.addTag)
	rg.DELETE("/items/:id/tags/:tagId", h.removeTag)
	rg.GET("/items/:id/related", h.relatedItems)
	rg.GET("/graph/path/:fromId/:toId", h.shortestPath)
	rg.POST("/search", h.search)
	rg.GET("/categories", h.listCategories)
	rg.GET("/tags", h.listTags)
}

// ============================================================================
// Items
// ============================================================================

func (h *Handler) listItems(c *gin.Context) {
	items, err := h.svc.ListItems(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, items)
}

func (h *Handler) getItem(c *gin.Context) {
	item, err := h.svc.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, item)
}

func (h *Handler) createItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	category, err := req.category()
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	tags, err := req.tags()
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	item, err := h.svc.CreateItem(c.Request.Context(), in, category, tags)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	respond(c, http.StatusCreated, item)
}

func (h *Handler) updateItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	category, err := req.category()
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}

	item, err := h.svc.UpdateItem(c.Request.Context(), c.Param("id"), in, category)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, item)
}

func (h *Handler) deleteItem(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.DeleteItem(c.Request.Context(), id); err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id, "message": "Item deleted successfully"})
}

// ============================================================================
// Tags
// ============================================================================

func (h *Handler) addTag(c *gin.Context) {
	var req addTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.TagName) == "" {
		respondError(c, http.StatusBadRequest, "Tag name is required")
		return
	}

	tag, err := h.svc.AddTag(c.Request.Context(), c.Param("id"), catalog.Ref{ID: req.TagID, Name: req.TagName})
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, tag)
}

func (h *Handler) removeTag(c *gin.Context) {
	if err := h.svc.RemoveTag(c.Request.Context(), c.Param("id"), c.Param("tagId")); err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Tag removed successfully"})
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.svc.ListCategories(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, categories)
}

func (h *Handler) listTags(c *gin.Context) {
	tags, err := h.svc.ListTags(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, tags)
}

// ============================================================================
// Graph Queries
// ============================================================================

// relatedItem flattens a recommendation into the item itself plus its score.
type relatedItem struct {
	catalog.ItemView
	RelationScore   int      `json:"relationScore"`
	RelationReasons []string `json:"relationReasons"`
}

func (h *Handler) relatedItems(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	related, err := h.svc.RelatedItems(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	out := make([]relatedItem, 0, len(related))
	for _, r := range related {
		out = append(out, relatedItem{ItemView: r.Item, RelationScore: r.Score, RelationReasons: r.Reasons})
	}
	respond(c, http.StatusOK, out)
}

func (h *Handler) shortestPath(c *gin.Context) {
	result, err := h.svc.ShortestPath(c.Request.Context(), c.Param("fromId"), c.Param("toId"))
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, result)
}

func (h *Handler) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	items, err := h.svc.Search(c.Request.Context(), req.filters())
	if err != nil {
		handleServiceError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, items)
}
