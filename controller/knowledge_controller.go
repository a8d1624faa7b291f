package controller

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github/itish2003/agriqa/logger"
	"github/itish2003/agriqa/models"
	"github/itish2003/agriqa/services"

	"github.com/gin-gonic/gin"
)

// KnowledgeController handles the knowledge base endpoints: documents,
// their vectors and categories.
type KnowledgeController struct {
	log           *logger.Logger
	knowledge     services.KnowledgeService
	retrieval     services.RetrievalService
	maxUploadSize int64
}

func NewKnowledgeController(log *logger.Logger, knowledge services.KnowledgeService, retrieval services.RetrievalService, maxUploadSize int64) *KnowledgeController {
	return &KnowledgeController{
		log:           log.With("controller", "KnowledgeController"),
		knowledge:     knowledge,
		retrieval:     retrieval,
		maxUploadSize: maxUploadSize,
	}
}

// Upload is the handler for POST /knowledge/documents/upload.
func (c *KnowledgeController) Upload(ctx *gin.Context) {
	header, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload: " + err.Error()})
		return
	}
	if header.Size > c.maxUploadSize {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file exceeds the %d byte upload limit", c.maxUploadSize)})
		return
	}
	f, err := header.Open()
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	defer f.Close()
	// One extra byte lets the service see an oversized body.
	content, err := io.ReadAll(io.LimitReader(f, c.maxUploadSize+1))
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}

	doc, err := c.knowledge.ProcessDocument(ctx.Request.Context(), models.UploadInput{
		Filename: header.Filename,
		Content:  content,
		Title:    ctx.PostForm("title"),
		Category: ctx.PostForm("category"),
	})
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, doc)
}

// Search is the handler for GET /knowledge/documents/search.
func (c *KnowledgeController) Search(ctx *gin.Context) {
	var q models.SearchQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query: " + err.Error()})
		return
	}
	results, err := c.retrieval.Search(ctx.Request.Context(), q.Query, q.TopK)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, results)
}

func (c *KnowledgeController) List(ctx *gin.Context) {
	var q models.DocumentListQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query: " + err.Error()})
		return
	}
	page, err := c.knowledge.ListDocuments(ctx.Request.Context(), q.Category, q.Page, q.Size)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, page)
}

func (c *KnowledgeController) Update(ctx *gin.Context) {
	id, ok := documentID(ctx)
	if !ok {
		return
	}
	var req models.DocumentUpdateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	doc, err := c.knowledge.UpdateDocument(ctx.Request.Context(), id, req)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, doc)
}

func (c *KnowledgeController) Delete(ctx *gin.Context) {
	id, ok := documentID(ctx)
	if !ok {
		return
	}
	deleted, err := c.knowledge.DeleteDocument(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	if !deleted {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: "document deleted"})
}

func (c *KnowledgeController) Reprocess(ctx *gin.Context) {
	id, ok := documentID(ctx)
	if !ok {
		return
	}
	doc, err := c.knowledge.ReprocessDocument(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, doc)
}

// Vectors is the handler for GET /knowledge/documents/:id/vectors.
func (c *KnowledgeController) Vectors(ctx *gin.Context) {
	id, ok := documentID(ctx)
	if !ok {
		return
	}
	var q models.PageQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query: " + err.Error()})
		return
	}
	page, err := c.knowledge.GetDocumentVectors(ctx.Request.Context(), id, q.Page, q.Size)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, page)
}

func (c *KnowledgeController) CreateCategory(ctx *gin.Context) {
	var req models.CategoryCreateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	category, err := c.knowledge.CreateCategory(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, category)
}

func (c *KnowledgeController) Categories(ctx *gin.Context) {
	tree, err := c.knowledge.CategoryTree(ctx.Request.Context())
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"categories": tree})
}

func documentID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return 0, false
	}
	return uint(id), true
}
