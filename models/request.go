package models

type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

type SearchQuery struct {
	Query string `form:"query" binding:"required"`
	TopK  int    `form:"top_k"`
}

type DocumentListQuery struct {
	Category string `form:"category"`
	Page     int    `form:"page"`
	Size     int    `form:"size"`
}

type PageQuery struct {
	Page int `form:"page"`
	Size int `form:"size"`
}

type DocumentUpdateRequest struct {
	Title    *string `json:"title"`
	Category *string `json:"category"`
}

type CategoryCreateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	ParentID    *uint  `json:"parent_id"`
}

// UploadInput is a received file plus its form fields.
type UploadInput struct {
	Filename string
	Content  []byte
	Title    string
	Category string
}
