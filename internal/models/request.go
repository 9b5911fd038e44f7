package models

import "strings"

// AnalyzeCommitRequest is the body of POST /api/analyze_commit. Content is
// accepted as an alias for clients that do not use the original field name.
type AnalyzeCommitRequest struct {
	CodeContent string `json:"code_content"`
	Content     string `json:"content"`
}

// Text returns whichever content field carries more than whitespace,
// preferring CodeContent. A body with neither yields CodeContent unchanged
// so the service can reject it.
func (r AnalyzeCommitRequest) Text() string {
	if strings.TrimSpace(r.CodeContent) != "" {
		return r.CodeContent
	}
	if strings.TrimSpace(r.Content) != "" {
		return r.Content
	}
	return r.CodeContent
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}
