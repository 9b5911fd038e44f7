package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeCommitRequest_Text(t *testing.T) {
	tests := []struct {
		name string
		req  AnalyzeCommitRequest
		want string
	}{
		{"code content", AnalyzeCommitRequest{CodeContent: "eval(x)"}, "eval(x)"},
		{"alias", AnalyzeCommitRequest{Content: "exec(y)"}, "exec(y)"},
		{"both set", AnalyzeCommitRequest{CodeContent: "a", Content: "b"}, "a"},
		{"blank code content falls back", AnalyzeCommitRequest{CodeContent: "  \n", Content: "real"}, "real"},
		{"both blank", AnalyzeCommitRequest{CodeContent: " ", Content: "\t"}, " "},
		{"neither", AnalyzeCommitRequest{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Text())
		})
	}
}
