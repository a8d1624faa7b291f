package services

import (
	"fmt"
	"strings"

	"github/itish2003/agriqa/models"
)

// GetSystemPrompt defines the core instructions for the assistant.
func GetSystemPrompt() string {
	return `你是一个智慧农业咨询助手。

你的职责是为农户、农技人员和农业管理者解答种植技术、病虫害防治、市场信息、政策法规和科研成果等方面的问题。
回答要准确、具体、可操作；涉及农药和化肥时注明用量与安全间隔期。
如果提供了参考资料，优先依据参考资料回答；资料中没有的信息不要编造，不确定时请直接说明。`
}

// withReferences appends retrieved chunks to the system prompt.
func withReferences(prompt string, refs []models.SearchResult) string {
	if len(refs) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n参考资料：")
	for i, r := range refs {
		title, _ := r.Metadata["title"].(string)
		if title != "" {
			fmt.Fprintf(&sb, "\n[%d]《%s》%s", i+1, title, r.Content)
		} else {
			fmt.Fprintf(&sb, "\n[%d] %s", i+1, r.Content)
		}
	}
	return sb.String()
}
