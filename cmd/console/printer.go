package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"kb-assistant/internal/config"
	"kb-assistant/pkg/events"
	"kb-assistant/pkg/rag/workflow"
	"kb-assistant/pkg/store"

	"github.com/fatih/color"
)

var endpoints = []struct{ name, path string }{
	{"UPLOAD", "/upload"},
	{"CREATE_KB", "/kb/create"},
	{"RECALL", "/kb/recall"},
	{"CHAT", "/chat"},
}

func printConfig(cfg *config.Config) {
	color.Cyan("📋 当前API配置:")
	fmt.Printf("  - 基础URL: %s\n", cfg.API.BaseURL)
	fmt.Printf("  - 超时时间: %d ms\n", cfg.API.Timeout.Milliseconds())
	fmt.Println("  - 端点列表:")
	for _, e := range endpoints {
		fmt.Printf("    • %s: %s%s\n", e.name, cfg.API.BaseURL, e.path)
	}
}

// consolePublisher renders session events as terminal lines
type consolePublisher struct {
	mu           sync.Mutex
	lastProgress int
}

func (p *consolePublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := event.Payload()
	switch event.EventType() {
	case events.TypeNotification, events.TypeSystemBroadcast:
		message, _ := data["message"].(string)
		switch events.Level(fmt.Sprint(data["level"])) {
		case events.LevelSuccess:
			color.Green("✅ %s", message)
		case events.LevelError:
			color.Red("❌ %s", message)
		default:
			color.Blue("ℹ️  %s", message)
		}
	case events.TypeWorkflowUpdated:
		progress, _ := data["progress"].(int)
		step := fmt.Sprint(data["step"])
		switch {
		case step == workflow.StepCreatingIndex.String() && progress != p.lastProgress:
			p.lastProgress = progress
			fmt.Printf("\r  %s %3d%%", progressBar(progress), progress)
		case step == workflow.StepResult.String() && p.lastProgress > 0:
			p.lastProgress = 0
			fmt.Printf("\r  %s %3d%%\n", progressBar(progress), progress)
		}
	}
	return nil
}

func progressBar(progress int) string {
	const width = 20
	filled := progress * width / 100
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func printReply(msg store.Message) {
	color.New(color.FgHiWhite, color.Bold).Println("🤖 " + msg.Content)
	printFragments(msg.DocumentFragments)
}

func printFragments(fragments []store.DocumentFragment) {
	for _, f := range fragments {
		color.Yellow("  文档片段%d  相关性 %.2f", f.Index, f.Relevance)
		fmt.Println("    " + truncate(strings.ReplaceAll(f.Content, "\n", " "), 160))
	}
}

func printKnowledgeBase(kb *store.KnowledgeBase) {
	if kb == nil {
		color.HiBlack("（未创建知识库）")
		return
	}
	chunks := "-"
	if kb.TotalChunks != nil {
		chunks = fmt.Sprint(*kb.TotalChunks)
	}
	color.Cyan("📚 %s  chunkSize=%d overlap=%d topK=%d chunks=%s",
		kb.Name, kb.MaxChunkSize, kb.MaxOverlap, kb.TopK, chunks)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
