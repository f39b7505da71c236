package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"kb-assistant/internal/bootstrap"
	"kb-assistant/internal/config"
	"kb-assistant/internal/metrics"
	"kb-assistant/internal/pkg/logger"
	"kb-assistant/internal/service"
	"kb-assistant/pkg/events"
	"kb-assistant/pkg/gateway"
	pktNats "kb-assistant/pkg/nats"
	"kb-assistant/pkg/rag/chat"
	"kb-assistant/pkg/rag/recall"
	"kb-assistant/pkg/rag/workflow"
	"kb-assistant/pkg/retry"
	"kb-assistant/pkg/store"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

const usage = `Usage:
  console check                  print the API configuration and test the backend connection
  console ingest <file.md> [name] upload a document, create a knowledge base and start chatting
  console chat                   chat without a knowledge base
  console events                 follow domain events mirrored to NATS (requires NATS_URL)`

type app struct {
	cfg     *config.Config
	log     logger.ILogger
	client  *gateway.Client
	printer *consolePublisher
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg := config.Load()
	metrics.Init()
	a := &app{
		cfg: cfg,
		log: logger.NewIsolatedLogger(cfg.App.LogFilePath),
		client: gateway.NewClient(gateway.Config{
			BaseURL:     cfg.API.BaseURL,
			Timeout:     cfg.API.Timeout,
			ChatTimeout: cfg.API.ChatTimeout,
		}),
		printer: &consolePublisher{},
	}
	defer func() { _ = a.log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "check":
		err = a.check(ctx)
	case "ingest":
		if len(os.Args) < 3 {
			fmt.Println(usage)
			os.Exit(1)
		}
		name := ""
		if len(os.Args) > 3 {
			name = os.Args[3]
		}
		err = a.ingest(ctx, os.Args[2], name)
	case "chat":
		err = a.repl(ctx, store.NewSession(uuid.NewString()))
	case "events":
		err = a.follow(ctx)
	default:
		fmt.Println(usage)
		os.Exit(1)
	}

	if err != nil {
		color.Red("❌ %v", err)
		os.Exit(1)
	}
}

func (a *app) check(ctx context.Context) error {
	color.Cyan("🚀 开始API连接测试...")
	printConfig(a.cfg)

	res := service.NewHealthService(a.client, retry.DefaultConfig(), a.log).CheckBackend(ctx)

	if !res.Healthy {
		color.Red("❌ 无法连接到后端服务: %s", res.Error)
		color.Yellow("💡 请确保后端服务已启动在: %s", a.cfg.API.BaseURL)
		return fmt.Errorf("backend unreachable at %s", res.URL)
	}
	color.Green("✅ 后端服务连接正常")
	fmt.Printf("📍 API基础地址: %s\n", a.cfg.API.BaseURL)
	return nil
}

func (a *app) ingest(ctx context.Context, path, name string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(content) > a.cfg.Upload.MaxSize {
		return fmt.Errorf("%s is larger than %d bytes", path, a.cfg.Upload.MaxSize)
	}

	sess := store.NewSession(uuid.NewString())
	wf := workflow.New(workflow.Options{
		SessionID: sess.ID,
		Config:    bootstrap.WorkflowConfig(a.cfg),
		Backend:   a.client,
		Publisher: a.printer,
		Logger:    a.log,
		OnCommit:  sess.SetKnowledgeBase,
	})
	defer wf.Close()

	state, err := wf.SelectFile(gateway.File{
		Name:        filepath.Base(path),
		ContentType: "text/markdown",
		Content:     content,
	})
	if err != nil {
		return err
	}
	color.Cyan("📄 %s (%d bytes)", state.FileName, state.FileSize)

	if state, err = wf.Next(ctx); err != nil {
		return err
	}
	if state.Step != workflow.StepConfiguringParameters {
		return fmt.Errorf("%s", state.ErrorMessage)
	}

	params := state.Params
	if name != "" {
		params.Name = name
	}
	if _, err := wf.EditParams(params); err != nil {
		return err
	}

	color.Cyan("⚙️  创建知识库 %s ...", params.Name)
	if state, err = wf.Save(ctx); err != nil {
		return err
	}
	if !state.Success {
		return fmt.Errorf("%s", state.ErrorMessage)
	}

	kb, err := wf.Confirm()
	if err != nil {
		return err
	}
	printKnowledgeBase(kb)
	return a.repl(ctx, sess)
}

func (a *app) repl(ctx context.Context, sess *store.Session) error {
	pipeline := chat.NewPipeline(a.client, a.printer, a.log, a.cfg.Workflow.DefaultTopK)
	tester := recall.NewTester(a.client, a.printer, a.log)

	color.HiBlack("输入问题开始对话。/recall <问题> 召回测试，/kb 查看知识库，/delete 删除知识库，/clear 清空对话，/quit 退出")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/kb":
			printKnowledgeBase(sess.KnowledgeBase())
		case line == "/clear":
			sess.ClearMessages()
			color.HiBlack("对话已清空")
		case line == "/delete":
			sess.DeleteKnowledgeBase()
			color.HiBlack("知识库已删除")
		case strings.HasPrefix(line, "/recall"):
			query := strings.TrimSpace(strings.TrimPrefix(line, "/recall"))
			fragments, err := tester.RunRecallTest(ctx, sess, query)
			if errors.Is(err, recall.ErrEmptyQuery) {
				color.Red("%v", err)
			}
			if err != nil {
				continue
			}
			printFragments(fragments)
		default:
			exchange, err := pipeline.SendMessage(ctx, sess, line)
			if err != nil {
				color.Red("%v", err)
				continue
			}
			printReply(exchange.Reply)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (a *app) follow(ctx context.Context) error {
	if a.cfg.App.NatsURL == "" {
		return fmt.Errorf("NATS_URL is not set")
	}
	sub, err := pktNats.NewSubscriber(a.cfg.App.NatsURL)
	if err != nil {
		return err
	}
	defer sub.Close()

	err = sub.Subscribe(ctx, pktNats.SubjectPrefix+".>", "", func(_ context.Context, event events.Event) error {
		color.Magenta("[%s] %s session=%s %v",
			event.Timestamp().Format("15:04:05"), event.EventType(), events.SessionID(event), event.Payload())
		return nil
	})
	if err != nil {
		return err
	}

	color.Cyan("👂 following %s.> on %s (Ctrl+C to stop)", pktNats.SubjectPrefix, a.cfg.App.NatsURL)
	<-ctx.Done()
	return nil
}
