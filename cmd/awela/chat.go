package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/awela-ai/awela/internal/capability"
	"github.com/awela-ai/awela/internal/catalog"
	"github.com/awela-ai/awela/internal/config"
	"github.com/awela-ai/awela/internal/dispatch"
	"github.com/awela-ai/awela/internal/gate"
	"github.com/awela-ai/awela/internal/llm"
	"github.com/awela-ai/awela/internal/planner"
	"github.com/awela-ai/awela/internal/resolve"
	"github.com/awela-ai/awela/internal/review"
	"github.com/awela-ai/awela/internal/session"
	"github.com/awela-ai/awela/internal/state"
	"github.com/awela-ai/awela/internal/worker"
)

var chatUserID string
var chatVerbose bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatUserID, "user", "local", "User id for the session")
	chatCmd.Flags().BoolVar(&chatVerbose, "verbose", false, "Show task scheduling events")
}

// pipeline bundles everything one chat session needs.
type pipeline struct {
	cfg       *config.Config
	store     state.Store
	planner   *planner.Planner
	workers   *worker.Registry
	reviewer  *review.Reviewer
	resolver  *resolve.Resolver
	admission *gate.Admission
	output    gate.Output
}

func newPipeline(cfg *config.Config) (*pipeline, func(), error) {
	statePath := cfg.State.Path
	if statePath == "" {
		statePath = state.DefaultPath()
	}
	db, err := state.Open(statePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open state: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate state: %w", err)
	}

	cat, watcher, err := loadCatalog(cfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	caps, err := capability.NewBuiltinRegistry(capability.Deps{
		Catalog: cat,
		Store:   db,
	})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("build capabilities: %w", err)
	}

	plannerGen, err := generator(cfg, cfg.Models.Planner)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	workerGen, err := generator(cfg, cfg.Models.Worker)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	reviewerGen, err := generator(cfg, cfg.Models.Reviewer)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	workers, err := worker.NewDefaultRegistry(caps, workerGen)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("build workers: %w", err)
	}

	p := &pipeline{
		cfg:       cfg,
		store:     db,
		planner:   planner.New(plannerGen).WithApprovalThreshold(cfg.Limits.ApprovalThresholdKobo),
		workers:   workers,
		reviewer:  review.New(reviewerGen),
		resolver:  resolve.New(workerGen),
		admission: gate.NewAdmission(db),
		output:    gate.Output{MaxLen: cfg.Limits.MessageLength},
	}
	cleanup := func() {
		if watcher != nil {
			watcher.Close()
		}
		db.Close()
	}
	return p, cleanup, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, *catalog.Watcher, error) {
	if cfg.Catalog.Path == "" {
		return catalog.FromProducts(demoProducts()), nil, nil
	}
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}
	watcher, err := catalog.Watch(cat)
	if err != nil {
		return nil, nil, fmt.Errorf("watch catalog: %w", err)
	}
	return cat, watcher, nil
}

func generator(cfg *config.Config, model string) (llm.Generator, error) {
	gen, err := llm.NewAnthropic(llm.AnthropicConfig{
		APIKey: cfg.Anthropic.APIKey,
		Model:  model,
	})
	if err != nil {
		return nil, err
	}
	return llm.WithTimeout{Inner: gen, Timeout: cfg.Timeouts.Generate}, nil
}

// handle runs one inbound message through admission, planning, dispatch,
// and the output gate. The pending order is carried across turns.
func (p *pipeline) handle(ctx context.Context, req *session.Request) string {
	decision, canned := p.admission.Admit(req.UserID, req.Message)
	switch decision {
	case gate.DecisionIgnore:
		return ""
	case gate.DecisionReply:
		return canned
	}

	plan, err := p.planner.Plan(ctx, req)
	if err != nil {
		return p.output.Sanitize("")
	}

	d := dispatch.New(p.workers, p.reviewer, p.resolver, dispatch.Config{
		TaskTimeout: p.cfg.Timeouts.Task,
		RetryBound:  p.cfg.Limits.RetryBound,
	}, nil)
	// The channel must be drained even when nobody is watching, or the
	// emitter pays its drop grace on every event once the buffer fills.
	go drainEvents(d.Events(), chatVerbose)

	resolution, err := d.Run(ctx, req, plan)
	if err != nil {
		return p.output.Sanitize("")
	}
	return p.output.Sanitize(resolution.FinalText)
}

// drainEvents consumes the dispatcher's event stream until the plan is
// resolved, printing each event when verbose.
func drainEvents(events <-chan dispatch.Event, verbose bool) {
	dim := color.New(color.Faint)
	for ev := range events {
		if ev.Type == dispatch.EventPlanResolved {
			return
		}
		if verbose {
			dim.Printf("  [%s] %s %s\n", ev.Type, ev.TaskID, ev.Message)
		}
	}
}

func demoProducts() []catalog.Product {
	return []catalog.Product{
		{Name: "Vitamin C Serum", Brand: "Ashandy", PriceKobo: 850000, Stock: 12, Keywords: []string{"serum", "glow", "skincare"}},
		{Name: "Shea Body Butter", Brand: "Ashandy", PriceKobo: 450000, Stock: 20, Keywords: []string{"cream", "moisturizer"}},
		{Name: "Ring Light 12in", Brand: "GlowPro", PriceKobo: 1000000, Stock: 8, Keywords: []string{"ringlight", "light"}},
		{Name: "Matte Lipstick Set", Brand: "Zaron", PriceKobo: 600000, Stock: 15, Keywords: []string{"lipstick", "makeup"}},
	}
}

func runChat() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	p, cleanup, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	bot := color.New(color.FgCyan, color.Bold)
	prompt := color.New(color.FgGreen)

	bot.Println("Awela ready. Type a message, or /quit to exit.")

	var history []session.Turn
	var order *session.PendingOrder
	scanner := bufio.NewScanner(os.Stdin)
	for {
		prompt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" || line == "/exit" {
			break
		}

		req := session.New(chatUserID, "cli", line)
		req.History = history
		req.Order = order
		req.Admin = cfg.IsAdmin(chatUserID)
		if cfg.Timeouts.Request > 0 {
			req.Deadline = time.Now().Add(cfg.Timeouts.Request)
		}

		reply := p.handle(context.Background(), req)
		order = req.Order
		if reply == "" {
			continue
		}

		bot.Printf("awela> %s\n", reply)
		history = append(history, session.Turn{Role: "user", Text: line}, session.Turn{Role: "assistant", Text: reply})
		p.store.LogMessage(chatUserID, "user", line, "cli")
		p.store.LogMessage(chatUserID, "assistant", reply, "cli")
	}
	return scanner.Err()
}
