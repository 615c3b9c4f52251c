package commands

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
)

// ExportCmd implements the 'export' command.
type ExportCmd struct {
	Force       bool     `short:"f" help:"Discard cached snapshots and re-render every document"`
	Output      string   `short:"o" help:"Output root (overrides config)" type:"path"`
	MaxParallel int      `name:"max-parallel" help:"Corpora exported concurrently (0 = all)"`
	Pages       []string `name:"page" help:"Force-render a page, given as SPACE:Title" sep:"none"`
}

func (e *ExportCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if err := (overrides{Output: e.Output, MaxParallel: e.MaxParallel}).apply(cfg); err != nil {
		return err
	}
	forced, err := parsePages(e.Pages)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStack(ctx, cfg, g.Logger)
	if err != nil {
		return err
	}
	defer st.Close()

	runner, err := st.newRunner(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()
	for _, p := range forced {
		runner.ForcePage(p.space, p.title)
	}

	res, err := runner.Run(ctx, e.Force)
	if res != nil {
		added, modified, removed := res.Changes()
		fmt.Printf("Export %s: %d rendered, %d added, %d modified, %d removed\n",
			res.Status(), res.Rendered(), added, modified, removed)
	}
	return err
}

type forcedPage struct {
	space string
	title string
}

func parsePages(values []string) ([]forcedPage, error) {
	pages := make([]forcedPage, 0, len(values))
	for _, v := range values {
		space, title, ok := strings.Cut(v, ":")
		if !ok || space == "" || title == "" {
			return nil, errors.ValidationError("--page must be SPACE:Title").WithContext("page", v).Build()
		}
		pages = append(pages, forcedPage{space: space, title: title})
	}
	return pages, nil
}
