package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"unipub/state"
	"unipub/theme"
)

// Run implements the export subcommand: reads an HTML fragment from a file
// or from the active document, runs the pipeline and delivers the result to
// the clipboard or to a file.
func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("export")

	cardTheme := cmd.String("theme")
	if cardTheme == "" {
		cardTheme = env.Cfg.Export.CardTheme
	}
	appearance := cmd.String("appearance")
	if appearance == "" {
		appearance = env.Cfg.Export.PageAppearance
	}

	var body string
	if src := cmd.Args().Get(0); src != "" {
		if cmd.Args().Len() > 1 {
			log.Warn("Malformed command line, too many sources", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("unable to read source: %w", err)
		}
		body = string(data)
	} else {
		if err := env.Docs.Load(ctx); err != nil {
			return err
		}
		doc := env.Docs.Active()
		if doc == nil {
			return errors.New("no source file and no active document")
		}
		log.Debug("Exporting active document", zap.String("id", doc.ID), zap.String("title", doc.Title))
		body = doc.Content
	}

	themes := theme.NewResolver(env.Log)
	if path := env.Cfg.Export.StylesheetPath; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("unable to read stylesheet override: %w", err)
		}
		themes.AddStylesheet(data)
	}

	e := New(env.Images, themes, nil, env.Log)

	out := cmd.String("output")
	if out == "" {
		if !e.ForClipboard(ctx, body, cardTheme, appearance) {
			return errors.New("export failed, nothing was copied")
		}
		return nil
	}

	frag, err := e.Fragment(ctx, body, cardTheme, appearance)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0700); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	if err := os.WriteFile(out, []byte(frag), 0644); err != nil {
		return fmt.Errorf("unable to write output: %w", err)
	}
	log.Info("Export written", zap.String("destination", out), zap.Int("bytes", len(frag)))
	return nil
}
