package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"unipub/state"
)

func documentsCommand() *cli.Command {
	return &cli.Command{
		Name:         "docs",
		Usage:        "Manages the document workspace",
		OnUsageError: usageErrorHandler,
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "Lists documents sorted by title",
				Action: docsList,
			},
			{
				Name:   "new",
				Usage:  "Creates a document, optionally from a markdown file",
				Action: docsNew,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Aliases: []string{"f"}, Usage: "read initial content from `FILE`"},
				},
				ArgsUsage: "[TITLE]",
			},
			{
				Name:      "rm",
				Usage:     "Closes a document (the last one cannot be closed)",
				Action:    docsRemove,
				ArgsUsage: "ID",
			},
			{
				Name:      "rename",
				Usage:     "Renames a document and disables auto-titling",
				Action:    docsRename,
				ArgsUsage: "ID TITLE",
			},
			{
				Name:      "select",
				Usage:     "Makes a document active",
				Action:    docsSelect,
				ArgsUsage: "ID",
			},
			{
				Name:      "stats",
				Usage:     "Prints reading metrics for a document",
				Action:    docsStats,
				ArgsUsage: "ID",
			},
			{
				Name:      "import",
				Usage:     "Imports documents from an exported bundle",
				Action:    docsImport,
				ArgsUsage: "BUNDLE",
			},
			{
				Name:      "export",
				Usage:     "Exports every document to a dated zip bundle",
				Action:    docsExport,
				ArgsUsage: "[DESTINATION_DIR]",
			},
		},
	}
}

func loadedDocs(ctx context.Context) (*state.LocalEnv, error) {
	env := state.EnvFromContext(ctx)
	if err := env.Docs.Load(ctx); err != nil {
		return nil, err
	}
	return env, nil
}

func docsList(ctx context.Context, _ *cli.Command) error {
	env, err := loadedDocs(ctx)
	if err != nil {
		return err
	}
	active := env.Docs.ActiveID()
	for _, d := range env.Docs.ListByTitle() {
		marker := " "
		if d.ID == active {
			marker = "*"
		}
		fmt.Printf("%s %-42s %-24q modified %s\n", marker, d.ID, d.Title, d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func docsNew(ctx context.Context, cmd *cli.Command) error {
	env, err := loadedDocs(ctx)
	if err != nil {
		return err
	}

	var body string
	if from := cmd.String("from"); from != "" {
		data, err := os.ReadFile(from)
		if err != nil {
			return fmt.Errorf("unable to read content: %w", err)
		}
		body = string(data)
	}

	doc := env.Docs.Create(cmd.Args().Get(0), body)
	env.Log.Info("Document created", zap.String("id", doc.ID), zap.String("title", doc.Title))
	fmt.Println(doc.ID)
	return nil
}

func docsRemove(ctx context.Context, cmd *cli.Command) error {
	env, err := loadedDocs(ctx)
	if err != nil {
		return err
	}
	id := cmd.Args().Get(0)
	if id == "" {
		return errors.New("no document id has been specified")
	}
	return env.Docs.Close(id)
}

func docsRename(ctx context.Context, cmd *cli.Command) error {
	env, err := loadedDocs(ctx)
	if err != nil {
		return err
	}
	id, title := cmd.Args().Get(0), cmd.Args().Get(1)
	if id == "" || title == "" {
		return errors.New("both document id and new title are required")
	}
	return env.Docs.Rename(id, title)
}

func docsSelect(ctx context.Context, cmd *cli.Command) error {
	env, err := loadedDocs(ctx)
	if err != nil {
		return err
	}
	id := cmd.Args().Get(0)
	if id == "" {
		return errors.New("no document id has been specified")
	}
	return env.Docs.Select(id)
}

func docsStats(ctx context.Context, cmd *cli.Command) error {
	env, err := loadedDocs(ctx)
	if err != nil {
		return err
	}
	id := cmd.Args().Get(0)
	if id == "" {
		id = env.Docs.ActiveID()
	}
	st, err := env.Docs.Stats(id)
	if err != nil {
		return err
	}
	fmt.Printf("words %d, reading time %d min, last modified %s\n",
		st.Words, st.Minutes, st.LastModified.Format("2006-01-02 15:04"))
	return nil
}

func docsImport(ctx context.Context, cmd *cli.Command) error {
	env, err := loadedDocs(ctx)
	if err != nil {
		return err
	}
	bundle := cmd.Args().Get(0)
	if bundle == "" {
		return errors.New("no bundle has been specified")
	}
	n, err := env.Docs.ImportBundle(ctx, bundle)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d document(s)\n", n)
	return nil
}

func docsExport(ctx context.Context, cmd *cli.Command) error {
	env, err := loadedDocs(ctx)
	if err != nil {
		return err
	}
	dir := cmd.Args().Get(0)
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	path, err := env.Docs.ExportBundle(dir)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
