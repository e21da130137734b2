package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"unipub/state"
	"unipub/store"
)

func imagesCommand() *cli.Command {
	return &cli.Command{
		Name:         "images",
		Usage:        "Manages the image object store",
		OnUsageError: usageErrorHandler,
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "Lists stored images",
				Action: imagesList,
			},
			{
				Name:      "add",
				Usage:     "Stores image file(s) and prints their placeholders",
				Action:    imagesAdd,
				ArgsUsage: "FILE...",
			},
			{
				Name:      "rm",
				Usage:     "Removes an image by id",
				Action:    imagesRemove,
				ArgsUsage: "ID",
			},
			{
				Name:   "gc",
				Usage:  "Removes images no document references",
				Action: imagesGC,
			},
		},
	}
}

func imagesList(ctx context.Context, _ *cli.Command) error {
	env := state.EnvFromContext(ctx)
	records, err := env.Images.List()
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("%-44s %-12s %8d bytes %4dx%-4d %s\n",
			r.ID, r.MIME, r.Size, r.Width, r.Height, r.Name)
	}
	return nil
}

func imagesAdd(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() == 0 {
		return errors.New("no image file has been specified")
	}
	for _, path := range cmd.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("unable to read image: %w", err)
		}
		saved, err := env.Images.Save(filepath.Base(path), "", data)
		if err != nil {
			return err
		}
		env.Log.Info("Image stored", zap.String("id", saved.ID), zap.String("file", path))
		fmt.Println(store.Placeholder(saved.ID))
	}
	return nil
}

func imagesRemove(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	id := cmd.Args().Get(0)
	if id == "" {
		return errors.New("no image id has been specified")
	}
	return env.Images.Remove(id)
}

func imagesGC(ctx context.Context, _ *cli.Command) error {
	env := state.EnvFromContext(ctx)
	if err := env.Docs.Load(ctx); err != nil {
		return err
	}
	return env.Images.CleanupUnused(env.Docs.LiveImageIDs())
}
