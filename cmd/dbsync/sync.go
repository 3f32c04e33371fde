package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/koba/db-sync/internal/database"
	"github.com/koba/db-sync/internal/declare"
	"github.com/koba/db-sync/internal/diff"
	"github.com/koba/db-sync/internal/reflector"
	"github.com/koba/db-sync/internal/schema"
)

var assumeYes bool

// prepare loads the declarations and declares them on handles of the configured database.
func prepare(ctx context.Context, args []string) (*database.Driver, *reflector.Reflector, []*schema.Table, error) {
	path := cfg.Declarations
	if len(args) > 0 {
		path = args[0]
	}

	file, err := declare.Load(appFs, path)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := connect(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	tables, err := declare.Apply(ctx, db, file)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	r := reflector.New(logger)
	for _, t := range tables {
		r.AddTable(t)
	}
	return db, r, tables, nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, r, tables, err := prepare(ctx, args)
	if err != nil {
		return err
	}
	defer db.Close()

	diff.Display(os.Stdout, diff.Compare(tables))
	if !r.HasChanges() {
		return nil
	}

	db.SetDryRun(true)
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("failed to plan: %w", err)
	}

	fmt.Println("-- Planned statements")
	for _, stmt := range db.Planned() {
		fmt.Printf("%s;\n", stmt)
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	db, r, tables, err := prepare(ctx, args)
	if err != nil {
		return err
	}
	defer db.Close()

	diff.Display(os.Stdout, diff.Compare(tables))
	if !r.HasChanges() {
		return nil
	}

	if !assumeYes {
		confirmed := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("Apply these changes to %s?", cfg.Database.Database),
		}
		if err := survey.AskOne(prompt, &confirmed); err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := r.Run(ctx); err != nil {
		var handlerErr *schema.HandlerError
		if errors.As(err, &handlerErr) && handlerErr.Statement != "" {
			logger.Error("statement failed",
				"table", handlerErr.Table,
				"sql", handlerErr.Statement,
				"code", database.ErrorCode(handlerErr))
		}
		return fmt.Errorf("failed to synchronize: %w", err)
	}

	fmt.Println("Schema synchronized successfully.")
	return nil
}
