package main

import (
	"context"
	"fmt"
	"os"

	"bimbridge/internal/adapter/store"
)

func runImport() error {
	fixture := flagValue(os.Args[2:], "fixture")
	db := flagValue(os.Args[2:], "db")
	n, err := importFixture(context.Background(), fixture, db)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d elements into %s\n", n, db)
	return nil
}

// importFixture replaces the model stored in db with the fixture at path.
func importFixture(ctx context.Context, path, db string) (int, error) {
	if path == "" || db == "" {
		return 0, fmt.Errorf("--fixture and --db must both be specified")
	}
	f, err := store.LoadFixture(path)
	if err != nil {
		return 0, err
	}
	s, err := store.NewSQLiteStore(db)
	if err != nil {
		return 0, err
	}
	defer s.Close()
	return s.Import(ctx, f)
}
