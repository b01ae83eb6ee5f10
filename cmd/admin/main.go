// Package main provides maintenance utilities for the Vortexx data repository.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"vortexx/internal/bootstrap"
	"vortexx/internal/config"
	"vortexx/internal/docstore"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin init-repo                          - Create missing collection files")
	fmt.Println("  go run ./cmd/admin ping                               - Check the repository is reachable")
	fmt.Println("  go run ./cmd/admin rebuild-index <collection>         - Rebuild a collection index from its documents")
	fmt.Println("  go run ./cmd/admin compact-stories                    - Drop expired stories")
	fmt.Println("  go run ./cmd/admin reload-mirror                      - Rebuild the local mirror from the repository")
	fmt.Println("  go run ./cmd/admin verify-user <username> [true|false] - Grant or revoke the verified badge")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	command := os.Args[1]

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{InitRepo: command == "init-repo"})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	err = run(ctx, rt, command, os.Args[2:])
	if closeErr := rt.Close(ctx); closeErr != nil {
		log.Printf("close: %v", closeErr)
	}
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, rt *bootstrap.Runtime, command string, args []string) error {
	switch command {
	case "init-repo":
		// InitRuntime already created what was missing
		fmt.Printf("✅ Repository %s/%s is initialized\n", rt.Config.RepoOwner, rt.Config.RepoName)
		return nil

	case "ping":
		if err := rt.Store.Ping(ctx); err != nil {
			return fmt.Errorf("repository unreachable: %w", err)
		}
		fmt.Printf("✅ Repository %s/%s is reachable\n", rt.Config.RepoOwner, rt.Config.RepoName)
		return nil

	case "rebuild-index":
		if len(args) < 1 {
			return fmt.Errorf("usage: go run ./cmd/admin rebuild-index <collection>")
		}
		project, err := docstore.ProjectionFor(args[0])
		if err != nil {
			return err
		}
		n, err := rt.Store.RebuildIndex(ctx, args[0], project)
		if err != nil {
			return fmt.Errorf("rebuild failed: %w", err)
		}
		fmt.Printf("✅ Rebuilt %s index with %d records\n", args[0], n)
		return nil

	case "compact-stories":
		n, err := rt.Stories.CompactOnce(ctx)
		if err != nil {
			return fmt.Errorf("compaction failed: %w", err)
		}
		fmt.Printf("✅ Removed %d expired stories\n", n)
		return nil

	case "reload-mirror":
		res, err := rt.MirrorSync.Reload(ctx)
		if err != nil {
			return fmt.Errorf("reload failed: %w", err)
		}
		fmt.Printf("✅ Mirror holds %d users, %d posts, %d stories, %d comments\n", res.Users, res.Posts, res.Stories, res.Comments)
		return nil

	case "verify-user":
		if len(args) < 1 {
			return fmt.Errorf("usage: go run ./cmd/admin verify-user <username> [true|false]")
		}
		verified := true
		if len(args) > 1 {
			v, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}
			verified = v
		}
		user, err := rt.Users.SetVerified(ctx, args[0], verified)
		if err != nil {
			return err
		}
		fmt.Printf("✅ %s verified=%v\n", user.Username, user.Verified)
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command: %s", command)
	}
}
