package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gibbsworld.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	since := fs.Uint64("since", 0, "first simulated time (regen)")
	rect := fs.String("rect", "-4,-4:4,4", "patch rectangle px1,py1:px2,py2 (patches)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := indexdb.OpenReadOnly(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch q {
	case "snapshots":
		rows, err := indexdb.Snapshots(ctx, db, *limit)
		exitOn("query", err)
		for _, r := range rows {
			printJSON(r)
		}

	case "regen":
		rows, err := indexdb.RegenPasses(ctx, db, *since, *limit)
		exitOn("query", err)
		for _, r := range rows {
			printJSON(r)
		}

	case "patches":
		min, max, err := parseRect(*rect)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -rect:", err)
			os.Exit(2)
		}
		rows, err := indexdb.Patches(ctx, db, min[0], min[1], max[0], max[1])
		exitOn("query", err)
		for _, r := range rows {
			printJSON(r)
		}

	case "catalog":
		for _, name := range []string{"items", "tuning"} {
			d, err := indexdb.CatalogDigest(ctx, db, name)
			exitOn("query", err)
			printJSON(map[string]string{"name": name, "digest": d})
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-since T] [-rect R] snapshots|regen|patches|catalog")
		os.Exit(2)
	}
}

func exitOn(what string, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, what+":", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
