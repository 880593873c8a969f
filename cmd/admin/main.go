package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gibbsworld.ai/internal/persistence/export"
	"gibbsworld.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "reset":
			resetCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID, "snapshots")
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if *worldID == "" || e.IsDir() {
			fmt.Println(e.Name())
			continue
		}
		h, err := snapshot.ReadHeader(filepath.Join(base, e.Name()))
		if err != nil {
			fmt.Printf("%s\tunreadable: %v\n", e.Name(), err)
			continue
		}
		fmt.Printf("%s\ttime=%d patches=%d items=%d\n", e.Name(), h.Time, h.Patches, h.Items)
	}
}

// inspectCmd prints a snapshot summary and optionally exports it as CSV.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used when -snapshot is empty)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	csvDir := fs.String("csv", "", "write items.csv and patches.csv into this directory")
	_ = fs.Parse(args)

	path := resolveSnapshot(*dataDir, *worldID, *snapPath)
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap))
	if strings.TrimSpace(*csvDir) != "" {
		if err := export.WriteDir(*csvDir, snap); err != nil {
			fmt.Fprintln(os.Stderr, "export:", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "csv written to", *csvDir)
	}
}

// resetCmd clears the patches inside a patch rectangle of a snapshot and
// marks them unfixed, so a server resuming from the result generates them
// again from scratch.
func resetCmd(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path to reset from (optional; defaults to latest)")
	rect := fs.String("rect", "", "patch rectangle: px1,py1:px2,py2 (required)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*rect) == "" {
		fmt.Fprintln(os.Stderr, "missing -rect")
		os.Exit(2)
	}
	min, max, err := parseRect(*rect)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -rect:", err)
		os.Exit(2)
	}

	path := resolveSnapshot(*dataDir, *worldID, *snapPath)
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	reset, removed := resetPatches(&snap, min, max)
	if reset == 0 {
		fmt.Println("no loaded patches in rectangle; nothing to reset")
		return
	}

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(filepath.Dir(path), fmt.Sprintf("%012d.reset.snap.zst", snap.Header.Time))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("reset ok: snapshot=%s time=%d rect=%s patches=%d items_removed=%d out=%s\n",
		filepath.Base(path), snap.Header.Time, *rect, reset, removed, *outPath)
}

func resolveSnapshot(dataDir, worldID, explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if strings.TrimSpace(worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world or -snapshot")
		os.Exit(2)
	}
	p := latestSnapshot(filepath.Join(dataDir, "worlds", worldID))
	if p == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}
	return p
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTime uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		t, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || t > bestTime {
			bestTime = t
			best = filepath.Join(dir, name)
		}
	}
	return best
}
