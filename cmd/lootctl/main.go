// Command lootctl is a minimal local CLI for exercising a GameSession
// without standing up lootd: it loads plugin data, prints diagnostic
// messages, computes a sort, and optionally applies it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/loot-core/loot/internal/gameid"
	"github.com/loot-core/loot/internal/session"
)

func main() {
	var (
		gameFlag       = flag.String("game", "", "game id, e.g. SkyrimSE (required)")
		gamePath       = flag.String("game-path", "", "path to the game's install directory (required)")
		localDataDir   = flag.String("local-data", "", "path to the folder holding plugins.txt/loadorder.txt (required)")
		masterlistPath = flag.String("masterlist", "", "path to masterlist.yaml")
		preludePath    = flag.String("prelude", "", "path to prelude.yaml")
		userlistPath   = flag.String("userlist", "", "path to userlist.yaml")
		apply          = flag.Bool("apply", false, "write the computed sort back to the load order")
	)
	flag.Parse()

	if *gameFlag == "" || *gamePath == "" || *localDataDir == "" {
		fmt.Fprintln(os.Stderr, "usage: lootctl -game <id> -game-path <dir> -local-data <dir> [-apply]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	table, err := gameid.Lookup(gameid.ID(*gameFlag))
	if err != nil {
		log.Fatalf("invalid -game: %v", err)
	}

	sess, err := session.New(session.Config{
		Game:           table,
		DataDir:        filepath.Join(*gamePath, "Data"),
		LocalDataDir:   *localDataDir,
		MasterlistPath: *masterlistPath,
		PreludePath:    *preludePath,
		UserlistPath:   *userlistPath,
	})
	if err != nil {
		log.Fatalf("open session: %v", err)
	}

	if err := sess.Warnings(); err != nil {
		log.Printf("metadata warnings: %v", err)
	}

	ctx := context.Background()
	if err := sess.LoadData(ctx); err != nil {
		log.Fatalf("load data: %v", err)
	}

	msgs, err := sess.AllMessages()
	if err != nil {
		log.Fatalf("compute messages: %v", err)
	}
	for _, m := range msgs {
		fmt.Printf("[%s] %s\n", m.Severity, m.Text)
	}

	result, err := sess.Sort()
	if err != nil {
		log.Fatalf("sort: %v", err)
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning: dropped edge %s -> %s (%s)\n", w.Dropped.From, w.Dropped.To, w.Dropped.Kind)
	}

	fmt.Println("proposed load order:")
	for i, name := range result.Order {
		fmt.Printf("%4d  %s\n", i, name)
	}

	if *apply {
		if err := sess.ApplySort(result); err != nil {
			log.Fatalf("apply sort: %v", err)
		}
		fmt.Println("load order applied")
	}
}
