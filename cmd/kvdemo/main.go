package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"ttl-kvstore/kvstore"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON options file")
	dataPath := flag.String("path", "", "snapshot path (overrides config)")
	wait := flag.Duration("wait", 3*time.Second, "how long to wait for the TTL to lapse")
	flag.Parse()

	// Options
	opts := kvstore.DefaultOptions()
	if *configPath != "" {
		loaded, err := kvstore.LoadOptions(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		opts = loaded
	}
	if *dataPath != "" {
		opts.Path = *dataPath
	}
	opts.LogSink = slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Store
	store, err := kvstore.Open(opts)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Print(err)
		}
	}()

	fmt.Println("Creating user1...")
	report(store.Create("user1", map[string]any{"name": "Ann"}, 2), "Key-value pair created successfully.")

	fmt.Println("Reading user1...")
	show(store.Read("user1"))

	fmt.Printf("Sleeping for %s to allow TTL expiration...\n", *wait)
	time.Sleep(*wait)

	fmt.Println("Reading expired user1...")
	show(store.Read("user1"))
	show(store.Read("user1"))

	fmt.Println("Batch creating keys...")
	report(store.BatchCreate([]kvstore.Pair{
		{Key: "k1", Value: map[string]any{"a": 1}},
		{Key: "k2", Value: map[string]any{"b": 2}},
	}, 0), "Batch create operation successful.")
	show(store.Read("k1"))
	show(store.Read("k2"))

	fmt.Println("Batch creating with an existing key...")
	report(store.BatchCreate([]kvstore.Pair{
		{Key: "k1", Value: map[string]any{"a": 9}},
		{Key: "k3", Value: map[string]any{"c": 3}},
	}, 0), "Batch create operation successful.")
	show(store.Read("k3"))

	fmt.Println("Removing k1 and k2...")
	report(store.Remove("k1"), "Key-value pair deleted successfully.")
	report(store.Remove("k2"), "Key-value pair deleted successfully.")

	fmt.Printf("Health: %s\n", store.Health().OverallStatus)
}

func report(err error, success string) {
	if err != nil {
		fmt.Printf("Error (%s): %s\n", kvstore.CodeOf(err), kvstore.CodeOf(err).Message())
		return
	}
	fmt.Println(success)
}

func show(value []byte, err error) {
	if err != nil {
		report(err, "")
		return
	}
	fmt.Println(string(value))
}
