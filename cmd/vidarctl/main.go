// Command vidarctl is a thin CLI driver over the vidardb engine, adapted
// from the teacher's cmd/main.go demo into a put/get/delete subcommand
// tool backed by a filesystem object store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/thanos-io/objstore/providers/filesystem"

	"github.com/vidardb/vidardb"
)

func main() {
	root := flag.String("root", "/tmp/vidardb", "root directory for the filesystem object store")
	dbPath := flag.String("db", "default", "database path within the root directory")
	timeout := flag.Duration("timeout", 10*time.Second, "command timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	bucket, err := filesystem.NewBucket(*root)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := vidardb.Open(ctx, *dbPath, bucket)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	switch args[0] {
	case "put":
		if len(args) != 3 {
			usage()
		}
		db.Put([]byte(args[1]), []byte(args[2]))
		if err := db.Flush(ctx); err != nil {
			log.Fatalf("flush: %v", err)
		}
		fmt.Println("OK")
	case "get":
		if len(args) != 2 {
			usage()
		}
		val, err := db.Get(ctx, []byte(args[1]))
		if err != nil {
			log.Fatalf("get: %v", err)
		}
		fmt.Println(string(val))
	case "delete":
		if len(args) != 2 {
			usage()
		}
		db.Delete([]byte(args[1]))
		if err := db.Flush(ctx); err != nil {
			log.Fatalf("flush: %v", err)
		}
		fmt.Println("OK")
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vidarctl [-root dir] [-db path] <put key value|get key|delete key>")
	os.Exit(2)
}
