package main

import (
	"flag"
	"log"

	"daemondb/internal/buffer"
	"daemondb/internal/debugserver"
	"daemondb/internal/diskio"
	"daemondb/internal/stats"
)

func main() {
	dbFile := flag.String("db", "daemondb.db", "path to the database file")
	poolSize := flag.Int("pool-size", 128, "number of frames in the buffer pool")
	port := flag.Int("port", 8080, "HTTP port for the debug server")
	flag.Parse()

	disk, err := diskio.NewFileDiskManager(*dbFile)
	if err != nil {
		log.Fatalf("daemondb-debug: %v", err)
	}
	defer disk.Close()

	pm := buffer.NewPoolManager(*poolSize, disk)

	cache, err := stats.New(pm)
	if err != nil {
		log.Fatalf("daemondb-debug: %v", err)
	}
	defer cache.Close()

	srv := debugserver.NewServer(*port, cache)
	if err := srv.Run(); err != nil {
		log.Fatalf("daemondb-debug: %v", err)
	}
}
