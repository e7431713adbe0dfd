package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"daemondb/internal/buffer"
	"daemondb/internal/catalog"
	"daemondb/internal/diskio"
	"daemondb/internal/executor"
	"daemondb/internal/hash"
	"daemondb/internal/txn"
)

const defaultBuckets = 1024

func main() {
	dbFile := flag.String("db", "daemondb.db", "path to the database file")
	poolSize := flag.Int("pool-size", 128, "number of frames in the buffer pool")
	flag.Parse()

	disk, err := diskio.NewFileDiskManager(*dbFile)
	if err != nil {
		log.Fatalf("daemondb: %v", err)
	}
	defer disk.Close()

	pm := buffer.NewPoolManager(*poolSize, disk)

	cat, err := catalog.New(pm)
	if err != nil {
		log.Fatalf("daemondb: %v", err)
	}

	tables := map[string]*hash.Table{}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("daemondb> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])

		switch cmd {
		case "exit", "quit":
			return

		case "create":
			if len(fields) != 2 {
				fmt.Println("usage: create <table>")
				continue
			}
			name := fields[1]
			table, err := hash.New(name, pm, hash.Uint64Comparator, defaultBuckets, hash.XXHash)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			header := table.HeaderPageID()
			if err := cat.Register(nil, name, header); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			tables[name] = table
			fmt.Printf("created table %q\n", name)

		case "put":
			table, key, value, ok := resolveKV(fields, tables, cat, pm)
			if !ok {
				continue
			}
			tx := txn.Begin()
			if table.Insert(tx, key, value) {
				fmt.Println("ok")
			} else {
				fmt.Println("duplicate, not inserted")
			}

		case "get":
			if len(fields) != 3 {
				fmt.Println("usage: get <table> <key>")
				continue
			}
			table, ok := lookupTable(fields[1], tables, cat, pm)
			if !ok {
				continue
			}
			key, err := strconv.ParseUint(fields[2], 10, 64)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			tx := txn.Begin()
			values, found := table.GetValue(tx, key)
			if !found {
				fmt.Println("not found")
				continue
			}
			fmt.Println(values)

		case "del":
			table, key, value, ok := resolveKV(fields, tables, cat, pm)
			if !ok {
				continue
			}
			tx := txn.Begin()
			if table.Remove(tx, key, value) {
				fmt.Println("ok")
			} else {
				fmt.Println("not found")
			}

		case "scan":
			if len(fields) != 2 {
				fmt.Println("usage: scan <table>")
				continue
			}
			table, ok := lookupTable(fields[1], tables, cat, pm)
			if !ok {
				continue
			}
			scan := executor.NewSeqScan(table)
			scan.Init()
			for {
				e, ok := scan.Next()
				if !ok {
					break
				}
				fmt.Printf("%d -> %d\n", e.Key, e.Value)
			}
			scan.Close()

		default:
			fmt.Printf("unrecognized command %q\n", cmd)
		}
	}
}

func resolveKV(fields []string, tables map[string]*hash.Table, cat *catalog.Catalog, pm *buffer.PoolManager) (*hash.Table, uint64, uint64, bool) {
	if len(fields) != 4 {
		fmt.Println("usage: put|del <table> <key> <value>")
		return nil, 0, 0, false
	}
	table, ok := lookupTable(fields[1], tables, cat, pm)
	if !ok {
		return nil, 0, 0, false
	}
	key, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return nil, 0, 0, false
	}
	value, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return nil, 0, 0, false
	}
	return table, key, value, true
}

func lookupTable(name string, tables map[string]*hash.Table, cat *catalog.Catalog, pm *buffer.PoolManager) (*hash.Table, bool) {
	if table, ok := tables[name]; ok {
		return table, true
	}
	headerPageID, ok := cat.Lookup(nil, name)
	if !ok {
		fmt.Printf("no such table %q\n", name)
		return nil, false
	}
	table := hash.Open(name, pm, hash.Uint64Comparator, hash.XXHash, headerPageID)
	tables[name] = table
	return table, true
}
