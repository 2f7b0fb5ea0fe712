// Package main provides a command-line utility to dump HDF5 file contents.
// It displays raw hex data from specific offsets in HDF5 files for debugging,
// or, with -walk, traverses the object tree and prints the metadata summary
// (Dataset.Info) of every dataset, gathered in parallel.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	hdf5 "github.com/scigolib/hdf5"
)

func main() {
	// Define command-line flags
	offset := flag.Int64("offset", 0, "Offset in file to start dumping from")
	length := flag.Int("length", 128, "Number of bytes to dump")
	walk := flag.Bool("walk", false, "Walk the object tree and print every dataset's info summary instead of hex-dumping")
	jobs := flag.Int("jobs", 4, "Number of datasets to read concurrently in -walk mode")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: dump_hdf5 [flags] <file.h5>")
		fmt.Println("Flags:")
		flag.PrintDefaults()
		return
	}

	if *walk {
		walkFile(args[0], *jobs)
		return
	}

	file := args[0]
	f, err := os.Open(file)
	if err != nil {
		log.Fatalf("Failed to open file: %v", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close file: %v", err)
		}
	}()

	// Get file size
	fileInfo, err := f.Stat()
	if err != nil {
		log.Fatalf("Failed to get file info: %v", err)
	}
	fileSize := fileInfo.Size()

	// Validate parameters
	if *offset < 0 || *offset >= fileSize {
		log.Fatalf("Invalid offset: %d (file size: %d)", *offset, fileSize)
	}

	if *length < 1 {
		log.Fatalf("Invalid length: %d", *length)
	}

	// Calculate actual read length
	remaining := fileSize - *offset
	readLength := int64(*length)
	if readLength > remaining {
		readLength = remaining
		fmt.Printf("Warning: requested length %d exceeds available bytes (%d). Dumping %d bytes.\n",
			*length, remaining, readLength)
	}

	// Read specified portion of file
	buf := make([]byte, readLength)
	n, err := f.ReadAt(buf, *offset)
	if err != nil {
		log.Printf("Read error: %v (read %d of %d bytes)", err, n, readLength)
	}

	fmt.Printf("Dumping %d bytes at offset 0x%x (%d) of %s (size: %d bytes):\n",
		n, *offset, *offset, file, fileSize)

	for i := 0; i < n; i += 16 {
		end := i + 16
		if end > n {
			end = n
		}
		chunk := buf[i:end]

		// Hexadecimal dump
		fmt.Printf("%08x: ", *offset+int64(i))
		for j := 0; j < 16; j++ {
			if j < len(chunk) {
				fmt.Printf("%02x ", chunk[j])
			} else {
				fmt.Print("   ")
			}
			if j == 7 {
				fmt.Print(" ")
			}
		}
		fmt.Print(" |")

		// ASCII representation
		for _, b := range chunk {
			if b >= 32 && b <= 126 {
				fmt.Printf("%c", b)
			} else {
				fmt.Print(".")
			}
		}
		fmt.Println("|")
	}
}

// datasetResult holds the outcome of reading one dataset during a walk.
type datasetResult struct {
	path string
	info string
	err  error
}

// walkFile opens file, walks its object tree, and collects the Info
// summary of every dataset found using up to jobs concurrent workers.
func walkFile(file string, jobs int) {
	f, err := hdf5.Open(file)
	if err != nil {
		log.Fatalf("failed to open %s: %v", file, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("failed to close %s: %v", file, err)
		}
	}()

	if jobs < 1 {
		jobs = 1
	}

	var (
		mu      sync.Mutex
		results []datasetResult
	)

	group := new(errgroup.Group)
	group.SetLimit(jobs)

	f.Walk(func(path string, obj hdf5.Object) {
		ds, ok := obj.(*hdf5.Dataset)
		if !ok {
			return
		}

		group.Go(func() error {
			info, err := ds.Info()

			mu.Lock()
			results = append(results, datasetResult{path: path, info: info, err: err})
			mu.Unlock()

			return nil
		})
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("walk failed: %v", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })

	for _, r := range results {
		if r.err != nil {
			fmt.Printf("%s: error: %v\n", r.path, r.err)
			continue
		}
		fmt.Printf("%s: %s\n", r.path, r.info)
	}
}
