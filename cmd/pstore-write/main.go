// Command pstore-write is the write_basic.cpp-equivalent collaborator: open
// writable, begin a transaction, allocate space for a value, record it in
// the write index, commit.
package main

import (
	"fmt"
	"os"

	"github.com/pstorekv/pstore"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pstore-write <repository> <key> <value>",
	Short: "Write a single key/value pair into a pstore repository's write index",
	Args:  cobra.ExactArgs(3),
	RunE:  runWrite,
}

func runWrite(cmd *cobra.Command, args []string) error {
	repoPath, key, value := args[0], args[1], args[2]

	db, err := pstore.Open(repoPath, pstore.Writable)
	if err != nil {
		return fmt.Errorf("open %s: %w", repoPath, err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	valueBytes := []byte(value)
	buf, addr, err := tx.AllocRW(uint64(len(valueBytes)), 1)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("alloc: %w", err)
	}
	copy(buf, valueBytes)

	extent := pstore.Extent{Address: addr, Size: uint64(len(valueBytes))}
	if err := tx.Write().InsertOrAssign([]byte(key), extent); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	head, err := db.Head()
	if err != nil {
		return fmt.Errorf("head: %w", err)
	}

	fmt.Printf("wrote %q -> %d bytes at revision %d\n", key, len(valueBytes), head.Revision())
	return nil
}
