// Command pstore-vacuum is the compaction collaborator described by spec
// §3's "Lifecycle" paragraph: it produces a compacted copy of a repository
// without mutating the source file. Unlike the teacher's in-process
// compaction daemon (which serializes the current version onto a temp file
// from inside the engine), this tool is built entirely on pstore's public
// API — open the source read-only at HEAD, iterate every index, replay
// every entry into a fresh database in one transaction, then swap files.
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
	Use:   "pstore-vacuum <repository>",
	Short: "Compact a pstore repository's HEAD revision into a fresh file",
	Args:  cobra.ExactArgs(1),
	RunE:  runVacuum,
}

func runVacuum(cmd *cobra.Command, args []string) error {
	repoPath := args[0]
	tmpPath := repoPath + ".vacuum-tmp"

	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear stale temp file: %w", err)
	}

	src, err := pstore.Open(repoPath, pstore.ReadOnly)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	head, err := src.Head()
	if err != nil {
		return fmt.Errorf("resolve HEAD: %w", err)
	}

	dst, err := pstore.Open(tmpPath, pstore.Writable)
	if err != nil {
		return fmt.Errorf("create compacted file: %w", err)
	}

	tx, err := dst.Begin()
	if err != nil {
		dst.Close()
		return fmt.Errorf("begin: %w", err)
	}

	if err := copyExtentIndex(head.Fragment(), tx.Fragment(), head, dst, tx); err != nil {
		tx.Rollback()
		dst.Close()
		return err
	}
	if err := copyExtentIndex(head.Compilation(), tx.Compilation(), head, dst, tx); err != nil {
		tx.Rollback()
		dst.Close()
		return err
	}
	if err := copyExtentIndex(head.DebugLineHeader(), tx.DebugLineHeader(), head, dst, tx); err != nil {
		tx.Rollback()
		dst.Close()
		return err
	}
	if err := copyExtentIndex(head.Write(), tx.Write(), head, dst, tx); err != nil {
		tx.Rollback()
		dst.Close()
		return err
	}
	if err := copyAddressIndex(head.Names(), tx.Names(), head, dst, tx); err != nil {
		tx.Rollback()
		dst.Close()
		return err
	}
	if err := copyAddressIndex(head.Strings(), tx.Strings(), head, dst, tx); err != nil {
		tx.Rollback()
		dst.Close()
		return err
	}

	if err := tx.Commit(); err != nil {
		dst.Close()
		return fmt.Errorf("commit compacted file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close compacted file: %w", err)
	}

	if err := os.Rename(tmpPath, repoPath); err != nil {
		return fmt.Errorf("swap compacted file into place: %w", err)
	}

	fmt.Printf("vacuumed %s at revision %d\n", repoPath, head.Revision())
	return nil
}

// copyExtentIndex replays every (key, extent) pair from a source index into
// the matching destination index, copying the extent's bytes across since
// the two files have unrelated address spaces.
func copyExtentIndex(src *pstore.Index[pstore.Extent], dst *pstore.Index[pstore.Extent], snap *pstore.Snapshot, db *pstore.DB, tx *pstore.Transaction) error {
	entries, err := src.Iterate()
	if err != nil {
		return err
	}

	for _, e := range entries {
		bytes, err := snap.Read(e.Value)
		if err != nil {
			return err
		}

		buf, addr, err := tx.AllocRW(uint64(len(bytes)), 1)
		if err != nil {
			return err
		}
		copy(buf, bytes)

		newExtent := pstore.Extent{Address: addr, Size: e.Value.Size}
		if err := dst.InsertOrAssign(e.Key, newExtent); err != nil {
			return err
		}
	}
	return nil
}

// copyAddressIndex replays an intern-style index (name/strings). The value
// is just an address of previously-interned bytes in the source file, which
// vacuum doesn't otherwise walk, so the key itself — already the original
// interned string — is re-interned as the value's backing bytes.
func copyAddressIndex(src *pstore.Index[uint64], dst *pstore.Index[uint64], snap *pstore.Snapshot, db *pstore.DB, tx *pstore.Transaction) error {
	entries, err := src.Iterate()
	if err != nil {
		return err
	}

	for _, e := range entries {
		buf, addr, err := tx.AllocRW(uint64(len(e.Key)), 1)
		if err != nil {
			return err
		}
		copy(buf, e.Key)

		if err := dst.InsertOrAssign(e.Key, addr); err != nil {
			return err
		}
	}
	return nil
}
