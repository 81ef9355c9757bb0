package cache

import (
	"fmt"
	"io"
	"os"

	"go.etcd.io/bbolt"
)

// Backup writes a point-in-time snapshot of the whole store to path
func (s *Store) Backup(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer file.Close()

	err = s.db.Store().Bolt().View(func(tx *bbolt.Tx) error {
		_, err := tx.WriteTo(file)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	s.logger.WithField("path", path).Info("Database backed up")
	return nil
}

// Restore atomically replaces the store with the snapshot at path. The
// snapshot is validated by opening it before the live file is touched.
func (s *Store) Restore(path string) error {
	check, err := bbolt.Open(path, 0600, &bbolt.Options{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("backup file is not a valid database: %w", err)
	}
	if err := check.Close(); err != nil {
		return fmt.Errorf("failed to close backup file: %w", err)
	}

	dbPath := s.db.Path()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database for restore: %w", err)
	}

	if err := copyFile(path, dbPath); err != nil {
		return fmt.Errorf("failed to replace database file: %w", err)
	}

	if err := s.db.Reopen(); err != nil {
		return fmt.Errorf("failed to reopen database after restore: %w", err)
	}
	s.memory.Flush()

	s.logger.WithField("path", path).Info("Database restored")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	// Write to a temp file next to the target, then rename into place
	tmp := dst + ".restore"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
