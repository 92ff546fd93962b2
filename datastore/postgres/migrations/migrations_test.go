package migrations

import (
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBasicMigrations(t *testing.T) {
	var fileMigrations []string
	err := iofs.WalkDir(sys, "registry", func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Name() == "registry" {
			return nil
		}
		if !d.Type().IsRegular() {
			return fmt.Errorf("%s is not a regular file", path)
		}
		if filepath.Ext(d.Name()) != ".sql" {
			return fmt.Errorf("%s is not a .sql file", path)
		}
		fileMigrations = append(fileMigrations, path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(fileMigrations) != len(Migrations) {
		t.Error(cmp.Diff(len(fileMigrations), len(Migrations)))
	}
	for i, m := range Migrations {
		if m.ID != i+1 {
			t.Error(cmp.Diff(m.ID, i+1))
		}
	}
}
