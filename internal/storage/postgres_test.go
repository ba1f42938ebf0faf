package storage

import (
	"context"
	"testing"

	"github.com/Varun5711/shortlink/internal/testutils"
)

func TestPostgresStorage(t *testing.T) {
	db, _ := testutils.StartPostgres(t)

	runStorageContract(t, func(t *testing.T) Storage {
		_, err := db.Write().Exec(context.Background(), `TRUNCATE urls, counters RESTART IDENTITY`)
		if err != nil {
			t.Fatalf("failed to truncate: %v", err)
		}
		return NewPostgresStorage(db)
	})
}
