package cli

import (
	"fmt"

	"github.com/vietddude/todosync/internal/core/config"
)

// requirePostgres rejects commands that need the database when the
// process is configured for in-memory storage.
func requirePostgres(cfg *config.AppConfig, command string) error {
	if cfg.Storage != "postgres" {
		return fmt.Errorf("%s needs postgres storage, but storage is %q (in-memory state lives only inside a running syncer)", command, cfg.Storage)
	}
	return nil
}
