// Package database provides SQLite connectivity for the bridge's local
// sample history.
//
// This package manages:
//   - Database connection with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS (the migrations package embeds them)
//   - Connection lifecycle
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: each version ships an .up.sql and a .down.sql
// named YYYYMMDD_HHMMSS_description.
package database
