package discovery

import (
	"context"
	"database/sql"
	"fmt"

	"api-contract-tester/internal/config"
	"api-contract-tester/internal/logger"
	"api-contract-tester/internal/types"
)

// DBSeeder fills cache categories straight from a database when live
// discovery found nothing for them. Each configured query must return an
// id column and may return a name column.
type DBSeeder struct {
	cfg        config.SeedDBConfig
	log        *logger.Logger
	sampleSize int
}

// NewDBSeeder creates a seeder; callers check cfg.Enabled themselves.
func NewDBSeeder(cfg config.SeedDBConfig, log *logger.Logger, sampleSize int) *DBSeeder {
	if sampleSize <= 0 {
		sampleSize = 10
	}
	return &DBSeeder{cfg: cfg, log: log, sampleSize: sampleSize}
}

// Seed runs every configured query whose category is still empty and
// merges the rows into the cache. Query failures are logged and skipped,
// matching the soft-fail policy of live discovery.
func (s *DBSeeder) Seed(ctx context.Context, cache Cache) error {
	dsn := s.dsn()
	if dsn == "" {
		return fmt.Errorf("unsupported seed database type: %s", s.cfg.Type)
	}

	db, err := sql.Open(s.cfg.Type, dsn)
	if err != nil {
		return fmt.Errorf("failed to open seed database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to seed database: %w", err)
	}

	for category, query := range s.cfg.Queries {
		if len(cache[category]) > 0 {
			continue
		}
		records, err := s.query(ctx, db, query)
		if err != nil {
			s.log.LogDiscovery(category, "db:"+s.cfg.Database, 0, err)
			continue
		}
		s.log.LogDiscovery(category, "db:"+s.cfg.Database, len(records), nil)
		cache[category] = records
	}
	return nil
}

func (s *DBSeeder) query(ctx context.Context, db *sql.DB, query string) ([]types.DiscoveredRecord, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []types.DiscoveredRecord
	for rows.Next() {
		var id, name sql.NullString
		dest := []interface{}{&id}
		if len(cols) > 1 {
			dest = append(dest, &name)
		}
		// Only the first two columns are meaningful.
		for i := 2; i < len(cols); i++ {
			var discard interface{}
			dest = append(dest, &discard)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if !id.Valid || id.String == "" {
			continue
		}
		records = append(records, types.DiscoveredRecord{ID: id.String, Name: name.String})
		if len(records) == s.sampleSize {
			break
		}
	}
	return records, rows.Err()
}

// dsn builds the driver connection string, one format per supported
// database type.
func (s *DBSeeder) dsn() string {
	switch s.cfg.Type {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Password, s.cfg.Database)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			s.cfg.User, s.cfg.Password, s.cfg.Host, s.cfg.Port, s.cfg.Database)
	case "sqlserver":
		return fmt.Sprintf("server=%s;port=%d;user id=%s;password=%s;database=%s",
			s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Password, s.cfg.Database)
	default:
		return ""
	}
}
