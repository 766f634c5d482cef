package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/taxverify/internal/audit/domain"
	employmentdomain "github.com/smallbiznis/taxverify/internal/employment/domain"
	expertdomain "github.com/smallbiznis/taxverify/internal/expert/domain"
	transcriptdomain "github.com/smallbiznis/taxverify/internal/transcript/domain"
	trdomain "github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	webhookdomain "github.com/smallbiznis/taxverify/internal/webhook/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.

	return nil
}

// Models lists every table the service owns.
func Models() []any {
	return []any{
		&trdomain.VerificationRequest{},
		&transcriptdomain.ParsedTranscript{},
		&transcriptdomain.Transaction{},
		&transcriptdomain.UploadActivity{},
		&expertdomain.Expert{},
		&employmentdomain.EmploymentRequest{},
		&auditdomain.APIRequest{},
		&webhookdomain.Delivery{},
	}
}

// AutoMigrate builds the schema from the models. It serves sqlite, mysql and tests.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
