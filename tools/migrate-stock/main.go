// Command migrate-stock copies stock counters from MongoDB into DynamoDB.
// Counters keep their id and version, so a reservation coordinator pointed
// at the new table resumes where the old backend stopped. Counters already
// present in the target are left untouched, which makes reruns safe.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	awspkg "github.com/yashrajoria/commerce-core/pkg/aws"
	"github.com/yashrajoria/commerce-core/services/common/config"
	"github.com/yashrajoria/commerce-core/services/common/database"
	"github.com/yashrajoria/commerce-core/services/common/logger"
	"github.com/yashrajoria/commerce-core/services/inventory-service/models"
	"github.com/yashrajoria/commerce-core/services/inventory-service/repository"
)

type migrateStats struct {
	Migrated int
	Existing int
	Bad      int
}

func newRootCommand() *cobra.Command {
	var (
		mongoURI   string
		mongoDB    string
		collection string
		table      string
		batchSize  int32
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:          "migrate-stock",
		Short:        "Copy versioned stock counters from MongoDB to DynamoDB",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mongoURI == "" || mongoDB == "" {
				return fmt.Errorf("--mongo and --db are required (or MONGO_URI and MONGO_DB)")
			}
			log := logger.Must("development", nil)
			defer log.Sync()
			ctx := cmd.Context()

			client, mdb, err := database.ConnectMongo(ctx, mongoURI, mongoDB)
			if err != nil {
				return err
			}
			defer func() { _ = database.DisconnectMongo(client) }()
			source := repository.NewMongoStockRepository(mdb, collection)

			var target repository.StockRepository
			if !dryRun {
				awsCfg, err := awspkg.LoadAWSConfig(ctx)
				if err != nil {
					return fmt.Errorf("aws config: %w", err)
				}
				target = repository.NewDynamoStockRepository(awspkg.NewDynamoClient(awsCfg), table)
			}

			stats, err := migrate(ctx, source, target, batchSize, log)
			log.Info("Stock migration finished",
				zap.Int("migrated", stats.Migrated),
				zap.Int("existing", stats.Existing),
				zap.Int("bad", stats.Bad),
				zap.Bool("dry_run", dryRun),
			)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&mongoURI, "mongo", config.GetEnv("MONGO_URI", ""), "MongoDB URI")
	flags.StringVar(&mongoDB, "db", config.GetEnv("MONGO_DB", ""), "MongoDB database name")
	flags.StringVar(&collection, "collection", "stock", "MongoDB collection holding the counters")
	flags.StringVar(&table, "table", config.GetEnv("DDB_TABLE_STOCK", "Stock"), "DynamoDB table name")
	flags.Int32Var(&batchSize, "batch", 500, "MongoDB cursor batch size")
	flags.BoolVar(&dryRun, "dry-run", false, "decode and validate only, write nothing")
	return cmd
}

// stockSource is the read side of the migration.
type stockSource interface {
	Each(ctx context.Context, batchSize int32, fn func(*models.Stock) error, onBad func(id string, err error)) error
}

// migrate copies every counter from source into target. A nil target
// validates without writing.
func migrate(ctx context.Context, source stockSource, target repository.StockRepository, batchSize int32, log *zap.Logger) (migrateStats, error) {
	var stats migrateStats
	err := source.Each(ctx, batchSize, func(s *models.Stock) error {
		if target != nil {
			err := target.Create(ctx, s)
			if errors.Is(err, models.ErrStockExists) {
				stats.Existing++
				return nil
			}
			if err != nil {
				return fmt.Errorf("write stock %s: %w", s.ID, err)
			}
		}
		stats.Migrated++
		if stats.Migrated%100 == 0 {
			log.Info("Migrating stock", zap.Int("migrated", stats.Migrated))
		}
		return nil
	}, func(id string, err error) {
		stats.Bad++
		log.Warn("Skipping unreadable stock document", zap.String("id", id), zap.Error(err))
	})
	return stats, err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	config.LoadDotEnv()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
