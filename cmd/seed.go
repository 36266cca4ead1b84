package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pkmeta/metaspot/internal/contract"
	"github.com/pkmeta/metaspot/internal/datastore"
	"github.com/pkmeta/metaspot/internal/fixture"
)

// executeSeed writes synthetic matches into the configured match source.
func executeSeed(ctx context.Context, c *contract.Config, opts fixture.Options) error {
	ref, err := loadReference(c)
	if err != nil {
		return err
	}

	matches, err := fixture.Generate(fixture.Pools(ref), opts)
	if err != nil {
		return err
	}

	w, err := datastore.OpenMatchWriter(ctx, c)
	if err != nil {
		return dataSourceError(err, "cannot open %s match source", c.SourceBackend)
	}
	defer func() { _ = w.Close() }()

	if err := w.WriteMatches(ctx, matches); err != nil {
		return dataSourceError(err, "cannot write matches to %s", c.SourceBackend)
	}
	logger.Info("seeded match source",
		zap.String("backend", string(c.SourceBackend)),
		zap.Int("matches", len(matches)))
	_, err = fmt.Fprintf(os.Stdout, "Seeded %s\n", fixture.Describe(matches))
	return err
}

// seedCmd fills a match source with generated matches.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the match source with generated matches.",
	Long: `Generate synthetic ranked matches and append them to the match source.

Every category of the reference data becomes one archetype pool, so a
following run finds roughly one archetype per category. A share of the
teams (--noise-share) mixes every pool and should end up as noise.

Matches are spread between --since and now. A non-zero --seed makes the
output reproducible.

Examples:
  # Seed the default SQLite store
  metaspot seed --count 2000 --seed 7

  # Seed a JSON lines file for a file-backed run
  metaspot seed --source-backend file --source-connect matches.jsonl`,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		opts := fixture.Options{
			Count:      viper.GetInt("count"),
			TeamSize:   viper.GetInt("team-size"),
			MaxRank:    viper.GetInt("max-rank"),
			NoiseShare: viper.GetFloat64("noise-share"),
			From:       cfg.Since,
			To:         time.Now(),
			Seed:       cfg.Seed,
		}
		if err := executeSeed(rootCtx, cfg, opts); err != nil {
			contract.LogFatal("Cannot seed matches", err)
		}
	},
}
