package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/meridiandb/meridian/pkg/catalog"
	"github.com/meridiandb/meridian/pkg/commands"
	"github.com/meridiandb/meridian/pkg/cursor"
	"github.com/meridiandb/meridian/pkg/logger"
	"github.com/meridiandb/meridian/pkg/namespace"
)

// NewListIndexesCommand pages through the index metadata of a seeded
// in-memory catalog, demonstrating the full cursor lifecycle: listIndexes,
// getMore until exhaustion, batch budgets and all.
func NewListIndexesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-indexes",
		Short: "Page through a collection's index metadata using a server-side cursor",
		RunE:  runListIndexes,
	}

	bindListIndexesFlags(cmd)

	return cmd
}

func runListIndexes(cmd *cobra.Command, _ []string) error {
	log := logger.MustNewLogger(viper.GetString("log-format"), viper.GetString("log-level"))
	defer func() { _ = log.Sync() }()

	ns, err := namespace.New(viper.GetString("database"), viper.GetString("collection"))
	if err != nil {
		return err
	}

	cat := catalog.NewMemoryCatalog()
	if err := cat.CreateCollection(ns); err != nil {
		return err
	}
	for i := 0; i < viper.GetInt("seed-indexes"); i++ {
		field := fmt.Sprintf("field%d", i)
		spec, err := bson.Marshal(bson.D{
			{Key: "v", Value: int32(2)},
			{Key: "key", Value: bson.D{{Key: field, Value: int32(1)}}},
			{Key: "name", Value: field + "_1"},
		})
		if err != nil {
			return err
		}
		if err := cat.CreateIndex(ns, spec); err != nil {
			return err
		}
	}

	registry := cursor.NewRegistry(cursor.WithLogger(log))
	defer registry.Close()

	batchSize := viper.GetInt64("batch-size")
	maxBytes := viper.GetInt("max-batch-bytes")

	listQuery := commands.NewListIndexesQuery(cat, registry,
		commands.WithListIndexesQueryLogger(log),
		commands.WithMaxBatchBytes(maxBytes),
	)
	resp, err := listQuery.Execute(cmd.Context(), &commands.ListIndexesRequest{
		Database:   ns.Database(),
		Collection: ns.Collection(),
		BatchSize:  batchSize,
		Auth:       commands.AuthContext{Users: []string{"demo"}},
	})
	if err != nil {
		return err
	}

	page := 1
	printBatch(cmd, page, resp.Batch)

	getMore := commands.NewGetMoreQuery(cat, registry,
		commands.WithGetMoreQueryLogger(log),
		commands.WithGetMoreMaxBatchBytes(maxBytes),
	)
	cursorNS, err := namespace.Parse(resp.Namespace)
	if err != nil {
		return err
	}

	for resp.CursorID != 0 {
		log.Debug("continuing cursor", zap.Int64("cursor_id", resp.CursorID))

		resp, err = getMore.Execute(cmd.Context(), &commands.GetMoreRequest{
			CursorID:   resp.CursorID,
			Database:   cursorNS.Database(),
			Collection: cursorNS.Collection(),
			BatchSize:  batchSize,
		})
		if err != nil {
			return err
		}

		page++
		printBatch(cmd, page, resp.Batch)
	}

	return nil
}

func printBatch(cmd *cobra.Command, page int, batch []bson.Raw) {
	for _, doc := range batch {
		out, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			cmd.PrintErrln(err)
			continue
		}
		cmd.Printf("[page %d] %s\n", page, out)
	}
}
