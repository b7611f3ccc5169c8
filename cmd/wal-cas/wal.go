package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/wal-cas/internal/types"
	"github.com/cuemby/wal-cas/internal/wal"
)

var walCmd = &cobra.Command{
	Use:   "wal",
	Short: "Inspect and append to the Write-Ahead Log",
}

var walAppendCmd = &cobra.Command{
	Use:   "append",
	Short: "Append a new operation to the WAL in PENDING status",
	RunE:  runWalAppend,
}

var walGetCmd = &cobra.Command{
	Use:   "get <operation-id>",
	Short: "Print one operation by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runWalGet,
}

var walStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print WAL partition and status counters",
	RunE:  runWalStats,
}

func init() {
	walAppendCmd.Flags().String("type", string(types.OpAdd), "Operation type")
	walAppendCmd.Flags().String("backend", string(types.BackendLocal), "Target backend")

	walCmd.AddCommand(walAppendCmd, walGetCmd, walStatsCmd)
}

func openStore() (*wal.Store, error) {
	return wal.NewStore(wal.Options{
		BasePath:         cfg.BasePath,
		PartitionSize:    cfg.PartitionSize,
		ArchiveCompleted: cfg.ArchiveCompleted,
	})
}

func runWalAppend(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("opening WAL: %w", err)
	}
	defer store.Close()

	opType, _ := cmd.Flags().GetString("type")
	backend, _ := cmd.Flags().GetString("backend")

	op := &types.Operation{
		OperationID: uuid.NewString(),
		Type:        types.OperationType(opType),
		Backend:     types.BackendKind(backend),
		Status:      types.StatusPending,
		Timestamp:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
		MaxRetries:  cfg.MaxRetries,
	}
	if err := store.Append(op); err != nil {
		return fmt.Errorf("appending operation: %w", err)
	}
	fmt.Printf("appended operation %s (%s/%s)\n", op.OperationID, op.Type, op.Backend)
	return nil
}

func runWalGet(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("opening WAL: %w", err)
	}
	defer store.Close()

	op, err := store.GetOperation(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s  %-10s %-8s %-6s  retries=%d/%d\n",
		op.OperationID, op.Type, op.Backend, op.Status, op.RetryCount, op.MaxRetries)
	if op.Result != nil {
		fmt.Printf("  result: cid=%s size=%d\n", op.Result.CID, op.Result.Size)
	}
	if op.Error != "" {
		fmt.Printf("  error: %s (%s)\n", op.Error, op.ErrorType)
	}
	return nil
}

func runWalStats(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("opening WAL: %w", err)
	}
	defer store.Close()

	stats, err := store.GetStatistics()
	if err != nil {
		return err
	}
	fmt.Printf("partitions: %d\narchives:   %d\ntotal:      %d\n",
		stats.Partitions, stats.Archives, stats.Total)
	fmt.Printf("pending=%d processing=%d completed=%d failed=%d retrying=%d\n",
		stats.Pending, stats.Processing, stats.Completed, stats.Failed, stats.Retrying)
	for backend, count := range stats.ByBackend {
		fmt.Printf("%-10s %d\n", backend, count)
	}
	return nil
}
