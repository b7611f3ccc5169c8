package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/wal-cas/internal/vfs"
)

var vfsCmd = &cobra.Command{
	Use:   "vfs",
	Short: "Browse the Columnar Bridge's holdings as a read-only filesystem",
}

var vfsLsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: `List a directory, e.g. "/", "/datasets", "/metadata"`,
	Args:  cobra.ExactArgs(1),
	RunE:  runVFSLs,
}

var vfsCatCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: `Print a file's bytes, e.g. "/metadata/<cid>.json"`,
	Args:  cobra.ExactArgs(1),
	RunE:  runVFSCat,
}

func init() {
	vfsCmd.PersistentFlags().String("base-dir", "", "Columnar partitions directory (default: <base-path>/columnar/partitions)")
	vfsCmd.PersistentFlags().String("metadata-dir", "", "Columnar metadata directory (default: <base-path>/columnar/metadata)")
	vfsCmd.PersistentFlags().String("queries-dir", "", "Cached query result directory (default: <base-path>/columnar/queries)")

	vfsCatCmd.Flags().Int64("start", 0, "Byte range start (inclusive)")
	vfsCatCmd.Flags().Int64("end", -1, "Byte range end (exclusive, -1 for EOF)")

	vfsCmd.AddCommand(vfsLsCmd, vfsCatCmd)
}

func openVFS(cmd *cobra.Command) (*vfs.FS, error) {
	bridge, err := openBridge(cmd)
	if err != nil {
		return nil, err
	}
	queriesDir, _ := cmd.Flags().GetString("queries-dir")
	if queriesDir == "" {
		queriesDir = cfg.BasePath + "/columnar/queries"
	}
	return vfs.NewFS(vfs.Config{Bridge: bridge, QueriesDir: queriesDir})
}

func runVFSLs(cmd *cobra.Command, args []string) error {
	fsys, err := openVFS(cmd)
	if err != nil {
		return err
	}
	defer fsys.Close()

	entries, err := fsys.Ls(args[0], true)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "f"
		if e.IsDir {
			kind = "d"
		}
		fmt.Printf("%s %10d %s %s\n", kind, e.Size, e.ModTime.Format("2006-01-02T15:04:05"), e.Name)
	}
	return nil
}

func runVFSCat(cmd *cobra.Command, args []string) error {
	fsys, err := openVFS(cmd)
	if err != nil {
		return err
	}
	defer fsys.Close()

	start, _ := cmd.Flags().GetInt64("start")
	end, _ := cmd.Flags().GetInt64("end")

	data, err := fsys.CatFile(args[0], start, end)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
