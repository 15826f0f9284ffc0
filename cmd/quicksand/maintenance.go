package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"quicksand/internal/config"
)

func newSweepCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired images from the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, st, err := openService(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			removed, err := service.SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSONOut(map[string]int{"removed": removed})
		},
	}
}

func newReconcileCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair catalog/blob inconsistencies in the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, st, err := openService(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			result, err := service.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSONOut(result)
		},
	}
}

func newInfoCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openService(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			info, err := st.StoreInfo(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSONOut(info)
			}
			if err := writePlain("db: %s\nfiles: %s\n", cfg.DBPath, cfg.FilesDir); err != nil {
				return err
			}
			return writePlain("images: %d\ngalleries: %d\nused: %s (%d bytes)\n",
				info.ImageCount, info.GalleryCount, humanize.IBytes(uint64(info.UsedBytes)), info.UsedBytes)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")
	return cmd
}
