package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Skryldev/image-store/config"
	"github.com/Skryldev/image-store/core"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		keep bool
		ext  string
	)
	cmd := &cobra.Command{
		Use:   "ingest <file|->",
		Short: "Store an image and print its identifier",
		Long:  "Store an image and print its identifier. Use - to read from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.ensureStore()
			if err != nil {
				return err
			}
			var id string
			if args[0] == "-" {
				id, err = s.IngestReader(cmd.Context(), cmd.InOrStdin(), ext)
			} else {
				id, err = s.Ingest(cmd.Context(), args[0], keep)
			}
			if id != "" {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the source file after ingestion")
	cmd.Flags().StringVar(&ext, "ext", "", "extension of stdin input (sniffed when empty)")
	return cmd
}

func newOriginalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "original <id>",
		Short: "Print the locator of an original",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.ensureStore()
			if err != nil {
				return err
			}
			loc, err := s.Original(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), loc)
			return nil
		},
	}
}

func newVariantCmd(a *app) *cobra.Command {
	var (
		width, height string
		options       []string
		spec          string
	)
	cmd := &cobra.Command{
		Use:   "variant <id>",
		Short: "Print the locator of a variant, computing it if needed",
		Example: `  imagestore variant 3f2a...|jpg --width 300 --height auto
  imagestore variant 3f2a...|jpg --spec 120x120:crop=T`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				g   core.Geometry
				err error
			)
			if spec != "" {
				g, err = core.ParseSpec(spec)
			} else {
				g, err = core.ParseGeometry(width, height, options...)
			}
			if err != nil {
				return err
			}
			s, err := a.ensureStore()
			if err != nil {
				return err
			}
			start := time.Now()
			loc, err := s.VariantOf(cmd.Context(), args[0], g)
			if err != nil {
				return err
			}
			a.logger.Debug("variant", "id", args[0], "geometry", g.String(), "elapsed", time.Since(start).String())
			fmt.Fprintln(cmd.OutOrStdout(), loc)
			return nil
		},
	}
	cmd.Flags().StringVar(&width, "width", "", "width in pixels, auto, or empty for the default")
	cmd.Flags().StringVar(&height, "height", "", "height in pixels, auto, or empty for the default")
	cmd.Flags().StringArrayVarP(&options, "option", "o", nil, "crop|fill[=anchor], repeatable")
	cmd.Flags().StringVar(&spec, "spec", "", "compact geometry WxH[:opt,...]; overrides the other flags")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete images and all of their variants",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.ensureStore()
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := s.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
			}
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalogued originals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.ensureStore()
			if err != nil {
				return err
			}
			recs, err := s.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFORMAT\tSIZE\tBYTES\tINGESTED")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%d\t%s\n",
					r.ID, r.Format, r.Width, r.Height, r.SizeBytes, r.IngestedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <id>",
		Short: "Show what is known about an original",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.ensureStore()
			if err != nil {
				return err
			}
			rec, err := s.Stat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(rec); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if used := a.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "# loaded from %s\n", used)
			}
			return config.Dump(cmd.OutOrStdout(), a.cfg)
		},
	}
}
