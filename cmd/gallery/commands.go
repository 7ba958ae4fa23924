package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/agjmills/gallery/internal/cliconfig"
	"github.com/agjmills/gallery/internal/uploader"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var (
		folder string
		public bool
	)

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload images and videos",
		Long: `Upload images and videos. Videos larger than 25MB are split into chunks,
uploaded one chunk at a time and assembled on the server.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("folder") {
				folder = a.cfg.Folder
			}
			if !cmd.Flags().Changed("public") {
				public = a.cfg.Public
			}

			sources := make([]*uploader.Source, 0, len(args))
			defer func() {
				for _, src := range sources {
					src.Close()
				}
			}()
			var total int64
			for _, path := range args {
				src, err := uploader.OpenSource(path)
				if err != nil {
					return err
				}
				sources = append(sources, src)
				total += src.Size
			}

			upOpts := uploader.Options{IsPublic: public}
			if folder != "" {
				upOpts.FolderID = &folder
			}

			stop := a.watch()
			result, err := a.orch.UploadBatch(cmd.Context(), sources, upOpts)
			stop()
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Uploaded %d file(s), %s\n", len(result.Uploaded), humanize.IBytes(uint64(total)))
			for _, img := range result.Uploaded {
				fmt.Fprintf(a.out, "  %s  %s  %s\n", img.ID, img.OriginalName, img.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "folder id to upload into")
	cmd.Flags().BoolVar(&public, "public", false, "make the uploads public")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete images and their stored objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			stop := a.watch()
			report, err := a.orch.Delete(cmd.Context(), args)
			stop()
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Deleted %d file(s): %d chunked, %d direct\n", report.Files, report.Chunked, report.Direct)
			if report.ObjectsOrphaned > 0 {
				fmt.Fprintf(a.out, "%d object(s) could not be removed and will be retried by the server\n", report.ObjectsOrphaned)
			}
			return nil
		},
	}
}

func newVisibilityCmd(opts *rootOptions, name string, public bool) *cobra.Command {
	short := "Make images private"
	if public {
		short = "Make images public"
	}

	return &cobra.Command{
		Use:   name + " ID...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			stop := a.watch()
			n, err := a.orch.SetVisibility(cmd.Context(), args, public)
			stop()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Updated %d image(s)\n", n)
			return nil
		},
	}
}

func newMoveCmd(opts *rootOptions) *cobra.Command {
	var (
		folder string
		root   bool
	)

	cmd := &cobra.Command{
		Use:   "move ID... (--folder ID | --root)",
		Short: "Move images into a folder or back to the root",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (folder == "") == !root {
				return errors.New("exactly one of --folder or --root is required")
			}

			a, err := newApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			var target *string
			if !root {
				target = &folder
			}

			stop := a.watch()
			n, err := a.orch.MoveToFolder(cmd.Context(), args, target)
			stop()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Moved %d image(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "destination folder id")
	cmd.Flags().BoolVar(&root, "root", false, "move to the root")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		folder string
		public bool
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List images, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			images, err := a.client.ListImages(cmd.Context(), folder, public)
			if err != nil {
				return err
			}
			if len(images) == 0 {
				fmt.Fprintln(a.out, "No images found.")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tSIZE\tPUBLIC\tCREATED\tNAME")
			for _, img := range images {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
					img.ID, img.MediaType, humanize.IBytes(uint64(img.Size)), img.IsPublic,
					humanize.Time(img.CreatedAt), img.OriginalName)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "only images in this folder")
	cmd.Flags().BoolVar(&public, "public", false, "only public images")
	return cmd
}

func newFoldersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Manage folders",
	}

	var byName, publicOnly bool
	ls := &cobra.Command{
		Use:   "ls",
		Short: "List folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			folders, err := a.client.ListFolders(cmd.Context(), publicOnly, byName)
			if err != nil {
				return err
			}
			if len(folders) == 0 {
				fmt.Fprintln(a.out, "No folders found.")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tIMAGES\tPUBLIC\tNAME")
			for _, f := range folders {
				fmt.Fprintf(tw, "%s\t%d\t%t\t%s\n", f.ID, f.ImageCount, f.IsPublic, f.Name)
			}
			return tw.Flush()
		},
	}
	ls.Flags().BoolVar(&byName, "by-name", false, "sort by name instead of newest first")
	ls.Flags().BoolVar(&publicOnly, "public", false, "only public folders")

	var public bool
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			folder, err := a.client.CreateFolder(cmd.Context(), args[0], public)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created folder %s (%s)\n", folder.Name, folder.ID)
			return nil
		},
	}
	create.Flags().BoolVar(&public, "public", false, "make the folder public")

	cmd.AddCommand(ls, create)
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				var err error
				if path, err = cliconfig.DefaultPath(); err != nil {
					return err
				}
			}

			cfg := cliconfig.Default()
			if opts.server != "" {
				cfg.ServerURL = opts.server
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cliconfig.Init(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration initialized at %s\n", path)
			return nil
		},
	})
	return cmd
}
