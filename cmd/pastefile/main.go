package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/imrenagi/go-pastefile/blob"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := NewRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("pastefile")
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var server string
	var client *Client

	rootCmd := &cobra.Command{
		Use:          "pastefile",
		Short:        "Command line client for a pastefile daemon.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client = NewClient(server, nil)
		},
	}
	defaultServer := os.Getenv("PASTEFILE_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVarP(&server, "server", "s", defaultServer, "daemon base url, defaults to $PASTEFILE_URL")

	var burn bool
	uploadCmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a file and print its url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := client.Upload(cmd.Context(), args[0], burn)
			if err != nil {
				return err
			}
			sum, err := blob.HashFile(afero.NewOsFs(), args[0])
			if err != nil {
				return err
			}
			if !strings.HasSuffix(u, "/"+sum) {
				log.Warn().Str("url", u).Str("md5", sum).Msg("the daemon stored the file under another hash")
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
	uploadCmd.Flags().BoolVarP(&burn, "burn", "b", false, "delete the file after its first download")

	var dir string
	getCmd := &cobra.Command{
		Use:   "get ID",
		Short: "Download a file under its original name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := client.Download(cmd.Context(), args[0], dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	getCmd.Flags().StringVarP(&dir, "output-dir", "o", ".", "directory the file is written to")

	deleteCmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := client.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	lsCmd := &cobra.Command{
		Use:   "ls",
		Short: "List the files still available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := client.List(cmd.Context())
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(infos))
			for k := range infos {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool { return infos[keys[i]].Timestamp < infos[keys[j]].Timestamp })

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MD5\tNAME\tSIZE\tBURN\tEXPIRE")
			for _, k := range keys {
				info := infos[k]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k, info.Name, info.Size, info.BurnAfterRead, info.Expire)
			}
			return tw.Flush()
		},
	}

	infoCmd := &cobra.Command{
		Use:   "info ID",
		Short: "Describe a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := client.Info(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:    %s\n", info.Name)
			fmt.Fprintf(out, "md5:     %s\n", info.MD5)
			fmt.Fprintf(out, "type:    %s\n", info.Type)
			fmt.Fprintf(out, "size:    %s\n", info.Size)
			fmt.Fprintf(out, "burn:    %s\n", info.BurnAfterRead)
			fmt.Fprintf(out, "expire:  %s\n", info.Expire)
			fmt.Fprintf(out, "url:     %s\n", info.URL)
			return nil
		},
	}

	rootCmd.AddCommand(uploadCmd, getCmd, deleteCmd, lsCmd, infoCmd)
	return rootCmd
}
