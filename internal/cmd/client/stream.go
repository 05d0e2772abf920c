package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	apiclient "github.com/oxbow-io/oxbow/internal/client"
)

// NewStreamCommand constructs the `stream` command group and subcommands.
func NewStreamCommand(baseURL BaseURLFunc) *cobra.Command {
	streamCmd := &cobra.Command{Use: "stream", Short: "Stream buffer operations"}

	streamCmd.AddCommand(
		newStreamAppendCommand(baseURL),
		newStreamFinalizeCommand(baseURL),
		newStreamResumeCommand(baseURL),
		newStreamIngestCommand(baseURL),
		newStreamStatsCommand(baseURL),
		newStreamTailCommand(baseURL),
	)

	return streamCmd
}

// newStreamAppendCommand constructs the `stream append` subcommand.
func newStreamAppendCommand(baseURL BaseURLFunc) *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append one block to a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stream, _ := cmd.Flags().GetString("stream")
			id, _ := cmd.Flags().GetString("id")
			block, _ := cmd.Flags().GetString("block")
			if block == "" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				block = string(raw)
			}
			c := apiclient.New(baseURL())
			count, err := c.Append(cmd.Context(), stream, []apiclient.Event{{ID: id, Block: block}})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "count: %d\n", count)
			return nil
		},
	}
	appendCmd.Flags().String("stream", "", "Stream id")
	appendCmd.Flags().String("id", "", "Event id (the block's id line)")
	appendCmd.Flags().String("block", "", "SSE block (reads stdin when empty)")
	_ = appendCmd.MarkFlagRequired("stream")
	_ = appendCmd.MarkFlagRequired("id")
	return appendCmd
}

// newStreamFinalizeCommand constructs the `stream finalize` subcommand.
func newStreamFinalizeCommand(baseURL BaseURLFunc) *cobra.Command {
	finalizeCmd := &cobra.Command{
		Use:   "finalize",
		Short: "Mark a stream complete",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stream, _ := cmd.Flags().GetString("stream")
			c := apiclient.New(baseURL())
			return c.Finalize(cmd.Context(), stream)
		},
	}
	finalizeCmd.Flags().String("stream", "", "Stream id")
	_ = finalizeCmd.MarkFlagRequired("stream")
	return finalizeCmd
}

// newStreamResumeCommand constructs the `stream resume` subcommand. It
// prints the raw SSE bytes until the stream finalizes.
func newStreamResumeCommand(baseURL BaseURLFunc) *cobra.Command {
	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a stream from a cursor and print its blocks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stream, _ := cmd.Flags().GetString("stream")
			last, _ := cmd.Flags().GetString("last-event-id")
			c := apiclient.New(baseURL())
			body, err := c.Resume(cmd.Context(), stream, last)
			if err != nil {
				return err
			}
			defer body.Close()
			_, err = io.Copy(cmd.OutOrStdout(), body)
			return err
		},
	}
	resumeCmd.Flags().String("stream", "", "Stream id")
	resumeCmd.Flags().String("last-event-id", "", "Resume cursor (last received event id)")
	_ = resumeCmd.MarkFlagRequired("stream")
	return resumeCmd
}

// newStreamIngestCommand constructs the `stream ingest` subcommand. It
// pipes stdin (a raw SSE stream) into the server, which batches and
// finalizes.
func newStreamIngestCommand(baseURL BaseURLFunc) *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a raw SSE stream from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stream, _ := cmd.Flags().GetString("stream")
			c := apiclient.New(baseURL())
			return c.Ingest(cmd.Context(), stream, cmd.InOrStdin())
		},
	}
	ingestCmd.Flags().String("stream", "", "Stream id")
	_ = ingestCmd.MarkFlagRequired("stream")
	return ingestCmd
}

// newStreamStatsCommand constructs the `stream stats` subcommand.
func newStreamStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a stream buffer's stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stream, _ := cmd.Flags().GetString("stream")
			resp, err := http.Get(baseURL() + "/v1/streams/stats?stream=" + url.QueryEscape(stream))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("status %s", resp.Status)
			}
			var st map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
	statsCmd.Flags().String("stream", "", "Stream id")
	_ = statsCmd.MarkFlagRequired("stream")
	return statsCmd
}

// newStreamTailCommand constructs the `stream tail` subcommand.
func newStreamTailCommand(baseURL BaseURLFunc) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail a stream's events with an optional CEL filter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stream, _ := cmd.Flags().GetString("stream")
			filter, _ := cmd.Flags().GetString("filter")
			u := baseURL() + "/v1/streams/tail?stream=" + url.QueryEscape(stream)
			if filter != "" {
				u += "&filter=" + url.QueryEscape(filter)
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return fmt.Errorf("status %s: %s", resp.Status, raw)
			}
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}
	tailCmd.Flags().String("stream", "", "Stream id")
	tailCmd.Flags().String("filter", "", "CEL filter, e.g. json.kind == \"delta\"")
	_ = tailCmd.MarkFlagRequired("stream")
	return tailCmd
}
