package client

import (
	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewRoot constructs a root Cobra command for the oxbow client.
// It registers the stream and message command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "oxbow",
		Short: "Oxbow client commands",
	}
	root.AddCommand(NewStreamCommand(baseURL))
	root.AddCommand(NewMessageCommand(baseURL))
	return root
}
