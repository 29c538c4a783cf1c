package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command holding every client command.
func NewRoot(addr AddrFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "eventbus",
		Short: "Event bus client commands",
	}
	for _, c := range Commands(addr) {
		root.AddCommand(c)
	}
	return root
}
