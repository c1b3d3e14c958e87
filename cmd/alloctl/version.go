package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the alloctl version",
		Run: func(cmd *cobra.Command, args []string) {
			printInfo("alloctl %s\n", rootCmd.Version)
		},
	})
}
