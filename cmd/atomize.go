package cmd

import (
	"fmt"
	"os"
	"strings"

	"clgen/pkg/atomizer"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var atomizeTokens string

var atomizeCmd = &cobra.Command{
	Use:   "atomize <file>",
	Short: "Atomize a file and print its token stream",
	Long:  `Derive a vocabulary from a file and print its token stream, one atom per line`,
	Args:  cobra.ExactArgs(1),
	Run:   runAtomize,
}

func init() {
	atomizeCmd.Flags().StringVarP(&atomizeTokens, "tokens", "t", "", "comma-separated multi-character tokens for greedy atomization")
	rootCmd.AddCommand(atomizeCmd)
}

func runAtomize(cmd *cobra.Command, args []string) {
	contents, err := os.ReadFile(args[0])
	if err != nil {
		color.Red("Failed to read file: %v", err)
		os.Exit(1)
	}
	text := string(contents)

	var atom atomizer.Atomizer
	if atomizeTokens != "" {
		tokens := strings.Split(atomizeTokens, ",")
		greedy, err := atomizer.DeriveGreedyAtomizer(text, tokens)
		if err != nil {
			color.Red("Failed to derive vocabulary: %v", err)
			os.Exit(1)
		}
		atom = greedy
	} else {
		atom = atomizer.DeriveCharAtomizer(text)
	}

	stream := atom.TokenizeString(text)
	for _, token := range stream {
		fmt.Printf("%q\n", token)
	}

	if !silent {
		color.Green("\n%d atoms, vocabulary of %d", len(stream), len(atom.Vocab()))
	}
}
