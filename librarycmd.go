// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	"github.com/524D/specfit/internal/jdx"

	"github.com/spf13/cobra"
)

func newLibraryCmd(par *params) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage the reference spectrum library",
		Long: `The library keeps reference spectra by formula, so that fits can use
--ref-name instead of file names. The library is a SQLite file or a
postgres:// URL.`,
	}
	cmd.PersistentFlags().StringVar(&par.library, "library", defaultLibrary,
		"reference library `dsn`: SQLite file or postgres:// URL")

	importCmd := &cobra.Command{
		Use:   "import spectrum...",
		Short: "Add spectra to the library, replacing spectra with the same formula",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRun(cmd, par)
			store, err := openLibrary(par.library)
			if err != nil {
				return err
			}
			defer store.Close()
			for _, uri := range args {
				s, err := r.loadSpectrum(uri, par.jdxOptions())
				if err != nil {
					return err
				}
				if err := store.Put(r.ctx, s); err != nil {
					return err
				}
				if par.verbosity != infoSilent {
					fmt.Fprintf(r.info, "Imported %s from %s\n", s.Name(), uri)
				}
			}
			return r.finish()
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the spectra in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openLibrary(par.library)
			if err != nil {
				return err
			}
			defer store.Close()
			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-16s %4s %4s  %-24s %s\n", "NAME", "Z", "LEN", "COMPOSITION", "SOURCE")
			for _, e := range entries {
				fmt.Fprintf(w, "%-16s %4d %4d  %-24s %s\n", e.Name, e.ProtonCount, e.Length, e.Composition, e.Source)
			}
			return nil
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export formula",
		Short: "Write a library spectrum as a JDX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openLibrary(par.library)
			if err != nil {
				return err
			}
			defer store.Close()
			s, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if par.outFile == "" {
				return jdx.Write(cmd.OutOrStdout(), s)
			}
			return writeSpectrumFile(par.outFile, s)
		},
	}
	exportCmd.Flags().StringVarP(&par.outFile, "output", "o", "", "JDX output `file` (default standard output)")

	deleteCmd := &cobra.Command{
		Use:   "delete formula...",
		Short: "Remove spectra from the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := newRun(cmd, par)
			store, err := openLibrary(par.library)
			if err != nil {
				return err
			}
			defer store.Close()
			for _, name := range args {
				ok, err := store.Delete(r.ctx, name)
				if err != nil {
					return err
				}
				if !ok {
					r.warnf("%s not in library", name)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(importCmd, listCmd, exportCmd, deleteCmd)
	return cmd
}

func writeSpectrumFile(path string, s jdx.Spectrum) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jdx.Write(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
