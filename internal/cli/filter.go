package cli

import (
	"github.com/spf13/cobra"

	"edurag/internal/domain"
)

// metaFlags are the metadata flags shared by ingest and the question commands.
type metaFlags struct {
	subject  string
	class    int
	chapter  string
	page     int
	language string
}

func (f *metaFlags) register(cmd *cobra.Command, withPage bool) {
	cmd.Flags().StringVar(&f.subject, "subject", "", "subject, e.g. science")
	cmd.Flags().IntVar(&f.class, "class", 0, "class level")
	cmd.Flags().StringVar(&f.chapter, "chapter", "", "chapter title")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "language code (gu, en, hi)")
	if withPage {
		cmd.Flags().IntVar(&f.page, "page", 0, "page number")
	}
}

func (f *metaFlags) filter(cmd *cobra.Command) domain.Filter {
	fl := domain.Filter{Subject: f.subject, Chapter: f.chapter}
	if cmd.Flags().Changed("class") {
		c := f.class
		fl.ClassLevel = &c
	}
	return fl
}

func (f *metaFlags) metadata(cmd *cobra.Command) domain.Metadata {
	m := domain.Metadata{
		Subject:  f.subject,
		Chapter:  f.chapter,
		Language: domain.Language(f.language),
	}
	if cmd.Flags().Changed("class") {
		c := f.class
		m.ClassLevel = &c
	}
	if cmd.Flags().Changed("page") {
		p := f.page
		m.Page = &p
	}
	return m
}
