// Command commenter adds reviewer comments to DOCX and PDF files from a JSON
// annotation spec.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/doc-commenter/internal/documents"
	"github.com/Epistemic-Technology/doc-commenter/internal/logger"
	"github.com/Epistemic-Technology/doc-commenter/internal/operations"
	"github.com/Epistemic-Technology/doc-commenter/internal/spec"
	"github.com/Epistemic-Technology/doc-commenter/models"
	"github.com/Epistemic-Technology/doc-commenter/server"
)

const version = "0.1.0"

var stdout io.Writer = os.Stdout

// Globals are the flags shared by every command. Log settings left empty
// fall back to the COMMENTER_LOG_* environment variables.
type Globals struct {
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogOutput string `name:"log-output" help:"Log destination (stderr, file)"`
	LogFile   string `name:"log-file" help:"Log file path when --log-output=file" type:"path"`
}

func (g *Globals) logger() (logger.Logger, error) {
	return logger.NewLogger(logger.LogConfig{Output: g.LogOutput, Level: g.LogLevel, FilePath: g.LogFile})
}

// CLI defines the command-line interface for commenter.
type CLI struct {
	Globals

	Annotate AnnotateCmd `cmd:"" default:"withargs" help:"Annotate a document (default command)"`
	Inspect  InspectCmd  `cmd:"" help:"List the paragraphs or lines targets are matched against"`
	Serve    ServeCmd    `cmd:"" help:"Run the MCP server over stdio"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

// AnnotateCmd applies an annotation spec to a document.
type AnnotateCmd struct {
	Document string `arg:"" name:"document_path" help:"Input .docx or .pdf file" type:"existingfile"`
	Spec     string `arg:"" name:"json_path" help:"Annotation spec (JSON object or array)" type:"existingfile"`
	Output   string `short:"o" help:"Output path (default: <name>-annotated.<ext>)" type:"path"`
	Author   string `help:"Author for entries without one" env:"COMMENTER_AUTHOR" default:"Reviewer"`
	Report   string `help:"Write a JSON run report to this path" type:"path"`
}

func (c *AnnotateCmd) Run(g *Globals) error {
	log, err := g.logger()
	if err != nil {
		return err
	}

	doc, err := documents.ReadDocument(c.Document)
	if err != nil {
		return err
	}
	entries, err := spec.Load(c.Spec, doc.Kind, spec.Options{DefaultAuthor: c.Author})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := operations.Annotate(ctx, doc, entries, operations.Options{OutputPath: c.Output}, log)
	if err != nil {
		return err
	}
	for _, e := range report.Entries {
		if e.Warning != "" {
			fmt.Fprintf(os.Stderr, "Warning: entry %d (%s): %s\n", e.Entry, e.Target, e.Warning)
		}
	}
	if c.Report != "" {
		if err := operations.WriteReport(c.Report, report); err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "Wrote annotated file to: %s\n", report.OutputPath)
	return nil
}

// InspectCmd prints the text units of a document.
type InspectCmd struct {
	Document string `arg:"" name:"document_path" help:"Input .docx or .pdf file" type:"existingfile"`
	JSON     bool   `help:"Print JSON instead of text"`
}

func (c *InspectCmd) Run() error {
	doc, err := documents.ReadDocument(c.Document)
	if err != nil {
		return err
	}
	outline, err := operations.Inspect(doc)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outline)
	}
	for _, u := range outline.Units {
		switch outline.Kind {
		case models.KindPDF:
			fmt.Fprintf(stdout, "page %d line %d %s\t%s\n", u.Page, u.Index, u.Box, u.Text)
		default:
			fmt.Fprintf(stdout, "%d\t%q\n", u.Index, u.Text)
		}
	}
	return nil
}

// ServeCmd runs the MCP server.
type ServeCmd struct{}

func (c *ServeCmd) Run(g *Globals) error {
	log, err := g.logger()
	if err != nil {
		return err
	}
	log.Info("Starting %s server", server.Name)

	srv := server.CreateServer(log)
	if err := srv.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "commenter version %s\n", version)
	return nil
}

func parser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("commenter"),
		kong.Description("Add reviewer comments to DOCX and PDF files from a JSON annotation spec"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Configuration(kong.JSON, "~/.commenter.json", "./.commenter.json"),
		kong.Bind(&cli.Globals),
	}, options...)
	return kong.New(cli, options...)
}

func main() {
	var cli CLI
	k, err := parser(&cli)
	if err != nil {
		panic(err)
	}
	ctx, err := k.Parse(os.Args[1:])
	k.FatalIfErrorf(err)
	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}
