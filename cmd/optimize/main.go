// Command optimize runs the writer/reviewer loop on a local file without the
// HTTP api:
//
//	go run ./cmd/optimize -file cv.tex -context "Senior Go engineer"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"portfolio-backend/internal/bootstrap"
	"portfolio-backend/internal/documents"
	"portfolio-backend/internal/extract"
	"portfolio-backend/internal/optimize"
	"portfolio-backend/internal/shared/config"
	"portfolio-backend/internal/structured"
)

func main() {
	cfg := config.Load()
	cfg.DatabaseURL = ""
	cfg.SQLitePath = ""
	cfg.OptimizeQueueURL = ""
	cfg.Env = "dev"

	filePath := flag.String("file", "", "Path to a .tex, .md, .txt, .pdf or .docx document")
	kind := flag.String("kind", "", "Document kind: resume or proposal (default from extension)")
	target := flag.String("context", "", "Target context, e.g. a job description")
	contextPath := flag.String("context-file", "", "Read the target context from a file")
	targetScore := flag.Float64("target", optimize.DefaultTargetScore, "Target review score")
	iterations := flag.Int("iterations", optimize.DefaultMaxIterations, "Maximum writer/reviewer iterations")
	writer := flag.String("writer", cfg.WriterModel, "Writer model")
	reviewer := flag.String("reviewer", cfg.ReviewerModel, "Reviewer model")
	humanize := flag.Bool("humanize", cfg.OptimizeHumanize, "Run the humanizer on the final draft")
	outPath := flag.String("out", "", "Write the optimized document to this path (optional)")
	flag.Parse()

	if strings.TrimSpace(*filePath) == "" {
		exitErr("file path is required")
	}
	data, err := os.ReadFile(*filePath)
	if err != nil {
		exitErr(fmt.Sprintf("read file: %v", err))
	}

	if strings.TrimSpace(*contextPath) != "" {
		b, err := os.ReadFile(*contextPath)
		if err != nil {
			exitErr(fmt.Sprintf("read context: %v", err))
		}
		*target = string(b)
	}

	docKind := documents.Kind(strings.ToLower(strings.TrimSpace(*kind)))
	if docKind == "" {
		docKind = kindFromExt(*filePath)
	}
	if !docKind.Valid() {
		exitErr(fmt.Sprintf("unsupported kind: %s", docKind))
	}

	content, err := loadContent(context.Background(), data, *filePath, docKind)
	if err != nil {
		exitErr(err.Error())
	}

	app, err := bootstrap.Build(cfg)
	if err != nil {
		exitErr(fmt.Sprintf("bootstrap: %v", err))
	}
	defer app.Close()

	ctx := context.Background()
	doc, err := app.DocumentsService.CreateWithInitialVersion(ctx, documents.NewDocument{
		Kind:       docKind,
		Title:      filepath.Base(*filePath),
		JobContext: strings.TrimSpace(*target),
		Content:    content,
	})
	if err != nil {
		exitErr(fmt.Sprintf("create document: %v", err))
	}

	res, err := app.Optimizer.Run(ctx, optimize.Params{
		DocumentID:    doc.ID,
		TargetScore:   *targetScore,
		MaxIterations: *iterations,
		WriterModel:   *writer,
		ReviewerModel: *reviewer,
		Humanize:      humanize,
	})
	if err != nil {
		exitErr(fmt.Sprintf("optimize: %v", err))
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(structured.Render(res.Content)+"\n"), 0o644); err != nil {
			exitErr(fmt.Sprintf("write output: %v", err))
		}
	}

	summary := map[string]any{
		"score":      res.Score,
		"iterations": res.Iterations,
		"converged":  res.Converged,
		"outcome":    res.Outcome,
		"humanized":  res.Humanized,
		"review":     res.Review,
	}
	if *outPath == "" {
		summary["content"] = structured.Render(res.Content)
	}
	pretty, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		exitErr(fmt.Sprintf("format json: %v", err))
	}
	if _, err := os.Stdout.Write(append(pretty, '\n')); err != nil {
		exitErr(fmt.Sprintf("write stdout: %v", err))
	}
}

func kindFromExt(path string) documents.Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return documents.KindProposal
	default:
		return documents.KindResume
	}
}

func loadContent(ctx context.Context, data []byte, path string, kind documents.Kind) (documents.Content, error) {
	var text string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx":
		extracted, err := extract.ExtractTextFromBytes(ctx, data, "", filepath.Base(path))
		if err != nil {
			return documents.Content{}, fmt.Errorf("extract text: %w", err)
		}
		text = extracted
	default:
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return documents.Content{}, fmt.Errorf("document is empty")
	}
	if kind == documents.KindProposal {
		if sections := structured.ParseRendered(text, nil); sections != nil {
			return documents.Content{Sections: sections}, nil
		}
	}
	return documents.Content{Latex: text}, nil
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
