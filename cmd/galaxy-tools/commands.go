package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ironsheep/galaxy-tools/internal/config"
	"github.com/ironsheep/galaxy-tools/internal/dataset"
	"github.com/ironsheep/galaxy-tools/internal/detector"
	"github.com/ironsheep/galaxy-tools/internal/evaluate"
	"github.com/ironsheep/galaxy-tools/internal/imaging"
	"github.com/ironsheep/galaxy-tools/internal/morphology"
	"github.com/ironsheep/galaxy-tools/internal/server"
	"github.com/ironsheep/galaxy-tools/internal/store"
	"github.com/ironsheep/galaxy-tools/internal/web"
)

func openDetector(cfg *config.Config) (*detector.Detector, error) {
	return detector.New(detector.Config{
		ModelPath:   cfg.ModelPath,
		LibraryPath: cfg.OrtLibrary,
		InputSize:   cfg.InputSize,
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runPrepare(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("prepare", flag.ExitOnError)
	archive := fs.String("archive", cfg.ArchivePath, "zip of <id>.jpg galaxy images")
	labels := fs.String("labels", cfg.LabelsCSV, "survey CSV with GalaxyID and Class* columns")
	output := fs.String("output", cfg.DatasetDir, "dataset root (wiped and rebuilt)")
	sample := fs.Int("sample-size", 0, "randomly sample N records (0 = all)")
	valSplit := fs.Float64("val-split", dataset.DefaultValSplit, "validation fraction")
	seed := fs.Int64("seed", dataset.DefaultSeed, "split seed")
	fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	res, err := dataset.Materialize(ctx, dataset.Options{
		ArchivePath: *archive,
		LabelsPath:  *labels,
		OutputRoot:  *output,
		SampleSize:  *sample,
		ValSplit:    *valSplit,
		Seed:        *seed,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Dataset ready at %s\n", res.OutputRoot)
	fmt.Printf("  train: %d images (%d planned)\n", res.TrainCount, len(res.TrainIDs))
	fmt.Printf("  val:   %d images (%d planned)\n", res.ValCount, len(res.ValIDs))
	if res.Skipped > 0 {
		fmt.Printf("  skipped %d records without an image\n", res.Skipped)
	}
	fmt.Printf("  manifest: %s\n", res.ManifestPath)
	return nil
}

func runPredict(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	imagePath := fs.String("image", "", "local image to analyse")
	url := fs.String("url", "", "http(s) image URL to analyse")
	outputDir := fs.String("output-dir", cfg.OutputDir, "directory for the annotated render")
	conf := fs.Float64("conf", cfg.Conf, "confidence threshold")
	iou := fs.Float64("iou", cfg.IoU, "NMS IoU threshold")
	fs.Parse(args)

	if (*imagePath == "") == (*url == "") {
		return errors.New("exactly one of --image or --url is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	path := *imagePath
	if *url != "" {
		tmp, err := imaging.Download(ctx, *url)
		if err != nil {
			return err
		}
		defer os.Remove(tmp)
		path = tmp
	}

	det, err := openDetector(cfg)
	if err != nil {
		return err
	}
	defer det.Close()

	res, err := evaluate.PredictImage(ctx, det, path, *outputDir, *conf, *iou)
	if err != nil {
		return err
	}

	fmt.Printf("%d detection(s) in %s\n", len(res.Detections), res.Image)
	for _, d := range res.Detections {
		fmt.Printf("  %-10s %6.2f%%  box %v\n", d.ClassName, d.Confidence*100, d.Box)
	}
	fmt.Printf("Annotated output: %s\n", res.AnnotatedPath)
	return nil
}

func runEvaluate(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	count := fs.Int("count", 10, "number of images to sample (0 = all)")
	folder := fs.String("folder", cfg.ValImages(), "directory of .jpg images")
	labels := fs.String("labels", cfg.ValLabels(), "directory of ground-truth label files")
	outputDir := fs.String("output-dir", cfg.OutputDir, "directory for annotated renders")
	conf := fs.Float64("conf", cfg.Conf, "confidence threshold")
	iou := fs.Float64("iou", cfg.IoU, "NMS IoU threshold")
	seed := fs.Uint64("seed", 0, "sampling seed (0 = time based)")
	chart := fs.Bool("chart", false, "also write a per-class bar chart")
	record := fs.Bool("record", true, "record the run in the history database")
	fs.Parse(args)

	if *count < 0 {
		return errors.New("--count must not be negative")
	}
	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	images, err := evaluate.SampleImages(*folder, *count, *seed)
	if err != nil {
		return err
	}

	labelDir := *labels
	if _, err := os.Stat(labelDir); err != nil {
		labelDir = ""
	}

	det, err := openDetector(cfg)
	if err != nil {
		return err
	}
	defer det.Close()

	ctx, cancel := signalContext()
	defer cancel()

	opts := evaluate.Options{
		OutputDir:     *outputDir,
		LabelDir:      labelDir,
		ConfThreshold: *conf,
		IoUThreshold:  *iou,
	}
	summary, err := evaluate.Evaluate(ctx, det, images, opts)
	if summary != nil {
		printSummary(summary)
	}
	if err != nil {
		return err
	}

	if *chart {
		path, err := evaluate.SaveCountsChart(summary)
		if err != nil {
			return err
		}
		fmt.Printf("Chart: %s\n", path)
	}

	if *record {
		hist, err := store.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer hist.Close()
		run, err := hist.Record(summary, "cli", *folder, opts)
		if err != nil {
			return err
		}
		fmt.Printf("Recorded run %s\n", run.RunID)
	}
	return nil
}

func printSummary(s *evaluate.Summary) {
	fmt.Printf("Processed %d images -> detection rate %.1f%%\n", s.TotalImages, s.DetectionRate)
	if s.Verifiable > 0 {
		fmt.Printf("Accuracy (when GT available): %.2f%% (%d/%d)\n", s.Accuracy, s.Correct(), s.Verifiable)
	}
	fmt.Println("Top-1 class counts:")
	for _, c := range morphology.Classes {
		fmt.Printf("  %-10s %d\n", c.String(), s.Counts[int(c)])
	}
	for _, d := range s.Details {
		if d.Error != "" {
			fmt.Printf("  failed %s: %s\n", filepath.Base(d.Image), d.Error)
		}
	}
	fmt.Printf("Annotated outputs in: %s\n", s.OutputDir)
}

func runHistory(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of runs to list (0 = all)")
	del := fs.String("delete", "", "delete the run with this ID")
	fs.Parse(args)

	hist, err := store.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer hist.Close()

	if *del != "" {
		if err := hist.Delete(*del); err != nil {
			return err
		}
		fmt.Printf("Deleted run %s\n", *del)
		return nil
	}

	runs, err := hist.List(*limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No evaluation runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tWHEN\tSOURCE\tIMAGES\tDETECTION\tACCURACY\tMEAN CONF")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f%%\t%.2f%%\t%.3f\n",
			r.RunID,
			time.Unix(0, r.CreatedAt).Format("2006-01-02 15:04"),
			r.Source,
			r.TotalImages,
			r.DetectionRate,
			r.Accuracy,
			r.MeanConfidence)
	}
	return tw.Flush()
}

func runServeMCP(cfg *config.Config) error {
	deps := server.Deps{Config: cfg, Version: Version}

	// Dataset tools work without a model, so a missing one is not fatal.
	det, err := openDetector(cfg)
	if err != nil {
		log.Printf("Detector unavailable, detection tools disabled: %v", err)
	} else {
		defer det.Close()
		deps.Detector = det
	}

	hist, err := store.Open(cfg.HistoryDB)
	if err != nil {
		log.Printf("History unavailable, runs will not be recorded: %v", err)
	} else {
		defer hist.Close()
		deps.History = hist
	}

	return server.New(deps).Run()
}

func runServeHTTP(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve-http", flag.ExitOnError)
	addr := fs.String("addr", cfg.HTTPAddr, "listen address")
	fs.Parse(args)

	det, err := openDetector(cfg)
	if err != nil {
		return err
	}
	defer det.Close()

	hist, err := store.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer hist.Close()

	ctx, cancel := signalContext()
	defer cancel()

	return web.New(cfg, det, hist).ListenAndServe(ctx, *addr)
}
