// Command amanuensis expands scribal abbreviations in TEI transcriptions.
// It provides commands for processing single documents, running corpus
// batches, reviewing escalated abbreviations, curating the learned
// dictionary, and exporting training datasets.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/Amanuensis/core/batch"
	"github.com/FocuswithJustin/Amanuensis/core/dataset"
	"github.com/FocuswithJustin/Amanuensis/core/dictionary"
	"github.com/FocuswithJustin/Amanuensis/core/errors"
	"github.com/FocuswithJustin/Amanuensis/core/gate"
	"github.com/FocuswithJustin/Amanuensis/core/suggest"
	"github.com/FocuswithJustin/Amanuensis/core/tei"
	"github.com/FocuswithJustin/Amanuensis/internal/config"
	"github.com/FocuswithJustin/Amanuensis/internal/fileutil"
	"github.com/FocuswithJustin/Amanuensis/internal/logging"
	"github.com/FocuswithJustin/Amanuensis/internal/providers"
)

const version = "0.2.0"

// CLI defines the command-line interface for amanuensis.
var CLI struct {
	// Global flags
	Config    string `name:"config" short:"c" help:"Configuration file path" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (text, json)"`

	// Command groups (noun-first organization)
	Process ProcessCmd `cmd:"" help:"Process a single document"`
	Batch   BatchCmd   `cmd:"" help:"Process a corpus directory"`
	Review  ReviewCmd  `cmd:"" help:"Process interactively, reviewing every escalation"`
	Dict    DictGroup  `cmd:"" help:"Learned-dictionary curation"`
	Dataset DatasetCmd `cmd:"" help:"Export a training dataset from a corpus"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// DictGroup contains dictionary curation operations.
type DictGroup struct {
	List      DictListCmd      `cmd:"" help:"List learned entries"`
	Conflicts DictConflictsCmd `cmd:"" help:"List keys where user and machine entries disagree"`
	Import    DictImportCmd    `cmd:"" help:"Merge a JSON solutions file into the user namespace"`
}

// loadConfig loads the configuration and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	if CLI.LogLevel != "" {
		cfg.Settings.LoggingLevel = CLI.LogLevel
	}
	if CLI.LogFormat != "" {
		cfg.Settings.LogFormat = CLI.LogFormat
	}
	initLogging(cfg)
	return cfg, nil
}

func initLogging(cfg *config.Config) {
	level := logging.LevelInfo
	switch cfg.Settings.LoggingLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	format := logging.FormatText
	if cfg.Settings.LogFormat == "json" {
		format = logging.FormatJSON
	}
	logging.InitLogger(level, format)
}

// session holds the wired pipeline for one command invocation.
type session struct {
	cfg     *config.Config
	store   *dictionary.Store
	engine  *batch.Engine
	reviews chan *gate.Request
}

// newSession wires the engine. Interactive sessions get a review channel;
// quiet ones resolve every escalation to unresolved.
func newSession(cfg *config.Config, quiet bool) (*session, error) {
	store, err := dictionary.Open(cfg.Paths.DictionaryPath)
	if err != nil {
		return nil, err
	}

	lex, err := providers.NewLexicon(cfg.Paths.LexiconPath)
	if err != nil {
		store.Close()
		return nil, err
	}
	provs := []suggest.Provider{lex, providers.NewPattern(lex)}
	if cfg.LanguageModel.Enabled {
		provs = append(provs, providers.NewLanguageModel(
			cfg.LanguageModel.Endpoint,
			cfg.LanguageModel.Model,
			cfg.LanguageModel.APIKey,
			time.Duration(cfg.LanguageModel.TimeoutSeconds)*time.Second,
		))
	}
	timeout := time.Duration(cfg.LanguageModel.TimeoutSeconds) * time.Second
	agg := suggest.NewAggregator(store, provs, timeout)

	var reviews chan *gate.Request
	if !quiet {
		reviews = make(chan *gate.Request)
	}
	policy := gate.NewPolicy(cfg.Ambiguity.AmbiguousKeys, cfg.Ambiguity.AutoApplyThreshold)
	g := gate.New(policy, store, reviews, quiet)

	var replacer *fileutil.Replacer
	if cfg.UnicodeReplacements.ReplacementsOn {
		replacer = fileutil.NewReplacer(
			cfg.UnicodeReplacements.CharactersToDelete,
			cfg.UnicodeReplacements.CharactersToReplace,
		)
	}

	return &session{
		cfg:     cfg,
		store:   store,
		reviews: reviews,
		engine: &batch.Engine{
			Locator:     tei.NewLocator(cfg.Settings.ContextSize),
			Aggregator:  agg,
			Gate:        g,
			Applicator:  tei.NewApplicator(cfg.Settings.UseChoice, cfg.Settings.AddXMLIDs),
			Replacer:    replacer,
			Store:       store,
			Concurrency: cfg.Settings.Concurrency,
		},
	}, nil
}

func (s *session) close() {
	if err := s.store.Close(); err != nil {
		logging.Error("store_close", "error", err.Error())
	}
}

// signalContext cancels on SIGINT/SIGTERM so runs flush before exit.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ProcessCmd processes one document through the full pipeline.
type ProcessCmd struct {
	Input  string `arg:"" help:"Input document (.xml or .xml.xz)" type:"path"`
	Output string `name:"output" short:"o" help:"Output file (default: output path from config)" type:"path"`
	Quiet  bool   `name:"quiet" short:"q" help:"Never prompt; escalations become unresolved"`
}

func (c *ProcessCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg, c.Quiet)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := signalContext()
	defer cancel()

	outPath := c.Output
	if outPath == "" {
		outPath = filepath.Join(cfg.Paths.OutputPath, fileutil.OutputName(c.Input))
	}

	done := startReviewLoop(ctx, s.reviews)
	result, err := s.engine.ProcessDocument(ctx, c.Input, outPath)
	if s.reviews != nil {
		close(s.reviews)
		<-done
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: applied %d, escalated %d, unresolved %d\n",
		result.OutputPath, result.Applied, result.Escalated, result.Unresolved)
	return nil
}

// BatchCmd processes every document under a directory.
type BatchCmd struct {
	Input      string `arg:"" optional:"" help:"Corpus directory (default: input path from config)" type:"path"`
	Output     string `name:"output" short:"o" help:"Output directory" type:"path"`
	Quarantine string `name:"quarantine" help:"Quarantine directory for unparsable inputs" type:"path"`
	Quiet      bool   `name:"quiet" short:"q" help:"Never prompt; escalations become unresolved"`
}

func (c *BatchCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg, c.Quiet)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := signalContext()
	defer cancel()

	input := c.Input
	if input == "" {
		input = cfg.Paths.InputPath
	}
	output := c.Output
	if output == "" {
		output = cfg.Paths.OutputPath
	}
	quarantine := c.Quarantine
	if quarantine == "" {
		quarantine = cfg.Paths.QuarantinePath
	}

	done := startReviewLoop(ctx, s.reviews)
	summary, err := s.engine.Run(ctx, input, output, quarantine)
	if s.reviews != nil {
		close(s.reviews)
		<-done
	}
	if err != nil {
		return err
	}
	fmt.Printf("run %s: %d/%d documents, applied %d, escalated %d, unresolved %d, quarantined %d (%.1fs)\n",
		summary.RunID, summary.Completed, summary.Documents,
		summary.Applied, summary.Escalated, summary.Unresolved,
		len(summary.Quarantined), summary.Elapsed.Seconds())
	for _, q := range summary.Quarantined {
		fmt.Printf("  quarantined %s -> %s (%s)\n", q.Path, q.Dest, q.Reason)
	}
	return nil
}

// ReviewCmd is an interactive batch: every escalation is prompted.
type ReviewCmd struct {
	Input  string `arg:"" optional:"" help:"Corpus directory (default: input path from config)" type:"path"`
	Output string `name:"output" short:"o" help:"Output directory" type:"path"`
}

func (c *ReviewCmd) Run() error {
	b := BatchCmd{Input: c.Input, Output: c.Output, Quiet: false}
	return b.Run()
}

// DictListCmd lists learned entries from one namespace.
type DictListCmd struct {
	Namespace string `arg:"" optional:"" default:"user" enum:"user,machine,unresolved" help:"Namespace to list (user, machine, unresolved)"`
}

func (c *DictListCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := dictionary.Open(cfg.Paths.DictionaryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	var entries []dictionary.Entry
	switch c.Namespace {
	case "machine":
		entries, err = store.ListMachine(ctx)
	case "unresolved":
		entries, err = store.ListUnresolved(ctx)
	default:
		entries, err = store.ListUser(ctx)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%-20s %-24s uses=%d last=%s\n", e.Key, e.Expansion, e.UsageCount, e.LastSeen)
	}
	fmt.Printf("%d entries\n", len(entries))
	return nil
}

// DictConflictsCmd lists keys where the namespaces disagree.
type DictConflictsCmd struct{}

func (c *DictConflictsCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := dictionary.Open(cfg.Paths.DictionaryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	conflicts, err := store.Conflicts(context.Background())
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		fmt.Println("no conflicts")
		return nil
	}
	for _, c := range conflicts {
		fmt.Printf("%-20s user=%-20s machine=%s\n", c.Key, c.User, c.Machine)
	}
	return nil
}

// DictImportCmd merges a JSON solutions file into the user namespace.
type DictImportCmd struct {
	File string `arg:"" help:"JSON file mapping keys to expansions" type:"path"`
}

func (c *DictImportCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing %s: %w", c.File, err)
	}

	store, err := dictionary.Open(cfg.Paths.DictionaryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.ImportUser(context.Background(), entries)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d entries into user namespace\n", n)
	return nil
}

// DatasetCmd exports located abbreviations and resolved pairs as a
// train/validation/test dataset, optionally chat-formatted for
// fine-tuning.
type DatasetCmd struct {
	Input  string `arg:"" optional:"" help:"Corpus directory (default: input path from config)" type:"path"`
	Output string `name:"output" short:"o" default:"dataset" help:"Output directory for the split files" type:"path"`
	Format string `name:"format" default:"jsonl" enum:"json,jsonl" help:"Output format"`
	Chat   bool   `name:"chat" help:"Also write chat-formatted training files"`
	System string `name:"system" help:"System message for chat-formatted entries"`
}

func (c *DatasetCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := dictionary.Open(cfg.Paths.DictionaryPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	b := dataset.NewBuilder(tei.NewLocator(cfg.Settings.ContextSize))
	b.Lookup = func(key string) (string, bool) {
		if text, ok, err := store.LookupUser(ctx, key); err == nil && ok {
			return text, true
		}
		if text, ok, err := store.LookupMachine(ctx, key); err == nil && ok {
			return text, true
		}
		return "", false
	}

	input := c.Input
	if input == "" {
		input = cfg.Paths.InputPath
	}
	paths, err := fileutil.Discover(input)
	if err != nil {
		return err
	}

	var entries []dataset.Entry
	for _, path := range paths {
		data, err := fileutil.ReadDocument(path)
		if err != nil {
			return err
		}
		got, err := b.Harvest(path, data)
		if err != nil {
			if errors.Is(err, errors.ErrMalformedStructure) {
				logging.DocumentEvent("dataset_skip_malformed", path, "error", err.Error())
				continue
			}
			return err
		}
		entries = append(entries, got...)
	}
	entries = b.Validate(entries)
	train, validation, test := b.Split(entries)

	splits := []struct {
		name    string
		entries []dataset.Entry
	}{
		{"train", train},
		{"validation", validation},
		{"test", test},
	}
	for _, s := range splits {
		path := filepath.Join(c.Output, s.name+"."+c.Format)
		if err := writeSplit(path, c.Format, s.entries); err != nil {
			return err
		}
		if c.Chat {
			chatPath := filepath.Join(c.Output, s.name+"_chat."+c.Format)
			if err := writeSplit(chatPath, c.Format, dataset.FormatChat(s.entries, c.System)); err != nil {
				return err
			}
		}
	}

	fmt.Printf("dataset: %d entries (%d train, %d validation, %d test), skipped %d, duplicates %d -> %s\n",
		len(entries), len(train), len(validation), len(test), b.Skipped, b.Duplicates, c.Output)
	return nil
}

func writeSplit[T any](path, format string, items []T) error {
	if format == "json" {
		return dataset.WriteJSON(path, items)
	}
	return dataset.WriteJSONL(path, items)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("amanuensis %s (sqlite driver: %s)\n", version, dictionary.DriverType())
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("amanuensis"),
		kong.Description("Abbreviation expansion for early-modern TEI transcriptions"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
