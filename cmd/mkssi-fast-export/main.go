package main

// mkssi-fast-export reads an MKSSI RCS archive and writes the
// equivalent git fast-import command stream to stdout.
//
// Design:
// Load() parses every RCS master file under --rcs-dir into memory,
// then the export package walks project.pj (and the variant projects
// it names) trunk-forward, one checkpoint revision at a time, turning
// each revision's file-list delta into a git commit. Output ordering
// (blobs before the commits that reference them, commits before their
// tags) is a hard invariant, so the whole pipeline runs
// single-threaded.

import (
	"os"

	"github.com/danielrlewis/mkssi-fast-export/authormap"
	"github.com/danielrlewis/mkssi-fast-export/config"
	"github.com/danielrlewis/mkssi-fast-export/export"
	"github.com/danielrlewis/mkssi-fast-export/graph"
	"github.com/danielrlewis/mkssi-fast-export/revnum"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

func main() {
	var (
		rcsDir = kingpin.Flag(
			"rcs-dir",
			"Directory holding the MKSSI RCS archive (required).",
		).Required().String()
		projDir = kingpin.Flag(
			"proj-dir",
			"Directory holding the live (uncheckpointed) project tree, for tip commits.",
		).String()
		sourceDir = kingpin.Flag(
			"source-dir",
			"Directory substituted for $Source$/$Header$ keyword expansion (overrides config).",
		).String()
		pnameDir = kingpin.Flag(
			"pname-dir",
			"Directory substituted for $ProjectName$ keyword expansion (overrides config).",
		).String()
		trunkBranch = kingpin.Flag(
			"trunk-branch",
			"Revision number at which to treat the trunk as ending, as if it were a branch.",
		).String()
		authorMapFile = kingpin.Flag(
			"authormap",
			"File mapping MKSSI usernames to 'Proper Name <email>' identities (overrides config).",
		).String()
		authorList = kingpin.Flag(
			"authorlist",
			"Instead of the fast-import stream, print one unresolved username per line.",
		).Bool()
		configFile = kingpin.Flag(
			"config",
			"Config file for mkssi-fast-export.",
		).Short('c').String()
		graphFile = kingpin.Flag(
			"graphfile",
			"Graphviz dot (or .png/.svg) file to dump the project revision/branch graph to.",
		).String()
		debug = kingpin.Flag(
			"debug",
			"Enable debug-level logging.",
		).Bool()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version("mkssi-fast-export 1.0").Author("")
	kingpin.CommandLine.Help = "Converts an MKSSI RCS archive into a git fast-import command stream.\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug {
		logger.Level = logrus.DebugLevel
	}

	cfg := &config.Config{TrunkBranch: config.DefaultTrunkBranch}
	if *configFile != "" {
		loaded, err := config.LoadConfigFile(*configFile)
		if err != nil {
			logger.Errorf("error loading config file: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *sourceDir != "" {
		cfg.SourceDir = *sourceDir
	}
	if *pnameDir != "" {
		cfg.PnameDir = *pnameDir
	}
	if *authorMapFile != "" {
		cfg.AuthorMapPath = *authorMapFile
	}

	var trunkLimit revnum.Number
	if *trunkBranch != "" {
		n, err := revnum.Parse(*trunkBranch)
		if err != nil {
			logger.Errorf("invalid --trunk-branch revision %q: %v", *trunkBranch, err)
			os.Exit(1)
		}
		trunkLimit = n
	}
	branchName := cfg.TrunkBranch

	var am *authormap.Map
	if cfg.AuthorMapPath != "" {
		f, err := os.Open(cfg.AuthorMapPath)
		if err != nil {
			logger.Errorf("error opening author map: %v", err)
			os.Exit(1)
		}
		parsed, err := authormap.Parse(f)
		f.Close()
		if err != nil {
			logger.Errorf("error parsing author map: %v", err)
			os.Exit(1)
		}
		am = parsed
	}

	var gb *graph.Builder
	if *graphFile != "" {
		gb = graph.NewBuilder()
	}

	opts := export.Options{
		RCSDir:      *rcsDir,
		ProjDir:     *projDir,
		SourceDir:   cfg.SourceDir,
		PnameDir:    cfg.PnameDir,
		TrunkBranch: cfg.ApplyBranchNameOverride(branchName),
		TrunkLimit:  trunkLimit,
		AuthorMap:   am,
		AuthorList:  *authorList,
		Graph:       gb,
		Logger:      logger,
	}

	err := export.Run(opts, os.Stdout)
	if gb != nil {
		if werr := gb.WriteFile(*graphFile); werr != nil {
			logger.Warnf("error writing graph file: %v", werr)
		}
	}
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
